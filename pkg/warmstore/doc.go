// Package warmstore provides type-safe Go definitions and Redis access patterns
// for the prewarm engine's shared state: the prefetch cache the host application
// reads through, the durable behavior-pattern snapshot, and the Pub/Sub channels
// that carry inbound behavior events and outbound prefetch activity.
//
// All Redis keys and channels are namespaced by instance name to enable multiple
// prewarm instances to safely coexist on a single Redis server.
package warmstore
