package warmstore

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by instance name so that
// multiple prewarm instances (and their host applications) can share a single
// Redis server.
//
// Key pattern: prewarm:{instance_name}:{entity}:...
// Channel pattern: prewarm:{instance_name}:{event_type}_events

// CacheKey returns the Redis key for one cached data requirement.
// Pattern: prewarm:{instance_name}:cache:{category}:{identifier}:{params_hash}
func CacheKey(instanceName string, req DataRequirement) string {
	return fmt.Sprintf("prewarm:%s:cache:%s:%s:%s",
		instanceName, req.Category, req.Identifier, ParamsHash(req.Params))
}

// SnapshotKey returns the Redis key holding the persisted behavior snapshot.
// Pattern: prewarm:{instance_name}:patterns
func SnapshotKey(instanceName string) string {
	return fmt.Sprintf("prewarm:%s:patterns", instanceName)
}

// RouteEventsChannel returns the Pub/Sub channel name for route-change events.
// Pattern: prewarm:{instance_name}:route_events
func RouteEventsChannel(instanceName string) string {
	return fmt.Sprintf("prewarm:%s:route_events", instanceName)
}

// AccessEventsChannel returns the Pub/Sub channel name for data-access events.
// Pattern: prewarm:{instance_name}:access_events
func AccessEventsChannel(instanceName string) string {
	return fmt.Sprintf("prewarm:%s:access_events", instanceName)
}

// InteractionEventsChannel returns the Pub/Sub channel name for UI-interaction
// events. Pattern: prewarm:{instance_name}:interaction_events
func InteractionEventsChannel(instanceName string) string {
	return fmt.Sprintf("prewarm:%s:interaction_events", instanceName)
}

// PrefetchEventsChannel returns the Pub/Sub channel name for outbound prefetch
// activity notices. Pattern: prewarm:{instance_name}:prefetch_events
func PrefetchEventsChannel(instanceName string) string {
	return fmt.Sprintf("prewarm:%s:prefetch_events", instanceName)
}
