package warmstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client provides instance-scoped Redis operations for the prewarm engine.
// All keys and channels are automatically namespaced with the instance name.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb          *redis.Client
	instanceName string
}

// NewClient creates a new warmstore client for the specified instance.
// The client automatically namespaces all keys and channels with the instance name.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - instanceName: Prewarm instance identifier (must not be empty)
//
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
// After calling Close(), the client should not be used.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
// Returns an error if Redis is not reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// InstanceName returns the instance this client is scoped to.
func (c *Client) InstanceName() string {
	return c.instanceName
}

// CacheGet retrieves the cached value for a data requirement.
// Returns (nil, redis.Nil) on a cache miss. Use IsNotFound() to check.
func (c *Client) CacheGet(ctx context.Context, req DataRequirement) (json.RawMessage, error) {
	key := CacheKey(c.instanceName, req)

	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, redis.Nil
		}
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	return json.RawMessage(data), nil
}

// CacheSet stores a value for a data requirement with the given TTL.
// The engine always writes prefetched entries with a short TTL so that
// provisional data expires unless a real consumer refreshes it.
func (c *Client) CacheSet(ctx context.Context, req DataRequirement, value json.RawMessage, ttl time.Duration) error {
	key := CacheKey(c.instanceName, req)

	if err := c.rdb.Set(ctx, key, []byte(value), ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}

	return nil
}

// SnapshotGet reads the persisted behavior snapshot.
// Returns (nil, redis.Nil) if no snapshot exists. Use IsNotFound() to check.
func (c *Client) SnapshotGet(ctx context.Context) ([]byte, error) {
	key := SnapshotKey(c.instanceName)

	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, redis.Nil
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	return data, nil
}

// SnapshotSet writes the behavior snapshot. Snapshots have no TTL; staleness
// is decided at load time against the snapshot's own saved-at timestamp.
func (c *Client) SnapshotSet(ctx context.Context, data []byte) error {
	key := SnapshotKey(c.instanceName)

	if err := c.rdb.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	return nil
}

// SnapshotDelete removes the persisted behavior snapshot.
// Deleting a snapshot that does not exist is not an error.
func (c *Client) SnapshotDelete(ctx context.Context) error {
	key := SnapshotKey(c.instanceName)

	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}

	return nil
}

// PublishRouteEvent publishes a route-change event for this instance.
// Validates the event before publishing.
func (c *Client) PublishRouteEvent(ctx context.Context, event *RouteEvent) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid route event: %w", err)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal route event: %w", err)
	}

	channel := RouteEventsChannel(c.instanceName)
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish route event: %w", err)
	}

	return nil
}

// PublishAccessEvent publishes a data-access event for this instance.
// Validates the event before publishing.
func (c *Client) PublishAccessEvent(ctx context.Context, event *AccessEvent) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid access event: %w", err)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal access event: %w", err)
	}

	channel := AccessEventsChannel(c.instanceName)
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish access event: %w", err)
	}

	return nil
}

// PublishInteractionPayload publishes a raw interaction payload for this
// instance. The payload is forwarded as-is: interaction envelopes are parsed
// (and malformed ones dropped) by the engine, not by publishers.
func (c *Client) PublishInteractionPayload(ctx context.Context, payload []byte) error {
	channel := InteractionEventsChannel(c.instanceName)
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish interaction payload: %w", err)
	}

	return nil
}

// PublishPrefetchNotice publishes a prefetch activity notice for this instance.
func (c *Client) PublishPrefetchNotice(ctx context.Context, notice *PrefetchNotice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("failed to marshal prefetch notice: %w", err)
	}

	channel := PrefetchEventsChannel(c.instanceName)
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish prefetch notice: %w", err)
	}

	return nil
}

// InboundEvent is one behavior event delivered by an EventSubscription.
// Exactly one of the three fields is set. Interaction payloads are delivered
// raw because envelope parsing (including the malformed-payload drop policy)
// belongs to the engine, not the transport.
type InboundEvent struct {
	Route              *RouteEvent
	Access             *AccessEvent
	InteractionPayload []byte
}

// EventSubscription represents an active Pub/Sub subscription to the three
// inbound behavior channels. Caller must call Close() when done.
type EventSubscription struct {
	events <-chan *InboundEvent
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of inbound behavior events.
// The channel is closed when the subscription is closed or the context is cancelled.
func (s *EventSubscription) Events() <-chan *InboundEvent {
	return s.events
}

// Errors returns the channel of subscription errors.
// Errors include JSON unmarshaling failures and other non-fatal issues.
// The subscription continues after errors - messages are skipped.
func (s *EventSubscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *EventSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeEvents subscribes to the route, access, and interaction channels
// for this instance. Returns an EventSubscription delivering decoded events.
// Caller must call subscription.Close() when done.
// Context cancellation also stops the subscription.
//
// Events are delivered on a buffered channel (size 64) to absorb bursts.
// If the subscriber is too slow, events may be dropped by Redis Pub/Sub
// (at-most-once delivery) - acceptable for a best-effort learning loop.
func (c *Client) SubscribeEvents(ctx context.Context) (*EventSubscription, error) {
	routeChannel := RouteEventsChannel(c.instanceName)
	accessChannel := AccessEventsChannel(c.instanceName)
	interactionChannel := InteractionEventsChannel(c.instanceName)

	pubsub := c.rdb.Subscribe(ctx, routeChannel, accessChannel, interactionChannel)

	eventsChan := make(chan *InboundEvent, 64)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				event, err := decodeInbound(msg.Channel, routeChannel, accessChannel, []byte(msg.Payload))
				if err != nil {
					select {
					case errorsChan <- err:
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- event:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &EventSubscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// decodeInbound converts a raw Pub/Sub message into an InboundEvent based on
// the channel it arrived on. Anything not on the route or access channel is an
// interaction payload and passes through undecoded.
func decodeInbound(channel, routeChannel, accessChannel string, payload []byte) (*InboundEvent, error) {
	switch channel {
	case routeChannel:
		var event RouteEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal route event: %w", err)
		}
		return &InboundEvent{Route: &event}, nil

	case accessChannel:
		var event AccessEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal access event: %w", err)
		}
		return &InboundEvent{Access: &event}, nil

	default:
		return &InboundEvent{InteractionPayload: payload}, nil
	}
}

// NoticeSubscription represents an active Pub/Sub subscription to prefetch
// activity notices. Caller must call Close() when done.
type NoticeSubscription struct {
	events <-chan *PrefetchNotice
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Notices returns the channel of prefetch notices.
func (s *NoticeSubscription) Notices() <-chan *PrefetchNotice {
	return s.events
}

// Errors returns the channel of subscription errors.
func (s *NoticeSubscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
func (s *NoticeSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribePrefetchNotices subscribes to prefetch activity notices for this
// instance. Caller must call subscription.Close() when done.
func (c *Client) SubscribePrefetchNotices(ctx context.Context) (*NoticeSubscription, error) {
	channel := PrefetchEventsChannel(c.instanceName)
	pubsub := c.rdb.Subscribe(ctx, channel)

	eventsChan := make(chan *PrefetchNotice, 10)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var notice PrefetchNotice
				if err := json.Unmarshal([]byte(msg.Payload), &notice); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal prefetch notice: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &notice:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &NoticeSubscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
// Use this to check if CacheGet or SnapshotGet returned "not found".
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
