package commands

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avockley/prewarm/pkg/warmstore"
)

func setupReplayClient(t *testing.T) *warmstore.Client {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := warmstore.NewClient(&redis.Options{Addr: mr.Addr()}, "replay-test")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client
}

func TestPublishReplayLine(t *testing.T) {
	client := setupReplayClient(t)
	ctx := context.Background()

	sub, err := client.SubscribeEvents(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { sub.Close() })

	t.Run("route line is decoded and gets a generated ID", func(t *testing.T) {
		line := []byte(`{"kind":"route","event":{"from_route":"/products","to_route":"/coverage","time_spent_ms":4200}}`)
		require.NoError(t, publishReplayLine(ctx, client, line))

		select {
		case event := <-sub.Events():
			require.NotNil(t, event.Route)
			assert.Equal(t, "/products", event.Route.FromRoute)
			assert.Equal(t, "/coverage", event.Route.ToRoute)
			assert.NotEmpty(t, event.Route.ID)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for route event")
		}
	})

	t.Run("access line is decoded", func(t *testing.T) {
		line := []byte(`{"kind":"access","event":{"category":"products","identifier":"prod-123"}}`)
		require.NoError(t, publishReplayLine(ctx, client, line))

		select {
		case event := <-sub.Events():
			require.NotNil(t, event.Access)
			assert.Equal(t, "products", event.Access.Category)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for access event")
		}
	})

	t.Run("interaction line is forwarded raw", func(t *testing.T) {
		line := []byte(`{"kind":"interaction","event":{"type":"click","identifier":"pricing-tab"}}`)
		require.NoError(t, publishReplayLine(ctx, client, line))

		select {
		case event := <-sub.Events():
			require.NotNil(t, event.InteractionPayload)
			assert.JSONEq(t, `{"type":"click","identifier":"pricing-tab"}`, string(event.InteractionPayload))
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for interaction payload")
		}
	})

	t.Run("unknown kind is rejected", func(t *testing.T) {
		err := publishReplayLine(ctx, client, []byte(`{"kind":"mystery","event":{}}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown event kind")
	})

	t.Run("invalid route event is rejected before publishing", func(t *testing.T) {
		err := publishReplayLine(ctx, client, []byte(`{"kind":"route","event":{"from_route":"/a"}}`))
		require.Error(t, err)
	})
}
