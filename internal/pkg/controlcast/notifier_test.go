package controlcast

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserChannel(t *testing.T) {
	assert.Equal(t, "controls:user:42", UserChannel(42))
}

func TestPublishWithoutRedisDispatchesLocally(t *testing.T) {
	hub := NewHub()
	notifier := NewNotifier(nil, hub)

	sub, err := hub.Connect(1)
	require.NoError(t, err)
	recvEnvelope(t, sub)

	require.NoError(t, notifier.Publish(context.Background(), 1, Command{
		Section: SectionAlerts,
		Action:  "skip",
	}))

	env := recvEnvelope(t, sub)
	assert.Equal(t, MessageTypeCommand, env.Type)
	assert.Equal(t, "skip", env.Command.Action)
}

func TestPublishRoundTripsThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hub := NewHub()
	notifier := NewNotifier(rdb, hub)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, notifier.StartWiring(ctx))

	sub, err := hub.Connect(3)
	require.NoError(t, err)
	recvEnvelope(t, sub)

	// The publish only lands once the pattern subscription is registered, so
	// retry until the command arrives.
	require.Eventually(t, func() bool {
		require.NoError(t, notifier.Publish(ctx, 3, Command{
			Section:   SectionMusic,
			Action:    "mute",
			Timestamp: time.Now(),
		}))
		for {
			select {
			case data := <-sub.C:
				var env envelope
				if err := json.Unmarshal(data, &env); err != nil {
					return false
				}
				if env.Type == MessageTypeCommand && env.Command != nil && env.Command.Action == "mute" {
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 50*time.Millisecond)

	assert.True(t, hub.CurrentState(3).Music.Muted)
}

func TestSubscriberIgnoresMalformedPayloads(t *testing.T) {
	hub := NewHub()
	notifier := NewNotifier(nil, hub)

	// Neither call may panic or mutate state.
	notifier.handleMessage("controls:user:abc", `{}`)
	notifier.handleMessage(UserChannel(5), `not json`)

	assert.Equal(t, NewState(), hub.CurrentState(5))
}
