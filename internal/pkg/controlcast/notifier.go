package controlcast

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strconv"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// Notifier publishes control commands into Redis channels so horizontally
// scaled instances all fan out to their locally connected overlays. A nil
// Redis client degrades to single-instance operation: publishes are applied
// to the local hub directly.
type Notifier struct {
	rdb *redis.Client
	hub *Hub
}

// NewNotifier creates a Notifier bridging Redis pub/sub and the local hub.
func NewNotifier(rdb *redis.Client, hub *Hub) *Notifier {
	return &Notifier{rdb: rdb, hub: hub}
}

// UserChannel derives the Redis channel name for a streamer.
func UserChannel(userID uint) string {
	return "controls:user:" + strconv.FormatUint(uint64(userID), 10)
}

// Publish sends a command toward every overlay connection of a streamer,
// across all instances.
func (n *Notifier) Publish(ctx context.Context, userID uint, cmd Command) error {
	if n.rdb == nil {
		n.hub.Dispatch(userID, cmd)
		return nil
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return n.rdb.Publish(ctx, UserChannel(userID), string(payload)).Err()
}

// StartWiring subscribes to the control channel pattern and forwards
// incoming commands to the local hub. It returns immediately; the subscriber
// runs until ctx is cancelled.
func (n *Notifier) StartWiring(ctx context.Context) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, "controls:user:*")
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Errorf("[ControlCast] PANIC in subscriber: %v\n%s", r, debug.Stack())
						}
					}()
					n.handleMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}

func (n *Notifier) handleMessage(channel, payload string) {
	var userID uint
	if _, err := fmt.Sscanf(channel, "controls:user:%d", &userID); err != nil {
		log.Warnf("[ControlCast] Invalid control channel: %s", channel)
		return
	}
	var cmd Command
	if err := json.Unmarshal([]byte(payload), &cmd); err != nil {
		log.Warnf("[ControlCast] Invalid control payload on %s: %v", channel, err)
		return
	}
	n.hub.Dispatch(userID, cmd)
}
