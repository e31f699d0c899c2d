package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisBridge relays hub events between server instances over a Redis
// pub/sub channel. Each instance tags what it publishes with its own
// origin id and ignores its own echoes.
type RedisBridge struct {
	client  *redis.Client
	channel string
	hub     *Hub
	origin  string
	log     *slog.Logger
}

type envelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// NewRedisBridge wires hub to channel. Call Start to begin relaying
// remote events; local events are forwarded from construction on.
func NewRedisBridge(client *redis.Client, channel string, hub *Hub, log *slog.Logger) *RedisBridge {
	b := &RedisBridge{
		client:  client,
		channel: channel,
		hub:     hub,
		origin:  uuid.NewString(),
		log:     log,
	}
	hub.AddSink(b.forward)
	return b
}

func (b *RedisBridge) forward(ev Event) {
	data, err := json.Marshal(envelope{Origin: b.origin, Event: ev})
	if err != nil {
		b.log.Error("encode live event", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		b.log.Warn("redis publish failed", "channel", b.channel, "error", err)
	}
}

// Start subscribes to the channel and relays remote events into the local
// hub until ctx is cancelled. It returns once the subscription is active.
func (b *RedisBridge) Start(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					b.log.Warn("drop malformed live event", "error", err)
					continue
				}
				if env.Origin == b.origin {
					continue
				}
				b.hub.Deliver(env.Event)
			}
		}
	}()
	return nil
}
