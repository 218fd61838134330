/*
redis.go - Change feed over Redis pub/sub

PURPOSE:
  Lets several API instances sharing one database deliver each other's
  change events. One channel per house; payloads are JSON-encoded Events.

DELIVERY:
  At most once. A subscriber that is not connected when an event is
  published never sees it; clients refetch on reconnect.

SEE ALSO:
  - changefeed.go: Event, Publisher, Subscriber
  - cmd/server/main.go: falls back to Memory when Redis is unavailable
*/
package changefeed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/warp/house-ledger/ledger"
)

// Redis is a Broker over Redis pub/sub, for running several API instances
// against one database.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to addr and pings it. addr is either "host:port" or a
// redis:// URL.
func NewRedis(ctx context.Context, addr string) (*Redis, error) {
	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &Redis{client: client}, nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Publish(ctx context.Context, e Event) error {
	payload, err := encode(e)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, Channel(e.HouseID), payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", Channel(e.HouseID), err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, house ledger.HouseID) (<-chan Event, func(), error) {
	pubsub := r.client.Subscribe(ctx, Channel(house))
	// Wait for the subscription to be confirmed so no event published after
	// Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe to %s: %w", Channel(house), err)
	}

	out := make(chan Event, subscriberBuffer)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			pubsub.Close()
		})
	}

	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				e, err := decode(msg.Payload)
				if err != nil {
					slog.Warn("Ignoring malformed change event", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case out <- e:
				default:
					slog.Debug("Dropped change event for slow subscriber", "house_id", house)
				}
			}
		}
	}()
	return out, cancel, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
