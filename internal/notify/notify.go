// Package notify publishes item lifecycle events to interested listeners.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	EventItemCaptured     = "item.captured"
	EventCategoryRenamed  = "category.renamed"
	EventTagsMerged       = "tags.merged"
	EventItemTagsReplaced = "item.tags_replaced"
)

// Event is the JSON payload published on the channel.
type Event struct {
	Type     string    `json:"type"`
	ItemID   int64     `json:"item_id,omitempty"`
	URL      string    `json:"url,omitempty"`
	Category string    `json:"category,omitempty"`
	From     string    `json:"from,omitempty"`
	To       string    `json:"to,omitempty"`
	At       time.Time `json:"at"`
}

type Notifier interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Redis publishes events on a pub/sub channel.
type Redis struct {
	log     *zap.Logger
	rdb     *redis.Client
	channel string
}

// NewRedisFromEnv connects using REDIS_ADDR and REDIS_CHANNEL. It returns
// (nil, nil) when REDIS_ADDR is unset.
func NewRedisFromEnv(log *zap.Logger) (*Redis, error) {
	if log == nil {
		log = zap.NewNop()
	}
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, nil
	}
	ch := strings.TrimSpace(os.Getenv("REDIS_CHANNEL"))
	if ch == "" {
		ch = "lifedb.events"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Redis{
		log:     log.With(zap.String("service", "notify")),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (r *Redis) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.channel, raw).Err()
}

// Subscribe calls onEvent for every event until ctx is done.
func (r *Redis) Subscribe(ctx context.Context, onEvent func(Event)) error {
	sub := r.rdb.Subscribe(ctx, r.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok || m == nil {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
				r.log.Warn("bad event payload", zap.Error(err))
				continue
			}
			onEvent(ev)
		}
	}
}

func (r *Redis) Close() error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}
