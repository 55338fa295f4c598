// Package redis provides a Redis list-backed queue shared by several backend
// processes.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/apilog-dashboard/internal/backend"
)

// DefaultKey is the list used when Config.Key is empty.
const DefaultKey = "apilog:exports"

// Config locates the Redis list.
type Config struct {
	Addr string
	Key  string
	// BlockTimeout bounds each BRPOP so context cancellation is noticed.
	BlockTimeout time.Duration
}

// Queue pushes items with LPUSH and pops them with BRPOP.
type Queue struct {
	client  goredis.UniversalClient
	key     string
	block   time.Duration
	ownsCli bool
}

// Open connects to cfg.Addr and pings the server.
func Open(ctx context.Context, cfg Config) (*Queue, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:                  cfg.Addr,
		ContextTimeoutEnabled: true,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	q := New(client, cfg)
	q.ownsCli = true
	return q, nil
}

// New wraps an existing client.
func New(client goredis.UniversalClient, cfg Config) *Queue {
	key := cfg.Key
	if key == "" {
		key = DefaultKey
	}
	block := cfg.BlockTimeout
	if block <= 0 {
		block = time.Second
	}
	return &Queue{client: client, key: key, block: block}
}

// Enqueue appends item to the list.
func (q *Queue) Enqueue(ctx context.Context, item backend.QueueItem) error {
	payload, err := encode(item)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

// Dequeue blocks until an item is available or ctx ends.
func (q *Queue) Dequeue(ctx context.Context) (backend.QueueItem, error) {
	for {
		if err := ctx.Err(); err != nil {
			return backend.QueueItem{}, fmt.Errorf("dequeue canceled: %w", err)
		}
		vals, err := q.client.BRPop(ctx, q.block, q.key).Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return backend.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
			}
			return backend.QueueItem{}, fmt.Errorf("brpop: %w", err)
		}
		if len(vals) < 2 {
			return backend.QueueItem{}, fmt.Errorf("unexpected BRPOP response: %v", vals)
		}
		return decode(vals[1])
	}
}

// Ping checks the server is reachable.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close releases an owned client.
func (q *Queue) Close() error {
	if !q.ownsCli {
		return nil
	}
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}

func encode(item backend.QueueItem) (string, error) {
	if item.JobID == "" {
		return "", fmt.Errorf("queue item has no job id")
	}
	data, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("encode queue item: %w", err)
	}
	return string(data), nil
}

func decode(raw string) (backend.QueueItem, error) {
	var item backend.QueueItem
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return backend.QueueItem{}, fmt.Errorf("decode queue item: %w", err)
	}
	if item.JobID == "" {
		return backend.QueueItem{}, fmt.Errorf("decode queue item: missing job id")
	}
	return item, nil
}
