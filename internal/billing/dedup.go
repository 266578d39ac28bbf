package billing

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventDeduper remembers processed webhook event ids so redeliveries are acknowledged without dispatch.
// Only successfully processed events are recorded; an event still in flight or one that failed is
// processed again when it arrives.
type EventDeduper interface {
	// Processed reports whether eventID was already recorded.
	Processed(ctx context.Context, eventID string) (bool, error)
	// MarkProcessed records eventID for the deduper's ttl.
	MarkProcessed(ctx context.Context, eventID string) error
}

type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (d *MemoryDeduper) Processed(ctx context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.evictExpired(d.now())
	_, ok := d.seen[eventID]
	return ok, nil
}

func (d *MemoryDeduper) MarkProcessed(ctx context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.evictExpired(now)
	d.seen[eventID] = now.Add(d.ttl)
	return nil
}

func (d *MemoryDeduper) evictExpired(now time.Time) {
	for id, expires := range d.seen {
		if !now.Before(expires) {
			delete(d.seen, id)
		}
	}
}

const redisDedupPrefix = "careerpilot:webhook:event:"

type RedisDeduper struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewRedisDeduper(rdb redis.UniversalClient, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{rdb: rdb, ttl: ttl}
}

func (d *RedisDeduper) Processed(ctx context.Context, eventID string) (bool, error) {
	n, err := d.rdb.Exists(ctx, redisDedupPrefix+eventID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *RedisDeduper) MarkProcessed(ctx context.Context, eventID string) error {
	return d.rdb.Set(ctx, redisDedupPrefix+eventID, time.Now().Unix(), d.ttl).Err()
}
