package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Dedupe is the fast path in front of notification_deliveries. A claim is held for the TTL
// so hot redeliveries skip the database entirely.
type Dedupe interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type RedisDedupe struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisDedupe(rdb *redis.Client, ttl time.Duration) *RedisDedupe {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDedupe{rdb: rdb, ttl: ttl, prefix: "notif:dedupe:"}
}

// Claim reports whether this caller is the first to see key within the TTL.
func (d *RedisDedupe) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, d.prefix+key, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe claim: %w", err)
	}
	return ok, nil
}

// Release drops a claim so a failed send can be retried by a redelivery.
func (d *RedisDedupe) Release(ctx context.Context, key string) error {
	if err := d.rdb.Del(ctx, d.prefix+key).Err(); err != nil {
		return fmt.Errorf("dedupe release: %w", err)
	}
	return nil
}

// DedupeKey identifies one delivery: the event, the channel and the recipient.
func DedupeKey(eventID, channel, recipient string) string {
	return eventID + ":" + channel + ":" + recipient
}
