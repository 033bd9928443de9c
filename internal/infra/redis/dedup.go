package redis

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"subscription-billing/internal/domain/ports/adapter"
)

var _ adapter.DedupStore = (*DedupStore)(nil)

// DedupStore remembers processed notification fingerprints for a while.
type DedupStore struct {
	cli    RedisClient
	prefix string
}

func NewDedupStore(c RedisClient) *DedupStore {
	return &DedupStore{cli: c, prefix: "dedup:"}
}

func (d *DedupStore) Seen(ctx context.Context, key string) (bool, error) {
	_, err := d.cli.Get(ctx, d.prefix+key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, err
	}
}

func (d *DedupStore) Mark(ctx context.Context, key string, ttl time.Duration) error {
	return d.cli.Set(ctx, d.prefix+key, "1", ttl)
}
