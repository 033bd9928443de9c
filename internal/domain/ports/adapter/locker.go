package adapter

import (
	"context"
	"time"
)

// Locker is a cross-process mutex with a lease.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// DedupStore remembers processed keys for a while. It is a fast path only;
// correctness still comes from the ledger's natural keys.
type DedupStore interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string, ttl time.Duration) error
}
