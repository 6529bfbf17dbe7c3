package ports

import (
	"context"
	"time"
)

// KeyValueStore is a TTL-capable key-value store shared by all workers.
type KeyValueStore interface {
	// Set stores value under key, replacing any prior value.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Delete(ctx context.Context, key string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	// CompareAndDelete deletes key only if it currently holds expected. The
	// check and the delete happen as one atomic step.
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
}
