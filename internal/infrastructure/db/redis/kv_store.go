package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// compareAndDeleteScript deletes KEYS[1] only when it holds ARGV[1].
const compareAndDeleteScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var compareAndDeleteLua = redis.NewScript(compareAndDeleteScript)

// KeyValueStore implements ports.KeyValueStore on top of Redis.
type KeyValueStore struct {
	client redis.UniversalClient
}

// NewKeyValueStore creates a KeyValueStore wrapping the given Redis client.
func NewKeyValueStore(client redis.UniversalClient) *KeyValueStore {
	return &KeyValueStore{client: client}
}

// Set overwrites key with value and expires it after ttl.
func (s *KeyValueStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("kv set: %w", err)
	}
	return nil
}

func (s *KeyValueStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv get: %w", err)
	}
	return v, true, nil
}

// Delete removes key and reports whether it existed.
func (s *KeyValueStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("kv delete: %w", err)
	}
	return n > 0, nil
}

func (s *KeyValueStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("kv exists: %w", err)
	}
	return n > 0, nil
}

// CompareAndDelete runs the check and the delete inside one Lua script so no
// other client can observe or consume the value in between.
func (s *KeyValueStore) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	n, err := compareAndDeleteLua.Run(ctx, s.client, []string{key}, expected).Int64()
	if err != nil {
		return false, fmt.Errorf("kv compare and delete: %w", err)
	}
	return n == 1, nil
}
