// In file: internal/conversation/redis.go
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "conversation:"

// redisCommander is the subset of *redis.Client the store needs.
type redisCommander interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps each conversation as a JSON array under
// "conversation:<id>". Keys never expire; every write replaces the whole value.
type RedisStore struct {
	blobStore
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb redisCommander) *RedisStore {
	return &RedisStore{blobStore{backend: &redisBackend{rdb: rdb}}}
}

// DialRedis connects to the server at redisURL (redis://host:port/db) and
// verifies the connection before returning.
func DialRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		if cerr := rdb.Close(); cerr != nil {
			log.Printf("Warning: failed to close redis client: %v", cerr)
		}
		return nil, fmt.Errorf("could not connect to redis at %s: %w", opts.Addr, err)
	}
	return rdb, nil
}

type redisBackend struct {
	rdb redisCommander
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

func (b *redisBackend) load(ctx context.Context, id string) ([]byte, bool, error) {
	val, err := b.rdb.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (b *redisBackend) save(ctx context.Context, id string, blob []byte) error {
	return b.rdb.Set(ctx, redisKey(id), blob, 0).Err()
}

func (b *redisBackend) remove(ctx context.Context, id string) error {
	return b.rdb.Del(ctx, redisKey(id)).Err()
}
