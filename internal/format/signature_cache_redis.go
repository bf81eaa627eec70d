package format

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSignatureStore backs SignatureCache with Redis for deployments that
// run more than one proxy process sharing an account pool; the default
// MemorySignatureStore only helps within a single process.
type RedisSignatureStore struct {
	client *redis.Client
	prefix string
}

func NewRedisSignatureStore(client *redis.Client) *RedisSignatureStore {
	return &RedisSignatureStore{client: client, prefix: "aether:sigcache:"}
}

func (s *RedisSignatureStore) Get(ctx context.Context, key string) (string, bool) {
	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

func (s *RedisSignatureStore) Set(ctx context.Context, key, signature string, ttl time.Duration) {
	s.client.Set(ctx, s.prefix+key, signature, ttl)
}
