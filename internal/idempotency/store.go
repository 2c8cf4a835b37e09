package idempotency

import (
	"context"
	"crypto/tls"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "leadflow:idem:"

// Store tracks processed idempotency keys in redis. Expiry rides on the key
// TTL, so expired markers disappear without a cleanup pass and the same key
// becomes reprocessable after the window.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a redis-backed idempotency store.
func NewStore(redisURL string, tlsInsecure bool, ttl time.Duration) (*Store, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	if opt.TLSConfig != nil && tlsInsecure {
		opt.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &Store{client: redis.NewClient(opt), ttl: ttl}, nil
}

// NewStoreWithClient wraps an existing redis client, used by tests.
func NewStoreWithClient(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

// IsProcessed reports whether the key has been marked within its TTL and, if
// so, which lead the original processing produced.
func (s *Store) IsProcessed(ctx context.Context, key string) (bool, uuid.UUID, error) {
	value, err := s.client.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return false, uuid.Nil, nil
	}
	if err != nil {
		return false, uuid.Nil, err
	}

	leadID, err := uuid.Parse(value)
	if err != nil {
		// Marker exists but the payload is unusable; still suppress reprocessing.
		return true, uuid.Nil, nil
	}
	return true, leadID, nil
}

// MarkProcessed stores the processed marker with the store's TTL.
func (s *Store) MarkProcessed(ctx context.Context, key string, leadID uuid.UUID) error {
	return s.client.Set(ctx, keyPrefix+key, leadID.String(), s.ttl).Err()
}

// Close releases the underlying redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
