// Package idempotency maps client-supplied Idempotency-Key headers to order
// IDs in Redis so a retried placement returns the original order instead of
// reserving stock twice.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

const keyOrderPlace = "idem:order:place:%s"

// TTL bounds how long a key protects against replays.
var TTL = 24 * time.Hour

// Store resolves idempotency keys against Redis.
type Store struct {
	rdb *redis.Client
}

func New(addr string) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

func NewWithClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Lookup returns the order ID previously recorded for key, or "" when the key
// is unseen.
func (s *Store) Lookup(ctx context.Context, key string) (string, error) {
	orderID, err := s.rdb.Get(ctx, fmt.Sprintf(keyOrderPlace, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "idempotency lookup")
	}
	return orderID, nil
}

// Record associates key with orderID. The first writer wins; a concurrent
// duplicate request observes the existing mapping.
func (s *Store) Record(ctx context.Context, key, orderID string) error {
	err := s.rdb.SetNX(ctx, fmt.Sprintf(keyOrderPlace, key), orderID, TTL).Err()
	if err != nil {
		return errors.Wrap(err, "idempotency record")
	}
	return nil
}

// Ping verifies connectivity for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.rdb.Close()
}
