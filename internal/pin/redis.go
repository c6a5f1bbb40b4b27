package pin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "pin:login:"

// RedisStore keeps PIN records in Redis with native TTL expiry. Consume runs
// under WATCH so that two replicas racing on the same PIN cannot both
// succeed: the losing transaction aborts and retries against the
// already-deleted key.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed PIN store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) key(email string) string {
	return redisKeyPrefix + email
}

// Save stores a record with the PIN TTL, replacing any live PIN.
func (s *RedisStore) Save(ctx context.Context, email string, rec Record, ttl time.Duration) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal pin record: %w", err)
	}
	if err := s.client.Set(ctx, s.key(email), payload, ttl).Err(); err != nil {
		return fmt.Errorf("store pin: %w", err)
	}
	return nil
}

// Consume validates the hash and deletes the record in a WATCH transaction.
func (s *RedisStore) Consume(ctx context.Context, email string, providedHash [32]byte, now time.Time) error {
	const maxRetries = 4
	key := s.key(email)

	for i := 0; i < maxRetries; i++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			payload, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return ErrNotFound
				}
				return fmt.Errorf("fetch pin: %w", err)
			}

			var rec Record
			if err := json.Unmarshal(payload, &rec); err != nil {
				return fmt.Errorf("unmarshal pin record: %w", err)
			}

			if !now.Before(rec.ExpiresAt) {
				_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrExpired
			}

			if subtle.ConstantTimeCompare(rec.CodeHash[:], providedHash[:]) != 1 {
				return ErrMismatch
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}

	return fmt.Errorf("consume pin: transaction retries exhausted")
}
