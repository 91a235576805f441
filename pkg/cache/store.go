package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates no live record exists for the requested key.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidRecord indicates the stored payload could not be decoded.
	ErrInvalidRecord = errors.New("invalid feature record")
)

// Store persists feature records in Redis.
//
// Each record lives under its full Key (partition + sort), so independent
// variable subsets for the same market coexist without collision. Every Put
// also refreshes a latest-per-market record under the bare partition key,
// which is what the ranking and profile paths read.
type Store struct {
	redis *redis.Client
}

// NewStore creates a Redis-backed feature store.
func NewStore(redisClient *redis.Client) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Store{redis: redisClient}
}

// Get retrieves the record for a key.
// Returns ErrCacheMiss if the key doesn't exist or the record has expired;
// expired records are deleted on read.
func (s *Store) Get(ctx context.Context, key Key) (*FeatureRecord, error) {
	rec, err := s.fetch(ctx, key.String(), "scoped")
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Latest retrieves the most recent record for a market, irrespective of
// radius and variable set. Returns ErrCacheMiss when the market has no live
// record.
func (s *Store) Latest(ctx context.Context, marketID string) (*FeatureRecord, error) {
	return s.fetch(ctx, Key{MarketID: marketID}.Partition(), "latest")
}

// Put stores a record under its key with the given TTL, replacing any
// previous record, and refreshes the latest-per-market record.
func (s *Store) Put(ctx context.Context, key Key, rec *FeatureRecord, ttl time.Duration) error {
	if rec == nil {
		return fmt.Errorf("feature record cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := time.Now()
	rec.UpdatedAt = now
	rec.ExpiresAt = now.Add(ttl)

	data, err := json.Marshal(rec)
	if err != nil {
		Errors.WithLabelValues("put").Inc()
		return fmt.Errorf("marshal feature record: %w", err)
	}

	if err := s.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		Errors.WithLabelValues("put").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	// Writers race last-writer-wins on both keys; payloads for the same key
	// are equivalent, so either outcome is acceptable.
	if err := s.redis.Set(ctx, key.Partition(), data, ttl).Err(); err != nil {
		Errors.WithLabelValues("put").Inc()
		return fmt.Errorf("redis set latest: %w", err)
	}

	Writes.Inc()
	return nil
}

// Delete removes the record for a key.
func (s *Store) Delete(ctx context.Context, key Key) error {
	if err := s.redis.Del(ctx, key.String()).Err(); err != nil {
		Errors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *Store) fetch(ctx context.Context, storeKey, lookup string) (*FeatureRecord, error) {
	data, err := s.redis.Get(ctx, storeKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			Misses.WithLabelValues(lookup).Inc()
			return nil, ErrCacheMiss
		}
		Errors.WithLabelValues(lookup).Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var rec FeatureRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		Errors.WithLabelValues(lookup).Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	// Redis expires keys on its own, but the record carries its own expiry
	// so a not-yet-purged stale record still reads as a miss.
	if rec.IsExpired() {
		_ = s.redis.Del(ctx, storeKey).Err()
		Misses.WithLabelValues(lookup).Inc()
		return nil, ErrCacheMiss
	}

	Hits.WithLabelValues(lookup).Inc()
	return &rec, nil
}
