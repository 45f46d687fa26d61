package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pulseengine/pulse/internal/cache"
	"github.com/pulseengine/pulse/pkg/errors"
	"github.com/pulseengine/pulse/pkg/logging"
)

const (
	snapshotKey  = "pulse:cache_snapshot"
	lastCycleKey = "pulse:last_cycle_at"
)

// RedisStore persists cache snapshots for crash recovery. The on-disk
// format is an internal detail, not a public contract.
type RedisStore struct {
	client *redis.Client
	logger *logging.Logger
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.NewNetworkError("failed to connect to redis").WithCause(err)
	}

	return &RedisStore{
		client: client,
		logger: logging.GetLogger(),
	}, nil
}

// Save stores the cache entries and the last cycle timestamp.
func (s *RedisStore) Save(ctx context.Context, entries []cache.Entry, lastCycle time.Time) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return errors.NewInternalError("failed to serialize cache snapshot").WithCause(err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, snapshotKey, data, 0)
	pipe.Set(ctx, lastCycleKey, lastCycle.Format(time.RFC3339Nano), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.NewNetworkError("failed to write cache snapshot").WithCause(err)
	}

	s.logger.Debug("Cache snapshot persisted", "entries", len(entries))
	return nil
}

// Load restores the persisted cache entries and last cycle timestamp. A
// missing snapshot is not an error; it returns empty results.
func (s *RedisStore) Load(ctx context.Context) ([]cache.Entry, time.Time, error) {
	data, err := s.client.Get(ctx, snapshotKey).Bytes()
	if err == redis.Nil {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, errors.NewNetworkError("failed to read cache snapshot").WithCause(err)
	}

	var entries []cache.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, time.Time{}, errors.NewInternalError("failed to deserialize cache snapshot").WithCause(err)
	}

	var lastCycle time.Time
	if raw, err := s.client.Get(ctx, lastCycleKey).Result(); err == nil {
		if t, parseErr := time.Parse(time.RFC3339Nano, raw); parseErr == nil {
			lastCycle = t
		}
	}

	return entries, lastCycle, nil
}

// Close releases the redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
