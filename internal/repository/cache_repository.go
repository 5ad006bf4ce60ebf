package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

const unlinkBatch = 200

// CacheRepository keeps JSON documents in Redis under a shared namespace so
// several deployments can share one instance. Without a client every read is a
// miss and every write is dropped.
type CacheRepository struct {
	rdb       *redis.Client
	namespace string
	logger    *zap.Logger
}

// NewCacheRepository binds the repository to client. Keys are stored as
// "clearance:<key>".
func NewCacheRepository(client *redis.Client, logger *zap.Logger) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheRepository{rdb: client, namespace: "clearance:", logger: logger}
}

// Get decodes the entry at key into dest. Missing or undecodable entries
// return ErrCacheMiss; undecodable ones are also removed.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	if r.rdb == nil {
		return appErrors.ErrCacheMiss
	}
	full := r.namespace + key
	raw, err := r.rdb.Get(ctx, full).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return appErrors.ErrCacheMiss
	case err != nil:
		return fmt.Errorf("cache read %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		r.logger.Warn("evicting corrupt cache entry", zap.String("key", key), zap.Error(err))
		r.rdb.Unlink(ctx, full)
		return appErrors.ErrCacheMiss
	}
	return nil
}

// Set encodes value as JSON and stores it for ttl.
func (r *CacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if r.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := r.rdb.Set(ctx, r.namespace+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("cache write %s: %w", key, err)
	}
	return nil
}

// DeleteByPattern unlinks every key matching the glob pattern, in batches as
// the scan proceeds, and returns the number removed.
func (r *CacheRepository) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	if r.rdb == nil {
		return 0, nil
	}
	removed := 0
	batch := make([]string, 0, unlinkBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := r.rdb.Unlink(ctx, batch...).Result()
		if err != nil {
			return fmt.Errorf("cache unlink %s: %w", pattern, err)
		}
		removed += int(n)
		batch = batch[:0]
		return nil
	}

	iter := r.rdb.Scan(ctx, 0, r.namespace+pattern, unlinkBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == unlinkBatch {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("cache scan %s: %w", pattern, err)
	}
	if err := flush(); err != nil {
		return removed, err
	}
	return removed, nil
}
