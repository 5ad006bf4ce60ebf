package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

// CacheRepository is the key-value store behind CacheService.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) (int, error)
}

// CacheService memoises receipt readings. Store failures are logged and
// reported but never turn a cache lookup into a user facing error. A nil
// or disabled service behaves as an always-empty cache.
type CacheService struct {
	store   CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	on      bool
}

// NewCacheService constructs a cache service. ttl defaults to a day.
func NewCacheService(repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{store: repo, metrics: metrics, ttl: ttl, logger: logger.Named("cache"), on: enabled && repo != nil}
}

// Enabled reports whether lookups can ever hit.
func (s *CacheService) Enabled() bool {
	return s != nil && s.on
}

// Get fills dest and reports a hit. Misses return false with a nil error.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	started := time.Now()
	err := s.store.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(started))
	if err == nil || errors.Is(err, appErrors.ErrCacheMiss) {
		return err == nil, nil
	}
	s.logger.Warn("lookup failed", zap.String("key", key), zap.Error(err))
	return false, err
}

// Set stores value under key. ttl <= 0 means the service default.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	started := time.Now()
	err := s.store.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(started))
	if err != nil {
		s.logger.Warn("store failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Invalidate drops every key matching pattern and returns the count.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) (int, error) {
	if !s.Enabled() {
		return 0, nil
	}
	removed, err := s.store.DeleteByPattern(ctx, pattern)
	if err != nil {
		s.logger.Warn("invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		return removed, err
	}
	s.logger.Info("invalidated", zap.String("pattern", pattern), zap.Int("removed", removed))
	return removed, nil
}
