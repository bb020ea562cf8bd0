package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/nhb-competitie-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type cartItemCounter interface {
	CountItems(ctx context.Context, accountID int64) (int, error)
}

// cartCountTTL keeps idle entries from piling up in Redis.
const cartCountTTL = 24 * time.Hour

type cartCountEntry struct {
	Count     int       `json:"count"`
	NextCheck time.Time `json:"nextCheck"`
}

// CartCountService caches the number of items in a cart for the cart badge. A cached
// count is trusted until its next check time; cart mutations drop it earlier.
type CartCountService struct {
	cache    CacheRepository
	counter  cartItemCounter
	metrics  *MetricsService
	interval time.Duration
	logger   *zap.Logger
	clock    clock
}

// NewCartCountService constructs the service. A nil cache counts on every call.
func NewCartCountService(cache CacheRepository, counter cartItemCounter, metrics *MetricsService, interval time.Duration, logger *zap.Logger) *CartCountService {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CartCountService{cache: cache, counter: counter, metrics: metrics, interval: interval, logger: logger}
}

func cartCountKey(accountID int64) string {
	return fmt.Sprintf("cart:count:%d", accountID)
}

// Count returns the number of items in the cart of an account and whether it came
// from the cache.
func (s *CartCountService) Count(ctx context.Context, accountID int64) (int, bool, error) {
	key := cartCountKey(accountID)
	now := s.clock.now()

	if s.cache != nil {
		var entry cartCountEntry
		err := s.cache.Get(ctx, key, &entry)
		switch {
		case err == nil && now.Before(entry.NextCheck):
			s.metrics.RecordCacheLookup(true)
			return entry.Count, true, nil
		case err != nil && !errors.Is(err, appErrors.ErrCacheMiss):
			s.logger.Warn("cart count cache get failed", zap.String("key", key), zap.Error(err))
		}
	}
	s.metrics.RecordCacheLookup(false)

	count, err := s.counter.CountItems(ctx, accountID)
	if err != nil {
		return 0, false, err
	}
	if s.cache != nil {
		entry := cartCountEntry{Count: count, NextCheck: now.Add(s.interval)}
		if err := s.cache.Set(ctx, key, entry, cartCountTTL); err != nil {
			s.logger.Warn("cart count cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return count, false, nil
}

// Invalidate drops the cached count so the next read counts again.
func (s *CartCountService) Invalidate(ctx context.Context, accountID int64) {
	if s == nil || s.cache == nil {
		return
	}
	key := cartCountKey(accountID)
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Warn("cart count cache invalidate failed", zap.String("key", key), zap.Error(err))
	}
}
