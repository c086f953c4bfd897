package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"example.com/fittrack/internal/domain"
)

// Key returns the cache key for a user's activity collection.
func Key(tenantID, userID string) string {
	return "activities::" + tenantID + "::" + userID
}

// Option configures optional behaviour for the Store.
type Option func(*Store)

// WithLogger overrides the logger used to report backend failures.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// ErrNoSource is returned by Activities on a Store built without a source.
var ErrNoSource = errors.New("store: no activity source configured")

// Store is the single fetch/cache boundary for activity collections.
type Store struct {
	source  domain.Source
	backend Backend
	ttl     time.Duration
	logger  logrus.FieldLogger

	group singleflight.Group

	mu          sync.Mutex
	generations map[string]uint64
}

// New constructs a Store reading through backend to source. A nil source
// yields an invalidation-only Store.
func New(source domain.Source, backend Backend, ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		source:      source,
		backend:     backend,
		ttl:         ttl,
		logger:      logrus.StandardLogger().WithField("component", "store"),
		generations: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Activities returns the user's collection, fetching it upstream at most
// once per key while a fetch is in flight. The returned slice is owned by
// the caller.
func (s *Store) Activities(ctx context.Context, req domain.Request) ([]domain.ActivityRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if s.source == nil {
		return nil, ErrNoSource
	}
	key := Key(req.TenantID, req.UserID)

	if records, ok := s.lookup(ctx, key); ok {
		cacheHits.Inc()
		return records, nil
	}
	cacheMisses.Inc()

	// The fetch outlives any single caller so sharers are not failed by the
	// first caller's cancellation.
	fetchCtx := context.WithoutCancel(ctx)
	value, err, shared := s.group.Do(key, func() (any, error) {
		return s.fetch(fetchCtx, key, req)
	})
	if shared {
		sharedFetches.Inc()
	}
	if err != nil {
		return nil, err
	}
	return slices.Clone(value.([]domain.ActivityRecord)), nil
}

// Invalidate drops the cached collection so the next read refetches.
func (s *Store) Invalidate(ctx context.Context, tenantID, userID string) error {
	key := Key(tenantID, userID)

	s.mu.Lock()
	s.generations[key]++
	s.mu.Unlock()
	s.group.Forget(key)

	invalidations.Inc()
	if err := s.backend.Delete(ctx, key); err != nil {
		cacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("store: invalidate %s: %w", key, err)
	}
	return nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) lookup(ctx context.Context, key string) ([]domain.ActivityRecord, bool) {
	data, err := s.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			cacheErrors.WithLabelValues("get").Inc()
			s.logger.WithError(err).WithField("key", key).Warn("cache read failed")
		}
		return nil, false
	}
	var records []domain.ActivityRecord
	if err := json.Unmarshal(data, &records); err != nil {
		cacheErrors.WithLabelValues("decode").Inc()
		s.logger.WithError(err).WithField("key", key).Warn("discarding undecodable cache entry")
		return nil, false
	}
	if records == nil {
		records = []domain.ActivityRecord{}
	}
	return records, true
}

func (s *Store) fetch(ctx context.Context, key string, req domain.Request) ([]domain.ActivityRecord, error) {
	generation := s.generation(key)

	start := time.Now()
	records, err := s.source.ListActivities(ctx, req)
	recordFetch(start, err)
	if err != nil {
		return nil, fmt.Errorf("store: fetch activities for %s: %w", req.UserID, err)
	}
	if records == nil {
		records = []domain.ActivityRecord{}
	}

	// An invalidation during the fetch means the result may predate a write.
	if s.generation(key) != generation {
		return records, nil
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("store: encode activities: %w", err)
	}
	if err := s.backend.Set(ctx, key, data, s.ttl); err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		s.logger.WithError(err).WithField("key", key).Warn("cache write failed")
		return records, nil
	}
	// Invalidate may have deleted the key between the check and the write.
	if s.generation(key) != generation {
		if err := s.backend.Delete(ctx, key); err != nil {
			cacheErrors.WithLabelValues("delete").Inc()
			s.logger.WithError(err).WithField("key", key).Warn("dropping stale cache entry failed")
		}
	}
	return records, nil
}

func (s *Store) generation(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[key]
}
