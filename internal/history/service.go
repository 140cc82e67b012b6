package history

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/vigilhq/vigil/internal/backend"
	"github.com/vigilhq/vigil/internal/metrics"
)

const cacheKey = "history"

// Fetcher loads the history from the backend.
type Fetcher interface {
	History(ctx context.Context) ([]backend.Record, error)
}

// Service reads history through the cache. A zero TTL disables caching.
type Service struct {
	fetcher Fetcher
	cache   Cache
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewService wires a fetcher to a cache. m may be nil.
func NewService(f Fetcher, c Cache, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{fetcher: f, cache: c, ttl: ttl, logger: logger, metrics: m}
}

// List returns the cached history when fresh, otherwise fetches it.
func (s *Service) List(ctx context.Context) ([]backend.Record, error) {
	if s.ttl > 0 {
		b, err := s.cache.Get(ctx, cacheKey)
		switch {
		case err == nil:
			var records []backend.Record
			if jerr := json.Unmarshal(b, &records); jerr == nil {
				s.metrics.HistoryFetch("cache")
				return records, nil
			}
			s.logger.Warn("discarding undecodable cached history")
		case !errors.Is(err, ErrMiss):
			s.logger.Warn("history cache read failed", "error", err)
		}
	}
	return s.Refresh(ctx)
}

// Refresh fetches from the backend, bypassing and then repopulating the cache.
func (s *Service) Refresh(ctx context.Context) ([]backend.Record, error) {
	records, err := s.fetcher.History(ctx)
	if err != nil {
		s.metrics.HistoryFetch("error")
		return nil, err
	}
	s.metrics.HistoryFetch("backend")
	if records == nil {
		records = []backend.Record{}
	}

	if s.ttl > 0 {
		b, err := json.Marshal(records)
		if err == nil {
			err = s.cache.Set(ctx, cacheKey, b, s.ttl)
		}
		if err != nil {
			s.logger.Warn("history cache write failed", "error", err)
		}
	}
	return records, nil
}

// Invalidate drops the cached history.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Delete(ctx, cacheKey)
}
