package services

import (
	"context"
	"time"

	"github.com/Dawstr8/polish-peaks/internal/models"
	"github.com/Dawstr8/polish-peaks/internal/observability"
)

// PeakFinder is the API call behind nearby peak searches
type PeakFinder interface {
	FindNearby(ctx context.Context, lat, lon float64, maxDistance *float64, limit int) ([]models.PeakWithDistance, error)
}

// PeakSearch holds the wizard's search parameters
type PeakSearch struct {
	MaxDistance float64
	Limit       int
	CacheTTL    time.Duration
}

// PeakService finds peaks near a photo, caching results
type PeakService struct {
	finder  PeakFinder
	cache   PeakCache
	search  PeakSearch
	metrics *observability.WizardMetrics
}

// NewPeakService creates a new PeakService. cache may be nil.
func NewPeakService(finder PeakFinder, cache PeakCache, search PeakSearch, metrics *observability.WizardMetrics) *PeakService {
	return &PeakService{
		finder:  finder,
		cache:   cache,
		search:  search,
		metrics: metrics,
	}
}

// FindNearby searches with the configured distance and limit
func (s *PeakService) FindNearby(ctx context.Context, lat, lon float64) ([]models.PeakWithDistance, error) {
	maxDistance := s.search.MaxDistance
	return s.Find(ctx, lat, lon, &maxDistance, s.search.Limit)
}

// Find searches with explicit parameters. Cache failures fall through to the API.
func (s *PeakService) Find(ctx context.Context, lat, lon float64, maxDistance *float64, limit int) ([]models.PeakWithDistance, error) {
	ctx, span := observability.StartServiceSpan(ctx, "PeakService", "FindNearby")
	defer span.End()

	logger := observability.WithContext(ctx)
	key := PeakCacheKey(lat, lon, maxDistance, limit)

	if s.cache != nil {
		peaks, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			logger.Warnf("Peak cache read failed for %s: %v", key, err)
		} else if ok {
			s.metrics.RecordPeakLookup(ctx, true, len(peaks))
			return peaks, nil
		}
	}

	peaks, err := s.finder.FindNearby(ctx, lat, lon, maxDistance, limit)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	s.metrics.RecordPeakLookup(ctx, false, len(peaks))

	if s.cache != nil && s.search.CacheTTL > 0 {
		if err := s.cache.Set(ctx, key, peaks, s.search.CacheTTL); err != nil {
			logger.Warnf("Peak cache write failed for %s: %v", key, err)
		}
	}

	return peaks, nil
}
