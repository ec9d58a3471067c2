// Package recommend runs the two-stage recommendation pipeline: a bounded geo-filter query
// against a catalog store followed by in-process scoring and ranking.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"whattoeat/metrics"
	"whattoeat/models"
)

// ErrCandidateFetch marks failures of the geo-filter stage. Callers use it to tell
// "query failed" apart from "no matches".
var ErrCandidateFetch = errors.New("failed to fetch candidates")

// CandidateStore is the geo-filter stage. Implementations return restaurants matching the
// filter ordered by ascending distance, at most filter.Limit of them.
type CandidateStore interface {
	NearbyCandidates(ctx context.Context, filter models.CandidateFilter) ([]models.Candidate, error)
}

type Config struct {
	RadiusMeters   float64
	CandidateLimit int
	ResultLimit    int
	Location       *time.Location
	QueryTimeout   time.Duration
}

// DefaultConfig returns the stock pipeline settings.
func DefaultConfig() Config {
	return Config{
		RadiusMeters:   5000,
		CandidateLimit: 100,
		ResultLimit:    20,
		Location:       time.Local,
		QueryTimeout:   5 * time.Second,
	}
}

type Service struct {
	store CandidateStore
	cfg   Config
	now   func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now as the source of the evaluation instant.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService builds a Service. Zero values in cfg fall back to DefaultConfig.
func NewService(store CandidateStore, cfg Config, opts ...Option) *Service {
	def := DefaultConfig()
	if cfg.RadiusMeters <= 0 {
		cfg.RadiusMeters = def.RadiusMeters
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = def.CandidateLimit
	}
	if cfg.ResultLimit <= 0 {
		cfg.ResultLimit = def.ResultLimit
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = def.QueryTimeout
	}

	s := &Service{store: store, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Filter translates a preference query into the geo-filter stage input.
func (s *Service) Filter(q models.PreferenceQuery) models.CandidateFilter {
	return models.CandidateFilter{
		Location:            q.Location,
		Budget:              q.Budget,
		Cuisines:            q.Cuisines,
		DietaryRestrictions: q.DietaryRestrictions,
		RadiusMeters:        s.cfg.RadiusMeters,
		Limit:               s.cfg.CandidateLimit,
	}
}

// Recommend returns the best matches for q, best first. An empty result is not an error.
// Store failures are wrapped with ErrCandidateFetch.
func (s *Service) Recommend(ctx context.Context, q models.PreferenceQuery) ([]models.ScoredRestaurant, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	candidates, err := s.store.NearbyCandidates(queryCtx, s.Filter(q))
	if err != nil {
		metrics.RecordRecommendation("error", 0, 0)
		return nil, fmt.Errorf("%w: %w", ErrCandidateFetch, err)
	}
	if len(candidates) > s.cfg.CandidateLimit {
		candidates = candidates[:s.cfg.CandidateLimit]
	}

	start := time.Now()
	ranked := Rank(candidates, q, s.now().In(s.cfg.Location))
	metrics.ScoringDuration.Observe(time.Since(start).Seconds())

	if len(ranked) > s.cfg.ResultLimit {
		ranked = ranked[:s.cfg.ResultLimit]
	}

	outcome := "ok"
	if len(ranked) == 0 {
		outcome = "empty"
	}
	metrics.RecordRecommendation(outcome, len(candidates), len(ranked))
	return ranked, nil
}
