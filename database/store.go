// Package database is the PostGIS-backed restaurant catalog.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	gobreaker "github.com/sony/gobreaker/v2"

	"whattoeat/logging"
	"whattoeat/metrics"
	"whattoeat/models"
)

const storeLabel = "postgis"

// ResilienceConfig tunes retries and the circuit breaker around geo-filter queries.
type ResilienceConfig struct {
	RetryAttempts           int
	RetryInitialInterval    time.Duration
	BreakerFailureThreshold uint32
	BreakerTimeout          time.Duration
}

// RestaurantStore reads and writes the restaurants table.
type RestaurantStore struct {
	db      *sqlx.DB
	cfg     ResilienceConfig
	breaker *gobreaker.CircuitBreaker[[]models.Candidate]

	// selectCandidates runs one geo-filter query attempt.
	selectCandidates func(ctx context.Context, f models.CandidateFilter) ([]models.Candidate, error)
}

func NewRestaurantStore(db *sqlx.DB, cfg ResilienceConfig) *RestaurantStore {
	if cfg.BreakerFailureThreshold == 0 {
		cfg.BreakerFailureThreshold = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = 100 * time.Millisecond
	}

	s := &RestaurantStore{db: db, cfg: cfg}
	s.selectCandidates = s.queryCandidates
	s.breaker = newBreaker[[]models.Candidate]("catalog-nearby", cfg)
	return s
}

// NearbyCandidates runs the geo-filter query. Transient failures are retried; repeated
// failures open the circuit breaker, which then rejects calls until its timeout passes.
func (s *RestaurantStore) NearbyCandidates(ctx context.Context, f models.CandidateFilter) ([]models.Candidate, error) {
	start := time.Now()
	candidates, err := s.breaker.Execute(func() ([]models.Candidate, error) {
		var out []models.Candidate
		err := s.retry(ctx, "nearby", func() error {
			var err error
			out, err = s.selectCandidates(ctx, f)
			return err
		})
		return out, err
	})
	metrics.RecordStoreQuery(storeLabel, "nearby", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("nearby candidates query failed: %w", err)
	}
	if candidates == nil {
		candidates = []models.Candidate{}
	}
	return candidates, nil
}

func (s *RestaurantStore) queryCandidates(ctx context.Context, f models.CandidateFilter) ([]models.Candidate, error) {
	query, args := buildCandidateQuery(f)
	var out []models.Candidate
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// InsertRestaurant stores r and returns the generated id.
func (s *RestaurantStore) InsertRestaurant(ctx context.Context, r models.Restaurant) (int64, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}

	const query = `
		INSERT INTO restaurants (name_th, address_th, location, budget_level, tags, opening_hours)
		VALUES ($1, $2, ST_SetSRID(ST_MakePoint($3, $4), 4326)::geography, $5, $6, $7)
		RETURNING id
	`
	var id int64
	err := s.db.QueryRowxContext(ctx, query,
		r.Name,
		r.Address,
		r.Longitude, r.Latitude,
		r.BudgetLevel,
		models.Tags(models.NormalizeTags(r.Tags)),
		r.OpeningHours,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert restaurant %q: %w", r.Name, err)
	}
	return id, nil
}

// DeleteAll removes every restaurant and returns how many were deleted.
func (s *RestaurantStore) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM restaurants")
	if err != nil {
		return 0, fmt.Errorf("failed to clear restaurants: %w", err)
	}
	n, _ := res.RowsAffected()
	logging.Info().Int64("deleted", n).Msg("Cleared existing restaurants")
	return n, nil
}

// TagCounts lists the tag vocabulary with the number of restaurants per tag, most used first.
func (s *RestaurantStore) TagCounts(ctx context.Context) ([]models.TagCount, error) {
	const query = `
		SELECT tag, COUNT(DISTINCT r.id) AS restaurants
		FROM restaurants r, unnest(r.tags) AS tag
		GROUP BY tag
		ORDER BY restaurants DESC, tag ASC
	`
	start := time.Now()
	out := []models.TagCount{}
	err := s.db.SelectContext(ctx, &out, query)
	metrics.RecordStoreQuery(storeLabel, "tags", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to count tags: %w", err)
	}
	return out, nil
}

// Now returns the database clock. It doubles as the health probe.
func (s *RestaurantStore) Now(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := s.db.GetContext(ctx, &now, "SELECT NOW()"); err != nil {
		return time.Time{}, err
	}
	return now, nil
}

// BreakerState reports the circuit breaker state.
func (s *RestaurantStore) BreakerState() gobreaker.State {
	return s.breaker.State()
}
