// Package ingest loads restaurant records into a catalog store.
package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"whattoeat/logging"
	"whattoeat/metrics"
	"whattoeat/models"
)

// DefaultPoolSize bounds concurrent inserts. It stays below the database pool size so that
// a load does not starve request traffic.
const DefaultPoolSize = 8

// Inserter persists one restaurant and returns its id.
type Inserter interface {
	InsertRestaurant(ctx context.Context, r models.Restaurant) (int64, error)
}

type Result struct {
	Inserted int
	Failed   int
	Elapsed  time.Duration
}

// Load inserts restaurants through a bounded pool of goroutines. Per-record failures are
// logged and counted, not returned. The returned error is the context error when the load
// was interrupted before every record was dispatched.
func Load(ctx context.Context, store Inserter, restaurants []models.Restaurant, poolSize int) (Result, error) {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	logging.Info().Int("restaurants", len(restaurants)).Int("concurrency", poolSize).Msg("Starting catalog load")

	start := time.Now()
	var inserted, failed atomic.Int64
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, poolSize)

	var interrupted error
dispatch:
	for i := range restaurants {
		if err := ctx.Err(); err != nil {
			interrupted = err
			break
		}
		select {
		case <-ctx.Done():
			interrupted = ctx.Err()
			break dispatch
		case semaphore <- struct{}{}:
		}

		wg.Add(1)
		go func(r models.Restaurant) {
			defer wg.Done()
			defer func() { <-semaphore }()

			id, err := store.InsertRestaurant(ctx, r)
			if err != nil {
				failed.Add(1)
				metrics.IngestRows.WithLabelValues("failed").Inc()
				logging.Warn().Err(err).Str("name", r.Name).Msg("Failed to insert restaurant")
				return
			}
			inserted.Add(1)
			metrics.IngestRows.WithLabelValues("inserted").Inc()
			logging.Debug().Int64("id", id).Str("name", r.Name).Msg("Inserted restaurant")
		}(restaurants[i])
	}

	wg.Wait()

	res := Result{
		Inserted: int(inserted.Load()),
		Failed:   int(failed.Load()),
		Elapsed:  time.Since(start),
	}
	logging.Info().
		Int("inserted", res.Inserted).
		Int("failed", res.Failed).
		Dur("elapsed", res.Elapsed).
		Msg("Catalog load finished")
	return res, interrupted
}
