package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"whattoeat/catalog"
	"whattoeat/config"
	"whattoeat/database"
	"whattoeat/handlers"
	"whattoeat/ingest"
	"whattoeat/logging"
	"whattoeat/recommend"
)

type serveOptions struct {
	inMemory    bool
	catalogPath string
}

var serveFlags = &serveOptions{}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), serveFlags)
	},
}

func init() {
	bindServeFlags(serveCmd)
}

func bindServeFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&serveFlags.inMemory, "in-memory", false, "serve from an in-process catalog instead of PostGIS")
	cmd.Flags().StringVar(&serveFlags.catalogPath, "catalog", "", "JSON catalog for --in-memory (default is the bundled Bangkok sample)")
}

// catalogStore is what the server needs from either catalog backend.
type catalogStore interface {
	recommend.CandidateStore
	handlers.TagSource
	handlers.HealthProbe
	ingest.Inserter
	DeleteAll(ctx context.Context) (int64, error)
}

// loadConfig reads the configuration and initialises logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	return cfg, nil
}

// openCatalog returns the configured store, its name for the health endpoint and a close func.
func openCatalog(ctx context.Context, cfg *config.Config) (catalogStore, string, func(), error) {
	if cfg.Catalog.InMemory {
		restaurants := catalog.Sample()
		if cfg.Catalog.Path != "" {
			var err error
			if restaurants, err = catalog.LoadFile(cfg.Catalog.Path); err != nil {
				return nil, "", nil, err
			}
		}
		logging.Info().Int("restaurants", len(restaurants)).Msg("Using in-memory catalog")
		return catalog.NewMemoryStore(restaurants), "memory", func() {}, nil
	}

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, "", nil, err
	}
	if version, err := database.CheckPostGIS(ctx, db); err != nil {
		logging.Warn().Err(err).Msg("PostGIS check failed, geo queries will fail until the extension is installed")
	} else {
		logging.Info().Str("postgis", version).Msg("PostGIS available")
	}

	store := database.NewRestaurantStore(db, database.ResilienceConfig{
		RetryAttempts:           cfg.Recommend.RetryAttempts,
		RetryInitialInterval:    cfg.Recommend.RetryInitialInterval,
		BreakerFailureThreshold: cfg.Recommend.BreakerFailureThreshold,
		BreakerTimeout:          cfg.Recommend.BreakerTimeout,
	})
	closeDB := func() {
		if err := db.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close database")
		}
	}
	return store, "postgis", closeDB, nil
}

func runServe(ctx context.Context, opts *serveOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.inMemory {
		cfg.Catalog.InMemory = true
	}
	if opts.catalogPath != "" {
		cfg.Catalog.Path = opts.catalogPath
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, catalogName, closeStore, err := openCatalog(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	loc, err := cfg.Recommend.Location()
	if err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}
	svc := recommend.NewService(store, recommend.Config{
		RadiusMeters:   cfg.Recommend.RadiusMeters,
		CandidateLimit: cfg.Recommend.CandidateLimit,
		ResultLimit:    cfg.Recommend.ResultLimit,
		Location:       loc,
		QueryTimeout:   cfg.Recommend.QueryTimeout,
	})

	router := handlers.NewRouter(handlers.Dependencies{
		Recommender: svc,
		Tags:        store,
		Health:      store,
		CatalogName: catalogName,
	}, handlers.RouterConfig{
		AllowedOrigins:    cfg.CORS.AllowedOrigins,
		RateLimitRequests: cfg.RateLimit.Requests,
		RateLimitWindow:   cfg.RateLimit.Window,
		RateLimitDisabled: cfg.RateLimit.Disabled,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().
			Str("addr", srv.Addr).
			Str("catalog", catalogName).
			Str("timezone", loc.String()).
			Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logging.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logging.Info().Msg("Server stopped")
	return nil
}
