package database

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"whattoeat/config"
	"whattoeat/logging"
)

//go:embed schema.sql
var schema string

// connectAttempts bounds the startup ping retries.
const connectAttempts = 4

// Connect opens the PostgreSQL pool and waits until the server answers a ping.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
		return db.PingContext(pingCtx)
	}
	notify := func(err error, next time.Duration) {
		logging.Warn().Err(err).Dur("retry_in", next).Msg("Database ping failed")
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), connectAttempts), ctx)
	if err := backoff.RetryNotify(ping, policy, notify); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	logging.Info().
		Int("max_open_conns", cfg.MaxOpenConns).
		Dur("conn_max_idle_time", cfg.ConnMaxIdleTime).
		Msg("Connected to PostgreSQL")
	return db, nil
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	logging.Info().Msg("Database schema is up to date")
	return nil
}

// CheckPostGIS returns the installed PostGIS version.
func CheckPostGIS(ctx context.Context, db *sqlx.DB) (string, error) {
	var version string
	if err := db.GetContext(ctx, &version, "SELECT PostGIS_Version()"); err != nil {
		return "", fmt.Errorf("postgis is not available: %w", err)
	}
	return version, nil
}
