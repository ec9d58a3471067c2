package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"whattoeat/catalog"
	"whattoeat/database"
	"whattoeat/ingest"
	"whattoeat/logging"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the PostGIS extension, restaurants table and indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := database.Connect(cmd.Context(), cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		return database.Migrate(cmd.Context(), db)
	},
}

var seedOpts struct {
	file        string
	reset       bool
	concurrency int
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load restaurants into the catalog database",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runSeed(ctx)
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedOpts.file, "file", "", "JSON array of restaurants (default is the bundled Bangkok sample)")
	seedCmd.Flags().BoolVar(&seedOpts.reset, "reset", false, "delete every restaurant before loading")
	seedCmd.Flags().IntVar(&seedOpts.concurrency, "concurrency", ingest.DefaultPoolSize, "concurrent inserts")
}

func runSeed(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	restaurants := catalog.Sample()
	if seedOpts.file != "" {
		if restaurants, err = catalog.LoadFile(seedOpts.file); err != nil {
			return err
		}
	}

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	store := database.NewRestaurantStore(db, database.ResilienceConfig{})
	if seedOpts.reset {
		n, err := store.DeleteAll(ctx)
		if err != nil {
			return err
		}
		logging.Info().Int64("deleted", n).Msg("Cleared restaurants")
	}

	result, err := ingest.Load(ctx, store, restaurants, seedOpts.concurrency)
	if err != nil {
		return fmt.Errorf("seed interrupted after %d inserts: %w", result.Inserted, err)
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d of %d restaurants failed to load", result.Failed, len(restaurants))
	}
	return nil
}
