package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"creator-automation/backend/internal/config"
	"creator-automation/backend/internal/definitions"
	"creator-automation/backend/internal/engine"
	"creator-automation/backend/internal/logging"
	"creator-automation/backend/internal/repository"
)

var (
	configFile string
	fromFile   string
	overwrite  bool
)

var rootCmd = &cobra.Command{
	Use:          "automation-seed",
	Short:        "Seed workflow definitions into the database",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return seed(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVar(&configFile, "config", "", "Path to config file (default ./config.yaml)")
	rootCmd.Flags().StringVar(&fromFile, "file", "", "Seed from a YAML definitions file instead of the built-in workflows")
	rootCmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace definitions that already exist")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func seed(ctx context.Context) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to connect to DB: %w", err)
	}
	defer pool.Close()

	store := repository.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	var workflows []definitions.Entry
	if fromFile != "" {
		if workflows, err = definitions.LoadFile(fromFile); err != nil {
			return err
		}
	} else {
		for _, sw := range engine.DefaultWorkflows() {
			workflows = append(workflows, definitions.Entry{ID: sw.ID, WorkflowDefinition: sw.Definition})
		}
	}

	var seeded int
	for _, w := range workflows {
		if !overwrite {
			_, err := store.GetDefinition(ctx, w.ID)
			if err == nil {
				logger.Info("Skipping existing workflow", "id", w.ID)
				continue
			}
			if !errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("failed to look up workflow %s: %w", w.ID, err)
			}
		}

		if err := store.SaveDefinition(ctx, w.ID, w.WorkflowDefinition); err != nil {
			logger.Error("Failed to seed workflow", "id", w.ID, "error", err)
			continue
		}
		seeded++
		logger.Info("Seeded workflow", "id", w.ID, "name", w.Name)
	}
	logger.Info("Seeding complete", "seeded", seeded, "total", len(workflows))
	return nil
}
