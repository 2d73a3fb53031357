// Seed загружает каталог заведений из YAML и ставит каждое в очередь
// обогащения с причиной seed.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"bizdir/internal/config"
	"bizdir/internal/database"
	"bizdir/internal/logging"
	"bizdir/internal/models"

	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := baseLogger.With().Str("component", "seed").Logger()

	businesses, err := loadBusinesses()
	if err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx := context.Background()
	var enqueued int
	for i := range businesses {
		business := &businesses[i]
		if err := db.UpsertBusiness(ctx, business); err != nil {
			logger.Error().Err(err).Int64("business_id", business.ID).Str("name", business.Name).Msg("upsert business")
			return err
		}

		created, err := db.Enqueue(ctx, business.ID, models.ReasonSeed, nil)
		if err != nil {
			logger.Error().Err(err).Int64("business_id", business.ID).Msg("enqueue business")
			return err
		}
		if created {
			enqueued++
		}
	}

	all, err := db.ListBusinesses(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("list businesses")
		return err
	}

	logger.Info().
		Int("loaded", len(businesses)).
		Int("enqueued", enqueued).
		Int("directory_total", len(all)).
		Msg("seed finished")
	return nil
}

func loadBusinesses() ([]models.Business, error) {
	businessesPath := os.Getenv("BUSINESSES_PATH")
	if businessesPath == "" {
		businessesPath = "configs/businesses.yaml"
	}

	data, err := os.ReadFile(businessesPath)
	if err != nil {
		return nil, fmt.Errorf("read businesses: %w", err)
	}

	var businessesConfig struct {
		Businesses []models.Business `yaml:"businesses"`
	}
	if err := yaml.Unmarshal(data, &businessesConfig); err != nil {
		return nil, fmt.Errorf("parse businesses: %w", err)
	}

	return businessesConfig.Businesses, nil
}
