package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"tenantdesk/internal/backend"
	"tenantdesk/internal/config"
	"tenantdesk/internal/customer"
	"tenantdesk/internal/export"
	"tenantdesk/internal/logging"
	"tenantdesk/internal/repository"
)

// One-shot exporter: fetches both customer lists and writes them to an Excel
// workbook under the configured export directory.
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
	logger := baseLogger.With().Str("component", "export-main").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Backend.TimeoutSeconds)*time.Second*2)
	defer cancel()

	backendClient := backend.NewClient(cfg.Backend)
	confirms := repository.NewMemoryConfirmationRepository(time.Duration(cfg.Backend.ConfirmTTLSeconds) * time.Second)
	settleDelay := time.Duration(cfg.Backend.SettleDelayMS) * time.Millisecond
	customers := customer.NewService(backendClient, confirms, nil, settleDelay, &logger)

	if err := customers.Load(ctx); err != nil {
		return fmt.Errorf("load customers: %w", err)
	}

	writer := export.NewWriter(cfg.Exports.Path, &logger)
	path, err := writer.SaveToFile(customers.Active(), customers.History())
	if err != nil {
		return fmt.Errorf("save export: %w", err)
	}

	logger.Info().
		Str("file_path", path).
		Int("active", len(customers.Active())).
		Int("history", len(customers.History())).
		Msg("export complete")
	return nil
}
