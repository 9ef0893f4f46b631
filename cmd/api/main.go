package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tenantdesk/internal/api"
	"tenantdesk/internal/audit"
	"tenantdesk/internal/backend"
	"tenantdesk/internal/config"
	"tenantdesk/internal/customer"
	"tenantdesk/internal/domain"
	"tenantdesk/internal/events"
	"tenantdesk/internal/export"
	"tenantdesk/internal/logging"
	"tenantdesk/internal/metrics"
	"tenantdesk/internal/repository"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	if err := loadExtraAPIKeys(cfg, &logger); err != nil {
		return err
	}

	auditStore, err := audit.NewStore(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init audit store")
		return err
	}
	defer auditStore.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	confirms := initConfirmations(cfg, &logger)

	eventBus := events.NewEventBus()
	subscribeEvents(eventBus, auditStore)

	backendClient := backend.NewClient(cfg.Backend)
	settleDelay := time.Duration(cfg.Backend.SettleDelayMS) * time.Millisecond
	customers := customer.NewService(backendClient, confirms, eventBus, settleDelay, &logger)

	exporter := export.NewWriter(cfg.Exports.Path, &logger)
	httpServer := api.NewHTTPServer(cfg.API, customers, auditStore, confirms, exporter, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, &logger)

	// Warm the projections so the first dashboard read is served from memory.
	// A failure here is not fatal; reads retry the load lazily.
	warmCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Backend.TimeoutSeconds)*time.Second*2)
	if err := customers.Load(warmCtx); err != nil {
		logger.Warn().Err(err).Msg("initial snapshot load failed, will retry on first request")
	}
	cancel()

	return startServers(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

// loadExtraAPIKeys merges client keys from an optional standalone file so key
// rotation does not require touching the main config.
func loadExtraAPIKeys(cfg *config.Config, logger *zerolog.Logger) error {
	keysPath := os.Getenv("API_KEYS_PATH")
	if keysPath == "" {
		keysPath = "configs/api_keys.yaml"
	}
	keysData, err := os.ReadFile(keysPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		logger.Error().Err(err).Str("keys_path", keysPath).Msg("read api keys")
		return err
	}

	var keysConfig struct {
		APIKeys []config.APIClientKey `yaml:"api_keys"`
	}
	if err := yaml.Unmarshal(keysData, &keysConfig); err != nil {
		logger.Error().Err(err).Str("keys_path", keysPath).Msg("parse api keys")
		return err
	}

	cfg.API.Auth.APIKeys = append(cfg.API.Auth.APIKeys, keysConfig.APIKeys...)
	return config.ValidateAPIKeys(cfg.API.Auth.APIKeys)
}

func initConfirmations(cfg *config.Config, logger *zerolog.Logger) domain.ConfirmationRepository {
	ttl := time.Duration(cfg.Backend.ConfirmTTLSeconds) * time.Second
	memory := repository.NewMemoryConfirmationRepository(ttl)

	if cfg.Redis.Address == "" {
		return memory
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return memory
	}
	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")

	primary := repository.NewRedisConfirmationRepository(redisClient, ttl)
	return repository.NewFailoverConfirmationRepository(primary, memory, logger)
}

func subscribeEvents(bus *events.EventBus, auditStore *audit.Store) {
	transitionEvents := []string{
		events.EventCustomerCheckedOut,
		events.EventCustomerCheckOutFailed,
		events.EventHideRequested,
		events.EventHideCancelled,
		events.EventCustomerHidden,
		events.EventCustomerHideFailed,
	}
	for _, eventType := range transitionEvents {
		bus.Subscribe(eventType, auditStore.HandleEvent)
		bus.Subscribe(eventType, func(event *events.Event) error {
			var payload events.TransitionPayload
			if err := json.Unmarshal(event.Payload, &payload); err != nil {
				return err
			}
			metrics.IncTransition(payload.Action, payload.Outcome)
			return nil
		})
	}

	bus.Subscribe(events.EventDashboardLoaded, func(event *events.Event) error {
		var payload events.LoadPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return err
		}
		metrics.IncLoad(payload.Outcome)
		return nil
	})
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
