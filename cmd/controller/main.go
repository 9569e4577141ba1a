// Package main is the entry point for the shipyard tracking service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shipyard/internal/auth"
	"shipyard/internal/config"
	"shipyard/internal/controller"
	"shipyard/internal/controller/handlers"
	"shipyard/internal/logger"
	"shipyard/internal/observability"
	"shipyard/internal/sink"
	"shipyard/internal/store"
	"shipyard/internal/store/postgres"
	"shipyard/internal/store/redis"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
)

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	// Parse flags
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	configPath := flag.String("config", "", "Path to config file (default: shipyard.yaml in current directory)")
	flag.Parse()

	// Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(slog.Default(), "failed to load config", err)
	}
	log := logger.New(cfg.LogLevel).With("service", "shipyard-controller")
	slog.SetDefault(log)

	if err := cfg.RequireDatabase(); err != nil {
		fatal(log, "invalid config", err)
	}

	ctx := context.Background()

	// Connect to Postgres (the "Store")
	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal(log, "failed to connect to database", err)
	}
	defer db.Close()

	// Run migrations if requested
	if *migrateFlag {
		log.Info("running database migrations")
		version, err := postgres.Migrate(db.DB())
		if err != nil {
			fatal(log, "migration failed", err)
		}
		log.Info("migrations completed", "version", version)
	}

	if err := seedClients(ctx, db, cfg); err != nil {
		fatal(log, "failed to seed api keys", err)
	}

	queue, err := redis.New(ctx, redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Key:      cfg.QueueKey,
	}, log)
	if err != nil {
		fatal(log, "failed to connect to queue", err)
	}
	defer queue.Close()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "shipyard-controller", cfg.OTELEndpoint)
	if err != nil {
		fatal(log, "failed to init tracing", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn("failed to shutdown tracer", "error", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics("shipyard-controller")
	if err != nil {
		fatal(log, "failed to init metrics", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Warn("failed to shutdown metrics", "error", err)
		}
	}()

	if err := observability.RegisterQueueDepth(otel.Meter("shipyard-controller"), queue.Len, log); err != nil {
		log.Warn("failed to register queue depth metric", "error", err)
	}

	// Artifact downloads are served only when the object store is configured.
	var artifacts handlers.ArtifactReader
	if cfg.S3Bucket != "" {
		objects, err := sink.NewObjectStore(sink.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Prefix:    cfg.S3Prefix,
		})
		if err != nil {
			fatal(log, "failed to configure object store", err)
		}
		artifacts = objects
	}

	if cfg.InternalSecret == "" {
		log.Warn("internal_secret is empty: worker status updates and client creation will be rejected")
	}

	// Start Server
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(controller.Options{
		Addr:           addr,
		Store:          db,
		Queue:          queue,
		Artifacts:      artifacts,
		InternalSecret: cfg.InternalSecret,
		Metrics:        metricsHandler,
		Logger:         log,
	})

	go func() {
		log.Info("controller starting", "addr", addr)
		if err := srv.Run(ctx); err != nil {
			log.Error("server stopped", "error", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down controller")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	log.Info("server exited properly")
}

// seedClients makes every key in API_KEYS usable, reusing the client already stored for it.
func seedClients(ctx context.Context, s store.ClientStore, cfg *config.Config) error {
	for i, key := range cfg.APIKeys {
		client := &store.Client{
			ID:             uuid.New(),
			Name:           fmt.Sprintf("api-key-%d", i+1),
			CreatedAt:      time.Now().UTC(),
			RateLimit:      cfg.APIRateLimit,
			RateLimitBurst: cfg.APIRateBurst,
		}
		stored, err := s.EnsureClient(ctx, client, auth.HashKey(key))
		if err != nil {
			return fmt.Errorf("seed client %s: %w", client.Name, err)
		}
		slog.Info("api key ready", "client_id", stored.ID, "name", stored.Name, "key", auth.Redact(key))
	}
	return nil
}
