package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/adapters/database"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/adapters/events"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/api/handlers"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/api/loaders"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/api/routes"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/application/services"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/infrastructure/clients/postgres"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/infrastructure/clients/redis"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/infrastructure/observability"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/pkg/config"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/pkg/secrets"
)

func main() {
	if _, err := secrets.ApplyVaultSecrets(context.Background(), secrets.LoadVaultConfigFromEnv("")); err != nil {
		log.Fatal().Err(err).Msg("Failed to load secrets from Vault")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	observability.InitLogger(cfg.OTEL.ServiceName+"-stream", cfg.App.Env)

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize metrics")
	}

	// Redis carries the events published by the API instances
	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Redis client")
	}
	defer redisClient.Close()

	eventBus := events.NewRedisEventBus(redisClient)

	// Snapshots need the shared store; without it streams open empty
	var snapshots *loaders.SnapshotLoader
	var facilities handlers.FacilitySnapshotter
	if cfg.Queue.Store == "postgres" {
		pgClient, err := postgres.NewClient(&cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize PostgreSQL client")
		}
		defer pgClient.Close()

		queueRepo := database.NewQueueEntryAdapter(pgClient)
		snapshots = loaders.NewSnapshotLoader(queueRepo, loaders.DefaultBatchWait)
		facilities = services.NewQueueService(queueRepo, nil, nil, services.QueueServiceConfig{
			DefaultServiceMinutes: cfg.Queue.DefaultServiceMinutes,
			StatsTTLSeconds:       cfg.Queue.StatsTTLSeconds,
			StoreTimeout:          cfg.Queue.StoreTimeout,
		})
	} else {
		log.Warn().Str("store", cfg.Queue.Store).Msg("Queue store is not shared, streams start without snapshots")
	}

	var patients handlers.PatientSnapshotter
	if snapshots != nil {
		patients = snapshots
	}
	sseHandler := handlers.NewSSEHandler(eventBus, facilities, patients)
	websocketHandler := handlers.NewWebSocketHandler(eventBus, facilities, patients)

	router := routes.NewRouter(nil, sseHandler, websocketHandler, metrics)

	// Cancelling the base context ends every open stream on shutdown
	streamCtx, cancelStreams := context.WithCancel(context.Background())
	defer cancelStreams()

	server := &http.Server{
		Addr:         cfg.Stream.Addr(),
		Handler:      router.SetupRoutes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streams are long-lived
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return streamCtx },
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("Stream server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Stream server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Stream server shutting down...")

	cancelStreams()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during server shutdown")
	}

	if err := eventBus.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing event bus")
	}

	log.Info().Msg("Stream server stopped")
}
