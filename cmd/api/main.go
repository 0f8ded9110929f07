package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/adapters/cache"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/adapters/database"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/adapters/events"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/adapters/memory"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/api/handlers"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/api/loaders"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/api/routes"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/application/services"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/providers"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/domain/repositories"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/infrastructure/clients/postgres"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/infrastructure/clients/redis"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/internal/infrastructure/observability"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/pkg/config"
	"github.com/gabrielamorim27310-ai/MedGo-sub000/pkg/secrets"
)

func main() {
	vaultResult, err := secrets.ApplyVaultSecrets(context.Background(), secrets.LoadVaultConfigFromEnv(""))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load secrets from Vault")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.App.Env)
	if vaultResult.Enabled {
		log.Info().Str("path", vaultResult.Path).Int("loaded", vaultResult.Loaded).Int("skipped", vaultResult.Skipped).Msg("Vault secrets applied")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to set up OpenTelemetry")
		} else {
			observability.EnableOTelLogs(cfg.OTEL.ServiceName)
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("Error shutting down OpenTelemetry")
				}
			}()
			log.Info().Msg("OpenTelemetry initialized successfully")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize metrics")
	}

	// Queue store
	var queueRepo repositories.QueueRepository
	switch cfg.Queue.Store {
	case "postgres":
		pgClient, err := postgres.NewClient(&cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize PostgreSQL client")
		}
		defer pgClient.Close()
		queueRepo = database.NewQueueEntryAdapter(pgClient)
		log.Info().Msg("Queue store: PostgreSQL")
	default:
		queueRepo = memory.NewQueueStore()
		log.Warn().Msg("Queue store: in-memory, entries are lost on restart")
	}

	// Redis is optional: without it the stats cache and the event bus stay in-process
	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, using in-process cache and event bus")
		redisClient = nil
	} else {
		defer redisClient.Close()
		log.Info().Msg("Redis client initialized successfully")
	}

	var cacheProvider providers.CacheProvider
	if cfg.Queue.Cache == "redis" && redisClient != nil {
		cacheProvider = cache.NewRedisAdapter(redisClient)
	} else {
		cacheProvider = cache.NewLRUAdapter(cfg.Queue.LocalCacheSize, time.Duration(cfg.Queue.StatsTTLSeconds)*time.Second)
	}

	var eventBus providers.EventBus
	localBus := redisClient == nil
	if localBus {
		eventBus = events.NewLocalEventBus()
	} else {
		eventBus = events.NewRedisEventBus(redisClient)
	}
	broadcaster := events.NewQueueBroadcaster(eventBus, cfg.Queue.BroadcastBuffer)
	broadcaster.SetMetrics(metrics)

	queueService := services.NewQueueService(queueRepo, cacheProvider, broadcaster, services.QueueServiceConfig{
		DefaultServiceMinutes: cfg.Queue.DefaultServiceMinutes,
		StatsTTLSeconds:       cfg.Queue.StatsTTLSeconds,
		StoreTimeout:          cfg.Queue.StoreTimeout,
	})
	queueService.SetMetrics(metrics)

	// Peers mutate queues too; drop our cached stats when their events arrive
	cacheInvalidationService := services.NewCacheInvalidationService(cacheProvider, eventBus)
	if err := cacheInvalidationService.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start cache invalidation service")
	}

	var sweeper *services.NoShowSweeper
	if cfg.Queue.NoShowAfter > 0 {
		sweeper = services.NewNoShowSweeper(queueRepo, queueService, cfg.Queue.NoShowAfter, cfg.Queue.NoShowSweepInterval)
		sweeper.Start()
	}

	// Streams live next to the API only when events never leave this process
	var sseHandler *handlers.SSEHandler
	var websocketHandler *handlers.WebSocketHandler
	if localBus {
		snapshots := loaders.NewSnapshotLoader(queueRepo, loaders.DefaultBatchWait)
		sseHandler = handlers.NewSSEHandler(eventBus, queueService, snapshots)
		websocketHandler = handlers.NewWebSocketHandler(eventBus, queueService, snapshots)
		log.Info().Msg("Stream endpoints mounted on the API server")
	}

	router := routes.NewRouter(handlers.NewQueueHandler(queueService), sseHandler, websocketHandler, metrics)

	writeTimeout := 15 * time.Second
	if localBus {
		writeTimeout = 0
	}
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.SetupRoutes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Server shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during server shutdown")
	}

	if sweeper != nil {
		sweeper.Stop()
	}
	cacheInvalidationService.Stop()

	if err := broadcaster.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error draining queue broadcaster")
	}
	if err := eventBus.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing event bus")
	}

	log.Info().Msg("Server stopped")
}
