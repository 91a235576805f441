package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marketlens/market-enrich/internal/config"
	"github.com/marketlens/market-enrich/internal/httpapi"
	"github.com/marketlens/market-enrich/pkg/cache"
	"github.com/marketlens/market-enrich/pkg/esri"
	"github.com/marketlens/market-enrich/pkg/logging"
	"github.com/marketlens/market-enrich/pkg/orchestrate"
	"github.com/marketlens/market-enrich/pkg/queue"
	"github.com/marketlens/market-enrich/pkg/ranking"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup(logging.DefaultConfig())
		fallback := logging.NewLogger("main")
		fallback.Fatal().Err(err).Msg("Configuration failed")
	}

	logging.Setup(cfg.Logging)
	logger := logging.NewLogger("main")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Str("redis_url", cfg.RedisURL).Msg("Redis connection failed")
	}
	logger.Info().Str("redis_url", cfg.RedisURL).Msg("Connected to Redis")

	store := cache.NewStore(redisClient)
	gateway, err := buildGateway(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Gateway construction failed")
	}

	dispatcher := queue.NewDispatcher(redisClient, cfg.Stream)
	service := orchestrate.NewService(store, gateway, dispatcher)
	engine := ranking.NewEngine(store)
	worker := orchestrate.NewWorker(store, gateway)

	seedGateway := orchestrate.Gateway(esri.NewPlaceholder())
	if cfg.SeedLive {
		seedGateway = gateway
	}
	seeder := orchestrate.NewSeeder(store, seedGateway, cfg.SeedMarkets)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumerCfg := queue.DefaultConsumerConfig()
	consumerCfg.Stream = cfg.Stream
	consumerCfg.Group = cfg.Group
	consumerCfg.Consumer = cfg.Consumer
	consumer := queue.NewConsumer(redisClient, consumerCfg)
	go func() {
		if err := consumer.Run(runCtx, worker.Handler()); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("Refresh consumer stopped")
		}
	}()

	go runSeedSchedule(runCtx, seeder, cfg)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpapi.NewServer(service, engine, store).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("Starting enrichment server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Server failed")
			stop()
		}
	}()

	<-runCtx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("Redis close failed")
	}
}

// buildGateway selects the live provider when credentials are configured,
// otherwise the placeholder.
func buildGateway(cfg *config.Config) (orchestrate.Gateway, error) {
	if !cfg.HasCredentials() {
		return esri.NewPlaceholder(), nil
	}

	var creds esri.CredentialSource
	if cfg.ArcGISCredentials != "" {
		creds = esri.StaticCredentialSource(cfg.ArcGISCredentials)
	} else {
		creds = esri.FileCredentialSource{Path: cfg.ArcGISCredentialsFile}
	}

	provider := esri.DefaultConfig(creds)
	if cfg.ArcGISTokenURL != "" {
		provider.TokenURL = cfg.ArcGISTokenURL
	}
	if cfg.ArcGISEnrichURL != "" {
		provider.EnrichURL = cfg.ArcGISEnrichURL
	}
	if cfg.ArcGISReferer != "" {
		provider.Referer = cfg.ArcGISReferer
	}
	return esri.New(provider)
}

// runSeedSchedule keeps the priority markets warm: an optional immediate run,
// then one run per interval until shutdown.
func runSeedSchedule(ctx context.Context, seeder *orchestrate.Seeder, cfg *config.Config) {
	logger := logging.NewLogger("seed-schedule")

	if cfg.SeedOnStart {
		if _, err := seeder.Seed(ctx); err != nil {
			logger.Error().Err(err).Msg("Startup seed run failed")
		}
	}

	ticker := time.NewTicker(cfg.SeedInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := seeder.Seed(ctx); err != nil {
				logger.Error().Err(err).Msg("Scheduled seed run failed")
			}
		}
	}
}
