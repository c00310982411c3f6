package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/UglyGameFace/oddbot-sub001/adapters/apisports"
	"github.com/UglyGameFace/oddbot-sub001/adapters/espn"
	"github.com/UglyGameFace/oddbot-sub001/adapters/fallback"
	"github.com/UglyGameFace/oddbot-sub001/adapters/theoddsapi"
	"github.com/UglyGameFace/oddbot-sub001/internal/api"
	"github.com/UglyGameFace/oddbot-sub001/internal/cache"
	"github.com/UglyGameFace/oddbot-sub001/internal/chain"
	"github.com/UglyGameFace/oddbot-sub001/internal/config"
	"github.com/UglyGameFace/oddbot-sub001/internal/delta"
	"github.com/UglyGameFace/oddbot-sub001/internal/ingest"
	"github.com/UglyGameFace/oddbot-sub001/internal/logger"
	"github.com/UglyGameFace/oddbot-sub001/internal/quota"
	"github.com/UglyGameFace/oddbot-sub001/internal/registry"
	"github.com/UglyGameFace/oddbot-sub001/internal/service"
	"github.com/UglyGameFace/oddbot-sub001/internal/store"
	"github.com/UglyGameFace/oddbot-sub001/pkg/contracts"
)

func main() {
	// .env is optional; deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Setup(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	log.Info("oddbot starting")

	ctx := context.Background()

	db, err := store.Open(ctx, cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	sink := store.New(db, logger.WithComponent(log, "store"))
	if err := sink.EnsureSchema(ctx); err != nil {
		log.WithError(err).Fatal("failed to ensure schema")
	}
	log.Info("connected to database")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.WithError(err).Fatal("failed to connect to redis")
	}
	log.Info("connected to redis")

	cacheStore := cache.NewRedisStore(redisClient)
	coordinator := cache.New(cacheStore, cache.Options{
		LockTTL: cfg.Cache.LockTTL(),
		Retry:   cfg.Cache.Retry(),
	}, logger.WithComponent(log, "cache"))

	tracker := quota.NewTracker(cacheStore, cfg.Cache.QuotaTTL(), logger.WithComponent(log, "quota"))

	adapters := []contracts.ProviderAdapter{
		theoddsapi.New(theoddsapi.Config{
			APIKey:            cfg.Providers.TheOddsAPI.APIKey,
			BaseURL:           cfg.Providers.TheOddsAPI.BaseURL,
			Priority:          cfg.Providers.TheOddsAPI.Priority,
			RequestsPerMinute: cfg.Providers.TheOddsAPI.RequestsPerMinute,
		}, tracker, logger.WithComponent(log, "theoddsapi")),
		apisports.New(apisports.Config{
			APIKey:   cfg.Providers.APISports.APIKey,
			BaseURL:  cfg.Providers.APISports.BaseURL,
			Priority: cfg.Providers.APISports.Priority,
		}, tracker, logger.WithComponent(log, "apisports")),
		espn.New(espn.Config{
			BaseURL:  cfg.Providers.ESPN.BaseURL,
			Priority: cfg.Providers.ESPN.Priority,
		}, tracker, logger.WithComponent(log, "espn")),
		fallback.New(fallback.Config{
			Priority:    cfg.Providers.Fallback.Priority,
			Placeholder: cfg.Providers.Fallback.Placeholder,
		}, logger.WithComponent(log, "fallback")),
	}
	providerChain := chain.New(adapters, cfg.Providers.AdapterTimeout(), logger.WithComponent(log, "chain"))

	odds := service.NewOdds(coordinator, providerChain, cfg.Cache, logger.WithComponent(log, "service"))

	sports, err := registry.FromSeeds(cfg.Sports)
	if err != nil {
		log.WithError(err).Fatal("failed to build sport registry")
	}
	log.WithField("sports", sports.Count()).Info("sport registry ready")

	gate := delta.NewEngine(cacheStore, cfg.Ingest.DeltaTTL(), logger.WithComponent(log, "delta"))

	schedCtx, stopIngest := context.WithCancel(ctx)
	defer stopIngest()

	sched := ingest.New(providerChain, sink, sports, gate, redisClient, cfg.Ingest, logger.WithComponent(log, "ingest"))
	sched.Run(schedCtx)

	handler := api.NewHandler(odds, sink, coordinator, cacheStore, cfg.Ingest.TriggerChannel, logger.WithComponent(log, "api"))
	router := api.NewRouter(handler, cfg.HTTP.RequestTimeout(), logger.WithComponent(log, "http"))

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTP.Addr).Info("http server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.WithError(err).Error("http server failed")
	case sig := <-shutdown:
		log.WithField("signal", sig.String()).Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed, closing server")
		_ = srv.Close()
	}

	stopIngest()
	sched.Stop()

	log.Info("oddbot stopped")
}
