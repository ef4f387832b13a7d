package main

import (
	"context"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"mediachat/internal/api"
	"mediachat/internal/config"
	"mediachat/internal/dispatch"
	"mediachat/internal/files"
	"mediachat/internal/gemini"
	"mediachat/internal/memstore"
	"mediachat/internal/redis"
	"mediachat/internal/render"
	"mediachat/internal/service/agent"
	"mediachat/internal/storage"
	"mediachat/internal/worker"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("MEDIACHAT_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	db, err := storage.Open(cfg.BasicConfig.DatabaseDriver, cfg.BasicConfig.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	store := storage.NewStore(db, cfg.BasicConfig.DatabaseDriver)
	if err := store.EnsureSchema(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("ensure schema")
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = redis.NewClient(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("create redis client")
		}
		defer rdb.Close()
	}

	fileStore, err := files.NewStore(cfg.BasicConfig.GeneratedDir)
	if err != nil {
		log.Fatal().Err(err).Msg("init generated file store")
	}

	backend, err := gemini.NewBackend(context.Background(), cfg.Gemini)
	if err != nil {
		log.Fatal().Err(err).Msg("init gemini backend")
	}
	dispatcher := dispatch.New(backend, fileStore, dispatch.Config{
		PollInterval:    time.Duration(cfg.Gemini.PollIntervalMS) * time.Millisecond,
		PollMaxAttempts: cfg.Gemini.PollMaxAttempts,
	})

	agentService := agent.NewService(memstore.New(), store, dispatcher, render.NewFFmpeg(), fileStore)
	handlers := api.NewHandler(agentService, worker.Config{
		MaxWorkers: cfg.BasicConfig.MaxWorkers,
		QueueSize:  cfg.BasicConfig.QueueSize,
	}, log)

	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger(log), api.IPAllowlist(cfg.BasicConfig.AllowedIPs))
	router.Use(api.RateLimit(rdb, cfg.BasicConfig.RateLimitPerMinute, log))
	router.Static("/generated", fileStore.Dir())
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	log.Info().Str("addr", addr).Msg("server listening")
	if err := router.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
