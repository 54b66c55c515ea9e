package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/careerlane_server/config"
	"github.com/qs3c/careerlane_server/internal/api"
	"github.com/qs3c/careerlane_server/internal/api/handler"
	"github.com/qs3c/careerlane_server/internal/database"
	"github.com/qs3c/careerlane_server/internal/pkg/aiclient"
	"github.com/qs3c/careerlane_server/internal/pkg/cron"
	"github.com/qs3c/careerlane_server/internal/pkg/embedding"
	"github.com/qs3c/careerlane_server/internal/pkg/lease"
	"github.com/qs3c/careerlane_server/internal/pkg/llm"
	"github.com/qs3c/careerlane_server/internal/pkg/logger"
	"github.com/qs3c/careerlane_server/internal/pkg/oss"
	"github.com/qs3c/careerlane_server/internal/pkg/queue"
	"github.com/qs3c/careerlane_server/internal/pkg/scraper"
	"github.com/qs3c/careerlane_server/internal/pkg/ws"
	"github.com/qs3c/careerlane_server/internal/repository"
	"github.com/qs3c/careerlane_server/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load(configPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logg := logger.New(cfg.Log, cfg.Server.Mode)
	defer logg.Sync()

	if err := database.CheckEmbeddingDimensions(cfg.Embedding.Dimensions); err != nil {
		logg.Fatal("invalid embedding config", zap.Error(err))
	}

	// 初始化数据库
	db, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		logg.Fatal("failed to connect database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		logg.Fatal("failed to migrate database", zap.Error(err))
	}
	logg.Info("database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		logg.Fatal("failed to connect redis", zap.Error(err))
	}
	logg.Info("redis connected")

	ctx := context.Background()

	// AI 服务
	provider, err := llm.NewProvider(ctx, cfg.LLM)
	if err != nil {
		logg.Fatal("failed to init llm provider", zap.Error(err))
	}
	embedder := newEmbedder(cfg)

	// 初始化 OSS（可选，未配置时不接受简历文件）
	var storage oss.Storage
	if cfg.OSS.Endpoint != "" && cfg.OSS.AccessKeyID != "" {
		client, err := oss.NewClient(&cfg.OSS)
		if err != nil {
			logg.Warn("failed to init OSS client, resume files disabled", zap.Error(err))
		} else {
			storage = client
			logg.Info("OSS client initialized")
		}
	}

	enrichQueue := queue.NewQueue(rdb, cfg.Queue.EnrichQueue)
	hub := ws.NewHub(logg)

	// 初始化 Repository
	userRepo := repository.NewUserRepository(db)
	jobRepo := repository.NewJobRepository(db)
	chatRepo := repository.NewChatRepository(db)
	runRepo := repository.NewScrapeRunRepository(db)

	// 初始化 Service
	dedup := service.NewDedupService(jobRepo)
	enrich := service.NewEnrichmentService(jobRepo, dedup, provider, embedder, cfg.Enrichment, logg)
	ledger := service.NewLedgerService(runRepo, logg)
	ingestion := service.NewIngestionService(jobRepo, dedup, enrich, ledger, cfg.Ingestion, logg)
	registry := scraper.FromConfig(cfg.Ingestion, &http.Client{Timeout: cfg.Ingestion.FetchTimeout})
	sources := service.NewSourceRunner(ingestion, registry)
	ingestRunner := cron.NewIngestionRunner(lease.NewLocker(rdb), sources, cfg.Ingestion, logg)

	jobService := service.NewJobService(jobRepo, enrichQueue, logg)
	matchService := service.NewMatchService(userRepo, jobRepo, cfg.Match)
	userService := service.NewUserService(userRepo, embedder, storage, cfg.Resume, logg)
	chatService := service.NewChatService(chatRepo, userRepo, jobRepo, provider, hub, cfg.Chat, logg)

	// 初始化 Handler
	adminHandler := handler.NewAdminHandler(chatService, jobService, enrich, ledger, sources, ingestRunner, logg)
	router := api.NewRouter(
		handler.NewHealthHandler(db, hub),
		handler.NewJobHandler(jobService, matchService, logg),
		handler.NewUserHandler(userService, cfg.Resume.MaxSize, logg),
		handler.NewChatHandler(chatService, logg),
		handler.NewWebSocketHandler(hub, chatService, cfg.JWT.Secret, cfg.Chat, logg),
		adminHandler,
		handler.NewMarketHandler(service.NewMarketService(jobRepo), logg),
		cfg,
		logg,
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logg.Info("server starting", zap.String("addr", addr), zap.Strings("sources", registry.Names()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logg.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("server shutdown failed", zap.Error(err))
	}
	adminHandler.Wait()
	logg.Info("server shutdown complete")
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config.yaml"
}

func newEmbedder(cfg *config.Config) embedding.Embedder {
	client := aiclient.New(cfg.Embedding.BaseURL, cfg.Embedding.APIKey,
		aiclient.WithRateLimit(cfg.LLM.RequestsPerSecond),
		aiclient.WithRetry(cfg.LLM.MaxRetries, 500*time.Millisecond),
	)
	return embedding.NewOpenAI(client, cfg.Embedding.Model, cfg.Embedding.Dimensions, cfg.Embedding.MaxInputChar)
}
