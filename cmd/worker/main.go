package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/careerlane_server/config"
	"github.com/qs3c/careerlane_server/internal/database"
	"github.com/qs3c/careerlane_server/internal/pkg/aiclient"
	"github.com/qs3c/careerlane_server/internal/pkg/cron"
	"github.com/qs3c/careerlane_server/internal/pkg/embedding"
	"github.com/qs3c/careerlane_server/internal/pkg/lease"
	"github.com/qs3c/careerlane_server/internal/pkg/llm"
	"github.com/qs3c/careerlane_server/internal/pkg/logger"
	"github.com/qs3c/careerlane_server/internal/pkg/queue"
	"github.com/qs3c/careerlane_server/internal/pkg/scraper"
	"github.com/qs3c/careerlane_server/internal/repository"
	"github.com/qs3c/careerlane_server/internal/service"
	"github.com/qs3c/careerlane_server/internal/worker"
)

func main() {
	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
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
	logg.Info("database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		logg.Fatal("failed to connect redis", zap.Error(err))
	}
	logg.Info("redis connected")

	// 创建 context 用于优雅关闭
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider, err := llm.NewProvider(ctx, cfg.LLM)
	if err != nil {
		logg.Fatal("failed to init llm provider", zap.Error(err))
	}
	client := aiclient.New(cfg.Embedding.BaseURL, cfg.Embedding.APIKey,
		aiclient.WithRateLimit(cfg.LLM.RequestsPerSecond),
		aiclient.WithRetry(cfg.LLM.MaxRetries, 500*time.Millisecond),
	)
	embedder := embedding.NewOpenAI(client, cfg.Embedding.Model, cfg.Embedding.Dimensions, cfg.Embedding.MaxInputChar)

	jobRepo := repository.NewJobRepository(db)
	dedup := service.NewDedupService(jobRepo)
	enrich := service.NewEnrichmentService(jobRepo, dedup, provider, embedder, cfg.Enrichment, logg)
	ledger := service.NewLedgerService(repository.NewScrapeRunRepository(db), logg)
	ingestion := service.NewIngestionService(jobRepo, dedup, enrich, ledger, cfg.Ingestion, logg)
	registry := scraper.FromConfig(cfg.Ingestion, &http.Client{Timeout: cfg.Ingestion.FetchTimeout})
	locker := lease.NewLocker(rdb)

	// 定时任务：每日抓取 + 卡住职位补偿
	runner := cron.NewIngestionRunner(locker, service.NewSourceRunner(ingestion, registry), cfg.Ingestion, logg)
	scheduler := cron.NewService(runner, enrich, locker, cfg, logg)
	if err := scheduler.Start(); err != nil {
		logg.Fatal("failed to start scheduler", zap.Error(err))
	}

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logg.Info("received shutdown signal")
		cancel()
	}()

	logg.Info("worker started",
		zap.Int("max_workers", cfg.Queue.MaxWorkers),
		zap.String("queue", cfg.Queue.EnrichQueue),
		zap.Strings("sources", registry.Names()))

	// 阻塞直到 ctx 取消且所有消费循环退出
	processor := worker.NewProcessor(enrich, logg)
	processor.Run(ctx, queue.NewQueue(rdb, cfg.Queue.EnrichQueue), cfg.Queue.MaxWorkers)

	scheduler.Stop()
	logg.Info("worker shutdown complete")
}
