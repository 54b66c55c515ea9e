package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/careerlane_server/config"
	"github.com/qs3c/careerlane_server/internal/database"
	"github.com/qs3c/careerlane_server/internal/pkg/aiclient"
	"github.com/qs3c/careerlane_server/internal/pkg/embedding"
	"github.com/qs3c/careerlane_server/internal/pkg/llm"
	"github.com/qs3c/careerlane_server/internal/pkg/logger"
	"github.com/qs3c/careerlane_server/internal/pkg/queue"
	"github.com/qs3c/careerlane_server/internal/repository"
	"github.com/qs3c/careerlane_server/internal/service"
)

var (
	dryRun  = flag.Bool("dry-run", true, "Only list stuck jobs, don't call the AI provider")
	limit   = flag.Int("limit", 50, "Maximum number of jobs to re-enrich")
	jobIDs  = flag.String("ids", "", "Comma separated job ids; empty means all jobs stuck in processing")
	enqueue = flag.Bool("enqueue", false, "Push jobs to the worker queue instead of enriching in this process")
)

func main() {
	flag.Parse()

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
	logg.Info("starting re-enrichment", zap.Bool("dry_run", *dryRun), zap.Int("limit", *limit), zap.Bool("enqueue", *enqueue))

	if err := database.CheckEmbeddingDimensions(cfg.Embedding.Dimensions); err != nil {
		logg.Fatal("invalid embedding config", zap.Error(err))
	}

	db, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		logg.Fatal("failed to connect database", zap.Error(err))
	}
	jobRepo := repository.NewJobRepository(db)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ids := splitIDs(*jobIDs)
	if len(ids) == 0 {
		stuckAfter := cfg.Enrichment.StuckAfter
		if stuckAfter <= 0 {
			stuckAfter = 15 * time.Minute
		}
		jobs, err := jobRepo.ListStuck(ctx, time.Now().Add(-stuckAfter), *limit)
		if err != nil {
			logg.Fatal("failed to list stuck jobs", zap.Error(err))
		}
		for _, j := range jobs {
			ids = append(ids, j.ID)
			logg.Info("stuck job",
				zap.String("job_id", j.ID),
				zap.String("title", j.Title),
				zap.String("company", j.CompanyName),
				zap.Time("created_at", j.CreatedAt))
		}
	}

	if len(ids) == 0 {
		logg.Info("no stuck jobs found")
		return
	}
	if *dryRun {
		logg.Info("dry run, nothing changed; run with -dry-run=false to re-enrich", zap.Int("jobs", len(ids)))
		return
	}

	if *enqueue {
		rdb, err := database.NewRedis(&cfg.Redis)
		if err != nil {
			logg.Fatal("failed to connect redis", zap.Error(err))
		}
		q := queue.NewQueue(rdb, cfg.Queue.EnrichQueue)
		for _, id := range ids {
			if err := q.Enqueue(ctx, id, queue.ReasonReenrich); err != nil {
				logg.Fatal("failed to enqueue job", zap.String("job_id", id), zap.Error(err))
			}
		}
		logg.Info("jobs enqueued", zap.Int("jobs", len(ids)))
		return
	}

	provider, err := llm.NewProvider(ctx, cfg.LLM)
	if err != nil {
		logg.Fatal("failed to init llm provider", zap.Error(err))
	}
	client := aiclient.New(cfg.Embedding.BaseURL, cfg.Embedding.APIKey,
		aiclient.WithRateLimit(cfg.LLM.RequestsPerSecond),
		aiclient.WithRetry(cfg.LLM.MaxRetries, 500*time.Millisecond),
	)
	embedder := embedding.NewOpenAI(client, cfg.Embedding.Model, cfg.Embedding.Dimensions, cfg.Embedding.MaxInputChar)
	enrich := service.NewEnrichmentService(jobRepo, service.NewDedupService(jobRepo), provider, embedder, cfg.Enrichment, logg)

	result, err := enrich.SweepStuck(ctx, ids, *limit)
	if err != nil {
		logg.Fatal("re-enrichment failed", zap.Error(err))
	}
	for id, msg := range result.Errors {
		logg.Warn("job failed", zap.String("job_id", id), zap.String("error", msg))
	}
	logg.Info("re-enrichment finished",
		zap.Int("total", result.Total),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("dedup_hits", result.DedupHits),
		zap.Int("failed", result.Failed))
}

func splitIDs(s string) []string {
	var out []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
