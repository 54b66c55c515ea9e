package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/qs3c/careerlane_server/config"
	"github.com/qs3c/careerlane_server/internal/model"
	"github.com/qs3c/careerlane_server/internal/model/dto"
	"github.com/qs3c/careerlane_server/internal/pkg/scraper"
	"github.com/qs3c/careerlane_server/internal/repository"
)

// ErrInvalidRawJob 抓取结果缺少必填字段
var ErrInvalidRawJob = errors.New("raw job is missing required fields")

// jobOutcome 单个职位的处理结果
type jobOutcome int

const (
	outcomeNew jobOutcome = iota
	outcomeSkipped
	outcomeDedup
)

type IngestionService struct {
	jobRepo *repository.JobRepository
	dedup   *DedupService
	enrich  *EnrichmentService
	ledger  *LedgerService
	cfg     config.IngestionConfig
	log     *zap.Logger
}

func NewIngestionService(
	jobRepo *repository.JobRepository,
	dedup *DedupService,
	enrich *EnrichmentService,
	ledger *LedgerService,
	cfg config.IngestionConfig,
	log *zap.Logger,
) *IngestionService {
	return &IngestionService{
		jobRepo: jobRepo,
		dedup:   dedup,
		enrich:  enrich,
		ledger:  ledger,
		cfg:     cfg,
		log:     log.Named("ingestion"),
	}
}

// IngestAll 并发执行多个来源，任何一个来源的失败都不影响其他来源
func (s *IngestionService) IngestAll(ctx context.Context, sources []scraper.Source) []*dto.RunStats {
	results := make([]*dto.RunStats, len(sources))

	var g errgroup.Group
	if s.cfg.SourceConcurrency > 0 {
		g.SetLimit(s.cfg.SourceConcurrency)
	}
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			results[i] = s.Ingest(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Ingest 抓取一个来源并逐条去重、入库、富化
// 返回值总是非 nil，错误只体现在计数与运行记录中
func (s *IngestionService) Ingest(ctx context.Context, src scraper.Source) *dto.RunStats {
	log := s.log.With(zap.String("source", src.Name()))
	stats := &dto.RunStats{Source: src.Name(), Status: model.RunStatusRunning}

	// 运行记录必须落到终态，调用方取消后仍要写入
	ledgerCtx := context.WithoutCancel(ctx)

	run, err := s.ledger.Start(ledgerCtx, src.Name())
	if err != nil {
		log.Error("failed to record run start", zap.Error(err))
	} else {
		stats.RunID = run.ID
	}

	raws, trace, err := s.fetch(ctx, src)
	if err != nil {
		stats.Status = model.RunStatusFailed
		stats.Error = err.Error()
		log.Error("fetch failed", zap.Error(err))
		if run != nil {
			if lerr := s.ledger.Fail(ledgerCtx, run, err, trace); lerr != nil {
				log.Error("failed to record run failure", zap.Error(lerr))
			}
		}
		return stats
	}

	stats.Found = len(raws)
	var firstErr string
	for i := range raws {
		outcome, err := s.processOne(ctx, src.Name(), &raws[i])
		if err != nil {
			stats.Errors++
			if firstErr == "" {
				firstErr = fmt.Sprintf("%s: %v", raws[i].ExternalID, err)
			}
			log.Warn("job failed",
				zap.String("external_id", raws[i].ExternalID),
				zap.String("title", raws[i].Title),
				zap.Error(err))
			continue
		}
		switch outcome {
		case outcomeSkipped:
			stats.Skipped++
		case outcomeDedup:
			stats.New++
			stats.DedupHits++
		default:
			stats.New++
		}
	}

	stats.Status = model.RunStatusSuccess
	if stats.Errors > 0 {
		stats.Status = model.RunStatusPartial
		stats.Error = firstErr
	}
	if run != nil {
		if err := s.ledger.Finish(ledgerCtx, run, stats); err != nil {
			log.Error("failed to record run finish", zap.Error(err))
		}
	}

	log.Info("ingestion finished",
		zap.String("status", stats.Status),
		zap.Int("found", stats.Found),
		zap.Int("new", stats.New),
		zap.Int("skipped", stats.Skipped),
		zap.Int("dedup_hits", stats.DedupHits),
		zap.Int("errors", stats.Errors))
	return stats
}

// fetch 带超时地调用来源，panic 转为错误并保留堆栈
func (s *IngestionService) fetch(ctx context.Context, src scraper.Source) (jobs []scraper.RawJob, trace string, err error) {
	ctx, cancel := withTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			jobs = nil
			trace = string(debug.Stack())
			err = fmt.Errorf("fetch panicked: %v", r)
		}
	}()

	jobs, err = src.Fetch(ctx)
	if err != nil {
		return nil, fmt.Sprintf("%+v", err), err
	}
	return jobs, "", nil
}

// processOne 单个职位的完整流程，panic 只影响这一条
func (s *IngestionService) processOne(ctx context.Context, source string, raw *scraper.RawJob) (outcome jobOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job processing panicked",
				zap.String("source", source),
				zap.String("external_id", raw.ExternalID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if err := validateRaw(raw); err != nil {
		return outcomeNew, err
	}

	description := NormalizeDescription(raw.Description)
	decision, err := s.dedup.Resolve(ctx, Candidate{
		CompanyName: raw.CompanyName,
		ExternalID:  raw.ExternalID,
		Description: description,
	})
	if err != nil {
		return outcomeNew, err
	}
	if decision.Kind == DecisionExactDuplicate {
		return outcomeSkipped, nil
	}

	externalID := raw.ExternalID
	job := &model.JobPosting{
		Source:      source,
		Title:       strings.TrimSpace(raw.Title),
		Description: description,
		Skills:      model.StringArray(raw.Skills),
		Status:      model.JobStatusProcessing,
		CompanyName: raw.CompanyName,
		ExternalID:  &externalID,
		ApplyURL:    raw.ApplyURL,
		Location:    raw.Location,
		ContentHash: ContentHash(description),
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		return outcomeNew, fmt.Errorf("insert job: %w", err)
	}

	if decision.Kind == DecisionContentDuplicate {
		if _, err := s.enrich.ApplyDonor(ctx, job.ID, decision.Donor); err != nil {
			return outcomeNew, fmt.Errorf("copy from donor: %w", err)
		}
		return outcomeDedup, nil
	}

	if _, err := s.enrich.Enrich(ctx, job.ID); err != nil {
		return outcomeNew, fmt.Errorf("enrich: %w", err)
	}
	return outcomeNew, nil
}

func validateRaw(raw *scraper.RawJob) error {
	var missing []string
	if strings.TrimSpace(raw.ExternalID) == "" {
		missing = append(missing, "external_id")
	}
	if strings.TrimSpace(raw.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(raw.Description) == "" {
		missing = append(missing, "description")
	}
	if strings.TrimSpace(raw.CompanyName) == "" {
		missing = append(missing, "company_name")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRawJob, strings.Join(missing, ", "))
	}
	return nil
}

// SourceRunner 按名称运行来源，供管理接口和定时任务使用
type SourceRunner struct {
	ingestion *IngestionService
	registry  *scraper.Registry

	mu      sync.Mutex
	running bool
}

var (
	ErrSourceNotFound  = errors.New("ingestion source not found")
	ErrIngestionActive = errors.New("ingestion is already running in this process")
)

func NewSourceRunner(ingestion *IngestionService, registry *scraper.Registry) *SourceRunner {
	return &SourceRunner{ingestion: ingestion, registry: registry}
}

// RunAll 同一进程内不重入；跨进程互斥由租约负责
func (r *SourceRunner) RunAll(ctx context.Context) ([]*dto.RunStats, error) {
	if !r.begin() {
		return nil, ErrIngestionActive
	}
	defer r.end()
	return r.ingestion.IngestAll(ctx, r.registry.All()), nil
}

func (r *SourceRunner) RunSource(ctx context.Context, name string) (*dto.RunStats, error) {
	src, ok := r.registry.Get(name)
	if !ok {
		return nil, ErrSourceNotFound
	}
	if !r.begin() {
		return nil, ErrIngestionActive
	}
	defer r.end()
	return r.ingestion.Ingest(ctx, src), nil
}

func (r *SourceRunner) Sources() []string {
	return r.registry.Names()
}

func (r *SourceRunner) begin() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	return true
}

func (r *SourceRunner) end() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}
