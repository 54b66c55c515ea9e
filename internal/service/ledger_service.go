package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/careerlane_server/internal/model"
	"github.com/qs3c/careerlane_server/internal/model/dto"
	"github.com/qs3c/careerlane_server/internal/repository"
)

// ErrRunAlreadyFinished 运行记录已是终态
var ErrRunAlreadyFinished = errors.New("scrape run already finished")

// maxTraceLen 堆栈过长时截断
const maxTraceLen = 8000

// LedgerService 抓取运行记录，只用于观测
type LedgerService struct {
	runRepo *repository.ScrapeRunRepository
	log     *zap.Logger
	now     func() time.Time
}

func NewLedgerService(runRepo *repository.ScrapeRunRepository, log *zap.Logger) *LedgerService {
	return &LedgerService{runRepo: runRepo, log: log.Named("ledger"), now: time.Now}
}

// Start 在抓取之前写入 running 记录
func (s *LedgerService) Start(ctx context.Context, source string) (*model.ScrapeRun, error) {
	run := &model.ScrapeRun{
		SourceName: source,
		Status:     model.RunStatusRunning,
		StartedAt:  s.now(),
	}
	if err := s.runRepo.Create(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// Finish 抓取成功后按错误数写入 success 或 partial
func (s *LedgerService) Finish(ctx context.Context, run *model.ScrapeRun, stats *dto.RunStats) error {
	status := model.RunStatusSuccess
	if stats.Errors > 0 {
		status = model.RunStatusPartial
	}
	fields := map[string]interface{}{
		"status":     status,
		"found":      stats.Found,
		"new":        stats.New,
		"skipped":    stats.Skipped,
		"dedup_hits": stats.DedupHits,
		"errors":     stats.Errors,
	}
	if stats.Error != "" {
		fields["error_message"] = stats.Error
	}
	return s.complete(ctx, run, fields)
}

// Fail 抓取本身失败，没有处理任何职位
func (s *LedgerService) Fail(ctx context.Context, run *model.ScrapeRun, cause error, trace string) error {
	if len(trace) > maxTraceLen {
		trace = trace[:maxTraceLen]
	}
	fields := map[string]interface{}{
		"status":        model.RunStatusFailed,
		"error_message": cause.Error(),
		"trace":         trace,
	}
	return s.complete(ctx, run, fields)
}

func (s *LedgerService) complete(ctx context.Context, run *model.ScrapeRun, fields map[string]interface{}) error {
	finished := s.now()
	fields["finished_at"] = finished
	fields["duration_ms"] = finished.Sub(run.StartedAt).Milliseconds()

	ok, err := s.runRepo.Complete(ctx, run.ID, fields)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRunAlreadyFinished
	}

	run.Status = fields["status"].(string)
	run.FinishedAt = &finished
	return nil
}

// Recent 最近的运行记录，新的在前
func (s *LedgerService) Recent(ctx context.Context, source string, limit int) ([]*model.ScrapeRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.runRepo.ListRecent(ctx, source, limit)
}
