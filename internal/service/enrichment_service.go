package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/qs3c/careerlane_server/config"
	"github.com/qs3c/careerlane_server/internal/model"
	"github.com/qs3c/careerlane_server/internal/model/dto"
	"github.com/qs3c/careerlane_server/internal/pkg/embedding"
	"github.com/qs3c/careerlane_server/internal/pkg/llm"
	"github.com/qs3c/careerlane_server/internal/repository"
)

var (
	ErrJobNotFound        = errors.New("job not found")
	ErrInvalidEnrichment  = errors.New("invalid enrichment output")
	ErrEmbeddingDimension = errors.New("embedding dimension mismatch")
)

// EnrichmentResult 一次富化的结果
type EnrichmentResult struct {
	Job       *model.JobPosting
	FromDonor bool
	// AlreadyActive 职位在调用前或调用期间已被激活，没有写入
	AlreadyActive bool
}

type EnrichmentService struct {
	jobRepo  *repository.JobRepository
	dedup    *DedupService
	provider llm.Provider
	embedder embedding.Embedder
	cfg      config.EnrichmentConfig
	dims     int
	log      *zap.Logger
}

func NewEnrichmentService(
	jobRepo *repository.JobRepository,
	dedup *DedupService,
	provider llm.Provider,
	embedder embedding.Embedder,
	cfg config.EnrichmentConfig,
	log *zap.Logger,
) *EnrichmentService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 3
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = cfg.BatchSize
	}
	return &EnrichmentService{
		jobRepo:  jobRepo,
		dedup:    dedup,
		provider: provider,
		embedder: embedder,
		cfg:      cfg,
		dims:     embedder.Dimensions(),
		log:      log.Named("enrichment"),
	}
}

// Enrich 生成指南与向量并激活职位，任何一步失败职位都保持 processing
func (s *EnrichmentService) Enrich(ctx context.Context, jobID string) (*EnrichmentResult, error) {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.IsActive() {
		return &EnrichmentResult{Job: job, AlreadyActive: true}, nil
	}

	guides, err := s.generate(ctx, job)
	if err != nil {
		return nil, err
	}

	vec, err := s.embed(ctx, job)
	if err != nil {
		return nil, err
	}

	artifacts := &model.JobArtifacts{
		ResumeGuide: guides.ResumeGuide,
		PrepGuide:   guides.PrepGuide,
		Embedding:   vec,
		SalaryRange: guides.SalaryRange,
	}
	if len(job.Skills) == 0 && len(guides.Skills) > 0 {
		artifacts.Skills = guides.Skills
	}

	return s.activate(ctx, jobID, artifacts, false)
}

// ApplyDonor 复制供体的富化结果，不调用任何模型
func (s *EnrichmentService) ApplyDonor(ctx context.Context, jobID string, donor *model.JobPosting) (*EnrichmentResult, error) {
	if donor == nil || donor.Embedding == nil {
		return nil, fmt.Errorf("%w: donor has no embedding", ErrInvalidEnrichment)
	}
	artifacts := &model.JobArtifacts{
		ResumeGuide: donor.ResumeGuide,
		PrepGuide:   donor.PrepGuide,
		Embedding:   donor.Embedding.Slice(),
		SalaryRange: donor.SalaryRange,
	}
	return s.activate(ctx, jobID, artifacts, true)
}

// EnrichOrCopy 有供体时复制，否则完整富化
func (s *EnrichmentService) EnrichOrCopy(ctx context.Context, jobID string) (*EnrichmentResult, error) {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.IsActive() {
		return &EnrichmentResult{Job: job, AlreadyActive: true}, nil
	}

	hash := job.ContentHash
	if hash == "" {
		hash = ContentHash(NormalizeDescription(job.Description))
	}
	donor, err := s.dedup.FindDonor(ctx, hash, job.ID)
	if err != nil {
		return nil, err
	}
	if donor != nil {
		s.log.Info("copying enrichment from donor",
			zap.String("job_id", jobID), zap.String("donor_id", donor.ID))
		return s.ApplyDonor(ctx, jobID, donor)
	}
	return s.Enrich(ctx, jobID)
}

// EnrichBatch 分批处理，批内并发受限，批间暂停；单个失败不影响其他
func (s *EnrichmentService) EnrichBatch(ctx context.Context, jobIDs []string) *dto.BatchResult {
	result := &dto.BatchResult{Total: len(jobIDs), Errors: make(map[string]string)}
	var mu sync.Mutex

	for start := 0; start < len(jobIDs); start += s.cfg.BatchSize {
		if start > 0 && !sleepCtx(ctx, s.cfg.BatchDelay) {
			break
		}
		if ctx.Err() != nil {
			break
		}

		end := start + s.cfg.BatchSize
		if end > len(jobIDs) {
			end = len(jobIDs)
		}

		var g errgroup.Group
		g.SetLimit(s.cfg.Concurrency)
		for _, id := range jobIDs[start:end] {
			id := id
			g.Go(func() error {
				res, err := s.enrichSafely(ctx, id)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					result.Failed++
					result.Errors[id] = err.Error()
					return nil
				}
				result.Succeeded++
				if res.FromDonor {
					result.DedupHits++
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	// 被取消时未处理的计为失败
	if done := result.Succeeded + result.Failed; done < result.Total {
		for _, id := range jobIDs[done:] {
			if _, ok := result.Errors[id]; !ok {
				result.Errors[id] = context.Canceled.Error()
			}
		}
		result.Failed = result.Total - result.Succeeded
	}

	s.log.Info("batch enrichment finished",
		zap.Int("total", result.Total),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("dedup_hits", result.DedupHits),
		zap.Int("failed", result.Failed))
	return result
}

// SweepStuck 重新富化创建超过 StuckAfter 仍未激活的职位；ids 非空时只处理指定职位
func (s *EnrichmentService) SweepStuck(ctx context.Context, ids []string, limit int) (*dto.BatchResult, error) {
	if len(ids) == 0 {
		if limit <= 0 {
			limit = s.cfg.SweepLimit
		}
		if limit <= 0 {
			limit = 50
		}
		stuckAfter := s.cfg.StuckAfter
		if stuckAfter <= 0 {
			stuckAfter = 15 * time.Minute
		}

		jobs, err := s.jobRepo.ListStuck(ctx, time.Now().Add(-stuckAfter), limit)
		if err != nil {
			return nil, err
		}
		for _, j := range jobs {
			ids = append(ids, j.ID)
		}
	}

	s.log.Info("sweeping stuck jobs", zap.Int("count", len(ids)))
	return s.EnrichBatch(ctx, ids), nil
}

func (s *EnrichmentService) enrichSafely(ctx context.Context, jobID string) (res *EnrichmentResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("enrichment panicked",
				zap.String("job_id", jobID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.EnrichOrCopy(ctx, jobID)
}

func (s *EnrichmentService) generate(ctx context.Context, job *model.JobPosting) (*llm.Guides, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.AITimeout)
	defer cancel()

	guides, err := s.provider.GenerateGuides(ctx, llm.GuideRequest{
		Title:       job.Title,
		CompanyName: job.CompanyName,
		Description: job.Description,
		Skills:      job.Skills,
	})
	if err != nil {
		return nil, fmt.Errorf("generate guides: %w", err)
	}
	if err := llm.ValidateGuides(guides, model.GuideSize); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnrichment, err)
	}
	return guides, nil
}

func (s *EnrichmentService) embed(ctx context.Context, job *model.JobPosting) ([]float32, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.EmbedTimeout)
	defer cancel()

	vec, err := s.embedder.Embed(ctx, job.Title+"\n\n"+job.Description)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if err := embedding.CheckDimension(vec, s.dims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingDimension, err)
	}
	return vec, nil
}

func (s *EnrichmentService) activate(ctx context.Context, jobID string, a *model.JobArtifacts, fromDonor bool) (*EnrichmentResult, error) {
	ok, err := s.jobRepo.Activate(ctx, jobID, a)
	if err != nil {
		return nil, fmt.Errorf("activate job: %w", err)
	}

	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// 并发的另一次富化先完成了
		return &EnrichmentResult{Job: job, AlreadyActive: true}, nil
	}

	s.log.Info("job activated", zap.String("job_id", jobID), zap.Bool("from_donor", fromDonor))
	return &EnrichmentResult{Job: job, FromDonor: fromDonor}, nil
}

func (s *EnrichmentService) loadJob(ctx context.Context, jobID string) (*model.JobPosting, error) {
	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// sleepCtx 被取消时返回 false
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
