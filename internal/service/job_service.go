package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/careerlane_server/internal/model"
	"github.com/qs3c/careerlane_server/internal/model/dto"
	"github.com/qs3c/careerlane_server/internal/pkg/queue"
	"github.com/qs3c/careerlane_server/internal/repository"
)

var ErrDuplicateJob = errors.New("a job with this external id already exists for the company")

// Enqueuer 把职位交给富化 worker
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID, reason string) error
}

type JobService struct {
	jobRepo  *repository.JobRepository
	enqueuer Enqueuer
	log      *zap.Logger
}

func NewJobService(jobRepo *repository.JobRepository, enqueuer Enqueuer, log *zap.Logger) *JobService {
	return &JobService{
		jobRepo:  jobRepo,
		enqueuer: enqueuer,
		log:      log.Named("job"),
	}
}

// Create provider 直接提交职位，立即返回 processing，富化由 worker 异步完成
func (s *JobService) Create(ctx context.Context, providerID string, req *dto.CreateJobRequest) (*dto.CreateJobResponse, error) {
	externalID := strings.TrimSpace(req.ExternalID)
	company := strings.TrimSpace(req.CompanyName)
	if externalID != "" {
		_, err := s.jobRepo.GetByExternalKey(ctx, company, externalID)
		if err == nil {
			return nil, ErrDuplicateJob
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	description := NormalizeDescription(req.Description)
	job := &model.JobPosting{
		ProviderID:  &providerID,
		Source:      model.SourceDirect,
		Title:       strings.TrimSpace(req.Title),
		Description: description,
		Skills:      cleanSkills(req.Skills),
		Status:      model.JobStatusProcessing,
		CompanyName: company,
		ApplyURL:    req.ApplyURL,
		Location:    req.Location,
		ContentHash: ContentHash(description),
	}
	if externalID != "" {
		job.ExternalID = &externalID
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		return nil, err
	}

	// 入队失败不影响提交结果，补偿任务会捡起卡住的职位
	if err := s.enqueuer.Enqueue(ctx, job.ID, queue.ReasonCreated); err != nil {
		s.log.Error("failed to enqueue job", zap.String("job_id", job.ID), zap.Error(err))
	}

	s.log.Info("job submitted", zap.String("job_id", job.ID), zap.String("provider_id", providerID))
	return &dto.CreateJobResponse{ID: job.ID, Status: job.Status}, nil
}

// Feed 对外的职位流，只包含 active
func (s *JobService) Feed(ctx context.Context, page, pageSize int) ([]*dto.JobListItem, int64, error) {
	jobs, total, err := s.jobRepo.ListActive(ctx, page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	items := make([]*dto.JobListItem, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, toJobListItem(j))
	}
	return items, total, nil
}

// Detail processing 状态的职位只对发布者和管理员可见
func (s *JobService) Detail(ctx context.Context, jobID, viewerID, viewerRole string) (*dto.JobDetail, error) {
	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	if !job.IsActive() && viewerRole != model.RoleAdmin && !job.OwnedBy(viewerID) {
		return nil, ErrJobNotFound
	}
	return toJobDetail(job), nil
}

// Mine provider 自己发布的职位，任意状态
func (s *JobService) Mine(ctx context.Context, providerID string) ([]*dto.JobListItem, error) {
	jobs, err := s.jobRepo.ListByProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	items := make([]*dto.JobListItem, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, toJobListItem(j))
	}
	return items, nil
}

// Stats 各状态职位数，管理端使用
func (s *JobService) Stats(ctx context.Context) (map[string]int64, error) {
	return s.jobRepo.CountByStatus(ctx)
}

func cleanSkills(skills []string) model.StringArray {
	seen := make(map[string]bool, len(skills))
	out := make(model.StringArray, 0, len(skills))
	for _, sk := range skills {
		sk = strings.TrimSpace(sk)
		key := strings.ToLower(sk)
		if sk == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, sk)
	}
	return out
}

func toJobListItem(j *model.JobPosting) *dto.JobListItem {
	skills := []string(j.Skills)
	if skills == nil {
		skills = []string{}
	}
	return &dto.JobListItem{
		ID:          j.ID,
		Title:       j.Title,
		CompanyName: j.CompanyName,
		Location:    j.Location,
		Skills:      skills,
		Status:      j.Status,
		Source:      j.Source,
		CreatedAt:   j.CreatedAt.Format(time.RFC3339),
	}
}

func toJobDetail(j *model.JobPosting) *dto.JobDetail {
	d := &dto.JobDetail{
		JobListItem: *toJobListItem(j),
		Description: j.Description,
		ApplyURL:    j.ApplyURL,
		ResumeGuide: j.ResumeGuide,
		PrepGuide:   j.PrepGuide,
		SalaryRange: j.SalaryRange,
	}
	if j.ActivatedAt != nil {
		d.ActivatedAt = j.ActivatedAt.Format(time.RFC3339)
	}
	return d
}
