package repository

import (
	"context"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qs3c/careerlane_server/internal/model"
)

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(ctx context.Context, job *model.JobPosting) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*model.JobPosting, error) {
	var job model.JobPosting
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// GetByExternalKey 按 (company_name, external_id) 精确查找
func (r *JobRepository) GetByExternalKey(ctx context.Context, companyName, externalID string) (*model.JobPosting, error) {
	var job model.JobPosting
	err := r.db.WithContext(ctx).
		Where("company_name = ? AND external_id = ?", companyName, externalID).
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// FindDonorByHash 查找内容相同且已有向量的职位，取最早激活的一个
func (r *JobRepository) FindDonorByHash(ctx context.Context, hash, excludeID string) (*model.JobPosting, error) {
	var job model.JobPosting
	q := r.db.WithContext(ctx).
		Where("content_hash = ? AND embedding IS NOT NULL", hash)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	err := q.Order("activated_at ASC").First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Activate 一次性写入富化结果并激活，只对 processing 状态生效
// 返回 false 表示职位不存在或已被激活
func (r *JobRepository) Activate(ctx context.Context, id string, a *model.JobArtifacts) (bool, error) {
	now := time.Now()
	fields := map[string]interface{}{
		"resume_guide": datatypes.JSONSlice[string](a.ResumeGuide),
		"prep_guide":   datatypes.JSONSlice[string](a.PrepGuide),
		"embedding":    pgvector.NewVector(a.Embedding),
		"status":       model.JobStatusActive,
		"activated_at": now,
		"updated_at":   now,
	}
	if a.SalaryRange != "" {
		fields["salary_range"] = a.SalaryRange
	}
	if len(a.Skills) > 0 {
		fields["skills"] = model.StringArray(a.Skills)
	}

	result := r.db.WithContext(ctx).Model(&model.JobPosting{}).
		Where("id = ? AND status = ?", id, model.JobStatusProcessing).
		Updates(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ListActive 对外的职位流，按创建时间倒序
func (r *JobRepository) ListActive(ctx context.Context, page, pageSize int) ([]*model.JobPosting, int64, error) {
	var jobs []*model.JobPosting
	var total int64

	q := r.db.WithContext(ctx).Model(&model.JobPosting{}).Where("status = ?", model.JobStatusActive)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := q.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&jobs).Error
	return jobs, total, err
}

// ListByProvider provider 自己发布的职位，包含 processing
func (r *JobRepository) ListByProvider(ctx context.Context, providerID string) ([]*model.JobPosting, error) {
	var jobs []*model.JobPosting
	err := r.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Order("created_at DESC").
		Find(&jobs).Error
	return jobs, err
}

// ListStuck 获取创建早于 before 仍未激活的职位
func (r *JobRepository) ListStuck(ctx context.Context, before time.Time, limit int) ([]*model.JobPosting, error) {
	var jobs []*model.JobPosting
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.JobStatusProcessing, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// CountByStatus 各状态的职位数
func (r *JobRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&model.JobPosting{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

// ListForMarket 已激活职位的统计字段，只取聚合需要的列
func (r *JobRepository) ListForMarket(ctx context.Context) ([]*model.JobPosting, error) {
	var jobs []*model.JobPosting
	err := r.db.WithContext(ctx).
		Select("title, company_name, location, salary_range, skills").
		Where("status = ?", model.JobStatusActive).
		Find(&jobs).Error
	return jobs, err
}

// TopCompanies 已激活职位最多的公司
func (r *JobRepository) TopCompanies(ctx context.Context, limit int) ([]model.CompanyCount, error) {
	var rows []model.CompanyCount
	err := r.db.WithContext(ctx).Model(&model.JobPosting{}).
		Select("company_name, COUNT(*) AS count").
		Where("status = ?", model.JobStatusActive).
		Group("company_name").
		Order("count DESC, company_name ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}
