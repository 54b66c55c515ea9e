package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs3c/careerlane_server/internal/model"
)

type ScrapeRunRepository struct {
	db *gorm.DB
}

func NewScrapeRunRepository(db *gorm.DB) *ScrapeRunRepository {
	return &ScrapeRunRepository{db: db}
}

func (r *ScrapeRunRepository) Create(ctx context.Context, run *model.ScrapeRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *ScrapeRunRepository) GetByID(ctx context.Context, id string) (*model.ScrapeRun, error) {
	var run model.ScrapeRun
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Complete 只更新仍在 running 的记录，返回 false 表示记录已是终态
func (r *ScrapeRunRepository) Complete(ctx context.Context, id string, fields map[string]interface{}) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.ScrapeRun{}).
		Where("id = ? AND status = ?", id, model.RunStatusRunning).
		Updates(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ListRecent 最近的运行记录，source 为空时返回全部来源
func (r *ScrapeRunRepository) ListRecent(ctx context.Context, source string, limit int) ([]*model.ScrapeRun, error) {
	var runs []*model.ScrapeRun
	q := r.db.WithContext(ctx)
	if source != "" {
		q = q.Where("source_name = ?", source)
	}
	err := q.Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}
