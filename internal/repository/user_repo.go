package repository

import (
	"context"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/qs3c/careerlane_server/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FirstOrCreate 按 ID 查找，不存在时用给定字段创建
func (r *UserRepository) FirstOrCreate(ctx context.Context, user *model.User) (*model.User, error) {
	var found model.User
	err := r.db.WithContext(ctx).
		Where(&model.User{ID: user.ID}).
		Attrs(model.User{Email: user.Email, FullName: user.FullName, Role: user.Role}).
		FirstOrCreate(&found).Error
	if err != nil {
		return nil, err
	}
	return &found, nil
}

// UpdateResume 保存简历文本与向量，fileKey 为空时保留原文件
func (r *UserRepository) UpdateResume(ctx context.Context, id, text, fileKey string, embedding []float32, skills []string) error {
	fields := map[string]interface{}{
		"resume_text":      text,
		"resume_embedding": pgvector.NewVector(embedding),
		"updated_at":       time.Now(),
	}
	if fileKey != "" {
		fields["resume_file_key"] = fileKey
	}
	if skills != nil {
		fields["skills"] = model.StringArray(skills)
	}

	result := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *UserRepository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(fields).Error
}
