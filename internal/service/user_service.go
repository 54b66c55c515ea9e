package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/careerlane_server/config"
	"github.com/qs3c/careerlane_server/internal/model"
	"github.com/qs3c/careerlane_server/internal/model/dto"
	"github.com/qs3c/careerlane_server/internal/pkg/embedding"
	"github.com/qs3c/careerlane_server/internal/pkg/oss"
	"github.com/qs3c/careerlane_server/internal/repository"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUnsupportedFile    = errors.New("unsupported resume file type")
	ErrFileTooLarge       = errors.New("resume file is too large")
	ErrStorageUnavailable = errors.New("file storage is not configured")
)

// Identity 从 token 中得到的用户身份
type Identity struct {
	UserID string
	Email  string
	Name   string
	Role   string
}

// ResumeFile 上传的简历原文件
type ResumeFile struct {
	Data []byte
	Ext  string
}

type UserService struct {
	userRepo *repository.UserRepository
	embedder embedding.Embedder
	storage  oss.Storage
	cfg      config.ResumeConfig
	dims     int
	log      *zap.Logger
}

// NewUserService storage 可以为 nil，此时不接受文件上传
func NewUserService(
	userRepo *repository.UserRepository,
	embedder embedding.Embedder,
	storage oss.Storage,
	cfg config.ResumeConfig,
	log *zap.Logger,
) *UserService {
	if cfg.SignedURLExpiry <= 0 {
		cfg.SignedURLExpiry = 15 * time.Minute
	}
	return &UserService{
		userRepo: userRepo,
		embedder: embedder,
		storage:  storage,
		cfg:      cfg,
		dims:     embedder.Dimensions(),
		log:      log.Named("user"),
	}
}

// Profile 首次访问时按 token 中的信息建档
func (s *UserService) Profile(ctx context.Context, id Identity) (*dto.UserProfile, error) {
	user, err := s.ensure(ctx, id)
	if err != nil {
		return nil, err
	}
	return toUserProfile(user), nil
}

// UpdateResume 保存简历文本并重新向量化；file 不为空时同时上传原文件
func (s *UserService) UpdateResume(ctx context.Context, id Identity, req *dto.UpdateResumeRequest, file *ResumeFile) (*dto.UserProfile, error) {
	if file != nil {
		if !oss.AllowedResumeExt(file.Ext) {
			return nil, ErrUnsupportedFile
		}
		if s.cfg.MaxSize > 0 && int64(len(file.Data)) > s.cfg.MaxSize {
			return nil, ErrFileTooLarge
		}
		if s.storage == nil {
			return nil, ErrStorageUnavailable
		}
	}

	user, err := s.ensure(ctx, id)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(req.ResumeText)
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed resume: %w", err)
	}
	if err := embedding.CheckDimension(vec, s.dims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingDimension, err)
	}

	var fileKey string
	if file != nil {
		fileKey, err = s.storage.UploadResume(user.ID, file.Data, strings.ToLower(file.Ext))
		if err != nil {
			return nil, err
		}
	}

	var skills []string
	if req.Skills != nil {
		skills = cleanSkills(req.Skills)
	}
	if err := s.userRepo.UpdateResume(ctx, user.ID, text, fileKey, vec, skills); err != nil {
		return nil, err
	}

	// 旧文件不再引用，删除失败只记录日志
	if fileKey != "" && user.ResumeFileKey != "" && user.ResumeFileKey != fileKey {
		if err := s.storage.Delete(user.ResumeFileKey); err != nil {
			s.log.Warn("failed to delete old resume", zap.String("key", user.ResumeFileKey), zap.Error(err))
		}
	}

	updated, err := s.userRepo.GetByID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return toUserProfile(updated), nil
}

// ResumeURL 每次请求重新签发短期有效的下载链接
func (s *UserService) ResumeURL(ctx context.Context, userID string) (*dto.SignedURLResponse, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if user.ResumeFileKey == "" {
		return nil, ErrResumeMissing
	}
	if s.storage == nil {
		return nil, ErrStorageUnavailable
	}

	expires := int64(s.cfg.SignedURLExpiry / time.Second)
	url, err := s.storage.GetSignedURL(user.ResumeFileKey, expires)
	if err != nil {
		return nil, err
	}
	return &dto.SignedURLResponse{URL: url, ExpiresInSeconds: expires}, nil
}

func (s *UserService) ensure(ctx context.Context, id Identity) (*model.User, error) {
	role := id.Role
	if !model.ValidRole(role) {
		role = model.RoleSeeker
	}
	return s.userRepo.FirstOrCreate(ctx, &model.User{
		ID:       id.UserID,
		Email:    id.Email,
		FullName: id.Name,
		Role:     role,
	})
}

func toUserProfile(u *model.User) *dto.UserProfile {
	skills := []string(u.Skills)
	if skills == nil {
		skills = []string{}
	}
	return &dto.UserProfile{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      u.Role,
		Skills:    skills,
		HasResume: u.HasResume(),
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}
