package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"gorm.io/gorm"

	"github.com/qs3c/careerlane_server/config"
	"github.com/qs3c/careerlane_server/internal/model"
	"github.com/qs3c/careerlane_server/internal/model/dto"
	"github.com/qs3c/careerlane_server/internal/repository"
)

var (
	ErrDimensionMismatch = errors.New("vector dimensions do not match")
	ErrResumeMissing     = errors.New("resume has not been uploaded")
	ErrJobNotEnriched    = errors.New("job is still being processed")
)

// DefaultGapThreshold 低于该分数视为存在差距
const DefaultGapThreshold = 0.70

// Score 余弦相似度，结果限定在 [0,1]
func Score(u, j []float32) (float64, error) {
	if len(u) != len(j) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(u), len(j))
	}

	var dot, nu, nj float64
	for i := range u {
		a, b := float64(u[i]), float64(j[i])
		dot += a * b
		nu += a * a
		nj += b * b
	}
	if nu == 0 || nj == 0 {
		return 0, nil
	}

	s := dot / (math.Sqrt(nu) * math.Sqrt(nj))
	switch {
	case s < 0:
		s = 0
	case s > 1:
		s = 1
	}
	return s, nil
}

type MatchService struct {
	userRepo  *repository.UserRepository
	jobRepo   *repository.JobRepository
	threshold float64
}

func NewMatchService(userRepo *repository.UserRepository, jobRepo *repository.JobRepository, cfg config.MatchConfig) *MatchService {
	threshold := cfg.GapThreshold
	if threshold <= 0 {
		threshold = DefaultGapThreshold
	}
	return &MatchService{userRepo: userRepo, jobRepo: jobRepo, threshold: threshold}
}

// Match 计算简历与职位的匹配度，不落库
func (s *MatchService) Match(ctx context.Context, userID, jobID string) (*dto.MatchResult, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrResumeMissing
		}
		return nil, err
	}
	if !user.HasResume() {
		return nil, ErrResumeMissing
	}

	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	if !job.IsActive() || job.Embedding == nil {
		return nil, ErrJobNotEnriched
	}

	score, err := Score(user.ResumeEmbedding.Slice(), job.Embedding.Slice())
	if err != nil {
		return nil, err
	}

	result := &dto.MatchResult{
		JobID:           job.ID,
		SimilarityScore: score,
		GapDetected:     score < s.threshold,
	}
	if result.GapDetected {
		result.MissingSkills = MissingSkills(job.Skills, user.ResumeText)
	}
	return result, nil
}

// MissingSkills 职位技能中没有在简历文本里出现的部分（忽略大小写，按词匹配）
func MissingSkills(skills model.StringArray, resumeText string) []string {
	text := strings.ToLower(resumeText)
	var missing []string
	for _, skill := range skills {
		skill = strings.TrimSpace(skill)
		if skill == "" {
			continue
		}
		re, err := regexp.Compile(`(^|[^\pL\pN])` + regexp.QuoteMeta(strings.ToLower(skill)) + `($|[^\pL\pN])`)
		if err != nil || !re.MatchString(text) {
			missing = append(missing, skill)
		}
	}
	return missing
}
