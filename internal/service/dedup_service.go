package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/qs3c/careerlane_server/internal/model"
	"github.com/qs3c/careerlane_server/internal/repository"
)

// ErrLookupFailed 去重查询时数据库出错
var ErrLookupFailed = errors.New("dedup lookup failed")

// DecisionKind 去重结论
type DecisionKind int

const (
	DecisionNew DecisionKind = iota
	DecisionExactDuplicate
	DecisionContentDuplicate
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionExactDuplicate:
		return "exact_duplicate"
	case DecisionContentDuplicate:
		return "content_duplicate"
	default:
		return "new"
	}
}

// Candidate 待判定的职位
type Candidate struct {
	CompanyName string
	ExternalID  string
	Description string
}

// Decision ContentDuplicate 时 Donor 为可复用富化结果的职位
type Decision struct {
	Kind     DecisionKind
	Existing *model.JobPosting
	Donor    *model.JobPosting
}

// ContentHash 描述原始字节的 SHA-256，小写十六进制
func ContentHash(description string) string {
	sum := sha256.Sum256([]byte(description))
	return hex.EncodeToString(sum[:])
}

// NormalizeDescription 写入与查询前统一去掉首尾空白
func NormalizeDescription(description string) string {
	return strings.TrimSpace(description)
}

type DedupService struct {
	jobRepo *repository.JobRepository
}

func NewDedupService(jobRepo *repository.JobRepository) *DedupService {
	return &DedupService{jobRepo: jobRepo}
}

// Resolve 先按外部键精确去重，再按内容哈希寻找供体
func (s *DedupService) Resolve(ctx context.Context, c Candidate) (*Decision, error) {
	if c.ExternalID != "" {
		existing, err := s.jobRepo.GetByExternalKey(ctx, c.CompanyName, c.ExternalID)
		if err == nil {
			return &Decision{Kind: DecisionExactDuplicate, Existing: existing}, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: external key: %v", ErrLookupFailed, err)
		}
	}

	donor, err := s.FindDonor(ctx, ContentHash(NormalizeDescription(c.Description)), "")
	if err != nil {
		return nil, err
	}
	if donor != nil {
		return &Decision{Kind: DecisionContentDuplicate, Donor: donor}, nil
	}
	return &Decision{Kind: DecisionNew}, nil
}

// FindDonor 没有供体时返回 nil, nil
func (s *DedupService) FindDonor(ctx context.Context, hash, excludeJobID string) (*model.JobPosting, error) {
	donor, err := s.jobRepo.FindDonorByHash(ctx, hash, excludeJobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: content hash: %v", ErrLookupFailed, err)
	}
	return donor, nil
}
