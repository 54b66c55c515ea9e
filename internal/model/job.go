package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 职位状态
const (
	JobStatusProcessing = "processing"
	JobStatusActive     = "active"
)

// SourceDirect 表示由 provider 直接提交的职位
const SourceDirect = "direct"

// GuideSize 简历建议与面试题的固定条数
const GuideSize = 5

// EmbeddingDimensions 必须和 job_postings.embedding、users.resume_embedding 的 vector(384) 一致
const EmbeddingDimensions = 384

type JobPosting struct {
	ID          string                      `gorm:"type:uuid;primaryKey" json:"id"`
	ProviderID  *string                     `gorm:"type:uuid;index" json:"provider_id,omitempty"`
	Source      string                      `gorm:"size:50;not null;default:direct" json:"source"`
	Title       string                      `gorm:"size:300;not null" json:"title"`
	Description string                      `gorm:"type:text;not null" json:"description"`
	Skills      StringArray                 `gorm:"type:json" json:"skills"`
	Status      string                      `gorm:"size:20;not null;default:processing;index" json:"status"`
	CompanyName string                      `gorm:"size:200;not null;uniqueIndex:idx_job_external" json:"company_name"`
	ExternalID  *string                     `gorm:"size:200;uniqueIndex:idx_job_external" json:"external_id,omitempty"`
	ApplyURL    string                      `gorm:"size:1000" json:"apply_url,omitempty"`
	Location    string                      `gorm:"size:200" json:"location,omitempty"`
	ContentHash string                      `gorm:"size:64;index" json:"-"`
	ResumeGuide datatypes.JSONSlice[string] `json:"resume_guide,omitempty"`
	PrepGuide   datatypes.JSONSlice[string] `json:"prep_guide,omitempty"`
	SalaryRange string                      `gorm:"size:100" json:"salary_range,omitempty"`
	Embedding   *pgvector.Vector            `gorm:"type:vector(384)" json:"-"`
	CreatedAt   time.Time                   `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
	ActivatedAt *time.Time                  `json:"activated_at,omitempty"`
}

func (JobPosting) TableName() string {
	return "job_postings"
}

func (j *JobPosting) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	return nil
}

// IsActive 是否对外可见
func (j *JobPosting) IsActive() bool {
	return j.Status == JobStatusActive
}

// IsEnriched 嵌入向量与两份指南都已生成
func (j *JobPosting) IsEnriched() bool {
	return j.Embedding != nil && len(j.ResumeGuide) == GuideSize && len(j.PrepGuide) == GuideSize
}

// OwnedBy 判断 provider 是否为职位所有者
func (j *JobPosting) OwnedBy(userID string) bool {
	return j.ProviderID != nil && *j.ProviderID == userID
}

// JobArtifacts 一次激活写入的全部富化结果
type JobArtifacts struct {
	ResumeGuide []string
	PrepGuide   []string
	Embedding   []float32
	SalaryRange string
	Skills      []string
}

// CompanyCount 按公司聚合的职位数
type CompanyCount struct {
	CompanyName string
	Count       int64
}
