package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 抓取运行状态
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusPartial = "partial"
	RunStatusFailed  = "failed"
)

// ScrapeRun 记录一次单源抓取的生命周期，只用于观测，不参与调度互斥
type ScrapeRun struct {
	ID           string     `gorm:"type:uuid;primaryKey" json:"id"`
	SourceName   string     `gorm:"size:100;not null;index" json:"source_name"`
	Status       string     `gorm:"size:20;not null;default:running;index" json:"status"`
	Found        int        `gorm:"not null;default:0" json:"found"`
	New          int        `gorm:"not null;default:0" json:"new"`
	Skipped      int        `gorm:"not null;default:0" json:"skipped"`
	DedupHits    int        `gorm:"not null;default:0" json:"dedup_hits"`
	Errors       int        `gorm:"not null;default:0" json:"errors"`
	ErrorMessage string     `gorm:"type:text" json:"error_message,omitempty"`
	Trace        string     `gorm:"type:text" json:"trace,omitempty"`
	StartedAt    time.Time  `gorm:"not null;index" json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	DurationMS   int64      `json:"duration_ms,omitempty"`
}

func (ScrapeRun) TableName() string {
	return "scrape_runs"
}

func (r *ScrapeRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// IsTerminal 终态不可再变更
func (r *ScrapeRun) IsTerminal() bool {
	return r.Status == RunStatusSuccess || r.Status == RunStatusPartial || r.Status == RunStatusFailed
}
