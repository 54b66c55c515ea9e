package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// 用户角色
const (
	RoleSeeker   = "seeker"
	RoleProvider = "provider"
	RoleAdmin    = "admin"
)

type User struct {
	ID              string           `gorm:"type:uuid;primaryKey" json:"id"`
	Email           string           `gorm:"size:200;index" json:"email"`
	FullName        string           `gorm:"size:200" json:"full_name"`
	Role            string           `gorm:"size:20;not null;default:seeker" json:"role"`
	ResumeText      string           `gorm:"type:text" json:"-"`
	ResumeFileKey   string           `gorm:"size:500" json:"-"`
	ResumeEmbedding *pgvector.Vector `gorm:"type:vector(384)" json:"-"`
	Skills          StringArray      `gorm:"type:json" json:"skills"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// HasResume 是否已上传并完成向量化
func (u *User) HasResume() bool {
	return u.ResumeEmbedding != nil
}

// ValidRole 校验角色取值
func ValidRole(role string) bool {
	switch role {
	case RoleSeeker, RoleProvider, RoleAdmin:
		return true
	}
	return false
}
