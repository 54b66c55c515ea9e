package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 会话状态
//
//	active_ai ──takeover──► active_human
//	    ▲                        │
//	    └────────handback────────┘
//	任一状态 ──close──► closed（终态）
const (
	SessionStatusAI     = "active_ai"
	SessionStatusHuman  = "active_human"
	SessionStatusClosed = "closed"
)

// SessionStatusNotFound 仅用于历史回放时标记会话不存在，不会落库
const SessionStatusNotFound = "not_found"

// 消息角色
const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
	MessageRoleAdmin     = "admin"
	MessageRoleSystem    = "system"
)

var sessionTransitions = map[string][]string{
	SessionStatusAI:    {SessionStatusHuman, SessionStatusClosed},
	SessionStatusHuman: {SessionStatusAI, SessionStatusClosed},
}

// CanTransition 判断会话状态迁移是否合法
func CanTransition(from, to string) bool {
	for _, s := range sessionTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// OpenSessionStatuses 未关闭的状态
var OpenSessionStatuses = []string{SessionStatusAI, SessionStatusHuman}

type ChatSession struct {
	ID           string     `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       string     `gorm:"type:uuid;not null;index" json:"user_id"`
	JobID        *string    `gorm:"type:uuid;index" json:"job_id,omitempty"`
	Status       string     `gorm:"size:20;not null;default:active_ai;index" json:"status"`
	MessageCount int        `gorm:"not null;default:0" json:"message_count"`
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}

func (s *ChatSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

func (s *ChatSession) IsClosed() bool {
	return s.Status == SessionStatusClosed
}

// ChatMessage 会话日志中的一条消息，追加后不可修改
type ChatMessage struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"type:uuid;not null;uniqueIndex:idx_chat_message_seq" json:"session_id"`
	Seq       int       `gorm:"not null;uniqueIndex:idx_chat_message_seq" json:"seq"`
	Role      string    `gorm:"size:20;not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Hidden    bool      `gorm:"not null;default:false" json:"-"`
	CreatedAt time.Time `json:"timestamp"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
