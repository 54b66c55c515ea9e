package dto

// CreateSessionRequest 创建会话，可关联一个职位
type CreateSessionRequest struct {
	JobID string `json:"job_id"`
}

// AdminMessageRequest 管理员接管后发送消息
type AdminMessageRequest struct {
	Content string `json:"content" binding:"required,min=1,max=4000"`
}

// SessionItem 会话信息
type SessionItem struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	JobID        string `json:"job_id,omitempty"`
	Status       string `json:"status"`
	MessageCount int    `json:"message_count"`
	CreatedAt    string `json:"created_at"`
	ClosedAt     string `json:"closed_at,omitempty"`
}

// MessageItem 会话日志中的消息
type MessageItem struct {
	Seq       int    `json:"seq"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// HistoryResponse 历史回放
type HistoryResponse struct {
	Status   string         `json:"status"`
	Messages []*MessageItem `json:"messages"`
}

// StatusNotification 会话状态变化的推送内容
type StatusNotification struct {
	Status  string       `json:"status"`
	Message *MessageItem `json:"message,omitempty"`
}

// LogEntry 管理端日志条目
type LogEntry struct {
	MessageItem
	Hidden bool `json:"hidden"`
}

// SessionLog 管理端查看的完整会话
type SessionLog struct {
	Session  *SessionItem `json:"session"`
	Messages []*LogEntry  `json:"messages"`
}

// ListSessionsQuery 管理端会话列表查询
type ListSessionsQuery struct {
	Status   string `form:"status" binding:"omitempty,oneof=active_ai active_human closed"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}
