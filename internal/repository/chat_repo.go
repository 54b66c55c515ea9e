package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/careerlane_server/internal/model"
)

type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// CreateSession 创建会话，first 不为空时作为第一条消息一起写入
func (r *ChatRepository) CreateSession(ctx context.Context, session *model.ChatSession, first *model.ChatMessage) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if first != nil {
			session.MessageCount = 1
		}
		if err := tx.Create(session).Error; err != nil {
			return err
		}
		if first == nil {
			return nil
		}
		first.SessionID = session.ID
		first.Seq = 1
		return tx.Create(first).Error
	})
}

func (r *ChatRepository) GetSession(ctx context.Context, id string) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Append 在会话状态属于 statuses 时追加消息并分配 seq
// 计数器的 UPDATE 持有行锁，同一会话的并发追加因此串行化
// 返回 false 表示会话不存在或状态不允许
func (r *ChatRepository) Append(ctx context.Context, msg *model.ChatMessage, statuses []string) (bool, error) {
	appended := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.ChatSession{}).
			Where("id = ? AND status IN ?", msg.SessionID, statuses).
			Updates(map[string]interface{}{
				"message_count": gorm.Expr("message_count + 1"),
				"updated_at":    time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}

		if err := r.insertNext(tx, msg); err != nil {
			return err
		}
		appended = true
		return nil
	})
	return appended, err
}

// Transition 比较并交换会话状态，同时追加一条说明消息
// 返回 false 表示当前状态不是 from
func (r *ChatRepository) Transition(ctx context.Context, id, from, to string, note *model.ChatMessage) (bool, error) {
	changed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		fields := map[string]interface{}{
			"status":        to,
			"message_count": gorm.Expr("message_count + 1"),
			"updated_at":    now,
		}
		if to == model.SessionStatusClosed {
			fields["closed_at"] = now
		}

		result := tx.Model(&model.ChatSession{}).
			Where("id = ? AND status = ?", id, from).
			Updates(fields)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}

		note.SessionID = id
		if err := r.insertNext(tx, note); err != nil {
			return err
		}
		changed = true
		return nil
	})
	return changed, err
}

// insertNext 读取刚递增的计数作为 seq 写入消息，必须在事务内调用
func (r *ChatRepository) insertNext(tx *gorm.DB, msg *model.ChatMessage) error {
	var count int
	err := tx.Model(&model.ChatSession{}).
		Select("message_count").
		Where("id = ?", msg.SessionID).
		Scan(&count).Error
	if err != nil {
		return err
	}
	msg.Seq = count
	return tx.Create(msg).Error
}

// Tail 最近 n 条消息，按 seq 升序返回
func (r *ChatRepository) Tail(ctx context.Context, sessionID string, n int, includeHidden bool) ([]*model.ChatMessage, error) {
	var msgs []*model.ChatMessage
	q := r.db.WithContext(ctx).Where("session_id = ?", sessionID)
	if !includeHidden {
		q = q.Where("hidden = ?", false)
	}
	if err := q.Order("seq DESC").Limit(n).Find(&msgs).Error; err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Log 会话完整日志
func (r *ChatRepository) Log(ctx context.Context, sessionID string, includeHidden bool) ([]*model.ChatMessage, error) {
	var msgs []*model.ChatMessage
	q := r.db.WithContext(ctx).Where("session_id = ?", sessionID)
	if !includeHidden {
		q = q.Where("hidden = ?", false)
	}
	err := q.Order("seq ASC").Find(&msgs).Error
	return msgs, err
}

// ListSessions 管理端会话列表，status 为空时返回全部
func (r *ChatRepository) ListSessions(ctx context.Context, status string, page, pageSize int) ([]*model.ChatSession, int64, error) {
	var sessions []*model.ChatSession
	var total int64

	q := r.db.WithContext(ctx).Model(&model.ChatSession{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := q.Order("updated_at DESC").Offset(offset).Limit(pageSize).Find(&sessions).Error
	return sessions, total, err
}

func (r *ChatRepository) ListByUser(ctx context.Context, userID string) ([]*model.ChatSession, error) {
	var sessions []*model.ChatSession
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&sessions).Error
	return sessions, err
}
