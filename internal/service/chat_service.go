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
	"github.com/qs3c/careerlane_server/internal/pkg/llm"
	"github.com/qs3c/careerlane_server/internal/pkg/ws"
	"github.com/qs3c/careerlane_server/internal/repository"
)

var (
	ErrSessionNotFound   = errors.New("chat session not found")
	ErrSessionForbidden  = errors.New("chat session belongs to another user")
	ErrSessionClosed     = errors.New("chat session is closed")
	ErrInvalidTransition = errors.New("session status does not allow this transition")
	ErrSessionNotHuman   = errors.New("session is not under human control")
	ErrEmptyMessage      = errors.New("message is empty")
	ErrMessageTooLong    = errors.New("message is too long")
)

// MaxMessageChars 单条消息上限
const MaxMessageChars = 4000

// ReplyKind 处理用户消息后的结果类型
type ReplyKind string

const (
	ReplyAI          ReplyKind = "ai"
	ReplyQueued      ReplyKind = "queued"
	ReplyUnavailable ReplyKind = "unavailable"
)

// Reply 用户消息已落库，Message 只在 ReplyAI 时非空
type Reply struct {
	Kind    ReplyKind
	Message *dto.MessageItem
}

// 状态变更时写入会话日志并推送给用户的提示
const (
	noteTakeover = "A career advisor has joined the conversation."
	noteHandBack = "You are now chatting with the AI assistant again."
	noteClosed   = "This conversation has been closed."
)

// Notifier 向在线连接推送，离线时忽略
type Notifier interface {
	Push(sessionID string, msg *ws.Message) error
	CloseSession(sessionID string, code int, reason string)
}

type ChatService struct {
	chatRepo *repository.ChatRepository
	userRepo *repository.UserRepository
	jobRepo  *repository.JobRepository
	provider llm.Provider
	notifier Notifier
	cfg      config.ChatConfig
	log      *zap.Logger
}

func NewChatService(
	chatRepo *repository.ChatRepository,
	userRepo *repository.UserRepository,
	jobRepo *repository.JobRepository,
	provider llm.Provider,
	notifier Notifier,
	cfg config.ChatConfig,
	log *zap.Logger,
) *ChatService {
	if cfg.HistoryReplay <= 0 {
		cfg.HistoryReplay = 10
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 20
	}
	if cfg.ResumeContextChars <= 0 {
		cfg.ResumeContextChars = 2000
	}
	return &ChatService{
		chatRepo: chatRepo,
		userRepo: userRepo,
		jobRepo:  jobRepo,
		provider: provider,
		notifier: notifier,
		cfg:      cfg,
		log:      log.Named("chat"),
	}
}

// Greeting 空会话连接时发送的欢迎语
func (s *ChatService) Greeting() string {
	return s.cfg.Greeting
}

// CreateSession 创建会话；关联职位时先写入一条隐藏的职位上下文
func (s *ChatService) CreateSession(ctx context.Context, userID, jobID string) (*dto.SessionItem, error) {
	session := &model.ChatSession{UserID: userID, Status: model.SessionStatusAI}

	var first *model.ChatMessage
	if jobID != "" {
		job, err := s.jobRepo.GetByID(ctx, jobID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrJobNotFound
			}
			return nil, err
		}
		if !job.IsActive() {
			return nil, ErrJobNotFound
		}
		session.JobID = &job.ID
		first = &model.ChatMessage{
			Role:    model.MessageRoleSystem,
			Content: JobContext(job),
			Hidden:  true,
		}
	}

	if err := s.chatRepo.CreateSession(ctx, session, first); err != nil {
		return nil, err
	}
	s.log.Info("session created", zap.String("session_id", session.ID), zap.String("user_id", userID))
	return toSessionItem(session), nil
}

// Authorize 用户只能访问自己的会话，已关闭的会话单独返回 ErrSessionClosed
func (s *ChatService) Authorize(ctx context.Context, sessionID, userID string) (*model.ChatSession, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return session, ErrSessionForbidden
	}
	if session.IsClosed() {
		return session, ErrSessionClosed
	}
	return session, nil
}

// HandleMessage 先无条件追加用户消息，再按会话状态决定是否调用模型
func (s *ChatService) HandleMessage(ctx context.Context, sessionID, userID, text string) (*Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if len([]rune(text)) > MaxMessageChars {
		return nil, ErrMessageTooLong
	}

	if _, err := s.Authorize(ctx, sessionID, userID); err != nil {
		return nil, err
	}

	msg := &model.ChatMessage{SessionID: sessionID, Role: model.MessageRoleUser, Content: text}
	if err := s.append(ctx, msg, model.OpenSessionStatuses); err != nil {
		return nil, err
	}

	// 追加之后重新读取，接管可能就发生在这之间
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch session.Status {
	case model.SessionStatusHuman:
		return &Reply{Kind: ReplyQueued}, nil
	case model.SessionStatusClosed:
		return nil, ErrSessionClosed
	}

	answer, err := s.complete(ctx, session)
	if err != nil {
		s.log.Warn("ai reply unavailable", zap.String("session_id", sessionID), zap.Error(err))
		return &Reply{Kind: ReplyUnavailable}, nil
	}

	reply := &model.ChatMessage{SessionID: sessionID, Role: model.MessageRoleAssistant, Content: answer}
	if err := s.append(ctx, reply, model.OpenSessionStatuses); err != nil {
		return nil, err
	}
	return &Reply{Kind: ReplyAI, Message: toMessageItem(reply)}, nil
}

// AdminMessage 管理员发言，只在人工接管期间允许
func (s *ChatService) AdminMessage(ctx context.Context, sessionID, text string) (*dto.MessageItem, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	msg := &model.ChatMessage{SessionID: sessionID, Role: model.MessageRoleAdmin, Content: text}
	ok, err := s.chatRepo.Append(ctx, msg, []string{model.SessionStatusHuman})
	if err != nil {
		return nil, err
	}
	if !ok {
		session, err := s.getSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if session.IsClosed() {
			return nil, ErrSessionClosed
		}
		return nil, ErrSessionNotHuman
	}

	item := toMessageItem(msg)
	s.push(sessionID, ws.FrameAdminMessage, item)
	return item, nil
}

// Takeover active_ai → active_human
func (s *ChatService) Takeover(ctx context.Context, sessionID string) (*dto.SessionItem, error) {
	return s.transition(ctx, sessionID, model.SessionStatusAI, model.SessionStatusHuman, noteTakeover)
}

// HandBack active_human → active_ai
func (s *ChatService) HandBack(ctx context.Context, sessionID string) (*dto.SessionItem, error) {
	return s.transition(ctx, sessionID, model.SessionStatusHuman, model.SessionStatusAI, noteHandBack)
}

// Close 从任一未关闭状态进入 closed，并断开在线连接
func (s *ChatService) Close(ctx context.Context, sessionID string) (*dto.SessionItem, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	item, err := s.transition(ctx, sessionID, session.Status, model.SessionStatusClosed, noteClosed)
	if errors.Is(err, ErrInvalidTransition) && !session.IsClosed() {
		// 读取之后状态被改过，按新状态再试一次
		if session, err = s.getSession(ctx, sessionID); err != nil {
			return nil, err
		}
		item, err = s.transition(ctx, sessionID, session.Status, model.SessionStatusClosed, noteClosed)
	}
	if err != nil {
		return nil, err
	}

	s.notifier.CloseSession(sessionID, ws.CloseSessionClosed, "Session is closed")
	return item, nil
}

// RecentHistory 最近 count 条可见消息；会话不存在时返回 not_found 状态
func (s *ChatService) RecentHistory(ctx context.Context, sessionID string, count int) (*dto.HistoryResponse, error) {
	if count <= 0 {
		count = s.cfg.HistoryReplay
	}

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return &dto.HistoryResponse{Status: model.SessionStatusNotFound, Messages: []*dto.MessageItem{}}, nil
		}
		return nil, err
	}

	msgs, err := s.chatRepo.Tail(ctx, sessionID, count, false)
	if err != nil {
		return nil, err
	}
	return &dto.HistoryResponse{Status: session.Status, Messages: toMessageItems(msgs)}, nil
}

// FullLog 管理端查看完整日志，包含隐藏的上下文消息
func (s *ChatService) FullLog(ctx context.Context, sessionID string) (*dto.SessionLog, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.chatRepo.Log(ctx, sessionID, true)
	if err != nil {
		return nil, err
	}

	items := make([]*dto.LogEntry, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, &dto.LogEntry{MessageItem: *toMessageItem(m), Hidden: m.Hidden})
	}
	return &dto.SessionLog{Session: toSessionItem(session), Messages: items}, nil
}

// ListSessions 管理端按状态分页列出会话
func (s *ChatService) ListSessions(ctx context.Context, status string, page, pageSize int) ([]*dto.SessionItem, int64, error) {
	sessions, total, err := s.chatRepo.ListSessions(ctx, status, page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return toSessionItems(sessions), total, nil
}

func (s *ChatService) ListForUser(ctx context.Context, userID string) ([]*dto.SessionItem, error) {
	sessions, err := s.chatRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toSessionItems(sessions), nil
}

func (s *ChatService) transition(ctx context.Context, sessionID, from, to, text string) (*dto.SessionItem, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != from || !model.CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, session.Status, to)
	}

	note := &model.ChatMessage{Role: model.MessageRoleSystem, Content: text}
	ok, err := s.chatRepo.Transition(ctx, sessionID, from, to, note)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: status changed concurrently", ErrInvalidTransition)
	}

	s.log.Info("session status changed",
		zap.String("session_id", sessionID),
		zap.String("from", from),
		zap.String("to", to))
	s.push(sessionID, ws.FrameSystemNotification, dto.StatusNotification{
		Status:  to,
		Message: toMessageItem(note),
	})

	session, err = s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return toSessionItem(session), nil
}

// append 追加失败时区分会话不存在和已关闭
func (s *ChatService) append(ctx context.Context, msg *model.ChatMessage, statuses []string) error {
	ok, err := s.chatRepo.Append(ctx, msg, statuses)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if _, err := s.getSession(ctx, msg.SessionID); err != nil {
		return err
	}
	return ErrSessionClosed
}

func (s *ChatService) complete(ctx context.Context, session *model.ChatSession) (string, error) {
	history, err := s.chatRepo.Tail(ctx, session.ID, s.cfg.HistoryWindow, false)
	if err != nil {
		return "", err
	}

	msgs := make([]llm.Message, 0, len(history))
	for _, m := range history {
		if m.Role == model.MessageRoleSystem {
			continue
		}
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}

	ctx, cancel := withTimeout(ctx, s.cfg.AITimeout)
	defer cancel()

	answer, err := s.provider.Chat(ctx, llm.ChatRequest{
		Context: s.buildContext(ctx, session),
		History: msgs,
	})
	if err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", llm.ErrInvalidResponse
	}
	return answer, nil
}

// buildContext 用户资料、截断后的简历和职位信息；读取失败时跳过对应部分
func (s *ChatService) buildContext(ctx context.Context, session *model.ChatSession) string {
	var parts []string

	if user, err := s.userRepo.GetByID(ctx, session.UserID); err == nil {
		var b strings.Builder
		if user.FullName != "" {
			fmt.Fprintf(&b, "Candidate: %s\n", user.FullName)
		}
		if len(user.Skills) > 0 {
			fmt.Fprintf(&b, "Skills: %s\n", strings.Join(user.Skills, ", "))
		}
		if resume := truncateRunes(strings.TrimSpace(user.ResumeText), s.cfg.ResumeContextChars); resume != "" {
			fmt.Fprintf(&b, "Resume:\n%s\n", resume)
		}
		if b.Len() > 0 {
			parts = append(parts, strings.TrimRight(b.String(), "\n"))
		}
	}

	if session.JobID != nil {
		if job, err := s.jobRepo.GetByID(ctx, *session.JobID); err == nil {
			parts = append(parts, JobContext(job))
		}
	}

	return strings.Join(parts, "\n\n")
}

func (s *ChatService) push(sessionID, frame string, data interface{}) {
	_ = s.notifier.Push(sessionID, &ws.Message{Type: frame, Data: data})
}

func (s *ChatService) getSession(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	session, err := s.chatRepo.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// JobContext 职位摘要，作为对话的隐藏上下文
func JobContext(job *model.JobPosting) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job: %s at %s\n", job.Title, job.CompanyName)
	if job.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", job.Location)
	}
	if len(job.Skills) > 0 {
		fmt.Fprintf(&b, "Skills: %s\n", strings.Join(job.Skills, ", "))
	}
	if job.SalaryRange != "" {
		fmt.Fprintf(&b, "Estimated salary: %s\n", job.SalaryRange)
	}
	fmt.Fprintf(&b, "Description:\n%s", truncateRunes(job.Description, 3000))
	return b.String()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n])
}

func toSessionItem(s *model.ChatSession) *dto.SessionItem {
	item := &dto.SessionItem{
		ID:           s.ID,
		UserID:       s.UserID,
		Status:       s.Status,
		MessageCount: s.MessageCount,
		CreatedAt:    s.CreatedAt.Format(time.RFC3339),
	}
	if s.JobID != nil {
		item.JobID = *s.JobID
	}
	if s.ClosedAt != nil {
		item.ClosedAt = s.ClosedAt.Format(time.RFC3339)
	}
	return item
}

func toSessionItems(sessions []*model.ChatSession) []*dto.SessionItem {
	items := make([]*dto.SessionItem, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, toSessionItem(s))
	}
	return items
}

func toMessageItem(m *model.ChatMessage) *dto.MessageItem {
	return &dto.MessageItem{
		Seq:       m.Seq,
		Role:      m.Role,
		Content:   m.Content,
		Timestamp: m.CreatedAt.Format(time.RFC3339),
	}
}

func toMessageItems(msgs []*model.ChatMessage) []*dto.MessageItem {
	items := make([]*dto.MessageItem, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, toMessageItem(m))
	}
	return items
}
