package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/qs3c/careerlane_server/internal/model"
)

// TestUser 创建测试用户
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	n := time.Now().UnixNano()
	user := &model.User{
		Email:    fmt.Sprintf("test_%d@example.com", n),
		FullName: fmt.Sprintf("Test User %d", n%10000),
		Role:     model.RoleSeeker,
	}

	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return user
}

// WithRole 设置角色
func WithRole(role string) func(*model.User) {
	return func(u *model.User) {
		u.Role = role
	}
}

// WithResume 设置简历文本与向量
func WithResume(text string, embedding []float32) func(*model.User) {
	return func(u *model.User) {
		u.ResumeText = text
		if embedding != nil {
			v := pgvector.NewVector(embedding)
			u.ResumeEmbedding = &v
		}
	}
}

// TestJobPosting 创建测试职位，默认是未富化的 processing 状态
func TestJobPosting(t *testing.T, db *gorm.DB, opts ...func(*model.JobPosting)) *model.JobPosting {
	t.Helper()

	n := time.Now().UnixNano()
	job := &model.JobPosting{
		Source:      model.SourceDirect,
		Title:       fmt.Sprintf("Graduate Analyst %d", n%10000),
		Description: fmt.Sprintf("Analyse data and build reports. %d", n),
		CompanyName: "Acme",
		Skills:      model.StringArray{"Excel", "SQL"},
		Status:      model.JobStatusProcessing,
	}

	for _, opt := range opts {
		opt(job)
	}

	if err := db.Create(job).Error; err != nil {
		t.Fatalf("Failed to create test job: %v", err)
	}

	return job
}

// WithJobTitle 设置标题
func WithJobTitle(title string) func(*model.JobPosting) {
	return func(j *model.JobPosting) {
		j.Title = title
	}
}

// WithDescription 设置描述与内容哈希
func WithDescription(desc, hash string) func(*model.JobPosting) {
	return func(j *model.JobPosting) {
		j.Description = desc
		j.ContentHash = hash
	}
}

// WithExternal 设置来源与外部 ID
func WithExternal(source, company, externalID string) func(*model.JobPosting) {
	return func(j *model.JobPosting) {
		j.Source = source
		j.CompanyName = company
		j.ExternalID = &externalID
	}
}

// WithProvider 设置发布者
func WithProvider(providerID string) func(*model.JobPosting) {
	return func(j *model.JobPosting) {
		j.ProviderID = &providerID
	}
}

// WithSkills 设置技能
func WithSkills(skills ...string) func(*model.JobPosting) {
	return func(j *model.JobPosting) {
		j.Skills = skills
	}
}

// WithCompany 设置公司
func WithCompany(name string) func(*model.JobPosting) {
	return func(j *model.JobPosting) {
		j.CompanyName = name
	}
}

// WithLocation 设置地点
func WithLocation(location string) func(*model.JobPosting) {
	return func(j *model.JobPosting) {
		j.Location = location
	}
}

// WithSalary 设置薪资区间，需放在 Enriched 之后
func WithSalary(salary string) func(*model.JobPosting) {
	return func(j *model.JobPosting) {
		j.SalaryRange = salary
	}
}

// WithCreatedAt 设置创建时间
func WithCreatedAt(at time.Time) func(*model.JobPosting) {
	return func(j *model.JobPosting) {
		j.CreatedAt = at
	}
}

// Enriched 直接生成已激活的职位
func Enriched(embedding []float32) func(*model.JobPosting) {
	return func(j *model.JobPosting) {
		now := time.Now()
		v := pgvector.NewVector(embedding)
		j.Embedding = &v
		j.ResumeGuide = Guide("tip")
		j.PrepGuide = Guide("question")
		j.SalaryRange = "4-6 LPA"
		j.Status = model.JobStatusActive
		j.ActivatedAt = &now
	}
}

// Guide 生成 5 条内容
func Guide(prefix string) []string {
	out := make([]string, model.GuideSize)
	for i := range out {
		out[i] = fmt.Sprintf("%s %d", prefix, i+1)
	}
	return out
}

// TestSession 创建测试会话
func TestSession(t *testing.T, db *gorm.DB, userID, status string) *model.ChatSession {
	t.Helper()

	s := &model.ChatSession{UserID: userID, Status: status}
	if status == model.SessionStatusClosed {
		now := time.Now()
		s.ClosedAt = &now
	}
	if err := db.Create(s).Error; err != nil {
		t.Fatalf("Failed to create test session: %v", err)
	}
	return s
}

// TestMessages 直接写入若干条消息，seq 从当前计数往后排
func TestMessages(t *testing.T, db *gorm.DB, session *model.ChatSession, role string, contents ...string) {
	t.Helper()

	for _, c := range contents {
		session.MessageCount++
		msg := &model.ChatMessage{SessionID: session.ID, Seq: session.MessageCount, Role: role, Content: c}
		if err := db.Create(msg).Error; err != nil {
			t.Fatalf("Failed to create test message: %v", err)
		}
	}
	if err := db.Model(session).Update("message_count", session.MessageCount).Error; err != nil {
		t.Fatalf("Failed to update message count: %v", err)
	}
}

// Vec 生成指定维度的向量，前几维取给定值
func Vec(dims int, head ...float32) []float32 {
	v := make([]float32, dims)
	copy(v, head)
	return v
}
