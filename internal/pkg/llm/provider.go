package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidResponse 模型输出无法解析或不符合约束
var ErrInvalidResponse = errors.New("llm: invalid response")

// Message 与具体厂商无关的对话消息
type Message struct {
	Role    string // "user", "assistant", "system"
	Content string
}

// GuideRequest 结构化生成的输入
type GuideRequest struct {
	Title       string
	CompanyName string
	Description string
	Skills      []string
}

// Guides 结构化生成的输出
type Guides struct {
	ResumeGuide []string `json:"resume_guide"`
	PrepGuide   []string `json:"prep_guide"`
	SalaryRange string   `json:"salary_range"`
	Skills      []string `json:"skills"`
}

// ChatRequest 对话补全的输入，Context 作为系统提示的补充
type ChatRequest struct {
	Context string
	History []Message
}

// Provider 文本生成服务
type Provider interface {
	GenerateGuides(ctx context.Context, req GuideRequest) (*Guides, error)
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// ValidateGuides 两份指南都必须恰好 n 条且非空，不做截断或补齐
func ValidateGuides(g *Guides, n int) error {
	if g == nil {
		return fmt.Errorf("%w: empty guides", ErrInvalidResponse)
	}
	if len(g.ResumeGuide) != n {
		return fmt.Errorf("%w: resume_guide has %d items, want %d", ErrInvalidResponse, len(g.ResumeGuide), n)
	}
	if len(g.PrepGuide) != n {
		return fmt.Errorf("%w: prep_guide has %d items, want %d", ErrInvalidResponse, len(g.PrepGuide), n)
	}
	for i := range g.ResumeGuide {
		if strings.TrimSpace(g.ResumeGuide[i]) == "" {
			return fmt.Errorf("%w: resume_guide[%d] is blank", ErrInvalidResponse, i)
		}
		if strings.TrimSpace(g.PrepGuide[i]) == "" {
			return fmt.Errorf("%w: prep_guide[%d] is blank", ErrInvalidResponse, i)
		}
	}
	return nil
}

// ParseGuides 解析模型返回的 JSON，兼容 ```json 代码块包裹
func ParseGuides(raw string) (*Guides, error) {
	raw = stripCodeFence(raw)
	var g Guides
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return &g, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
