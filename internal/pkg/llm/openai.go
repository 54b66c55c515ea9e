package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/qs3c/careerlane_server/internal/pkg/aiclient"
)

// OpenAI 兼容 /chat/completions 的实现
type OpenAI struct {
	client      *aiclient.Client
	model       string
	chatModel   string
	temperature float64
}

func NewOpenAI(client *aiclient.Client, model, chatModel string, temperature float64) *OpenAI {
	if chatModel == "" {
		chatModel = model
	}
	return &OpenAI{
		client:      client,
		model:       model,
		chatModel:   chatModel,
		temperature: temperature,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type completionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (o *OpenAI) GenerateGuides(ctx context.Context, req GuideRequest) (*Guides, error) {
	content, err := o.complete(ctx, completionRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: guideSystemPrompt},
			{Role: "user", Content: buildGuidePrompt(req)},
		},
		Temperature:    o.temperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, err
	}
	return ParseGuides(content)
}

func (o *OpenAI) Chat(ctx context.Context, req ChatRequest) (string, error) {
	messages := make([]chatMessage, 0, len(req.History)+1)
	messages = append(messages, chatMessage{Role: "system", Content: buildChatSystem(req.Context)})
	for _, m := range req.History {
		messages = append(messages, chatMessage{Role: openAIRole(m.Role), Content: m.Content})
	}

	content, err := o.complete(ctx, completionRequest{
		Model:       o.chatModel,
		Messages:    messages,
		Temperature: o.temperature,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

func (o *OpenAI) complete(ctx context.Context, req completionRequest) (string, error) {
	var resp completionResponse
	if err := o.client.PostJSON(ctx, "/chat/completions", req, &resp); err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: no choices returned", ErrInvalidResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// openAIRole admin 消息对模型来说等同 assistant 一侧的发言
func openAIRole(role string) string {
	switch role {
	case "user", "system":
		return role
	default:
		return "assistant"
	}
}
