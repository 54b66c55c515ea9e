package llm

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// Vertex 使用 Vertex AI Gemini
type Vertex struct {
	client      *genai.Client
	modelName   string
	temperature float32
}

func NewVertex(ctx context.Context, projectID, location, modelName string, temperature float64) (*Vertex, error) {
	c, err := genai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &Vertex{client: c, modelName: modelName, temperature: float32(temperature)}, nil
}

func (v *Vertex) Close() error { return v.client.Close() }

// model 每次调用新建，GenerativeModel 的配置字段不是并发安全的
func (v *Vertex) model(system string) *genai.GenerativeModel {
	m := v.client.GenerativeModel(v.modelName)
	m.SetTemperature(v.temperature)
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	return m
}

func (v *Vertex) GenerateGuides(ctx context.Context, req GuideRequest) (*Guides, error) {
	m := v.model(guideSystemPrompt)
	m.ResponseMIMEType = "application/json"

	resp, err := m.GenerateContent(ctx, genai.Text(buildGuidePrompt(req)))
	if err != nil {
		return nil, fmt.Errorf("gemini generate failed: %w", err)
	}
	text := responseText(resp)
	if text == "" {
		return nil, fmt.Errorf("%w: empty gemini response", ErrInvalidResponse)
	}
	return ParseGuides(text)
}

func (v *Vertex) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if len(req.History) == 0 {
		return "", fmt.Errorf("%w: empty history", ErrInvalidResponse)
	}

	cs := v.model(buildChatSystem(req.Context)).StartChat()
	last := req.History[len(req.History)-1]
	for _, m := range req.History[:len(req.History)-1] {
		role := "model"
		if m.Role == "user" {
			role = "user"
		}
		cs.History = append(cs.History, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}

	resp, err := cs.SendMessage(ctx, genai.Text(last.Content))
	if err != nil {
		return "", fmt.Errorf("gemini chat failed: %w", err)
	}
	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("%w: empty gemini response", ErrInvalidResponse)
	}
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		break
	}
	return strings.TrimSpace(b.String())
}
