package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/qs3c/careerlane_server/config"
	"github.com/qs3c/careerlane_server/internal/pkg/aiclient"
)

// NewProvider 按配置创建文本生成服务
func NewProvider(ctx context.Context, cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "openai":
		client := aiclient.New(cfg.BaseURL, cfg.APIKey,
			aiclient.WithRateLimit(cfg.RequestsPerSecond),
			aiclient.WithRetry(cfg.MaxRetries, 500*time.Millisecond),
		)
		return NewOpenAI(client, cfg.Model, cfg.ChatModel, cfg.Temperature), nil
	case "vertex":
		return NewVertex(ctx, cfg.VertexProject, cfg.VertexLocation, cfg.Model, cfg.Temperature)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
