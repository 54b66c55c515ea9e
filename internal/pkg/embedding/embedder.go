package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/qs3c/careerlane_server/internal/pkg/aiclient"
)

// ErrDimension 返回向量维度与配置不一致
var ErrDimension = errors.New("embedding: unexpected dimension")

// Embedder 文本向量化服务
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// OpenAI 兼容 /embeddings 接口，通过 dimensions 参数压缩到固定维度
type OpenAI struct {
	client        *aiclient.Client
	model         string
	dimensions    int
	maxInputChars int
}

func NewOpenAI(client *aiclient.Client, model string, dimensions, maxInputChars int) *OpenAI {
	if maxInputChars <= 0 {
		maxInputChars = 8000
	}
	return &OpenAI{
		client:        client,
		model:         model,
		dimensions:    dimensions,
		maxInputChars: maxInputChars,
	}
}

type embeddingRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (o *OpenAI) Dimensions() int { return o.dimensions }

func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("embedding: empty input")
	}
	if r := []rune(text); len(r) > o.maxInputChars {
		text = string(r[:o.maxInputChars])
	}

	var resp embeddingResponse
	err := o.client.PostJSON(ctx, "/embeddings", embeddingRequest{
		Model:      o.model,
		Input:      text,
		Dimensions: o.dimensions,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding: empty response")
	}

	vec := resp.Data[0].Embedding
	if err := CheckDimension(vec, o.dimensions); err != nil {
		return nil, err
	}
	return vec, nil
}

// CheckDimension 维度不符按校验失败处理，不做截断或补零
func CheckDimension(vec []float32, want int) error {
	if len(vec) != want {
		return fmt.Errorf("%w: got %d, want %d", ErrDimension, len(vec), want)
	}
	return nil
}
