package testutil

import (
	"context"
	"sync"

	"github.com/qs3c/careerlane_server/internal/pkg/llm"
	"github.com/qs3c/careerlane_server/internal/pkg/scraper"
)

// FakeLLM 记录调用次数的 llm.Provider
type FakeLLM struct {
	mu         sync.Mutex
	guideCalls int
	chatCalls  int

	Guides    *llm.Guides
	GuideErr  error
	GuideFunc func(req llm.GuideRequest) (*llm.Guides, error)
	ChatReply string
	ChatErr   error
	LastChat  llm.ChatRequest
}

// NewFakeLLM 默认返回合法的 5+5 指南
func NewFakeLLM() *FakeLLM {
	return &FakeLLM{
		Guides: &llm.Guides{
			ResumeGuide: Guide("tip"),
			PrepGuide:   Guide("question"),
			SalaryRange: "4-6 LPA",
			Skills:      []string{"Excel", "SQL"},
		},
		ChatReply: "Here is some advice.",
	}
}

func (f *FakeLLM) GenerateGuides(ctx context.Context, req llm.GuideRequest) (*llm.Guides, error) {
	f.mu.Lock()
	f.guideCalls++
	fn, g, err := f.GuideFunc, f.Guides, f.GuideErr
	f.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	if err != nil {
		return nil, err
	}
	cp := *g
	return &cp, nil
}

func (f *FakeLLM) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatCalls++
	f.LastChat = req
	if f.ChatErr != nil {
		return "", f.ChatErr
	}
	return f.ChatReply, nil
}

func (f *FakeLLM) GuideCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.guideCalls
}

func (f *FakeLLM) ChatCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chatCalls
}

// FakeEmbedder 按文本返回预设向量，未预设时返回首维为 1 的向量
type FakeEmbedder struct {
	mu      sync.Mutex
	calls   int
	Dims    int
	Vectors map[string][]float32
	Err     error
}

func NewFakeEmbedder(dims int) *FakeEmbedder {
	return &FakeEmbedder{Dims: dims, Vectors: make(map[string][]float32)}
}

func (f *FakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.Err != nil {
		return nil, f.Err
	}
	if v, ok := f.Vectors[text]; ok {
		return v, nil
	}
	return Vec(f.Dims, 1), nil
}

func (f *FakeEmbedder) Dimensions() int { return f.Dims }

func (f *FakeEmbedder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// FakeSource 返回固定结果的抓取源
type FakeSource struct {
	SourceName string
	Jobs       []scraper.RawJob
	Err        error
	Panic      interface{}
	// OnFetch 在返回结果前调用，用于模拟抓取过程中的取消
	OnFetch func()

	mu    sync.Mutex
	calls int
}

func (f *FakeSource) Name() string { return f.SourceName }

func (f *FakeSource) Fetch(ctx context.Context) ([]scraper.RawJob, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.OnFetch != nil {
		f.OnFetch()
	}
	if f.Panic != nil {
		panic(f.Panic)
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return append([]scraper.RawJob(nil), f.Jobs...), nil
}

func (f *FakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// FakeEnqueuer 记录入队的职位
type FakeEnqueuer struct {
	mu  sync.Mutex
	IDs []string
	Err error
}

func (f *FakeEnqueuer) Enqueue(ctx context.Context, jobID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.IDs = append(f.IDs, jobID)
	return nil
}

func (f *FakeEnqueuer) Enqueued() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.IDs...)
}

// FakeStorage 内存中的文件存储
type FakeStorage struct {
	mu      sync.Mutex
	Objects map[string][]byte
	Err     error
}

func NewFakeStorage() *FakeStorage {
	return &FakeStorage{Objects: make(map[string][]byte)}
}

func (f *FakeStorage) UploadResume(userID string, data []byte, ext string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	key := "resumes/" + userID + "/resume" + ext
	f.Objects[key] = data
	return key, nil
}

func (f *FakeStorage) GetSignedURL(objectKey string, expireSeconds ...int64) (string, error) {
	if f.Err != nil {
		return "", f.Err
	}
	return "https://storage.test/" + objectKey + "?Signature=fake", nil
}

func (f *FakeStorage) Delete(objectKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Objects, objectKey)
	return nil
}
