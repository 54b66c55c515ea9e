package scraper

import "context"

// RawJob 抓取到的原始职位
type RawJob struct {
	ExternalID  string
	Title       string
	Description string
	CompanyName string
	ApplyURL    string
	Location    string
	Skills      []string
}

// Source 一个招聘站点
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]RawJob, error)
}

// FuncSource 用函数实现 Source，便于组合与测试
type FuncSource struct {
	SourceName string
	FetchFunc  func(ctx context.Context) ([]RawJob, error)
}

func (f *FuncSource) Name() string { return f.SourceName }

func (f *FuncSource) Fetch(ctx context.Context) ([]RawJob, error) {
	return f.FetchFunc(ctx)
}
