package scraper

import (
	"net/http"

	"github.com/qs3c/careerlane_server/config"
)

// Registry 按配置顺序保存启用的抓取源
type Registry struct {
	sources map[string]Source
	order   []string
}

func NewRegistry(sources ...Source) *Registry {
	r := &Registry{sources: make(map[string]Source)}
	for _, s := range sources {
		r.Add(s)
	}
	return r
}

// FromConfig 为每个启用的站点创建 HTMLSource
func FromConfig(cfg config.IngestionConfig, client *http.Client) *Registry {
	r := NewRegistry()
	for _, sc := range cfg.Sources {
		if !sc.Enabled {
			continue
		}
		r.Add(NewHTMLSource(sc, client, cfg.EntryLevelOnly))
	}
	return r
}

// Add 同名覆盖
func (r *Registry) Add(s Source) {
	if _, ok := r.sources[s.Name()]; !ok {
		r.order = append(r.order, s.Name())
	}
	r.sources[s.Name()] = s
}

func (r *Registry) Get(name string) (Source, bool) {
	s, ok := r.sources[name]
	return s, ok
}

func (r *Registry) All() []Source {
	out := make([]Source, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.sources[name])
	}
	return out
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}
