package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"

	"github.com/qs3c/careerlane_server/config"
)

const defaultUserAgent = "Mozilla/5.0 (compatible; CareerLaneBot/1.0)"

// HTMLSource 通过 CSS 选择器抓取职位列表页与详情页
type HTMLSource struct {
	cfg            config.SourceConfig
	client         *http.Client
	entryLevelOnly bool
}

func NewHTMLSource(cfg config.SourceConfig, client *http.Client, entryLevelOnly bool) *HTMLSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	return &HTMLSource{cfg: cfg, client: client, entryLevelOnly: entryLevelOnly}
}

func (s *HTMLSource) Name() string { return s.cfg.Name }

// Fetch 列表页失败直接返回错误；单个详情页失败时该职位描述为空，由上层计入错误
func (s *HTMLSource) Fetch(ctx context.Context) ([]RawJob, error) {
	base, err := url.Parse(s.cfg.ListURL)
	if err != nil {
		return nil, fmt.Errorf("invalid list url: %w", err)
	}

	doc, err := s.document(ctx, s.cfg.ListURL)
	if err != nil {
		return nil, fmt.Errorf("fetch list %s: %w", s.cfg.ListURL, err)
	}

	var jobs []RawJob
	doc.Find(s.cfg.ItemSelector).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		if s.cfg.MaxJobs > 0 && len(jobs) >= s.cfg.MaxJobs {
			return false
		}

		title := clean(item.Find(s.cfg.TitleSelector).First().Text())
		if title == "" {
			return true
		}
		href, _ := item.Find(s.cfg.LinkSelector).First().Attr("href")
		link := resolve(base, href)

		externalID := ""
		if s.cfg.IDAttribute != "" {
			externalID, _ = item.Attr(s.cfg.IDAttribute)
		}
		if externalID == "" {
			externalID = link
		}

		job := RawJob{
			ExternalID:  strings.TrimSpace(externalID),
			Title:       title,
			CompanyName: s.cfg.CompanyName,
			ApplyURL:    link,
		}
		if s.cfg.LocationSelector != "" {
			job.Location = clean(item.Find(s.cfg.LocationSelector).First().Text())
		}
		jobs = append(jobs, job)
		return true
	})

	if s.entryLevelOnly {
		jobs = FilterEntryLevel(jobs)
	}

	for i := range jobs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if jobs[i].ApplyURL == "" {
			continue
		}
		desc, err := s.description(ctx, jobs[i].ApplyURL)
		if err != nil {
			continue
		}
		jobs[i].Description = desc
	}

	return jobs, nil
}

func (s *HTMLSource) description(ctx context.Context, pageURL string) (string, error) {
	doc, err := s.document(ctx, pageURL)
	if err != nil {
		return "", err
	}

	selector := s.cfg.DetailSelector
	if selector == "" {
		selector = "main, article, body"
	}
	sel := doc.Find(selector).First()
	sel.Find("script, style, noscript, iframe, svg, nav, footer").Remove()

	html, err := sel.Html()
	if err != nil {
		return "", err
	}
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return clean(sel.Text()), nil
	}
	return strings.TrimSpace(md), nil
}

func (s *HTMLSource) document(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 5<<20))
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
