package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// StatusError 非 2xx 响应
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ai provider returned status %d: %s", e.Code, e.Body)
}

// Temporary 429 与 5xx 可重试
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Client OpenAI 兼容接口的 HTTP 客户端，带限流与指数退避重试
type Client struct {
	baseURL     string
	apiKey      string
	http        *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	initialWait time.Duration
	maxWait     time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit 每秒请求数，<=0 表示不限流
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), int(math.Max(1, math.Ceil(rps))))
		}
	}
}

func WithRetry(maxRetries int, initialWait time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.initialWait = initialWait
	}
}

func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		http:        &http.Client{Timeout: 90 * time.Second},
		maxRetries:  2,
		initialWait: 500 * time.Millisecond,
		maxWait:     10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PostJSON 发送 JSON 请求并解析响应，临时错误按退避重试
func (c *Client) PostJSON(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		lastErr = c.do(ctx, path, body, out)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) || attempt == c.maxRetries {
			break
		}

		wait := time.Duration(float64(c.initialWait) * math.Pow(2, float64(attempt)))
		if wait > c.maxWait {
			wait = c.maxWait
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func (c *Client) do(ctx context.Context, path string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: truncate(string(data), 300)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
