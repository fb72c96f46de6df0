package transport

import (
	"bytes"
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	xerrors "OrderMCP/internal/errors"
	"OrderMCP/internal/observability/metrics"
	"OrderMCP/pkg/logger"
)

const (
	// DefaultAttempts 是每次调用的最大尝试次数。
	DefaultAttempts = 3
	// DefaultBackoff 是两次尝试之间的固定等待时间。
	DefaultBackoff = 100 * time.Millisecond
	// DefaultTimeout 是未配置时单次尝试的超时时间。
	DefaultTimeout = 30 * time.Second
)

// Endpoint 标识一个外部服务，并携带单次尝试的超时时间。
type Endpoint struct {
	Name    string
	URL     string
	Timeout time.Duration
}

// Response 是已完整读取的 HTTP 响应。
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK 判断响应是否为 200。
func (r *Response) OK() bool {
	return r != nil && r.StatusCode == http.StatusOK
}

// Client 在传输层失败时按固定间隔重试；任何 HTTP 响应都会原样返回。
type Client struct {
	httpClient *http.Client
	attempts   int
	backoff    time.Duration
	log        *slog.Logger
}

// Option 定义可选配置。
type Option func(*Client)

// WithHTTPClient 替换底层 HTTP 客户端。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithAttempts 覆盖最大尝试次数。
func WithAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithBackoff 覆盖重试间隔。
func WithBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.backoff = d
		}
	}
}

// WithLogger 指定日志实例。
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// New 创建带重试能力的客户端。
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		attempts:   DefaultAttempts,
		backoff:    DefaultBackoff,
		log:        logger.Named("transport"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Get 对 endpoint 发起 GET 请求，query 会追加到 URL 上。
func (c *Client) Get(ctx context.Context, ep Endpoint, query map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.URL, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "构建请求失败")
	}
	if len(query) > 0 {
		values := req.URL.Query()
		for k, v := range query {
			values.Set(k, v)
		}
		req.URL.RawQuery = values.Encode()
	}
	return c.Do(req, ep)
}

// Do 执行请求。仅在传输层失败时重试，调用方取消后立即停止。
// 重试耗尽时返回 TRANSPORT_FAILURE 错误。
func (c *Client) Do(req *http.Request, ep Endpoint) (*Response, error) {
	ctx := req.Context()
	log := logger.FromContext(ctx, c.log).With(slog.String("endpoint", ep.Name))

	body, err := snapshotBody(req)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "读取请求体失败")
	}

	timeout := ep.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			metrics.ObserveUpstreamAttempt(ep.Name, metrics.OutcomeCanceled)
			return nil, canceled(ep, err)
		}

		resp, err := c.attempt(ctx, req, body, timeout)
		if err == nil {
			metrics.ObserveUpstreamAttempt(ep.Name, metrics.OutcomeResponse)
			log.Debug("upstream responded", slog.Int("attempt", attempt), slog.Int("status", resp.StatusCode))
			return resp, nil
		}

		if ctx.Err() != nil {
			metrics.ObserveUpstreamAttempt(ep.Name, metrics.OutcomeCanceled)
			return nil, canceled(ep, ctx.Err())
		}

		lastErr = err
		metrics.ObserveUpstreamAttempt(ep.Name, metrics.OutcomeError)
		log.Warn("upstream attempt failed", slog.Int("attempt", attempt), slog.Int("max_attempts", c.attempts), slog.Any("error", err))

		if attempt < c.attempts && c.backoff > 0 {
			timer := time.NewTimer(c.backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				metrics.ObserveUpstreamAttempt(ep.Name, metrics.OutcomeCanceled)
				return nil, canceled(ep, ctx.Err())
			case <-timer.C:
			}
		}
	}

	return nil, xerrors.Wrap(xerrors.CodeTransportFailure, lastErr,
		fmt.Sprintf("%s 请求在 %d 次尝试后失败", ep.Name, c.attempts),
		xerrors.WithMetadata("endpoint", ep.Name))
}

func (c *Client) attempt(parent context.Context, req *http.Request, body []byte, timeout time.Duration) (*Response, error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	attemptReq := req.Clone(ctx)
	if body != nil {
		attemptReq.Body = io.NopCloser(bytes.NewReader(body))
		attemptReq.ContentLength = int64(len(body))
	}

	resp, err := c.httpClient.Do(attemptReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header.Clone(), Body: payload}, nil
}

func snapshotBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	return io.ReadAll(req.Body)
}

func canceled(ep Endpoint, cause error) error {
	code := xerrors.CodeTransportFailure
	if stdErrors.Is(cause, context.DeadlineExceeded) {
		code = xerrors.CodeTimeout
	}
	return xerrors.Wrap(code, cause, ep.Name+" 请求已取消",
		xerrors.WithRetryable(false),
		xerrors.WithMetadata("endpoint", ep.Name))
}
