package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	xerrors "OrderMCP/internal/errors"
	"OrderMCP/internal/llm"
	"OrderMCP/internal/transport"
)

const (
	defaultBaseURL     = "https://api.siliconflow.cn/v1"
	defaultModelName   = "deepseek-ai/DeepSeek-V3"
	defaultTimeout     = 60 * time.Second
	defaultTemperature = 0.7
	defaultMaxTokens   = 2000
)

// Config 描述了调用 OpenAI 兼容 Chat Completions API 所需的信息。
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	// Temperature 为空时使用默认值 0.7，显式的 0 会被保留。
	Temperature *float64
	MaxTokens   int
}

// Client 通过 HTTP 调用 OpenAI 兼容服务。
type Client struct {
	apiKey      string
	endpoint    transport.Endpoint
	model       string
	temperature float64
	maxTokens   int
	http        *transport.Client
}

// NewClient 根据配置创建 OpenAI 客户端。hc 为空时使用默认的重试客户端。
func NewClient(cfg Config, hc *transport.Client) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, xerrors.New(xerrors.CodeConfigInvalid, "未提供 OpenAI API Key")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	temperature := defaultTemperature
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	if hc == nil {
		hc = transport.New()
	}

	return &Client{
		apiKey:      apiKey,
		endpoint:    transport.Endpoint{Name: "llm", URL: baseURL + "/chat/completions", Timeout: timeout},
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		http:        hc,
	}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

// Complete 发送 system + user 两条消息并返回第一条 choice 的文本。
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	body := chatRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	if req.Temperature > 0 {
		body.Temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = req.MaxTokens
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("序列化 OpenAI 请求失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.URL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("构建 OpenAI 请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq, c.endpoint)
	if err != nil {
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := strings.TrimSpace(string(resp.Body))
		if len(detail) > 2048 {
			detail = detail[:2048]
		}
		return "", xerrors.New(xerrors.CodeUpstreamStatus,
			fmt.Sprintf("OpenAI 返回错误状态 %d: %s", resp.StatusCode, detail),
			xerrors.WithMetadata("status", fmt.Sprint(resp.StatusCode)))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return "", xerrors.Wrap(xerrors.CodeMalformedResponse, err, "解析 OpenAI 响应失败")
	}
	if len(decoded.Choices) == 0 {
		return "", xerrors.New(xerrors.CodeMalformedResponse, "OpenAI 响应中没有有效的 choices")
	}

	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", xerrors.New(xerrors.CodeMalformedResponse, "OpenAI 响应内容为空")
	}
	return content, nil
}
