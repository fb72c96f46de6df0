package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	xerrors "OrderMCP/internal/errors"
	"OrderMCP/internal/transport"
)

// Record 是一次查询服务调用的结果。StatusCode == 200 是订单存在的唯一依据。
type Record struct {
	StatusCode int `json:"status_code"`
	Body       any `json:"body"`
}

// OK 判断查询是否成功。
func (r Record) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Object 在 Body 为 JSON 对象时返回该对象。
func (r Record) Object() (map[string]any, bool) {
	obj, ok := r.Body.(map[string]any)
	return obj, ok
}

// Endpoints 汇总四个查询服务的地址与超时。
type Endpoints struct {
	Taxonomy    transport.Endpoint
	OrderStatus transport.Endpoint
	Rules       transport.Endpoint
	Address     transport.Endpoint
}

// Client 通过 RetryingClient 访问意图库、订单状态、规则与地址服务。
type Client struct {
	http      *transport.Client
	endpoints Endpoints
}

// NewClient 创建查询服务客户端。
func NewClient(hc *transport.Client, endpoints Endpoints) *Client {
	if hc == nil {
		hc = transport.New()
	}
	return &Client{http: hc, endpoints: endpoints}
}

// Taxonomy 获取意图库。传输失败、非 200 或非对象载荷均视为失败。
func (c *Client) Taxonomy(ctx context.Context) (map[string]any, error) {
	record, err := c.fetch(ctx, c.endpoints.Taxonomy, nil)
	if err != nil {
		return nil, err
	}
	if !record.OK() {
		return nil, xerrors.New(xerrors.CodeUpstreamStatus,
			fmt.Sprintf("获取意图库失败: HTTP %d", record.StatusCode),
			xerrors.WithMetadata("status", fmt.Sprint(record.StatusCode)))
	}
	obj, ok := record.Object()
	if !ok {
		return nil, xerrors.New(xerrors.CodeUpstreamStatus, "意图库不是 JSON 对象")
	}
	return obj, nil
}

// OrderStatus 查询订单状态。
func (c *Client) OrderStatus(ctx context.Context, orderID string) (Record, error) {
	return c.fetch(ctx, c.endpoints.OrderStatus, map[string]string{"order_id": orderID})
}

// MatchedRules 按意图查询候选规则。
func (c *Client) MatchedRules(ctx context.Context, purpose string) (Record, error) {
	return c.fetch(ctx, c.endpoints.Rules, map[string]string{"purpose": purpose})
}

// OriginalAddress 查询订单的原地址。
func (c *Client) OriginalAddress(ctx context.Context, orderID string) (Record, error) {
	return c.fetch(ctx, c.endpoints.Address, map[string]string{"order_id": orderID})
}

func (c *Client) fetch(ctx context.Context, ep transport.Endpoint, query map[string]string) (Record, error) {
	resp, err := c.http.Get(ctx, ep, query)
	if err != nil {
		return Record{}, err
	}
	return Record{StatusCode: resp.StatusCode, Body: decodeBody(resp)}, nil
}

// decodeBody 总是先尝试按 JSON 解码，与 Content-Type 无关；解码失败时保留原始文本。
func decodeBody(resp *transport.Response) any {
	var decoded any
	if err := json.Unmarshal(resp.Body, &decoded); err == nil {
		return decoded
	}
	return string(resp.Body)
}
