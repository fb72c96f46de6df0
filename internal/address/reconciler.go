package address

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	xerrors "OrderMCP/internal/errors"
	"OrderMCP/internal/fallback"
	"OrderMCP/internal/llm"
	"OrderMCP/internal/upstream"
	"OrderMCP/pkg/logger"
)

// PipelineName 用于日志与指标标签。
const PipelineName = "address"

const systemPrompt = "你是一个地址检查助手"

const userPromptTemplate = `请提取%s中的地址，并检查是否和%s是指代相同的地址，

输出的结果只包含下面两种情况，不要包括中间思考信息和其他任何内容

如果相同，返回

"待更改地址与原地址相同，无需更改"

如果不同，返回

"地址更新，将尝试拦截订单，并转人工客服处理"。
`

// Lookup 提供订单原地址查询。
type Lookup interface {
	OriginalAddress(ctx context.Context, orderID string) (upstream.Record, error)
}

// Reconciler 核对客户提供的新地址与订单原地址是否一致。
type Reconciler struct {
	client llm.Client
	lookup Lookup
	log    *slog.Logger
}

// NewReconciler 创建地址核对器。client 为空时始终使用规则比对。
func NewReconciler(client llm.Client, lookup Lookup) *Reconciler {
	return &Reconciler{client: client, lookup: lookup, log: logger.Named("address")}
}

// Reconcile 查询原地址并比对。原地址服务不可达时返回错误；
// 非 200 响应得到 OutcomeError。
func (r *Reconciler) Reconcile(ctx context.Context, orderID, newAddress string) (Comparison, error) {
	log := logger.FromContext(ctx, r.log).With(slog.String("order_id", orderID))

	record, err := r.lookup.OriginalAddress(ctx, orderID)
	if err != nil {
		return Comparison{}, err
	}
	if !record.OK() {
		log.Info("address lookup rejected", slog.Int("status", record.StatusCode))
		return Comparison{
			Outcome: OutcomeError,
			Detail:  fmt.Sprintf("Failed to get original address: HTTP %d", record.StatusCode),
			Lookup:  record,
		}, nil
	}

	result, source := fallback.Run(ctx, PipelineName,
		func(ctx context.Context) (Comparison, error) { return r.viaModel(ctx, record.Body, newAddress) },
		func() Comparison { return verdict(Similar(ExtractAddress(record.Body), newAddress)) },
		nil,
	)
	result.Source = source
	result.Lookup = record
	log.Debug("address compared", slog.String("outcome", string(result.Outcome)), slog.String("source", string(source)))
	return result, nil
}

func (r *Reconciler) viaModel(ctx context.Context, body any, newAddress string) (Comparison, error) {
	if r.client == nil {
		return Comparison{}, xerrors.New(xerrors.CodeInitializationFailure, "文本理解服务未配置")
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Comparison{}, err
	}
	raw, err := r.client.Complete(ctx, llm.Request{
		System: systemPrompt,
		User:   fmt.Sprintf(userPromptTemplate, payload, newAddress),
	})
	if err != nil {
		return Comparison{}, err
	}
	return parseVerdict(raw)
}

// parseVerdict 接受 JSON 字符串形式的固定文本，或未加引号的固定文本本身。
func parseVerdict(raw string) (Comparison, error) {
	if c, ok := matchSentence(raw); ok {
		return c, nil
	}
	normalized, err := llm.Normalize(raw)
	if err != nil {
		return Comparison{}, err
	}
	var sentence string
	if err := json.Unmarshal(normalized, &sentence); err != nil {
		return Comparison{}, fmt.Errorf("address verdict must be a JSON string: %w", err)
	}
	if c, ok := matchSentence(sentence); ok {
		return c, nil
	}
	return Comparison{}, fmt.Errorf("unexpected address verdict %q", sentence)
}

func matchSentence(text string) (Comparison, bool) {
	text = strings.TrimRight(strings.TrimSpace(text), "。")
	switch text {
	case SentenceUnchanged:
		return verdict(true), true
	case SentenceChanged:
		return verdict(false), true
	}
	return Comparison{}, false
}
