package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	xerrors "OrderMCP/internal/errors"
	"OrderMCP/internal/fallback"
	"OrderMCP/internal/llm"
	"OrderMCP/internal/upstream"
	"OrderMCP/pkg/logger"
)

// PipelineName 用于日志与指标标签。
const PipelineName = "rules"

const systemPrompt = "you are an rule filter, your task is to filter rule based on input status"

const userPromptTemplate = `rule definition is in %s, filter condition is in %s

please just output matched rule, do not include purpose and status, expected format as below

{"规则": {rule_detail}}`

// Lookup 提供订单状态与规则查询。
type Lookup interface {
	OrderStatus(ctx context.Context, orderID string) (upstream.Record, error)
	MatchedRules(ctx context.Context, purpose string) (upstream.Record, error)
}

// Resolver 根据订单状态筛选某个意图下适用的规则。
type Resolver struct {
	client llm.Client
	lookup Lookup
	log    *slog.Logger
}

// NewResolver 创建规则解析器。client 为空时始终使用 Filter。
func NewResolver(client llm.Client, lookup Lookup) *Resolver {
	return &Resolver{client: client, lookup: lookup, log: logger.Named("rules")}
}

// Resolve 依次执行 CHECK_ORDER、FETCH_RULES、FILTER。
// 订单状态服务不可达时返回错误；订单不存在与规则获取失败是正常终态。
func (r *Resolver) Resolve(ctx context.Context, orderID, purpose string) (Resolution, error) {
	log := logger.FromContext(ctx, r.log).With(slog.String("order_id", orderID), slog.String("purpose", purpose))

	order, err := r.lookup.OrderStatus(ctx, orderID)
	if err != nil {
		return Resolution{}, err
	}
	if !order.OK() {
		log.Info("order not found", slog.Int("status", order.StatusCode))
		return Resolution{Outcome: OutcomeOrderNotFound, OrderStatus: order}, nil
	}

	ruleSet, err := r.fetchRules(ctx, purpose)
	if err != nil {
		log.Warn("rule fetch failed", slog.Any("error", err))
		return Resolution{Outcome: OutcomeRulesUnavailable, OrderStatus: order}, nil
	}

	filtered, source := fallback.Run(ctx, PipelineName,
		func(ctx context.Context) (FilteredRuleSet, error) { return r.viaModel(ctx, ruleSet, order.Body) },
		func() FilteredRuleSet { return Filter(ruleSet, order.Body) },
		nil,
	)
	return Resolution{Outcome: OutcomeMatched, Rules: filtered, OrderStatus: order, Source: source}, nil
}

func (r *Resolver) fetchRules(ctx context.Context, purpose string) (RuleSet, error) {
	record, err := r.lookup.MatchedRules(ctx, purpose)
	if err != nil {
		return nil, err
	}
	if !record.OK() {
		return nil, xerrors.New(CodeRuleFetchFailure, fmt.Sprintf("规则服务返回 HTTP %d", record.StatusCode))
	}
	obj, ok := record.Object()
	if !ok || len(obj) == 0 {
		return nil, xerrors.New(CodeRuleFetchFailure, "规则为空或不是 JSON 对象")
	}
	return RuleSet(obj), nil
}

func (r *Resolver) viaModel(ctx context.Context, ruleSet RuleSet, orderBody any) (FilteredRuleSet, error) {
	if r.client == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "文本理解服务未配置")
	}
	rulesJSON, err := json.Marshal(ruleSet)
	if err != nil {
		return nil, err
	}
	statusJSON, err := json.Marshal(orderBody)
	if err != nil {
		return nil, err
	}

	raw, err := r.client.Complete(ctx, llm.Request{
		System: systemPrompt,
		User:   fmt.Sprintf(userPromptTemplate, rulesJSON, statusJSON),
	})
	if err != nil {
		return nil, err
	}
	normalized, err := llm.Normalize(raw)
	if err != nil {
		return nil, err
	}
	return selectFromModel(normalized, ruleSet)
}

// selectFromModel 只接受 {"规则": {...}} 且所有键都来自 ruleSet 的输出；
// 规则定义取自 ruleSet，模型给出的值被忽略。
func selectFromModel(normalized json.RawMessage, ruleSet RuleSet) (FilteredRuleSet, error) {
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(normalized, &wrapper); err != nil {
		return nil, fmt.Errorf("rule filter output must be an object: %w", err)
	}
	inner, ok := wrapper[WrapperKey]
	if !ok {
		return nil, fmt.Errorf("rule filter output missing %q", WrapperKey)
	}
	var selected map[string]json.RawMessage
	if err := json.Unmarshal(inner, &selected); err != nil || selected == nil {
		return nil, fmt.Errorf("%q must be an object", WrapperKey)
	}

	out := make(FilteredRuleSet, len(selected))
	for key := range selected {
		def, known := ruleSet[key]
		if !known {
			return nil, fmt.Errorf("rule filter invented key %q", key)
		}
		out[key] = def
	}
	return out, nil
}
