package tools

import (
	"context"
	"encoding/json"

	"OrderMCP/internal/address"
	"OrderMCP/internal/extract"
	"OrderMCP/internal/fallback"
	"OrderMCP/internal/rules"
	"OrderMCP/internal/upstream"
)

// 工具名称。
const (
	ToolExtractTasks       = "extract_tasks"
	ToolSimulateExtraction = "simulate_task_extraction"
	ToolOrderCategories    = "get_order_categories"
	ToolResolveRules       = "resolve_rules"
	ToolFetchOrderStatus   = "fetch_order_status"
	ToolFetchMatchedRules  = "fetch_matched_rules"
	ToolReconcileAddress   = "reconcile_address"
	ToolInterceptOrder     = "intercept_order"
	ToolLiveChatSupport    = "live_chat_support"
)

const (
	apologyCategories = "Failed to fetch categories"
	apologyRules      = "An error occurred while processing the request"
	apologyAddress    = "地址检查过程中发生错误，请稍后重试"
)

// Extractor 提取订单任务。
type Extractor interface {
	Extract(ctx context.Context, query string) (extract.Result, error)
}

// RuleResolver 解析适用规则。
type RuleResolver interface {
	Resolve(ctx context.Context, orderID, purpose string) (rules.Resolution, error)
}

// AddressReconciler 核对地址。
type AddressReconciler interface {
	Reconcile(ctx context.Context, orderID, newAddress string) (address.Comparison, error)
}

// Lookup 直接暴露给编排方的查询服务。
type Lookup interface {
	Taxonomy(ctx context.Context) (map[string]any, error)
	OrderStatus(ctx context.Context, orderID string) (upstream.Record, error)
	MatchedRules(ctx context.Context, purpose string) (upstream.Record, error)
}

// Deps 汇总内置工具依赖的组件。
type Deps struct {
	Extractor Extractor
	Rules     RuleResolver
	Address   AddressReconciler
	Lookup    Lookup
}

// sourced 在输出中隐藏结果来源，只用于审计日志。
type sourced struct {
	value  any
	source fallback.Source
}

func (s sourced) MarshalJSON() ([]byte, error) { return json.Marshal(s.value) }

func (s sourced) PathSource() string { return string(s.source) }

// RegisterBuiltins 注册全部内置工具。
func RegisterBuiltins(r *Registry, d Deps) error {
	builtins := []struct {
		descriptor Descriptor
		handler    Handler
	}{
		{
			descriptor: Descriptor{
				Name:        ToolExtractTasks,
				Description: "从用户查询中提取订单任务信息（订单号与意图）",
				Parameters:  []string{"query"},
				AllowBlank:  []string{"query"},
				Apology:     apologyCategories,
			},
			handler: func(ctx context.Context, args map[string]string) (any, error) {
				res, err := d.Extractor.Extract(ctx, args["query"])
				if err != nil {
					return nil, err
				}
				return sourced{value: res, source: res.Source}, nil
			},
		},
		{
			descriptor: Descriptor{
				Name:        ToolSimulateExtraction,
				Description: "仅使用规则提取订单任务，不调用文本理解服务",
				Parameters:  []string{"query"},
				AllowBlank:  []string{"query"},
			},
			handler: func(_ context.Context, args map[string]string) (any, error) {
				res := extract.Heuristic(args["query"])
				return sourced{value: res, source: res.Source}, nil
			},
		},
		{
			descriptor: Descriptor{
				Name:        ToolOrderCategories,
				Description: "获取订单意图分类",
				Apology:     apologyCategories,
			},
			handler: func(ctx context.Context, _ map[string]string) (any, error) {
				return d.Lookup.Taxonomy(ctx)
			},
		},
		{
			descriptor: Descriptor{
				Name:        ToolResolveRules,
				Description: "根据订单ID和查询目的获取当前订单状态下适用的规则",
				Parameters:  []string{"order_id", "purpose"},
				Apology:     apologyRules,
			},
			handler: func(ctx context.Context, args map[string]string) (any, error) {
				res, err := d.Rules.Resolve(ctx, args["order_id"], args["purpose"])
				if err != nil {
					return nil, err
				}
				return sourced{value: res, source: res.Source}, nil
			},
		},
		{
			descriptor: Descriptor{
				Name:        ToolFetchOrderStatus,
				Description: "获取指定订单的状态信息",
				Parameters:  []string{"order_id"},
				Apology:     apologyRules,
			},
			handler: func(ctx context.Context, args map[string]string) (any, error) {
				return d.Lookup.OrderStatus(ctx, args["order_id"])
			},
		},
		{
			descriptor: Descriptor{
				Name:        ToolFetchMatchedRules,
				Description: "根据查询目的获取匹配的规则",
				Parameters:  []string{"purpose"},
				Apology:     apologyRules,
			},
			handler: func(ctx context.Context, args map[string]string) (any, error) {
				return d.Lookup.MatchedRules(ctx, args["purpose"])
			},
		},
		{
			descriptor: Descriptor{
				Name:        ToolReconcileAddress,
				Description: "检查待更改地址是否与订单原地址相同",
				Parameters:  []string{"order_id", "new_address"},
				Apology:     apologyAddress,
			},
			handler: func(ctx context.Context, args map[string]string) (any, error) {
				res, err := d.Address.Reconcile(ctx, args["order_id"], args["new_address"])
				if err != nil {
					return nil, err
				}
				return sourced{value: res, source: res.Source}, nil
			},
		},
		{
			descriptor: Descriptor{
				Name:        ToolInterceptOrder,
				Description: "请求拦截订单",
				Parameters:  []string{"order_id"},
			},
			handler: func(_ context.Context, args map[string]string) (any, error) {
				return "intercept order " + args["order_id"] + " has requested", nil
			},
		},
		{
			descriptor: Descriptor{
				Name:        ToolLiveChatSupport,
				Description: "转人工客服",
			},
			handler: func(context.Context, map[string]string) (any, error) {
				return "We will transfer you to a live support", nil
			},
		},
	}

	for _, b := range builtins {
		if err := r.Register(b.descriptor, b.handler); err != nil {
			return err
		}
	}
	return nil
}
