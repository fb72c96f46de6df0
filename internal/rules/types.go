package rules

import (
	"encoding/json"

	xerrors "OrderMCP/internal/errors"
	"OrderMCP/internal/fallback"
	"OrderMCP/internal/upstream"
)

// WrapperKey 是过滤结果固定的顶层键。
const WrapperKey = "规则"

const (
	// MessageOrderNotFound 是订单不存在时返回的固定文本。
	MessageOrderNotFound = "order_id is not exist, please check"
	// MessageRulesUnavailable 是规则获取失败时返回的固定文本。
	MessageRulesUnavailable = "Failed to get matched rules"
)

const (
	CodeOrderNotFound    xerrors.Code = "ORDER_NOT_FOUND"
	CodeRuleFetchFailure xerrors.Code = "RULE_FETCH_FAILURE"
)

func init() {
	xerrors.Register(CodeOrderNotFound, xerrors.Attributes{Message: MessageOrderNotFound, Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeRuleFetchFailure, xerrors.Attributes{Message: MessageRulesUnavailable, Severity: xerrors.SeverityWarning})
}

// RuleSet 是按意图获取的规则集合：规则名到规则定义。
type RuleSet map[string]any

// FilteredRuleSet 是 RuleSet 中在当前订单状态下适用的子集。
type FilteredRuleSet map[string]any

// MarshalJSON 总是输出 {"规则": {...}}。
func (f FilteredRuleSet) MarshalJSON() ([]byte, error) {
	inner := map[string]any(f)
	if inner == nil {
		inner = map[string]any{}
	}
	return json.Marshal(map[string]any{WrapperKey: inner})
}

// Outcome 是规则解析的终态。
type Outcome string

const (
	OutcomeMatched          Outcome = "matched"
	OutcomeOrderNotFound    Outcome = "order_not_found"
	OutcomeRulesUnavailable Outcome = "rules_unavailable"
)

// Resolution 是一次规则解析的结果。
type Resolution struct {
	Outcome     Outcome
	Rules       FilteredRuleSet
	OrderStatus upstream.Record
	Source      fallback.Source
}

// Code 返回非匹配终态对应的错误码，匹配时为空。
func (r Resolution) Code() xerrors.Code {
	switch r.Outcome {
	case OutcomeOrderNotFound:
		return CodeOrderNotFound
	case OutcomeRulesUnavailable:
		return CodeRuleFetchFailure
	}
	return ""
}

// MarshalJSON 按终态输出线上格式。
func (r Resolution) MarshalJSON() ([]byte, error) {
	switch r.Outcome {
	case OutcomeOrderNotFound:
		return json.Marshal(struct {
			Success     bool            `json:"success"`
			Result      string          `json:"result"`
			OrderStatus upstream.Record `json:"order_status"`
		}{Success: false, Result: MessageOrderNotFound, OrderStatus: r.OrderStatus})
	case OutcomeRulesUnavailable:
		return json.Marshal(map[string]string{"error": MessageRulesUnavailable})
	default:
		return json.Marshal(r.Rules)
	}
}
