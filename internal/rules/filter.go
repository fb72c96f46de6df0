package rules

import (
	"fmt"
	"strings"
)

var (
	cancelMarkers = []string{"cancel", "取消"}
	modifyMarkers = []string{"modify", "修改"}
	queryMarkers  = []string{"query", "查询"}
)

// Filter 是确定性的降级过滤器。默认包含所有规则，并按规则名施加覆盖：
// 含 cancel 的规则仅在状态为 pending 或 confirmed 时保留；
// 含 modify 的规则仅在状态为 pending 时保留；含 query 的规则总是保留。
// 订单载荷不是非空对象时不施加任何覆盖。
func Filter(rules RuleSet, orderBody any) FilteredRuleSet {
	out := make(FilteredRuleSet, len(rules))
	order, ok := orderBody.(map[string]any)
	if !ok || len(order) == 0 {
		for key, def := range rules {
			out[key] = def
		}
		return out
	}

	status := StatusOf(order)
	for key, def := range rules {
		if applies(key, status) {
			out[key] = def
		}
	}
	return out
}

func applies(key, status string) bool {
	lowered := strings.ToLower(key)
	switch {
	case containsAny(lowered, cancelMarkers):
		return status == "pending" || status == "confirmed"
	case containsAny(lowered, modifyMarkers):
		return status == "pending"
	case containsAny(lowered, queryMarkers):
		return true
	default:
		return true
	}
}

// StatusOf 读取订单载荷中的 status 字段，统一为小写。
func StatusOf(order map[string]any) string {
	value, ok := order["status"]
	if !ok || value == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(fmt.Sprint(value)))
}

func containsAny(s string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
