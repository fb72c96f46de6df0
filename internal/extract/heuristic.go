package extract

import (
	"regexp"
	"strings"

	"OrderMCP/internal/fallback"
)

// 意图名称与意图库保持一致。
const (
	PurposeQueryStatus = "查询订单状态"
	PurposeCancel      = "取消订单"
	PurposeModify      = "修改订单"
)

// orderIDPatterns 按优先级排列：先匹配“订单号: xxx”一类的显式写法，最后才是长度不少于 10 的裸字母数字串。
// 空白同时包括全角空格 U+3000。英文写法的分隔符可省略，此时订单号至少包含一个数字。
var orderIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`订单号?[\s\x{3000}]*[：:][\s\x{3000}]*([A-Za-z0-9]+)`),
	regexp.MustCompile(`(?i)\border(?:[\s\x{3000}]*(?:id|no|number))?[\s\x{3000}]*[:：#][\s\x{3000}]*([A-Za-z0-9]+)`),
	regexp.MustCompile(`(?i)\border(?:[\s\x{3000}]+(?:id|no|number))?[\s\x{3000}]+([A-Za-z]*[0-9][A-Za-z0-9]*)`),
	regexp.MustCompile(`订单[\s\x{3000}]*([A-Za-z0-9]+)`),
	regexp.MustCompile(`([A-Za-z0-9]{10,})`),
}

type keywordFamily struct {
	purpose  string
	keywords []string
}

// purposeFamilies 的顺序决定多意图时的任务顺序。每个家族最多贡献一个意图。
var purposeFamilies = []keywordFamily{
	{purpose: PurposeQueryStatus, keywords: []string{"查询", "查看", "状态", "query", "view", "status"}},
	{purpose: PurposeCancel, keywords: []string{"取消", "退订", "cancel", "unsubscribe"}},
	{purpose: PurposeModify, keywords: []string{"修改", "更改", "modify", "change"}},
}

// Heuristic 是确定性的降级提取器：同样的输入总是得到同样的输出。
//
// 订单号按模式优先级累积全部匹配并去重（保留首次出现的顺序）。
// 没有订单号即为无效问题。任务数取订单号数与意图数的较大值，
// 较短的列表在越界位置重复其最后一个元素。
func Heuristic(query string) Result {
	ids := extractOrderIDs(query)
	if len(ids) == 0 {
		return Result{Source: fallback.SourceFallback}
	}

	purposes := detectPurposes(query)
	count := max(len(ids), len(purposes))

	tasks := make([]TaskRecord, count)
	for i := range tasks {
		tasks[i] = TaskRecord{
			OrderID: saturate(ids, i),
			Purpose: saturate(purposes, i),
		}
	}
	return Result{Valid: true, Tasks: tasks, Source: fallback.SourceFallback}
}

func extractOrderIDs(query string) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, pattern := range orderIDPatterns {
		for _, match := range pattern.FindAllStringSubmatch(query, -1) {
			id := match[1]
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

func detectPurposes(query string) []string {
	lowered := strings.ToLower(query)
	var purposes []string
	for _, family := range purposeFamilies {
		for _, keyword := range family.keywords {
			if strings.Contains(lowered, keyword) {
				purposes = append(purposes, family.purpose)
				break
			}
		}
	}
	if len(purposes) == 0 {
		purposes = []string{PurposeQueryStatus}
	}
	return purposes
}

// saturate 返回下标 i 处的元素，越界时返回最后一个元素。
func saturate(list []string, i int) string {
	if i < len(list) {
		return list[i]
	}
	return list[len(list)-1]
}
