package address

import (
	"encoding/json"

	"OrderMCP/internal/fallback"
	"OrderMCP/internal/upstream"
)

// 固定返回文本，属于线上契约。
const (
	SentenceUnchanged   = "待更改地址与原地址相同，无需更改"
	SentenceChanged     = "地址更新，将尝试拦截订单，并转人工客服处理"
	MessageLookupFailed = "无法获取原地址信息，请检查订单ID"
)

// Outcome 是地址比对的结果。
type Outcome string

const (
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeChanged   Outcome = "changed"
	OutcomeError     Outcome = "error"
)

// Comparison 是一次地址核对的结果。Escalate 为 true 表示需要拦截订单并转人工。
type Comparison struct {
	Outcome  Outcome
	Sentence string
	Escalate bool
	Detail   string
	Lookup   upstream.Record
	Source   fallback.Source
}

func verdict(same bool) Comparison {
	if same {
		return Comparison{Outcome: OutcomeUnchanged, Sentence: SentenceUnchanged}
	}
	return Comparison{Outcome: OutcomeChanged, Sentence: SentenceChanged, Escalate: true}
}

// MarshalJSON 比对成功时输出固定文本的 JSON 字符串，查询失败时输出错误对象。
func (c Comparison) MarshalJSON() ([]byte, error) {
	if c.Outcome == OutcomeError {
		return json.Marshal(struct {
			Success     bool            `json:"success"`
			Error       string          `json:"error"`
			Result      string          `json:"result"`
			APIResponse upstream.Record `json:"api_response"`
		}{Success: false, Error: c.Detail, Result: MessageLookupFailed, APIResponse: c.Lookup})
	}
	return json.Marshal(c.Sentence)
}
