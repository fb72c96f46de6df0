package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	xerrors "OrderMCP/internal/errors"
)

const (
	fenceOpener = "```json"
	fenceCloser = "```"
)

// MalformedResponseError 表示模型输出无法解析为 JSON。Raw 保留原始文本便于排查。
type MalformedResponseError struct {
	Raw   string
	Cause error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed model response: %v", e.Cause)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Cause
}

// Is 让 MalformedResponseError 与 MALFORMED_RESPONSE 错误码相匹配。
func (e *MalformedResponseError) Is(target error) bool {
	t, ok := target.(*xerrors.Error)
	return ok && t.Code() == xerrors.CodeMalformedResponse
}

// Normalize 去除模型输出外层的 ```json 代码块并校验 JSON，不关心具体结构。
func Normalize(raw string) (json.RawMessage, error) {
	text := strings.TrimSpace(raw)
	if len(text) >= len(fenceOpener) && strings.EqualFold(text[:len(fenceOpener)], fenceOpener) {
		text = text[len(fenceOpener):]
	}
	text = strings.TrimSuffix(text, fenceCloser)
	text = strings.TrimSpace(text)

	if text == "" {
		return nil, &MalformedResponseError{Raw: raw, Cause: fmt.Errorf("empty content")}
	}
	if !json.Valid([]byte(text)) {
		var probe any
		err := json.Unmarshal([]byte(text), &probe)
		return nil, &MalformedResponseError{Raw: raw, Cause: err}
	}
	return json.RawMessage(text), nil
}
