package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	xerrors "OrderMCP/internal/errors"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.tools.Descriptors()})
}

// handleInvokeTool 同步执行工具。成功时原样返回工具输出；失败时若工具给出了
// 失败输出则连同映射后的状态码一起返回。
func (s *Server) handleInvokeTool(w http.ResponseWriter, r *http.Request) {
	args, err := decodeArguments(r.Body)
	if err != nil {
		writeCodedError(w, err)
		return
	}

	output, err := s.tools.Invoke(r.Context(), r.PathValue("name"), args)
	if err != nil {
		if len(output) > 0 {
			writeRaw(w, statusFor(xerrors.CodeOf(err)), output)
			return
		}
		writeCodedError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, output)
}

// decodeArguments 读取 JSON 对象形式的参数，非字符串值按 JSON 文本转成字符串。
func decodeArguments(body io.Reader) (map[string]string, error) {
	payload, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "读取请求体失败")
	}
	if len(payload) == 0 {
		return map[string]string{}, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体必须是 JSON 对象")
	}
	return stringifyArguments(raw), nil
}

func stringifyArguments(raw map[string]json.RawMessage) map[string]string {
	args := make(map[string]string, len(raw))
	for key, value := range raw {
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			args[key] = s
			continue
		}
		var n json.Number
		if err := json.Unmarshal(value, &n); err == nil {
			args[key] = n.String()
			continue
		}
		if string(value) == "null" {
			continue
		}
		args[key] = string(value)
	}
	return args
}

func parseLimit(raw string) int {
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
