package api

import (
	"encoding/json"
	"net/http"

	xerrors "OrderMCP/internal/errors"
	"OrderMCP/internal/task"
	"OrderMCP/internal/tools"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, body json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func writeCodedError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	writeError(w, statusFor(code), string(code), err.Error())
}

// statusFor 把错误码映射为 HTTP 状态码。
func statusFor(code xerrors.Code) int {
	switch code {
	case xerrors.CodeInvalidArgument, task.CodeTaskValidation:
		return http.StatusBadRequest
	case tools.CodeToolNotFound, task.CodeTaskNotFound, xerrors.CodeNotFound:
		return http.StatusNotFound
	case xerrors.CodeConflict, task.CodeTaskConflict:
		return http.StatusConflict
	case xerrors.CodeTransportFailure, xerrors.CodeUpstreamStatus, xerrors.CodeMalformedResponse:
		return http.StatusBadGateway
	case xerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case xerrors.CodeInitializationFailure, task.CodeTaskPublish:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
