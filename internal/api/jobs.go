package api

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"io"
	"net/http"
	"strings"
	"time"

	xerrors "OrderMCP/internal/errors"
	"OrderMCP/internal/task"
)

const (
	// maxJobWait 是 GET /api/v1/jobs/{id}?wait= 允许的最长等待时间。
	maxJobWait      = 30 * time.Second
	jobPollInterval = 50 * time.Millisecond
)

type submitJobRequest struct {
	ID        string                     `json:"id"`
	Tool      string                     `json:"tool"`
	Arguments map[string]json.RawMessage `json:"arguments"`
}

func (s *Server) jobsAvailable(w http.ResponseWriter) bool {
	if s.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, string(xerrors.CodeInitializationFailure), "任务队列未启用")
		return false
	}
	return true
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if !s.jobsAvailable(w) {
		return
	}
	var req submitJobRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeCodedError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败"))
		return
	}

	created, err := s.jobs.Submit(r.Context(), task.SubmitRequest{
		ID:        req.ID,
		Tool:      req.Tool,
		Arguments: stringifyArguments(req.Arguments),
	})
	if err != nil {
		writeCodedError(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/jobs/"+created.ID)
	writeJSON(w, http.StatusAccepted, created)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if !s.jobsAvailable(w) {
		return
	}
	wait, err := parseWait(r.URL.Query().Get("wait"))
	if err != nil {
		writeCodedError(w, err)
		return
	}

	id := r.PathValue("id")
	var found *task.Task
	if wait > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), wait)
		found, err = s.jobs.WaitUntilCompleted(ctx, id, jobPollInterval)
		cancel()
		// 等待超时时返回任务当前状态。
		if stdErrors.Is(err, context.DeadlineExceeded) && r.Context().Err() == nil {
			found, err = s.jobs.Get(r.Context(), id)
		}
	} else {
		found, err = s.jobs.Get(r.Context(), id)
	}
	if err != nil {
		writeCodedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

// parseWait 解析 wait 参数，超过 maxJobWait 时截断。
func parseWait(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	wait, err := time.ParseDuration(raw)
	if err != nil || wait < 0 {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, "wait 参数格式错误: "+raw)
	}
	return min(wait, maxJobWait), nil
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if !s.jobsAvailable(w) {
		return
	}
	list, err := s.jobs.List(r.Context(), listOptions(r)...)
	if err != nil {
		writeCodedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": list})
}

func (s *Server) handleJobStats(w http.ResponseWriter, r *http.Request) {
	if !s.jobsAvailable(w) {
		return
	}
	stats, err := s.jobs.Stats(r.Context(), listOptions(r)...)
	if err != nil {
		writeCodedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func listOptions(r *http.Request) []task.ListOption {
	query := r.URL.Query()
	opts := []task.ListOption{task.WithLimit(parseLimit(query.Get("limit")))}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		var statuses []task.Status
		for _, part := range strings.Split(raw, ",") {
			statuses = append(statuses, task.Status(strings.TrimSpace(part)))
		}
		opts = append(opts, task.WithStatuses(statuses...))
	}
	if tool := query.Get("tool"); tool != "" {
		opts = append(opts, task.WithTool(tool))
	}
	return opts
}
