package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	xerrors "OrderMCP/internal/errors"
	"OrderMCP/pkg/logger"
)

// CodeToolNotFound 表示调用了未注册的工具。
const CodeToolNotFound xerrors.Code = "TOOL_NOT_FOUND"

func init() {
	xerrors.Register(CodeToolNotFound, xerrors.Attributes{Message: "tool not found", Severity: xerrors.SeverityInfo})
}

// Descriptor 描述一个工具，供编排方发现。
type Descriptor struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Parameters  []string `json:"parameters"`
	// AllowBlank 列出必须出现但允许为空白的参数。
	AllowBlank []string `json:"-"`
	// Apology 是工具失败时返回给用户的固定文本。
	Apology string `json:"-"`
}

// Handler 执行工具，返回值会被序列化为 JSON 文本。
type Handler func(ctx context.Context, args map[string]string) (any, error)

type entry struct {
	descriptor Descriptor
	handler    Handler
}

// Registry 保存所有已注册的工具。
type Registry struct {
	mu    sync.RWMutex
	tools map[string]entry
	log   *slog.Logger
}

// NewRegistry 创建空的工具注册表。
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]entry), log: logger.Named("tools")}
}

// Register 注册工具，名称重复时返回错误。
func (r *Registry) Register(d Descriptor, h Handler) error {
	if strings.TrimSpace(d.Name) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "tool name cannot be empty")
	}
	if h == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "tool handler cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[d.Name]; exists {
		return xerrors.New(xerrors.CodeConflict, fmt.Sprintf("tool %s already registered", d.Name))
	}
	r.tools[d.Name] = entry{descriptor: d, handler: h}
	return nil
}

// Descriptors 按名称排序返回全部工具描述。
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.tools))
	for _, e := range r.tools {
		out = append(out, e.descriptor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup 返回指定工具的描述。
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e.descriptor, ok
}

// Has 判断工具是否已注册。
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Failure 是工具失败时的输出格式。
type Failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Result  string `json:"result"`
}

// Invoke 执行工具并返回 JSON 文本。
// 工具不存在时只返回错误；其他失败同时返回 Failure 形式的输出与带错误码的错误。
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]string) (json.RawMessage, error) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, xerrors.New(CodeToolNotFound, fmt.Sprintf("tool %s not found", name))
	}

	log := logger.FromContext(ctx, r.log).With(slog.String("tool", name))
	started := time.Now()

	if missing := missingParams(e.descriptor, args); len(missing) > 0 {
		detail := "错误：缺少必需参数 " + strings.Join(missing, " 或 ")
		err := xerrors.New(xerrors.CodeInvalidArgument, detail)
		return failure(detail, e.descriptor.Apology), err
	}

	value, err := e.handler(ctx, args)
	if err != nil {
		log.Warn("tool failed", slog.Any("error", err), slog.Duration("elapsed", time.Since(started)))
		logger.Audit().Info("tool invocation",
			slog.String("tool", name),
			slog.String("request_id", logger.RequestID(ctx)),
			slog.Bool("success", false),
			slog.String("code", string(xerrors.CodeOf(err))))
		return failure(errorDetail(err), e.descriptor.Apology), err
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		wrapped := xerrors.Wrap(xerrors.CodeUnknown, err, "序列化工具输出失败")
		return failure(wrapped.Error(), e.descriptor.Apology), wrapped
	}

	attrs := []any{
		slog.String("tool", name),
		slog.String("request_id", logger.RequestID(ctx)),
		slog.Bool("success", true),
	}
	if src, ok := value.(interface{ PathSource() string }); ok {
		attrs = append(attrs, slog.String("source", src.PathSource()))
	}
	logger.Audit().Info("tool invocation", attrs...)
	log.Debug("tool finished", slog.Duration("elapsed", time.Since(started)))
	return encoded, nil
}

func missingParams(d Descriptor, args map[string]string) []string {
	var missing []string
	for _, param := range d.Parameters {
		value, present := args[param]
		if !present {
			missing = append(missing, param)
			continue
		}
		if strings.TrimSpace(value) == "" && !slices.Contains(d.AllowBlank, param) {
			missing = append(missing, param)
		}
	}
	return missing
}

func errorDetail(err error) string {
	if e, ok := xerrors.From(err); ok {
		if cause := e.Unwrap(); cause != nil {
			return fmt.Sprintf("%s: %v", e.Message(), cause)
		}
		return e.Message()
	}
	return err.Error()
}

func failure(detail, apology string) json.RawMessage {
	encoded, _ := json.Marshal(Failure{Success: false, Error: detail, Result: apology})
	return encoded
}
