package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	xerrors "OrderMCP/internal/errors"
	"OrderMCP/internal/fallback"
	"OrderMCP/internal/llm"
	"OrderMCP/pkg/logger"
)

// PipelineName 用于日志与指标标签。
const PipelineName = "extract"

// TaxonomySource 提供意图库。
type TaxonomySource interface {
	Taxonomy(ctx context.Context) (map[string]any, error)
}

// Engine 把自由文本查询拆解为订单任务。
type Engine struct {
	client   llm.Client
	taxonomy TaxonomySource
	log      *slog.Logger
}

// Option 定义可选配置。
type Option func(*Engine)

// WithLogger 指定日志实例。
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// NewEngine 创建任务提取引擎。client 为空时始终走降级路径。
func NewEngine(client llm.Client, taxonomy TaxonomySource, opts ...Option) *Engine {
	e := &Engine{
		client:   client,
		taxonomy: taxonomy,
		log:      logger.Named("extract"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Extract 先获取意图库再提取任务。意图库获取失败会中止整个流程。
func (e *Engine) Extract(ctx context.Context, query string) (Result, error) {
	if e.taxonomy == nil {
		return Result{}, xerrors.New(xerrors.CodeInitializationFailure, "意图库服务未配置")
	}
	taxonomy, err := e.taxonomy.Taxonomy(ctx)
	if err != nil {
		logger.FromContext(ctx, e.log).Warn("taxonomy fetch failed", slog.Any("error", err))
		return Result{}, err
	}
	return e.ExtractWith(ctx, query, taxonomy), nil
}

// ExtractWith 使用给定的意图库提取任务，从不失败：模型不可用、
// 输出无法解析或结构不合法时改用 Heuristic。
func (e *Engine) ExtractWith(ctx context.Context, query string, taxonomy Taxonomy) Result {
	result, source := fallback.Run(ctx, PipelineName,
		func(ctx context.Context) (Result, error) { return e.viaModel(ctx, query, taxonomy) },
		func() Result { return Heuristic(query) },
		Result.Validate,
	)
	result.Source = source
	return result
}

func (e *Engine) viaModel(ctx context.Context, query string, taxonomy Taxonomy) (Result, error) {
	if e.client == nil {
		return Result{}, xerrors.New(xerrors.CodeInitializationFailure, "文本理解服务未配置")
	}
	system, err := buildSystemPrompt(taxonomy)
	if err != nil {
		return Result{}, err
	}

	raw, err := e.client.Complete(ctx, llm.Request{System: system, User: buildUserPrompt(query)})
	if err != nil {
		return Result{}, err
	}

	normalized, err := llm.Normalize(raw)
	if err != nil {
		return Result{}, err
	}

	var result Result
	if err := json.Unmarshal(normalized, &result); err != nil {
		return Result{}, fmt.Errorf("decode extraction result: %w", err)
	}
	return result, nil
}
