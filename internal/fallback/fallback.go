package fallback

import (
	"context"
	"log/slog"

	"OrderMCP/internal/observability/metrics"
	"OrderMCP/pkg/logger"
)

// Source 标识结果由哪条路径产生。
type Source string

const (
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

// Run 先执行 primary；当其返回错误或结果未通过 acceptable 校验时，
// 改用确定性的 fallback。fallback 不允许失败，因此 Run 总有结果。
// acceptable 为空时任何无错误的结果都被接受。
func Run[T any](
	ctx context.Context,
	name string,
	primary func(context.Context) (T, error),
	fallback func() T,
	acceptable func(T) error,
) (T, Source) {
	log := logger.FromContext(ctx, logger.Named("fallback")).With(slog.String("pipeline", name))

	result, err := primary(ctx)
	if err == nil && acceptable != nil {
		err = acceptable(result)
	}
	if err == nil {
		metrics.ObservePipeline(name, string(SourceModel))
		log.Debug("model path accepted")
		return result, SourceModel
	}

	log.Info("degrading to fallback", slog.Any("reason", err))
	metrics.ObservePipeline(name, string(SourceFallback))
	return fallback(), SourceFallback
}
