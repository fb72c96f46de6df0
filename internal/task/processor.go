package task

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"log/slog"

	xerrors "OrderMCP/internal/errors"
	"OrderMCP/internal/observability/metrics"
	"OrderMCP/pkg/logger"
)

// Executor 定义了处理器执行工具所需的能力，tools.Registry 满足该接口。
type Executor interface {
	Invoke(ctx context.Context, name string, args map[string]string) (json.RawMessage, error)
}

// Processor 负责从队列消费任务并交给工具执行。
type Processor struct {
	executor    Executor
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(executor Executor, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
		logger:      logger.Named("task.processor"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start 启动任务处理循环，直到 ctx 结束。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置任务消费者")
	}
	p.logger.Info("任务处理器启动", slog.Int("workers", p.workerCount))
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, taskID string) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	task, err := p.store.Claim(ctx, taskID)
	if err != nil {
		if stdErrors.Is(err, ErrTaskNotFound) {
			// 任务不在本进程的存储中，通常是重启前遗留或被其他实例投递的消息。
			p.logger.Warn("丢弃未知任务", slog.String("task_id", taskID))
			return nil
		}
		if stdErrors.Is(err, ErrTaskCompleted) || stdErrors.Is(err, ErrTaskExhausted) {
			p.logger.Debug("跳过任务", slog.String("task_id", taskID), slog.String("reason", err.Error()))
			return nil
		}
		p.logger.Error("领取任务失败", slog.Any("error", err), slog.String("task_id", taskID))
		return err
	}

	ctx = logger.WithRequestID(ctx, task.RequestID)
	log := logger.FromContext(ctx, p.logger).With(slog.String("task_id", task.ID), slog.String("tool", task.Tool))
	metrics.ObserveJob(task.Tool, string(StatusRunning))

	output, execErr := p.executor.Invoke(ctx, task.Tool, cloneArguments(task.Arguments))
	if execErr != nil {
		return p.handleExecutionFailure(ctx, log, task, output, execErr)
	}

	if err := p.store.MarkSucceeded(ctx, task.ID, output); err != nil {
		log.Error("标记任务成功状态失败", slog.Any("error", err))
		return err
	}
	metrics.ObserveJob(task.Tool, string(StatusSucceeded))
	logger.Audit().Info("任务执行成功",
		slog.String("task_id", task.ID),
		slog.String("tool", task.Tool),
		slog.String("request_id", task.RequestID),
		slog.Int("attempts", task.Attempts),
	)
	return nil
}

func (p *Processor) handleExecutionFailure(ctx context.Context, log *slog.Logger, task *Task, output json.RawMessage, execErr error) error {
	code := xerrors.CodeOf(execErr)
	if code == xerrors.CodeUnknown {
		code = CodeTaskProcessing
	}
	retryable := xerrors.RetryableError(execErr)
	terminal := task.Attempts >= task.MaxRetries || !retryable

	if storeErr := p.store.MarkFailed(ctx, task.ID, code, execErr.Error(), output, terminal); storeErr != nil {
		log.Error("标记任务失败状态出错", slog.Any("error", storeErr))
		return storeErr
	}
	logger.Audit().Warn("任务执行失败",
		slog.String("task_id", task.ID),
		slog.String("tool", task.Tool),
		slog.String("request_id", task.RequestID),
		slog.Bool("terminal", terminal),
		slog.String("error", execErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", task.Attempts),
		slog.Int("max_retries", task.MaxRetries),
	)

	if terminal {
		metrics.ObserveJob(task.Tool, string(StatusFailed))
		return nil
	}

	metrics.ObserveJob(task.Tool, "retried")
	if pubErr := p.producer.Publish(ctx, task.ID); pubErr != nil {
		wrapped := xerrors.Wrap(CodeTaskPublish, pubErr, fmt.Sprintf("任务 %s 重投失败", task.ID))
		if storeErr := p.store.MarkFailed(ctx, task.ID, CodeTaskPublish, wrapped.Error(), output, true); storeErr != nil {
			log.Error("重投失败后回写状态出错", slog.Any("error", storeErr))
		}
		return wrapped
	}
	log.Debug("任务已重新排队", slog.Int("attempts", task.Attempts))
	return nil
}
