package task

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "OrderMCP/internal/errors"
	"OrderMCP/pkg/logger"
)

// DefaultMaxRetries 是未配置时单个任务的最大执行次数。
const DefaultMaxRetries = 3

// Catalog 用于在提交时确认工具存在。
type Catalog interface {
	Has(name string) bool
}

// SubmitRequest 描述一次异步工具调用。ID 非空时按幂等键处理。
type SubmitRequest struct {
	ID        string            `json:"id,omitempty"`
	Tool      string            `json:"tool"`
	Arguments map[string]string `json:"arguments"`
}

// Service 负责任务的创建与查询。
type Service struct {
	store      Store
	producer   Producer
	catalog    Catalog
	maxRetries int
	log        *slog.Logger
}

// ServiceOption 定义可选配置。
type ServiceOption func(*Service)

// WithCatalog 在提交时校验工具名称。
func WithCatalog(catalog Catalog) ServiceOption {
	return func(s *Service) {
		s.catalog = catalog
	}
}

// NewService 构造任务服务。
func NewService(store Store, producer Producer, maxRetries int, opts ...ServiceOption) *Service {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	s := &Service{store: store, producer: producer, maxRetries: maxRetries, log: logger.Named("task.service")}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Submit 创建一个新的任务并推送到队列。
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Task, error) {
	tool := strings.TrimSpace(req.Tool)
	if tool == "" {
		return nil, xerrors.New(CodeTaskValidation, "工具名称不能为空")
	}
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未初始化")
	}
	if s.catalog != nil && !s.catalog.Has(tool) {
		return nil, xerrors.New(CodeTaskValidation, fmt.Sprintf("未知工具: %s", tool))
	}

	taskID := strings.TrimSpace(req.ID)
	if taskID != "" {
		task, err := s.store.Get(ctx, taskID)
		if err == nil {
			return task, nil
		}
		if !stdErrors.Is(err, ErrTaskNotFound) {
			return nil, err
		}
	} else {
		taskID = uuid.NewString()
	}

	task := &Task{
		ID:         taskID,
		Tool:       tool,
		Arguments:  cloneArguments(req.Arguments),
		RequestID:  logger.RequestID(ctx),
		Status:     StatusPending,
		MaxRetries: s.maxRetries,
	}
	if err := s.store.Create(ctx, task); err != nil {
		if stdErrors.Is(err, ErrTaskConflict) {
			if existing, getErr := s.store.Get(ctx, taskID); getErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}
	if err := s.producer.Publish(ctx, taskID); err != nil {
		logger.FromContext(ctx, s.log).Error("任务入队失败", slog.Any("error", err), slog.String("task_id", taskID))
		wrapped := xerrors.Wrap(CodeTaskPublish, err, "发布任务到队列失败")
		_ = s.store.MarkFailed(ctx, taskID, CodeTaskPublish, wrapped.Error(), nil, true)
		return nil, wrapped
	}
	logger.Audit().Info("任务入队成功",
		slog.String("task_id", taskID),
		slog.String("tool", tool),
		slog.String("request_id", task.RequestID),
		slog.Int("max_retries", task.MaxRetries),
	)
	return task, nil
}

// Get 返回指定任务的状态。
func (s *Service) Get(ctx context.Context, id string) (*Task, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的任务列表。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Task, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.List(ctx, buildListOptions(opts))
}

// Stats 返回符合过滤条件的任务统计信息。
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (TaskStats, error) {
	if s.store == nil {
		return TaskStats{}, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.Stats(ctx, buildListOptions(opts))
}

// Close 释放资源。
func (s *Service) Close() error {
	var err error
	if s.store != nil {
		err = s.store.Close()
	}
	if s.producer != nil {
		err = stdErrors.Join(err, s.producer.Close())
	}
	return err
}

// WaitUntilCompleted 轮询任务状态直到结束或 ctx 超时。
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Task, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		task, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if task.Terminal() {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
