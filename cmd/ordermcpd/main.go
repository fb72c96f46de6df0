package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"OrderMCP/internal/address"
	"OrderMCP/internal/api"
	"OrderMCP/internal/config"
	"OrderMCP/internal/extract"
	"OrderMCP/internal/llm"
	"OrderMCP/internal/llm/openai"
	"OrderMCP/internal/llm/pythonbridge"
	"OrderMCP/internal/observability/metrics"
	"OrderMCP/internal/rules"
	"OrderMCP/internal/task"
	"OrderMCP/internal/tools"
	"OrderMCP/internal/transport"
	"OrderMCP/internal/upstream"
	"OrderMCP/pkg/logger"
)

// main 是 OrderMCP 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("ordermcpd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(config.PathFromEnv())
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer logger.Sync()
	appLog := logger.Named("ordermcpd")

	httpClient := transport.New(
		transport.WithAttempts(cfg.Upstream.Retry.Attempts),
		transport.WithBackoff(cfg.Upstream.Retry.Backoff()),
	)

	llmClient, err := createLLMClient(cfg, httpClient)
	if err != nil {
		return err
	}

	lookups := upstream.NewClient(httpClient, upstream.Endpoints{
		Taxonomy:    transport.Endpoint{Name: "taxonomy", URL: cfg.Upstream.Taxonomy.URL, Timeout: cfg.Upstream.Taxonomy.Timeout()},
		OrderStatus: transport.Endpoint{Name: "order_status", URL: cfg.Upstream.OrderStatus.URL, Timeout: cfg.Upstream.OrderStatus.Timeout()},
		Rules:       transport.Endpoint{Name: "rules", URL: cfg.Upstream.Rules.URL, Timeout: cfg.Upstream.Rules.Timeout()},
		Address:     transport.Endpoint{Name: "address", URL: cfg.Upstream.Address.URL, Timeout: cfg.Upstream.Address.Timeout()},
	})

	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry, tools.Deps{
		Extractor: extract.NewEngine(llmClient, lookups),
		Rules:     rules.NewResolver(llmClient, lookups),
		Address:   address.NewReconciler(llmClient, lookups),
		Lookup:    lookups,
	}); err != nil {
		return err
	}

	taskQueue, err := createQueue(ctx, cfg.Queue)
	if err != nil {
		return err
	}

	taskStore := task.NewMemoryStore()
	taskService := task.NewService(taskStore, taskQueue, cfg.Jobs.MaxRetries, task.WithCatalog(registry))
	defer func() {
		if err := taskService.Close(); err != nil {
			appLog.Warn("关闭任务服务失败", slog.Any("error", err))
		}
	}()
	processor := task.NewProcessor(registry, taskStore, taskQueue, taskQueue,
		task.WithWorkerCount(cfg.Queue.Workers),
	)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()
	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			appLog.Error("任务处理器异常退出", slog.Any("error", err))
		}
	}()

	if cfg.Server.MetricsAddress != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				appLog.Error("metrics 服务异常退出", slog.Any("error", err))
			}
		}()
	}

	appLog.Info("ordermcpd 启动",
		slog.String("llm_provider", cfg.LLM.Provider),
		slog.String("queue_driver", cfg.Queue.Driver),
		slog.Int("tools", len(registry.Descriptors())),
	)

	server := api.NewServer(cfg.Server.Address, registry,
		api.WithJobs(taskService),
		api.WithShutdownTimeout(cfg.Server.ShutdownTimeout()),
	)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func createLLMClient(cfg *config.Config, hc *transport.Client) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "openai":
		temperature := cfg.LLM.OpenAI.ResolveTemperature()
		return openai.NewClient(openai.Config{
			APIKey:      cfg.LLM.OpenAI.ResolveAPIKey(),
			BaseURL:     cfg.LLM.OpenAI.BaseURL,
			Model:       cfg.LLM.OpenAI.Model,
			Timeout:     time.Duration(cfg.LLM.OpenAI.TimeoutSeconds) * time.Second,
			Temperature: &temperature,
			MaxTokens:   cfg.LLM.OpenAI.MaxTokens,
		}, hc)
	case "python_bridge":
		python := cfg.LLM.Python
		scriptPath := pythonbridge.ResolveScriptPath(python.WorkingDir, python.ScriptPath)
		return pythonbridge.NewClient(python.PythonExecutable, scriptPath, python.WorkingDir,
			time.Duration(python.TimeoutSeconds)*time.Second)
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.LLM.Provider)
	}
}

func createQueue(ctx context.Context, cfg config.QueueConfig) (task.Queue, error) {
	switch cfg.Driver {
	case "", "memory":
		return task.NewMemoryQueue(cfg.Buffer), nil
	case "redis":
		return task.NewRedisQueue(ctx, task.RedisQueueConfig{
			Address:  cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Queue:    cfg.Redis.Key,
		})
	case "rabbitmq":
		return task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:      cfg.RabbitMQ.URL,
			Queue:    cfg.RabbitMQ.Queue,
			Prefetch: cfg.Workers,
			Durable:  true,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Driver)
	}
}
