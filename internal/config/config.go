package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	xerrors "OrderMCP/internal/errors"
	"OrderMCP/pkg/logger"
)

// EnvConfigPath 指定配置文件路径的环境变量。
const EnvConfigPath = "ORDERMCP_CONFIG"

// DefaultPath 是未设置环境变量时使用的配置文件。
const DefaultPath = "configs/ordermcp.yaml"

// Config 描述了 OrderMCP 在启动阶段需要加载的核心配置。
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Log      logger.Config  `json:"log" yaml:"log"`
	LLM      LLMConfig      `json:"llm" yaml:"llm"`
	Upstream UpstreamConfig `json:"upstream" yaml:"upstream"`
	Queue    QueueConfig    `json:"queue" yaml:"queue"`
	Jobs     JobsConfig     `json:"jobs" yaml:"jobs"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address             string `json:"address" yaml:"address"`
	ShutdownTimeoutSecs int    `json:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`
	// MetricsAddress 非空时额外启动独立的 /metrics 监听。
	MetricsAddress string `json:"metrics_address" yaml:"metrics_address"`
}

// ShutdownTimeout 返回优雅关闭的等待时间。
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSecs) * time.Second
}

// LLMConfig 用于配置文本理解服务的调用方式。
type LLMConfig struct {
	Provider string             `json:"provider" yaml:"provider"`
	OpenAI   OpenAIConfig       `json:"openai" yaml:"openai"`
	Python   PythonBridgeConfig `json:"python_bridge" yaml:"python_bridge"`
}

// OpenAIConfig 描述 OpenAI 兼容的 Chat Completions 服务。
type OpenAIConfig struct {
	BaseURL        string `json:"base_url" yaml:"base_url"`
	Model          string `json:"model" yaml:"model"`
	APIKey         string `json:"api_key" yaml:"api_key"`
	APIKeyEnv      string `json:"api_key_env" yaml:"api_key_env"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
	// Temperature 为空时使用 DefaultTemperature，显式的 0 会被保留。
	Temperature *float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int      `json:"max_tokens" yaml:"max_tokens"`
}

// PythonBridgeConfig 描述通过 Python 脚本完成推理时所需的信息。
type PythonBridgeConfig struct {
	PythonExecutable string `json:"python_executable" yaml:"python_executable"`
	ScriptPath       string `json:"script_path" yaml:"script_path"`
	WorkingDir       string `json:"working_dir" yaml:"working_dir"`
	TimeoutSeconds   int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// UpstreamConfig 列出四个外部查询服务。
type UpstreamConfig struct {
	Taxonomy    EndpointConfig `json:"taxonomy" yaml:"taxonomy"`
	OrderStatus EndpointConfig `json:"order_status" yaml:"order_status"`
	Rules       EndpointConfig `json:"rules" yaml:"rules"`
	Address     EndpointConfig `json:"address" yaml:"address"`
	Retry       RetryConfig    `json:"retry" yaml:"retry"`
}

// EndpointConfig 描述单个查询服务。
type EndpointConfig struct {
	URL            string `json:"url" yaml:"url"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// Timeout 返回单次尝试的超时时间。
func (e EndpointConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// RetryConfig 控制传输层的重试策略。
type RetryConfig struct {
	Attempts  int `json:"attempts" yaml:"attempts"`
	BackoffMS int `json:"backoff_ms" yaml:"backoff_ms"`
}

// Backoff 返回两次尝试之间的固定等待时间。
func (r RetryConfig) Backoff() time.Duration {
	return time.Duration(r.BackoffMS) * time.Millisecond
}

// QueueConfig 选择异步任务队列的实现。
type QueueConfig struct {
	Driver   string         `json:"driver" yaml:"driver"`
	Workers  int            `json:"workers" yaml:"workers"`
	Buffer   int            `json:"buffer" yaml:"buffer"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq" yaml:"rabbitmq"`
	// SingleInstance 确认只有一个进程消费该队列。任务状态保存在进程内，
	// 多个实例共享 redis 或 rabbitmq 队列时任务会被其他实例领取后丢弃。
	SingleInstance bool `json:"single_instance" yaml:"single_instance"`
}

// RedisConfig 描述 Redis 队列的连接信息。
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Key      string `json:"key" yaml:"key"`
}

// RabbitMQConfig 描述 RabbitMQ 队列的连接信息。
type RabbitMQConfig struct {
	URL   string `json:"url" yaml:"url"`
	Queue string `json:"queue" yaml:"queue"`
}

// JobsConfig 控制异步任务的执行策略。
type JobsConfig struct {
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// PathFromEnv 返回环境变量指定的配置文件路径。
func PathFromEnv() string {
	if path := strings.TrimSpace(os.Getenv(EnvConfigPath)); path != "" {
		return path
	}
	return DefaultPath
}

// Load 负责解析指定路径的 JSON 或 YAML 配置文件，并完成默认值填充与校验。
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, xerrors.New(xerrors.CodeConfigInvalid, "配置文件路径为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfigInvalid, err, "读取配置文件失败")
	}

	cfg, err := Parse(content, filepath.Ext(path))
	if err != nil {
		return nil, err
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse 根据扩展名解码配置内容，不做默认值处理。
func Parse(content []byte, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeConfigInvalid, err, "解析 YAML 配置失败")
		}
	case ".json", "":
		if err := json.Unmarshal(content, &cfg); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeConfigInvalid, err, "解析 JSON 配置失败")
		}
	default:
		return nil, xerrors.New(xerrors.CodeConfigInvalid, fmt.Sprintf("不支持的配置文件格式: %s", ext))
	}
	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ShutdownTimeoutSecs <= 0 {
		c.Server.ShutdownTimeoutSecs = 10
	}

	if len(c.Log.OutputPaths) == 0 {
		c.Log.OutputPaths = []string{"stdout"}
	}
	if c.Log.Audit.Enabled && c.Log.Audit.Path != "" && !filepath.IsAbs(c.Log.Audit.Path) {
		c.Log.Audit.Path = filepath.Join(baseDir, c.Log.Audit.Path)
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	openai := &c.LLM.OpenAI
	if openai.BaseURL == "" {
		openai.BaseURL = "https://api.siliconflow.cn/v1"
	}
	if openai.Model == "" {
		openai.Model = "deepseek-ai/DeepSeek-V3"
	}
	if openai.TimeoutSeconds <= 0 {
		openai.TimeoutSeconds = 60
	}
	if openai.MaxTokens <= 0 {
		openai.MaxTokens = 2000
	}

	python := &c.LLM.Python
	if python.PythonExecutable == "" {
		python.PythonExecutable = "python3"
	}
	if python.TimeoutSeconds <= 0 {
		python.TimeoutSeconds = 60
	}
	if python.WorkingDir == "" {
		python.WorkingDir = baseDir
	} else if !filepath.IsAbs(python.WorkingDir) {
		python.WorkingDir = filepath.Join(baseDir, python.WorkingDir)
	}

	for _, ep := range []*EndpointConfig{&c.Upstream.Taxonomy, &c.Upstream.OrderStatus, &c.Upstream.Rules, &c.Upstream.Address} {
		if ep.TimeoutSeconds <= 0 {
			ep.TimeoutSeconds = 30
		}
	}
	if c.Upstream.Retry.Attempts <= 0 {
		c.Upstream.Retry.Attempts = 3
	}
	if c.Upstream.Retry.BackoffMS <= 0 {
		c.Upstream.Retry.BackoffMS = 100
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 4
	}
	if c.Queue.Buffer <= 0 {
		c.Queue.Buffer = 64
	}
	if c.Queue.Redis.Key == "" {
		c.Queue.Redis.Key = "ordermcp:jobs"
	}
	if c.Queue.RabbitMQ.Queue == "" {
		c.Queue.RabbitMQ.Queue = "ordermcp.jobs"
	}

	if c.Jobs.MaxRetries < 0 {
		c.Jobs.MaxRetries = 0
	}
}

// DefaultTemperature 是未配置 temperature 时的采样温度。
const DefaultTemperature = 0.7

// ResolveTemperature 返回生效的采样温度。
func (o OpenAIConfig) ResolveTemperature() float64 {
	if o.Temperature == nil {
		return DefaultTemperature
	}
	return *o.Temperature
}

// ResolveAPIKey 返回生效的 API Key，优先使用内联值，其次读取环境变量。
func (o OpenAIConfig) ResolveAPIKey() string {
	if key := strings.TrimSpace(o.APIKey); key != "" {
		return key
	}
	if o.APIKeyEnv != "" {
		return strings.TrimSpace(os.Getenv(o.APIKeyEnv))
	}
	return ""
}

// Validate 校验启动所需的必填项。
func (c *Config) Validate() error {
	var problems []string

	switch c.LLM.Provider {
	case "openai":
		if c.LLM.OpenAI.ResolveAPIKey() == "" {
			problems = append(problems, "llm.openai.api_key 未配置")
		}
		if t := c.LLM.OpenAI.ResolveTemperature(); t < 0 || t > 2 {
			problems = append(problems, fmt.Sprintf("llm.openai.temperature 超出范围 [0, 2]: %v", t))
		}
	case "python_bridge":
		if strings.TrimSpace(c.LLM.Python.ScriptPath) == "" {
			problems = append(problems, "llm.python_bridge.script_path 未配置")
		}
	default:
		problems = append(problems, fmt.Sprintf("未知的 llm.provider: %s", c.LLM.Provider))
	}

	endpoints := []struct {
		name string
		ep   EndpointConfig
	}{
		{"upstream.taxonomy", c.Upstream.Taxonomy},
		{"upstream.order_status", c.Upstream.OrderStatus},
		{"upstream.rules", c.Upstream.Rules},
		{"upstream.address", c.Upstream.Address},
	}
	for _, item := range endpoints {
		if strings.TrimSpace(item.ep.URL) == "" {
			problems = append(problems, item.name+".url 未配置")
		}
	}

	switch c.Queue.Driver {
	case "memory":
	case "redis":
		if c.Queue.Redis.Addr == "" {
			problems = append(problems, "queue.redis.addr 未配置")
		}
		if !c.Queue.SingleInstance {
			problems = append(problems, "queue.driver=redis 需要设置 queue.single_instance: true")
		}
	case "rabbitmq":
		if c.Queue.RabbitMQ.URL == "" {
			problems = append(problems, "queue.rabbitmq.url 未配置")
		}
		if !c.Queue.SingleInstance {
			problems = append(problems, "queue.driver=rabbitmq 需要设置 queue.single_instance: true")
		}
	default:
		problems = append(problems, fmt.Sprintf("未知的 queue.driver: %s", c.Queue.Driver))
	}

	if len(problems) > 0 {
		return xerrors.New(xerrors.CodeConfigInvalid, "配置校验失败: "+strings.Join(problems, "; "))
	}
	return nil
}
