package pythonbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	xerrors "OrderMCP/internal/errors"
	"OrderMCP/internal/llm"
)

// Client 通过调用 Python 脚本完成文本理解。
// 脚本从 stdin 读取 {"system","user","temperature","max_tokens"}，
// 向 stdout 输出 {"content": "..."}；非 JSON 输出按原文处理。
type Client struct {
	pythonExec string
	scriptPath string
	workingDir string
	timeout    time.Duration
}

// NewClient 创建 Python Bridge 客户端。
func NewClient(pythonExec, scriptPath, workingDir string, timeout time.Duration) (*Client, error) {
	if scriptPath == "" {
		return nil, xerrors.New(xerrors.CodeConfigInvalid, "未指定 Python 脚本路径")
	}
	if pythonExec == "" {
		pythonExec = "python3"
	}
	return &Client{
		pythonExec: pythonExec,
		scriptPath: scriptPath,
		workingDir: workingDir,
		timeout:    timeout,
	}, nil
}

// Complete 调用外部脚本，并返回其输出的文本。
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	payload := map[string]any{
		"system":      req.System,
		"user":        req.User,
		"temperature": req.Temperature,
		"max_tokens":  req.MaxTokens,
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("序列化请求失败: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	command := exec.CommandContext(ctx, c.pythonExec, c.scriptPath)
	if c.workingDir != "" {
		command.Dir = c.workingDir
	}
	command.Stdin = bytes.NewReader(encoded)

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", xerrors.Wrap(xerrors.CodeTransportFailure, err,
			fmt.Sprintf("执行 Python 脚本失败, stderr=%s", strings.TrimSpace(stderr.String())),
			xerrors.WithRetryable(false))
	}

	output := strings.TrimSpace(stdout.String())
	var resp struct {
		Content *string `json:"content"`
	}
	if err := json.Unmarshal([]byte(output), &resp); err == nil && resp.Content != nil {
		output = strings.TrimSpace(*resp.Content)
	}
	if output == "" {
		return "", xerrors.New(xerrors.CodeMalformedResponse, "Python 脚本输出为空")
	}
	return output, nil
}

// ResolveScriptPath 根据工作目录推导脚本绝对路径。
func ResolveScriptPath(baseDir, script string) string {
	if script == "" {
		return ""
	}
	if filepath.IsAbs(script) {
		return script
	}
	if baseDir == "" {
		return script
	}
	return filepath.Join(baseDir, script)
}
