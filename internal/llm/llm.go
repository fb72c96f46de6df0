package llm

import "context"

// Request 描述一次两段式对话：系统指令加用户内容。
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Client 定义了调用文本理解服务的统一接口。返回值为模型原始文本。
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ClientFunc 让普通函数满足 Client 接口，便于测试替身。
type ClientFunc func(ctx context.Context, req Request) (string, error)

// Complete 实现 Client。
func (f ClientFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
