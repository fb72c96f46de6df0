// Package api 通过 REST 暴露工具调用与异步任务接口。
package api
