package generate

import (
	"context"
	"errors"
)

// Request 一个 slot 的出图请求：提示词 + 参考图 + 工作尺寸提示。
// TaskID/SlotIndex 只用作落盘文件名提示，后端不解释。
type Request struct {
	Prompt          string
	ReferenceImages []string
	SizeHint        string
	TaskID          string
	SlotIndex       int
}

// Result 出图结果，ImageURL 一定非空
type Result struct {
	ImageURL string
}

// Backend 生成后端的最小接口。重试、限流、降级都不在这一层做，由执行器负责。
type Backend interface {
	Name() string
	Generate(ctx context.Context, req Request) (Result, error)
}

// ErrMalformedResponse 后端返回了响应但没有可用图片
var ErrMalformedResponse = errors.New("generate: malformed backend response")
