package logic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/superlion8/brand-camera-sub000/models"
	"github.com/superlion8/brand-camera-sub000/pkg/generate"
)

// SlotFailure 两级后端都失败后的最终错误，Class 是给前端的稳定分类枚举，
// 不透传原始错误串。
type SlotFailure struct {
	Class string
	cause error
}

func (e *SlotFailure) Error() string {
	return fmt.Sprintf("slot generation failed (%s): %v", e.Class, e.cause)
}

func (e *SlotFailure) Unwrap() error { return e.cause }

// Executor 单个 slot 的降级执行器：主后端一次 → 失败立刻备用后端一次 → 结束。
// 没有第二级降级，也没有内部重试循环；需要更强韧性的调用方重试整个 slot。
type Executor struct {
	primary  generate.Backend
	fallback generate.Backend
	timeout  time.Duration
}

func NewExecutor(primary, fallback generate.Backend, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Executor{primary: primary, fallback: fallback, timeout: timeout}
}

// Execute 返回出图结果和实际出图的后端标识（models.BackendPrimary / BackendFallback）。
// 失败时返回 *SlotFailure。
func (e *Executor) Execute(ctx context.Context, req generate.Request) (generate.Result, string, error) {
	// 主后端，带超时；显式报错、畸形响应、超时都走同一条降级路径
	pctx, cancel := context.WithTimeout(ctx, e.timeout)
	res, perr := e.primary.Generate(pctx, req)
	cancel()
	if perr == nil {
		return res, models.BackendPrimary, nil
	}
	zap.L().Warn("primary backend failed, falling back",
		zap.String("task_id", req.TaskID),
		zap.Int("slot", req.SlotIndex),
		zap.String("backend", e.primary.Name()),
		zap.Error(perr))

	// 备用后端只试一次，同一语义请求（可以接受更小的工作图）
	fctx, cancel := context.WithTimeout(ctx, e.timeout)
	res, ferr := e.fallback.Generate(fctx, req)
	cancel()
	if ferr == nil {
		return res, models.BackendFallback, nil
	}

	// 两级都失败：归因到稳定分类。备用后端的失败信号更新，优先用它；
	// 但主后端报图片过大时保留这个更具体的归因。
	class := classifyFailure(ferr)
	if classifyFailure(perr) == models.FailOversized {
		class = models.FailOversized
	}
	return generate.Result{}, "", &SlotFailure{Class: class, cause: ferr}
}

// classifyFailure 把观察到的失败信号映射到前端可展示的枚举
func classifyFailure(err error) string {
	if err == nil {
		return models.FailServerError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.FailNetworkError
	}
	es := err.Error()
	upper := strings.ToUpper(es)
	switch {
	case strings.Contains(upper, "413") ||
		strings.Contains(upper, "TOO LARGE") ||
		strings.Contains(upper, "OVERSIZE") ||
		strings.Contains(upper, "INPUTIMAGEOVERSIZE"):
		return models.FailOversized
	case strings.Contains(upper, "429") ||
		strings.Contains(upper, "RATE LIMIT") ||
		strings.Contains(upper, "RATELIMIT") ||
		strings.Contains(upper, "TOO MANY REQUESTS"):
		return models.FailRateLimited
	case strings.Contains(upper, "TIMEOUT") ||
		strings.Contains(upper, "DEADLINE") ||
		strings.Contains(upper, "CONNECTION") ||
		strings.Contains(upper, "DIAL") ||
		strings.Contains(upper, "EOF") ||
		strings.Contains(upper, "NO SUCH HOST"):
		return models.FailNetworkError
	default:
		// 畸形响应、5xx、其余未知信号统一按服务端错误
		return models.FailServerError
	}
}
