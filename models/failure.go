package models

// 失败分类：这是直接展示给前端的枚举，必须稳定，不允许透传原始错误串。
// 生成侧四类来自两级后端都失败后的归因；quota/persist 两类用于任务级状态。
const (
	FailOversized      = "oversized"       // 参考图超出后端限制
	FailRateLimited    = "rate_limited"    // 被后端限流
	FailServerError    = "server_error"    // 后端内部错误
	FailNetworkError   = "network_error"   // 网络不通或超时耗尽
	FailQuotaExhausted = "quota_exhausted" // 预扣配额失败，任务未派发
	FailReservation    = "reservation_unavailable"
)

// ValidFailureClass 供测试与存储层校验分类取值
func ValidFailureClass(c string) bool {
	switch c {
	case FailOversized, FailRateLimited, FailServerError, FailNetworkError,
		FailQuotaExhausted, FailReservation:
		return true
	}
	return false
}
