package logic

import (
	"github.com/superlion8/brand-camera-sub000/models"
)

// 编排器消费的协作方接口。实现都是可能失败的远程调用（MySQL/Redis/MQ），
// 调用方一律按可失败处理，不当本地函数用。

// QuotaLedger 配额账本：预留/确认/退款，全部按 taskID 幂等
type QuotaLedger interface {
	Reserve(userID uint64, taskID string, count int) error
	Confirm(taskID string) error
	PartialRefund(taskID string, failedCount int) error
	FullRefund(taskID string) error
}

// RecordStore 任务结果的持久化存储
type RecordStore interface {
	CreateOrUpdateRecord(t *models.TryOnTask) (int64, error)
	AppendSlotResult(taskID string, slotIndex int, imageURL, backend string) (int64, error)
	FetchByTaskID(taskID string) (*models.GenerationRecord, error)
}

// TaskHandle 客户端句柄：刷新后靠它找回进行中的任务
type TaskHandle struct {
	TaskID string
	Kind   string
}

// HandleStore 客户端任务句柄存储：创建时写一次，终态结算或废弃时清除
type HandleStore interface {
	SaveHandle(userID uint64, taskID, kind string) error
	LoadHandle(userID uint64) (*TaskHandle, error)
	ClearHandle(userID uint64) error
}

// ProgressStore 任务进度快照（前端轮询用），尽力而为
type ProgressStore interface {
	SaveProgress(t *models.TryOnTask) error
	LoadProgress(userID uint64, taskID string) (*models.TryOnTask, error)
}

// Notifier 任务状态变化的观察者出口（SSE、日志等）。
// 入参都是值快照，观察者拿不到编排器内部的可变状态。
type Notifier interface {
	SlotUpdate(userID uint64, taskID string, slot models.Slot)
	FirstSuccess(userID uint64, taskID string, slot models.Slot)
	TaskSettled(userID uint64, taskID, status string, successCount int)
}

// RetryEnqueuer 落库失败后把写库动作丢进重试队列
type RetryEnqueuer interface {
	EnqueuePersistRetry(t *models.TryOnTask, slotIndex int, imageURL, backend string) error
}
