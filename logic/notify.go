package logic

import (
	"github.com/superlion8/brand-camera-sub000/models"
	"github.com/superlion8/brand-camera-sub000/pkg/sse"
)

// sseNotifier 把任务状态变化推到用户的 SSE topic
type sseNotifier struct{}

func NewSSENotifier() Notifier {
	return sseNotifier{}
}

func (sseNotifier) SlotUpdate(userID uint64, taskID string, slot models.Slot) {
	sse.PublishUserEvent(userID, sse.Event{
		Event:     sse.EventSlotUpdate,
		TaskID:    taskID,
		SlotIndex: slot.Index,
		Status:    slot.Status,
		Data:      slot,
	})
}

func (sseNotifier) FirstSuccess(userID uint64, taskID string, slot models.Slot) {
	sse.PublishUserEvent(userID, sse.Event{
		Event:     sse.EventFirstSuccess,
		TaskID:    taskID,
		SlotIndex: slot.Index,
		Status:    slot.Status,
		Data:      slot,
	})
}

func (sseNotifier) TaskSettled(userID uint64, taskID, status string, successCount int) {
	sse.PublishUserEvent(userID, sse.Event{
		Event:  sse.EventTaskSettled,
		TaskID: taskID,
		Status: status,
		Data:   map[string]int{"success_count": successCount},
	})
}
