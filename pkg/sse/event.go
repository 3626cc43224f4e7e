package sse

import (
	"encoding/json"
	"log"
	"strconv"
)

// 推送给前端的事件类型
const (
	EventSlotUpdate   = "slot_update"   // 某个 slot 状态变化
	EventFirstSuccess = "first_success" // 任务第一张图出来了，前端可以提前切换展示
	EventTaskSettled  = "task_settled"  // 任务终态结算完成
)

// Event 统一的推送消息体
type Event struct {
	Event     string      `json:"event"`
	TaskID    string      `json:"task_id"`
	SlotIndex int         `json:"slot_index,omitempty"`
	Status    string      `json:"status,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// PublishUserEvent 把事件发到用户自己的 topic。hub 未初始化时静默丢弃（如单测场景）。
func PublishUserEvent(userID uint64, ev Event) {
	h := GetHub()
	if h == nil {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Failed to marshal sse event for task %s: %v", ev.TaskID, err)
		return
	}
	h.PublishTopic(strconv.FormatUint(userID, 10), b)
}
