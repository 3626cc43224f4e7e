package models

// 任务与分镜位（slot）的状态常量
const (
	TaskStatusPending   = "pending"
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed" // 至少一个 slot 成功
	TaskStatusFailed    = "failed"    // 全部失败，或在派发前中止

	SlotStatusPending    = "pending"
	SlotStatusGenerating = "generating"
	SlotStatusCompleted  = "completed"
	SlotStatusFailed     = "failed"
)

// 生成工作流类型：只影响提示词模板和 slot 数量，不影响编排逻辑
const (
	KindTryOn  = "tryon"  // 单件商品上身
	KindOutfit = "outfit" // 两件商品组合穿搭（需要第二张参考图）
	KindScene  = "scene"  // 商品上身 + 指定场景背景
)

// 后端标识，slot 成功时记录实际出图的后端
const (
	BackendPrimary  = "primary"
	BackendFallback = "fallback"
)

// Slot 是任务内的一个出图位，按 index 稳定寻址，兄弟 slot 之间互相独立。
// 状态只会沿 pending → generating → completed/failed 前进，不会回退。
type Slot struct {
	Index       int    `json:"index"`
	Status      string `json:"status"`
	ImageURL    string `json:"image_url,omitempty"`    // completed 时才有值
	Backend     string `json:"backend,omitempty"`      // completed 时才有值
	Error       string `json:"error,omitempty"`        // failed 时才有值，取 FailXXX 枚举
	PersistedID int64  `json:"persisted_id,omitempty"` // 落库成功后由存储层分配
}

// TryOnTask 是编排器持有的任务主体。
// Slots 长度在创建时固定为 RequestedSlotCount，之后不增不减，slots[i].Index == i 恒成立。
type TryOnTask struct {
	TaskID             string            `json:"task_id"`
	UserID             uint64            `json:"user_id"`
	Kind               string            `json:"kind"`
	InputImage         string            `json:"input_image"`
	InputImage2        string            `json:"input_image2,omitempty"`
	Params             map[string]string `json:"params,omitempty"` // 透传给提示词模板，编排器不解释
	RequestedSlotCount int               `json:"requested_slot_count"`
	Status             string            `json:"status"`
	Slots              []Slot            `json:"slots"`
	CreatedAt          int64             `json:"created_at"`
	FailReason         string            `json:"fail_reason,omitempty"` // 任务级失败原因（如配额不足）
}

// TryOnRequest 用户提交请求体
type TryOnRequest struct {
	UserID      uint64            `json:"user_id" binding:"required"`
	Kind        string            `json:"kind" binding:"required"`
	InputImage  string            `json:"input_image" binding:"required,url"`
	InputImage2 string            `json:"input_image2,omitempty"`
	Params      map[string]string `json:"params,omitempty"`
	SlotCount   int               `json:"slot_count,omitempty"` // 不传时按 kind 默认值
}

// TryOnResponse 返回给用户的任务视图
type TryOnResponse struct {
	TaskID    string `json:"task_id"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
	Slots     []Slot `json:"slots"`
	CreatedAt int64  `json:"created_at,omitempty"`
}

// DefaultSlotCount 返回 kind 对应的默认 slot 数
func DefaultSlotCount(kind string) int {
	switch kind {
	case KindScene:
		return 2
	default:
		return 4
	}
}

// ValidKind 校验工作流类型
func ValidKind(kind string) bool {
	switch kind {
	case KindTryOn, KindOutfit, KindScene:
		return true
	}
	return false
}

// SuccessCount 统计已成功的 slot 数
func (t *TryOnTask) SuccessCount() int {
	n := 0
	for i := range t.Slots {
		if t.Slots[i].Status == SlotStatusCompleted {
			n++
		}
	}
	return n
}

// Settled 是否所有 slot 都到达终态
func (t *TryOnTask) Settled() bool {
	for i := range t.Slots {
		s := t.Slots[i].Status
		if s != SlotStatusCompleted && s != SlotStatusFailed {
			return false
		}
	}
	return true
}

// Response 构造对外视图（拷贝 slots，避免调用方拿到内部切片）
func (t *TryOnTask) Response() TryOnResponse {
	slots := make([]Slot, len(t.Slots))
	copy(slots, t.Slots)
	return TryOnResponse{
		TaskID:    t.TaskID,
		Kind:      t.Kind,
		Status:    t.Status,
		Slots:     slots,
		CreatedAt: t.CreatedAt,
	}
}
