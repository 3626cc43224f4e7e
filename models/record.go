package models

// GenerationRecord 是任务的持久化聚合视图，由记录头 + 各 slot 结果行拼装而成。
// OutputImageURLs / BackendsUsed 与 slots 等长同序，未出图的位置为空串。
type GenerationRecord struct {
	RecordID        int64             `json:"record_id"`
	TaskID          string            `json:"task_id"`
	UserID          uint64            `json:"user_id"`
	Kind            string            `json:"kind"`
	SlotCount       int               `json:"slot_count"`
	OutputImageURLs []string          `json:"output_image_urls"`
	BackendsUsed    []string          `json:"backends_used"`
	Params          map[string]string `json:"params,omitempty"`
	CreatedAt       int64             `json:"created_at"`
}

// SlotResult 单个 slot 的落库结果行
type SlotResult struct {
	PersistedID int64  `json:"persisted_id" db:"persisted_id"`
	TaskID      string `json:"task_id" db:"task_id"`
	SlotIndex   int    `json:"slot_index" db:"slot_index"`
	ImageURL    string `json:"image_url" db:"image_url"`
	Backend     string `json:"backend" db:"backend"`
}
