package mysql

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/superlion8/brand-camera-sub000/models"
)

// 生成记录表：
//   tryon_records(record_id PK AUTO_INCREMENT, task_id UNIQUE, user_id, kind, slot_count, params, created_at)
//   tryon_slot_results(persisted_id PK AUTO_INCREMENT, task_id, slot_index, image_url, backend, created_at,
//                      UNIQUE KEY uk_task_slot(task_id, slot_index))
// slot 结果行的唯一键保证每个 slot 恰好落库一次，重复写入会復用已有的 persisted_id。

var ErrRecordNotFound = errors.New("generation record not found")

// CreateOrUpdateRecord 写入（或激活已有的）任务记录头，返回 record_id
func CreateOrUpdateRecord(taskID string, userID uint64, kind string, slotCount int, params map[string]string) (int64, error) {
	paramsJSON := []byte("{}")
	if len(params) > 0 {
		b, err := json.Marshal(params)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal params: %v", err)
		}
		paramsJSON = b
	}
	sqlStr := `INSERT INTO tryon_records (task_id, user_id, kind, slot_count, params, created_at)
	           VALUES (?, ?, ?, ?, ?, ?)
	           ON DUPLICATE KEY UPDATE record_id = LAST_INSERT_ID(record_id)`
	result, err := Db.Exec(sqlStr, taskID, userID, kind, slotCount, string(paramsJSON), time.Now())
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// AppendSlotResult 落库一个 slot 的出图结果，返回 persisted_id。
// (task_id, slot_index) 唯一键下重复写入是幂等的：撞键时查回已有行的 id。
func AppendSlotResult(taskID string, slotIndex int, imageURL, backend string) (int64, error) {
	sqlStr := `INSERT INTO tryon_slot_results (task_id, slot_index, image_url, backend, created_at)
	           VALUES (?, ?, ?, ?, ?)`
	result, err := Db.Exec(sqlStr, taskID, slotIndex, imageURL, backend, time.Now())
	if err != nil {
		if strings.Contains(err.Error(), "Duplicate entry") {
			var existing int64
			if gerr := Db.Get(&existing,
				"SELECT persisted_id FROM tryon_slot_results WHERE task_id = ? AND slot_index = ?",
				taskID, slotIndex); gerr == nil {
				return existing, nil
			}
		}
		return 0, err
	}
	return result.LastInsertId()
}

// FetchByTaskID 把记录头和 slot 结果行拼装成聚合视图。
// OutputImageURLs 按 slot_index 对齐，缺位补空串。
func FetchByTaskID(taskID string) (*models.GenerationRecord, error) {
	var head struct {
		RecordID  int64     `db:"record_id"`
		TaskID    string    `db:"task_id"`
		UserID    uint64    `db:"user_id"`
		Kind      string    `db:"kind"`
		SlotCount int       `db:"slot_count"`
		Params    string    `db:"params"`
		CreatedAt time.Time `db:"created_at"`
	}
	err := Db.Get(&head,
		"SELECT record_id, task_id, user_id, kind, slot_count, params, created_at FROM tryon_records WHERE task_id = ?",
		taskID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	var results []models.SlotResult
	err = Db.Select(&results,
		"SELECT persisted_id, task_id, slot_index, image_url, backend FROM tryon_slot_results WHERE task_id = ? ORDER BY slot_index",
		taskID)
	if err != nil {
		return nil, err
	}

	rec := &models.GenerationRecord{
		RecordID:        head.RecordID,
		TaskID:          head.TaskID,
		UserID:          head.UserID,
		Kind:            head.Kind,
		SlotCount:       head.SlotCount,
		OutputImageURLs: make([]string, head.SlotCount),
		BackendsUsed:    make([]string, head.SlotCount),
		CreatedAt:       head.CreatedAt.Unix(),
	}
	if head.Params != "" && head.Params != "{}" {
		_ = json.Unmarshal([]byte(head.Params), &rec.Params)
	}
	for _, r := range results {
		if r.SlotIndex < 0 || r.SlotIndex >= head.SlotCount {
			continue // 脏数据跳过
		}
		rec.OutputImageURLs[r.SlotIndex] = r.ImageURL
		rec.BackendsUsed[r.SlotIndex] = r.Backend
	}
	return rec, nil
}

// SlotResultsByTaskID 原样返回 slot 结果行（带 persisted_id，供收藏/查看用）
func SlotResultsByTaskID(taskID string) ([]models.SlotResult, error) {
	var results []models.SlotResult
	err := Db.Select(&results,
		"SELECT persisted_id, task_id, slot_index, image_url, backend FROM tryon_slot_results WHERE task_id = ? ORDER BY slot_index",
		taskID)
	return results, err
}
