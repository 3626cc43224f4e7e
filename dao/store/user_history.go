package store

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TaskRecord 用户生成历史里的一条任务
type TaskRecord struct {
	TaskID    string `json:"task_id"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
	SlotCount int    `json:"slot_count"`
	CreatedAt int64  `json:"created_at"`
	Cursor    string `json:"cursor,omitempty"`
}

// UserHistoryPage 分页结果
type UserHistoryPage struct {
	Tasks      []TaskRecord `json:"tasks"`
	NextCursor string       `json:"next_cursor"` // 下一页游标，空表示无更多数据
	HasMore    bool         `json:"has_more"`
	Total      int64        `json:"total"` // 当前页任务数
	PageSize   int          `json:"page_size"`
}

// GetUserTaskHistory 根据用户ID从Redis获取生成历史，支持游标分页
// cursor: 分页游标，首次请求传空字符串
// pageSize: 每页返回的任务数，建议 10-50
func GetUserTaskHistory(userID uint64, cursor string, pageSize int) (*UserHistoryPage, error) {
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 10 // 默认 10
	}

	// 使用 SCAN 命令扫描该用户的全部任务key
	prefix := fmt.Sprintf("user:%d:tryontask:", userID)
	pattern := prefix + "*"

	var (
		scanCursor uint64
		allKeys    []string
	)
	for {
		keys, newCursor, err := Client.Scan(ctx, scanCursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan redis keys: %v", err)
		}
		allKeys = append(allKeys, keys...)
		scanCursor = newCursor
		if scanCursor == 0 {
			break
		}
	}

	// 解析任务记录
	tasks := make([]TaskRecord, 0, len(allKeys))
	for _, key := range allKeys {
		rec, err := parseTaskFromKey(key, prefix)
		if err != nil {
			continue // 解析失败的key跳过
		}
		tasks = append(tasks, rec)
	}

	// 按创建时间降序，最新的在前
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt != tasks[j].CreatedAt {
			return tasks[i].CreatedAt > tasks[j].CreatedAt
		}
		return tasks[i].TaskID > tasks[j].TaskID
	})

	// 应用游标分页
	startIdx := 0
	if cursor != "" {
		for i, rec := range tasks {
			if rec.TaskID == cursor {
				startIdx = i + 1
				break
			}
		}
	}

	endIdx := startIdx + pageSize
	hasMore := endIdx < len(tasks)
	if endIdx > len(tasks) {
		endIdx = len(tasks)
	}

	pageItems := tasks[startIdx:endIdx]
	nextCursor := ""
	if hasMore && len(pageItems) > 0 {
		nextCursor = pageItems[len(pageItems)-1].TaskID
	}

	return &UserHistoryPage{
		Tasks:      pageItems,
		NextCursor: nextCursor,
		HasMore:    hasMore,
		Total:      int64(len(pageItems)),
		PageSize:   pageSize,
	}, nil
}

// parseTaskFromKey 从Redis key还原一条历史记录
func parseTaskFromKey(key, prefix string) (TaskRecord, error) {
	if !strings.HasPrefix(key, prefix) {
		return TaskRecord{}, fmt.Errorf("unknown key format: %s", key)
	}
	taskID := strings.TrimPrefix(key, prefix)

	data, err := Client.HGetAll(ctx, key).Result()
	if err != nil {
		return TaskRecord{}, err
	}
	if len(data) == 0 {
		return TaskRecord{}, fmt.Errorf("empty task hash: %s", key)
	}

	rec := TaskRecord{
		TaskID: taskID,
		Kind:   data["kind"],
		Status: data["status"],
		Cursor: taskID,
	}
	rec.SlotCount, _ = strconv.Atoi(data["slot_count"])
	rec.CreatedAt, _ = strconv.ParseInt(data["created_at"], 10, 64)
	return rec, nil
}
