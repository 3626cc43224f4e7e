package store

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/superlion8/brand-camera-sub000/models"
)

var (
	Client *redis.Client
	ctx    = context.Background()
)

// ErrHandleNotFound 本地没有记录过进行中的任务
var ErrHandleNotFound = errors.New("task handle not found")

func Init(addr string) (err error) {
	Client = redis.NewClient(&redis.Options{
		Addr: addr,
	})

	_, err = Client.Ping(ctx).Result()
	if err != nil {
		return err
	}
	return nil
}

func GetRedis() *redis.Client {
	return Client
}

func taskKey(userID uint64, taskID string) string {
	return "user:" + strconv.FormatUint(userID, 10) + ":tryontask:" + taskID
}

func handleKey(userID uint64) string {
	return "user:" + strconv.FormatUint(userID, 10) + ":tryon:handle"
}

// SaveTaskProgress 把任务当前快照写入redis，供前端轮询和历史页使用。
// slots 整体序列化成一个字段，避免字段数随 slot 数膨胀。
func SaveTaskProgress(t *models.TryOnTask) error {
	slotsJSON, err := json.Marshal(t.Slots)
	if err != nil {
		return err
	}
	key := taskKey(t.UserID, t.TaskID)
	fields := map[string]interface{}{
		"kind":       t.Kind,
		"status":     t.Status,
		"slots":      string(slotsJSON),
		"slot_count": t.RequestedSlotCount,
		"created_at": t.CreatedAt,
	}
	// 使用 pipeline 把 HSet 和 Expire 放在同一个请求组里
	pipe := Client.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, 24*time.Hour)
	_, err = pipe.Exec(ctx)
	if err != nil {
		//日志报错
		log.Printf("Failed to store task progress %s: %v", t.TaskID, err)
		return err
	}
	return nil
}

// GetTaskProgress 读回任务快照，key 不存在时返回 redis.Nil
func GetTaskProgress(userID uint64, taskID string) (*models.TryOnTask, error) {
	key := taskKey(userID, taskID)
	hash, err := Client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(hash) == 0 {
		return nil, redis.Nil
	}
	t := &models.TryOnTask{
		TaskID: taskID,
		UserID: userID,
		Kind:   hash["kind"],
		Status: hash["status"],
	}
	t.RequestedSlotCount, _ = strconv.Atoi(hash["slot_count"])
	t.CreatedAt, _ = strconv.ParseInt(hash["created_at"], 10, 64)
	if s := hash["slots"]; s != "" {
		_ = json.Unmarshal([]byte(s), &t.Slots)
	}
	return t, nil
}

// TaskHandle 客户端侧任务句柄：刷新页面后靠它重新定位任务
type TaskHandle struct {
	TaskID    string `json:"task_id"`
	Kind      string `json:"kind"`
	CreatedAt int64  `json:"created_at"`
}

// SaveTaskHandle 任务创建时写一次句柄。SetNX 保证句柄只在没有进行中任务时写入，
// 不会被并发提交覆盖掉正在跑的任务。
func SaveTaskHandle(userID uint64, taskID, kind string) error {
	h := TaskHandle{TaskID: taskID, Kind: kind, CreatedAt: time.Now().Unix()}
	b, err := json.Marshal(h)
	if err != nil {
		return err
	}
	ok, err := Client.SetNX(ctx, handleKey(userID), string(b), 24*time.Hour).Result()
	if err != nil {
		log.Printf("Failed to save task handle for user %d: %v", userID, err)
		return err
	}
	if !ok {
		return errors.New("another task handle already present")
	}
	return nil
}

// LoadTaskHandle 读取句柄；没有进行中任务时返回 ErrHandleNotFound
func LoadTaskHandle(userID uint64) (*TaskHandle, error) {
	s, err := Client.Get(ctx, handleKey(userID)).Result()
	if err == redis.Nil {
		return nil, ErrHandleNotFound
	}
	if err != nil {
		return nil, err
	}
	var h TaskHandle
	if err := json.Unmarshal([]byte(s), &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// ClearTaskHandle 任务终态结算或判定废弃后清掉句柄
func ClearTaskHandle(userID uint64) error {
	return Client.Del(ctx, handleKey(userID)).Err()
}
