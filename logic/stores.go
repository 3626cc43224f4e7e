package logic

import (
	"github.com/superlion8/brand-camera-sub000/dao/mysql"
	"github.com/superlion8/brand-camera-sub000/dao/store"
	"github.com/superlion8/brand-camera-sub000/models"
	"github.com/superlion8/brand-camera-sub000/pkg/queue"
)

// ErrRecordNotFound 持久层没有这个任务的记录
var ErrRecordNotFound = mysql.ErrRecordNotFound

// mysqlRecordStore 生产环境的结果存储
type mysqlRecordStore struct{}

func NewMySQLRecordStore() RecordStore {
	return mysqlRecordStore{}
}

func (mysqlRecordStore) CreateOrUpdateRecord(t *models.TryOnTask) (int64, error) {
	return mysql.CreateOrUpdateRecord(t.TaskID, t.UserID, t.Kind, t.RequestedSlotCount, t.Params)
}

func (mysqlRecordStore) AppendSlotResult(taskID string, slotIndex int, imageURL, backend string) (int64, error) {
	return mysql.AppendSlotResult(taskID, slotIndex, imageURL, backend)
}

func (mysqlRecordStore) FetchByTaskID(taskID string) (*models.GenerationRecord, error) {
	return mysql.FetchByTaskID(taskID)
}

// redisHandleStore 客户端句柄存在redis里
type redisHandleStore struct{}

func NewRedisHandleStore() HandleStore {
	return redisHandleStore{}
}

func (redisHandleStore) SaveHandle(userID uint64, taskID, kind string) error {
	return store.SaveTaskHandle(userID, taskID, kind)
}

func (redisHandleStore) LoadHandle(userID uint64) (*TaskHandle, error) {
	h, err := store.LoadTaskHandle(userID)
	if err != nil {
		return nil, err
	}
	return &TaskHandle{TaskID: h.TaskID, Kind: h.Kind}, nil
}

func (redisHandleStore) ClearHandle(userID uint64) error {
	return store.ClearTaskHandle(userID)
}

// redisProgressStore 进度快照存在redis里
type redisProgressStore struct{}

func NewRedisProgressStore() ProgressStore {
	return redisProgressStore{}
}

func (redisProgressStore) SaveProgress(t *models.TryOnTask) error {
	return store.SaveTaskProgress(t)
}

func (redisProgressStore) LoadProgress(userID uint64, taskID string) (*models.TryOnTask, error) {
	return store.GetTaskProgress(userID, taskID)
}

// amqpRetryEnqueuer 把落库重试丢进 RabbitMQ
type amqpRetryEnqueuer struct{}

func NewAMQPRetryEnqueuer() RetryEnqueuer {
	return amqpRetryEnqueuer{}
}

func (amqpRetryEnqueuer) EnqueuePersistRetry(t *models.TryOnTask, slotIndex int, imageURL, backend string) error {
	q, err := queue.GetPersistRetryQueue()
	if err != nil {
		return err
	}
	return q.PublishRetry(queue.PersistRetryMessage{
		TaskID:    t.TaskID,
		UserID:    t.UserID,
		SlotIndex: slotIndex,
		ImageURL:  imageURL,
		Backend:   backend,
	})
}
