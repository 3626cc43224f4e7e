package logic

import (
	"errors"

	"go.uber.org/zap"

	"github.com/superlion8/brand-camera-sub000/dao/store"
	"github.com/superlion8/brand-camera-sub000/models"
)

// ErrTaskAbandoned 既不在内存也不在持久层：任务已废弃，前端回到提交前状态
var ErrTaskAbandoned = errors.New("task abandoned")

// ErrHandleNotFound 没有记录过进行中的任务（区别于句柄存储本身故障）
var ErrHandleNotFound = store.ErrHandleNotFound

// ResumptionManager 断线重连：客户端刷新或重开页面后，拿着句柄里的 taskID
// 决定是重新挂上在途任务，还是读回已落库的结果，还是判定废弃。
// 整条链路只读——绝不补预留，绝不重新派发。
type ResumptionManager struct {
	orch    *Orchestrator
	records RecordStore
	handles HandleStore

	// 可选：进度快照存储。任务可能在别的进程上跑，本进程的在途注册表
	// 查不到不代表没在跑，快照是跨进程的在途判据。
	progress ProgressStore
}

func NewResumptionManager(orch *Orchestrator, records RecordStore, handles HandleStore) *ResumptionManager {
	return &ResumptionManager{orch: orch, records: records, handles: handles}
}

func (m *ResumptionManager) WithProgress(p ProgressStore) *ResumptionManager {
	m.progress = p
	return m
}

// ResumeByHandle 从句柄存储找回 taskID 再走 Resume。
// 没有句柄报废弃（用户本来就没有进行中的任务）；句柄存储本身故障则原样上抛，
// 让客户端稍后重试，而不是误判成废弃把前端打回提交前状态。
func (m *ResumptionManager) ResumeByHandle(userID uint64) (*models.TryOnTask, bool, error) {
	h, err := m.handles.LoadHandle(userID)
	if err != nil {
		if errors.Is(err, ErrHandleNotFound) {
			return nil, false, ErrTaskAbandoned
		}
		zap.L().Error("resume: handle store failed", zap.Uint64("user_id", userID), zap.Error(err))
		return nil, false, err
	}
	return m.Resume(userID, h.TaskID)
}

// Resume 多级查找。返回的 bool 表示任务仍在途（本进程内存，或别的进程的快照）。
//  1. 进程内还在跑 → 直接返回在途快照；
//  2. 进度快照仍是进行中 → 任务在别的进程上跑，按在途返回快照；
//  3. 持久层有记录 → 重建一个只读的已结算视图；
//  4. 都没有 → 清句柄，报废弃。
//
// 记录头在派发前就已写入，所以第3步只有在快照缺失或已达终态时才可信——
// 不然进行中的任务会被重建视图误报成失败。
func (m *ResumptionManager) Resume(userID uint64, taskID string) (*models.TryOnTask, bool, error) {
	// 1. 在途任务
	if t := m.orch.LiveTask(taskID); t != nil {
		return t, true, nil
	}

	// 2. 跨进程在途：快照还是 pending/running 就说明别的进程在跑
	if m.progress != nil {
		if t, err := m.progress.LoadProgress(userID, taskID); err == nil &&
			(t.Status == models.TaskStatusPending || t.Status == models.TaskStatusRunning) {
			return t, true, nil
		}
	}

	// 3. 持久层重建
	rec, err := m.records.FetchByTaskID(taskID)
	if err == nil {
		return reconstructFromRecord(rec), false, nil
	}
	if !errors.Is(err, ErrRecordNotFound) {
		// 持久层本身出错，不要误清句柄——下次重试可能就读到了
		zap.L().Error("resume: record fetch failed", zap.String("task_id", taskID), zap.Error(err))
		return nil, false, err
	}

	// 4. 废弃：清句柄，回到提交前状态。只清指向本任务的句柄，
	// 用户另一个任务的句柄不能被这里误删。
	if h, lerr := m.handles.LoadHandle(userID); lerr == nil && h.TaskID == taskID {
		if cerr := m.handles.ClearHandle(userID); cerr != nil {
			zap.L().Warn("resume: failed to clear handle", zap.String("task_id", taskID), zap.Error(cerr))
		}
	}
	return nil, false, ErrTaskAbandoned
}

// reconstructFromRecord 用落库数据重建只读任务视图。
// 有图的 slot 是 completed（带 URL 和后端），没图的按 failed 呈现——
// 走到这里说明任务已不在途，没落库的 slot 对用户来说等价于失败。
func reconstructFromRecord(rec *models.GenerationRecord) *models.TryOnTask {
	slots := make([]models.Slot, rec.SlotCount)
	success := 0
	for i := 0; i < rec.SlotCount; i++ {
		slots[i] = models.Slot{Index: i}
		if i < len(rec.OutputImageURLs) && rec.OutputImageURLs[i] != "" {
			slots[i].Status = models.SlotStatusCompleted
			slots[i].ImageURL = rec.OutputImageURLs[i]
			if i < len(rec.BackendsUsed) {
				slots[i].Backend = rec.BackendsUsed[i]
			}
			success++
		} else {
			slots[i].Status = models.SlotStatusFailed
		}
	}
	status := models.TaskStatusCompleted
	if success == 0 {
		status = models.TaskStatusFailed
	}
	return &models.TryOnTask{
		TaskID:             rec.TaskID,
		UserID:             rec.UserID,
		Kind:               rec.Kind,
		Params:             rec.Params,
		RequestedSlotCount: rec.SlotCount,
		Status:             status,
		Slots:              slots,
		CreatedAt:          rec.CreatedAt,
	}
}
