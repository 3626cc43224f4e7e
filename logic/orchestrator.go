package logic

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/superlion8/brand-camera-sub000/models"
	"github.com/superlion8/brand-camera-sub000/util"
)

// Orchestrator 把一次用户提交变成 N 个独立的出图 slot：
// 预扣配额 → 错峰派发 → 聚合结算 → 对账（确认/部分退/全额退）→ 落聚合记录。
// slot 级别的失败全部在 slot 粒度吸收，只有预留链路的失败才是任务级失败。
type Orchestrator struct {
	ledger   QuotaLedger
	records  RecordStore
	executor *Executor

	// 以下协作方都可选，为 nil 时跳过（便于单测）
	progress ProgressStore
	handles  HandleStore
	notifier Notifier
	retry    RetryEnqueuer

	stagger   time.Duration
	mirrorDir string // 非空时把主后端出的图镜像到本地目录（尽力而为）

	mu   sync.Mutex
	live map[string]*liveTask // 进行中任务注册表，供轮询和断线重连
}

// liveTask 进行中任务的内存态。task 的全部写入都在 mu 下进行，
// 兄弟 slot 并发结算时不会互相覆盖。
type liveTask struct {
	mu   sync.Mutex
	task *models.TryOnTask

	settledCount int
	successCount int

	// 首图闸门：CAS 保证并发完成的兄弟 slot 里只有一个触发通知
	firstFired atomic.Bool
}

// NewOrchestrator 必选依赖走构造参数，可选协作方用 WithXXX 链式挂上
func NewOrchestrator(ledger QuotaLedger, records RecordStore, executor *Executor, stagger time.Duration) *Orchestrator {
	if stagger < 0 {
		stagger = 0
	}
	return &Orchestrator{
		ledger:   ledger,
		records:  records,
		executor: executor,
		stagger:  stagger,
		live:     make(map[string]*liveTask),
	}
}

func (o *Orchestrator) WithProgress(p ProgressStore) *Orchestrator { o.progress = p; return o }
func (o *Orchestrator) WithHandles(h HandleStore) *Orchestrator    { o.handles = h; return o }
func (o *Orchestrator) WithNotifier(n Notifier) *Orchestrator      { o.notifier = n; return o }
func (o *Orchestrator) WithRetry(r RetryEnqueuer) *Orchestrator    { o.retry = r; return o }
func (o *Orchestrator) WithMirrorDir(dir string) *Orchestrator     { o.mirrorDir = dir; return o }

// CreateTask 纯构造：分配任务ID，所有 slot 置 pending。
// 不做预留也不做任何写入，创建失败和预留失败要能区分开。
func (o *Orchestrator) CreateTask(userID uint64, kind, inputImage, inputImage2 string, params map[string]string, slotCount int) *models.TryOnTask {
	if slotCount <= 0 {
		slotCount = models.DefaultSlotCount(kind)
	}
	// 参数快照：复制一份，派发后外部改选项不影响在途任务
	var snapshot map[string]string
	if len(params) > 0 {
		snapshot = make(map[string]string, len(params))
		for k, v := range params {
			snapshot[k] = v
		}
	}
	slots := make([]models.Slot, slotCount)
	for i := range slots {
		slots[i] = models.Slot{Index: i, Status: models.SlotStatusPending}
	}
	return &models.TryOnTask{
		TaskID:             uuid.New().String(),
		UserID:             userID,
		Kind:               kind,
		InputImage:         inputImage,
		InputImage2:        inputImage2,
		Params:             snapshot,
		RequestedSlotCount: slotCount,
		Status:             models.TaskStatusPending,
		Slots:              slots,
		CreatedAt:          time.Now().Unix(),
	}
}

// Run 执行任务直到全部 slot 结算并完成配额对账。阻塞直至终态，调用方自行决定是否 go 出去。
// 传入的 ctx 只约束预留阶段；slot 一旦派发就不随客户端断开而取消——
// 配额已经扣了，宁可把活干完存下来，也不半途而废。
func (o *Orchestrator) Run(ctx context.Context, t *models.TryOnTask) error {
	lt := &liveTask{task: t}
	o.register(lt)
	defer o.unregister(t.TaskID)

	// 1. 预扣配额。失败则任务直接失败，一个 slot 都不派发。
	if err := o.ledger.Reserve(t.UserID, t.TaskID, t.RequestedSlotCount); err != nil {
		if errors.Is(err, ErrInsufficientQuota) {
			o.failBeforeDispatch(lt, models.FailQuotaExhausted)
			return err
		}
		// 预留系统不可用：任务失败并尽力全额退（可能根本没扣上，FullRefund 幂等无害）
		zap.L().Error("reservation system unavailable", zap.String("task_id", t.TaskID), zap.Error(err))
		if rerr := o.ledger.FullRefund(t.TaskID); rerr != nil {
			zap.L().Error("best-effort full refund failed", zap.String("task_id", t.TaskID), zap.Error(rerr))
		}
		o.failBeforeDispatch(lt, models.FailReservation)
		return err
	}

	// 2. 写记录头。持久层整体不可达是任务级失败，同样走全额退。
	if _, err := o.records.CreateOrUpdateRecord(t); err != nil {
		zap.L().Error("record store unreachable", zap.String("task_id", t.TaskID), zap.Error(err))
		if rerr := o.ledger.FullRefund(t.TaskID); rerr != nil {
			zap.L().Error("best-effort full refund failed", zap.String("task_id", t.TaskID), zap.Error(rerr))
		}
		o.failBeforeDispatch(lt, models.FailReservation)
		return err
	}

	// 3. 写客户端句柄（一次性），刷新页面后靠它找回任务
	lt.mu.Lock()
	t.Status = models.TaskStatusRunning
	lt.mu.Unlock()
	o.saveProgress(lt)
	if o.handles != nil {
		if err := o.handles.SaveHandle(t.UserID, t.TaskID, t.Kind); err != nil {
			zap.L().Warn("failed to save task handle", zap.String("task_id", t.TaskID), zap.Error(err))
		}
	}

	// 4. 错峰派发：slot i 延迟 stagger*i 启动，避免瞬间打爆后端。
	// 完成顺序不做任何假设。
	var wg sync.WaitGroup
	for i := 0; i < t.RequestedSlotCount; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			time.Sleep(time.Duration(idx) * o.stagger)
			o.runSlot(lt, idx)
		}(i)
	}
	wg.Wait()

	// 5. 全部结算后对账：三分支业务规则，恰好触发其中一个，不允许短路。
	return o.settleTask(lt)
}

// runSlot 单个 slot 的完整生命周期：generating → 执行 → 落库 → 终态
func (o *Orchestrator) runSlot(lt *liveTask, idx int) {
	t := lt.task

	// 真正开始执行的瞬间才置 generating，等错峰延迟的 slot 对前端仍是 pending
	lt.mu.Lock()
	t.Slots[idx].Status = models.SlotStatusGenerating
	lt.mu.Unlock()
	o.saveProgress(lt)
	o.notifySlot(lt, idx)

	req := BuildGenerateRequest(t, idx)
	res, backend, err := o.executor.Execute(context.Background(), req)

	if err != nil {
		var sf *SlotFailure
		class := models.FailServerError
		if errors.As(err, &sf) {
			class = sf.Class
		}
		lt.mu.Lock()
		t.Slots[idx].Status = models.SlotStatusFailed
		t.Slots[idx].Error = class
		lt.settledCount++
		lt.mu.Unlock()
		zap.L().Warn("slot failed",
			zap.String("task_id", t.TaskID), zap.Int("slot", idx), zap.String("class", class))
		o.saveProgress(lt)
		o.notifySlot(lt, idx)
		return
	}

	// 生成成功：先同步更新内存态（并发完成的兄弟不会互相越过），再落库
	lt.mu.Lock()
	t.Slots[idx].Status = models.SlotStatusCompleted
	t.Slots[idx].ImageURL = res.ImageURL
	t.Slots[idx].Backend = backend
	lt.settledCount++
	lt.successCount++
	lt.mu.Unlock()

	// 首图通知：CAS 闸门，多 slot 同一刻完成也只会触发一次
	if lt.firstFired.CompareAndSwap(false, true) {
		if o.notifier != nil {
			o.notifier.FirstSuccess(t.UserID, t.TaskID, o.slotSnapshot(lt, idx))
		}
	}

	// 落库恰好一次；失败不改判生成结果，丢进重试队列由消费者补写
	persistedID, perr := o.records.AppendSlotResult(t.TaskID, idx, res.ImageURL, backend)
	if perr != nil {
		zap.L().Error("slot persistence failed, enqueueing retry",
			zap.String("task_id", t.TaskID), zap.Int("slot", idx), zap.Error(perr))
		if o.retry != nil {
			if qerr := o.retry.EnqueuePersistRetry(t, idx, res.ImageURL, backend); qerr != nil {
				zap.L().Error("failed to enqueue persist retry",
					zap.String("task_id", t.TaskID), zap.Int("slot", idx), zap.Error(qerr))
			}
		}
	} else {
		lt.mu.Lock()
		t.Slots[idx].PersistedID = persistedID
		lt.mu.Unlock()
	}

	// 主后端出的是远端URL，镜像一份到本地（尽力而为，失败只记日志）
	if o.mirrorDir != "" && backend == models.BackendPrimary {
		go func(url string) {
			if derr := util.DownloadImage(url, o.mirrorDir, t.TaskID, idx); derr != nil {
				zap.L().Warn("image mirror failed", zap.String("task_id", t.TaskID), zap.Int("slot", idx), zap.Error(derr))
			}
		}(res.ImageURL)
	}

	o.saveProgress(lt)
	o.notifySlot(lt, idx)
}

// settleTask 聚合结算 + 配额对账。successCount 决定唯一的一条账务路径：
// 0 → 全额退 + failed；0<n<K → 退差额 + completed；K → 确认 + completed。
// “部分成功”是一等结果，按成功展示（图少几张），不是降级的失败。
func (o *Orchestrator) settleTask(lt *liveTask) error {
	t := lt.task

	lt.mu.Lock()
	success := lt.successCount
	total := t.RequestedSlotCount
	switch {
	case success == 0:
		t.Status = models.TaskStatusFailed
	default:
		t.Status = models.TaskStatusCompleted
	}
	lt.mu.Unlock()

	var lerr error
	switch {
	case success == 0:
		lerr = o.ledger.FullRefund(t.TaskID)
	case success < total:
		lerr = o.ledger.PartialRefund(t.TaskID, total-success)
	default:
		lerr = o.ledger.Confirm(t.TaskID)
	}
	if lerr != nil {
		// 账务调用失败只记日志：预留行状态机保证后续重试仍幂等
		zap.L().Error("ledger settlement failed",
			zap.String("task_id", t.TaskID), zap.Int("success", success), zap.Error(lerr))
	}

	o.saveProgress(lt)
	o.clearOwnHandle(t)
	if o.notifier != nil {
		o.notifier.TaskSettled(t.UserID, t.TaskID, t.Status, success)
	}
	zap.L().Info("task settled",
		zap.String("task_id", t.TaskID),
		zap.String("status", t.Status),
		zap.Int("success", success),
		zap.Int("total", total))
	return lerr
}

// failBeforeDispatch 派发前中止：任务失败、清句柄、通知观察者
func (o *Orchestrator) failBeforeDispatch(lt *liveTask, reason string) {
	t := lt.task
	lt.mu.Lock()
	t.Status = models.TaskStatusFailed
	t.FailReason = reason
	lt.mu.Unlock()
	o.saveProgress(lt)
	o.clearOwnHandle(t)
	if o.notifier != nil {
		o.notifier.TaskSettled(t.UserID, t.TaskID, t.Status, 0)
	}
}

// clearOwnHandle 只清指向本任务的句柄。SaveHandle 是 SetNX 语义：
// 提交时用户已有别的任务在跑，本任务的句柄根本没写进去，
// 结算时无条件删会把那个任务的句柄误删掉。
func (o *Orchestrator) clearOwnHandle(t *models.TryOnTask) {
	if o.handles == nil {
		return
	}
	h, err := o.handles.LoadHandle(t.UserID)
	if err != nil || h.TaskID != t.TaskID {
		return
	}
	if err := o.handles.ClearHandle(t.UserID); err != nil {
		zap.L().Warn("failed to clear task handle", zap.String("task_id", t.TaskID), zap.Error(err))
	}
}

// LiveTask 返回进行中任务的快照副本；不存在返回 nil
func (o *Orchestrator) LiveTask(taskID string) *models.TryOnTask {
	o.mu.Lock()
	lt, ok := o.live[taskID]
	o.mu.Unlock()
	if !ok {
		return nil
	}
	lt.mu.Lock()
	defer lt.mu.Unlock()
	cp := *lt.task
	cp.Slots = make([]models.Slot, len(lt.task.Slots))
	copy(cp.Slots, lt.task.Slots)
	return &cp
}

func (o *Orchestrator) register(lt *liveTask) {
	o.mu.Lock()
	o.live[lt.task.TaskID] = lt
	o.mu.Unlock()
}

func (o *Orchestrator) unregister(taskID string) {
	o.mu.Lock()
	delete(o.live, taskID)
	o.mu.Unlock()
}

// saveProgress 写进度快照（在锁外做快照拷贝，redis 调用不持锁）
func (o *Orchestrator) saveProgress(lt *liveTask) {
	if o.progress == nil {
		return
	}
	lt.mu.Lock()
	cp := *lt.task
	cp.Slots = make([]models.Slot, len(lt.task.Slots))
	copy(cp.Slots, lt.task.Slots)
	lt.mu.Unlock()
	if err := o.progress.SaveProgress(&cp); err != nil {
		zap.L().Warn("failed to save task progress", zap.String("task_id", cp.TaskID), zap.Error(err))
	}
}

func (o *Orchestrator) notifySlot(lt *liveTask, idx int) {
	if o.notifier == nil {
		return
	}
	o.notifier.SlotUpdate(lt.task.UserID, lt.task.TaskID, o.slotSnapshot(lt, idx))
}

// slotSnapshot 在锁下拷出单个 slot 的值快照
func (o *Orchestrator) slotSnapshot(lt *liveTask, idx int) models.Slot {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.task.Slots[idx]
}
