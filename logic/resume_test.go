package logic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superlion8/brand-camera-sub000/models"
	"github.com/superlion8/brand-camera-sub000/pkg/generate"
)

func newTestResumption(ledger *fakeLedger, records *fakeRecords) (*ResumptionManager, *Orchestrator, *fakeHandles) {
	exec := NewExecutor(okBackend("p"), okBackend("f"), time.Second)
	handles := newFakeHandles()
	orch := NewOrchestrator(ledger, records, exec, 0).WithHandles(handles)
	return NewResumptionManager(orch, records, handles), orch, handles
}

func TestResume_LiveReattach(t *testing.T) {
	block := make(chan struct{})
	primary := &scriptedBackend{name: "p", fn: func(req generate.Request) (generate.Result, error) {
		<-block
		return generate.Result{ImageURL: "https://cdn.test/x.jpg"}, nil
	}}
	ledger := newFakeLedger()
	records := newFakeRecords()
	exec := NewExecutor(primary, okBackend("f"), time.Second)
	handles := newFakeHandles()
	orch := NewOrchestrator(ledger, records, exec, 0).WithHandles(handles)
	mgr := NewResumptionManager(orch, records, handles)

	task := orch.CreateTask(9, models.KindTryOn, "https://img.test/a.jpg", "", nil, 2)
	done := make(chan struct{})
	go func() {
		_ = orch.Run(context.Background(), task)
		close(done)
	}()
	require.Eventually(t, func() bool {
		return orch.LiveTask(task.TaskID) != nil
	}, time.Second, 5*time.Millisecond)

	got, live, err := mgr.Resume(9, task.TaskID)
	require.NoError(t, err)
	assert.True(t, live)
	assert.Equal(t, task.TaskID, got.TaskID)

	close(block)
	<-done
}

func TestResume_FromDurableRecord(t *testing.T) {
	ledger := newFakeLedger()
	records := newFakeRecords()
	// 持久层里 4 个位置只落了前 2 张图
	records.fetchRec = &models.GenerationRecord{
		RecordID:        11,
		TaskID:          "task-durable",
		UserID:          9,
		Kind:            models.KindTryOn,
		SlotCount:       4,
		OutputImageURLs: []string{"https://cdn.test/0.jpg", "https://cdn.test/1.jpg", "", ""},
		BackendsUsed:    []string{models.BackendPrimary, models.BackendFallback, "", ""},
	}
	mgr, _, _ := newTestResumption(ledger, records)

	got, live, err := mgr.Resume(9, "task-durable")
	require.NoError(t, err)
	assert.False(t, live)
	assert.Equal(t, models.TaskStatusCompleted, got.Status)
	require.Len(t, got.Slots, 4)

	assert.Equal(t, models.SlotStatusCompleted, got.Slots[0].Status)
	assert.Equal(t, "https://cdn.test/0.jpg", got.Slots[0].ImageURL)
	assert.Equal(t, models.BackendPrimary, got.Slots[0].Backend)
	assert.Equal(t, models.SlotStatusCompleted, got.Slots[1].Status)
	assert.Equal(t, models.BackendFallback, got.Slots[1].Backend)
	assert.Equal(t, models.SlotStatusFailed, got.Slots[2].Status)
	assert.Equal(t, models.SlotStatusFailed, got.Slots[3].Status)
	for i, s := range got.Slots {
		assert.Equal(t, i, s.Index)
	}

	// 重建是只读的：不补预留、不派发
	assert.Zero(t, ledger.reserves)
}

// 记录头在派发前就写入了：别的进程还在跑时本进程只能看到一个没有图的记录，
// 这时必须按在途返回快照，不能把进行中的任务重建成失败
func TestResume_InFlightElsewhere_NotReportedFailed(t *testing.T) {
	ledger := newFakeLedger()
	records := newFakeRecords()
	records.fetchRec = &models.GenerationRecord{
		TaskID:          "task-elsewhere",
		UserID:          9,
		Kind:            models.KindTryOn,
		SlotCount:       4,
		OutputImageURLs: []string{"", "", "", ""},
		BackendsUsed:    []string{"", "", "", ""},
	}
	progress := newFakeProgress()
	require.NoError(t, progress.SaveProgress(&models.TryOnTask{
		TaskID:             "task-elsewhere",
		UserID:             9,
		Kind:               models.KindTryOn,
		Status:             models.TaskStatusRunning,
		RequestedSlotCount: 4,
		Slots: []models.Slot{
			{Index: 0, Status: models.SlotStatusGenerating},
			{Index: 1, Status: models.SlotStatusPending},
			{Index: 2, Status: models.SlotStatusPending},
			{Index: 3, Status: models.SlotStatusPending},
		},
	}))
	mgr, _, _ := newTestResumption(ledger, records)
	mgr.WithProgress(progress)

	got, live, err := mgr.Resume(9, "task-elsewhere")
	require.NoError(t, err)
	assert.True(t, live)
	assert.Equal(t, models.TaskStatusRunning, got.Status)
	assert.Equal(t, models.SlotStatusGenerating, got.Slots[0].Status)
}

// 快照已达终态时才允许走持久层重建
func TestResume_TerminalSnapshotFallsThroughToRecord(t *testing.T) {
	ledger := newFakeLedger()
	records := newFakeRecords()
	records.fetchRec = &models.GenerationRecord{
		TaskID:          "task-settled",
		UserID:          9,
		Kind:            models.KindTryOn,
		SlotCount:       2,
		OutputImageURLs: []string{"https://cdn.test/0.jpg", ""},
		BackendsUsed:    []string{models.BackendPrimary, ""},
	}
	progress := newFakeProgress()
	require.NoError(t, progress.SaveProgress(&models.TryOnTask{
		TaskID: "task-settled",
		UserID: 9,
		Status: models.TaskStatusCompleted,
	}))
	mgr, _, _ := newTestResumption(ledger, records)
	mgr.WithProgress(progress)

	got, live, err := mgr.Resume(9, "task-settled")
	require.NoError(t, err)
	assert.False(t, live)
	assert.Equal(t, models.TaskStatusCompleted, got.Status)
	assert.Equal(t, 1, got.SuccessCount())
}

func TestResumeByHandle_StoreOutageIsRetryable(t *testing.T) {
	mgr, _, handles := newTestResumption(newFakeLedger(), newFakeRecords())
	handles.loadErr = errors.New("redis: connection refused")

	_, _, err := mgr.ResumeByHandle(9)
	require.Error(t, err)
	// 基础设施故障不能被说成“任务已废弃”，客户端应当重试
	assert.NotErrorIs(t, err, ErrTaskAbandoned)
}

func TestResume_Abandoned_ClearsHandle(t *testing.T) {
	ledger := newFakeLedger()
	records := newFakeRecords()
	mgr, _, handles := newTestResumption(ledger, records)
	require.NoError(t, handles.SaveHandle(9, "task-gone", models.KindTryOn))

	_, _, err := mgr.Resume(9, "task-gone")
	require.ErrorIs(t, err, ErrTaskAbandoned)
	assert.Equal(t, 1, handles.clears)
	assert.Zero(t, ledger.reserves)
}

func TestResumeByHandle_NoHandle(t *testing.T) {
	mgr, _, _ := newTestResumption(newFakeLedger(), newFakeRecords())

	_, _, err := mgr.ResumeByHandle(9)
	require.ErrorIs(t, err, ErrTaskAbandoned)
}

func TestResumeByHandle_FindsDurable(t *testing.T) {
	ledger := newFakeLedger()
	records := newFakeRecords()
	records.fetchRec = &models.GenerationRecord{
		TaskID:          "task-h",
		UserID:          9,
		Kind:            models.KindScene,
		SlotCount:       2,
		OutputImageURLs: []string{"https://cdn.test/0.jpg", ""},
		BackendsUsed:    []string{models.BackendPrimary, ""},
	}
	mgr, _, handles := newTestResumption(ledger, records)
	require.NoError(t, handles.SaveHandle(9, "task-h", models.KindScene))

	got, live, err := mgr.ResumeByHandle(9)
	require.NoError(t, err)
	assert.False(t, live)
	assert.Equal(t, "task-h", got.TaskID)
	assert.Equal(t, 1, got.SuccessCount())
}

func TestReconstruct_ZeroImagesMeansFailed(t *testing.T) {
	rec := &models.GenerationRecord{
		TaskID:          "task-z",
		SlotCount:       4,
		OutputImageURLs: []string{"", "", "", ""},
		BackendsUsed:    []string{"", "", "", ""},
	}
	got := reconstructFromRecord(rec)
	assert.Equal(t, models.TaskStatusFailed, got.Status)
	assert.Equal(t, 0, got.SuccessCount())
}
