package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultSlotCount(t *testing.T) {
	assert.Equal(t, 4, DefaultSlotCount(KindTryOn))
	assert.Equal(t, 4, DefaultSlotCount(KindOutfit))
	assert.Equal(t, 2, DefaultSlotCount(KindScene))
}

func TestValidKind(t *testing.T) {
	assert.True(t, ValidKind(KindTryOn))
	assert.True(t, ValidKind(KindOutfit))
	assert.True(t, ValidKind(KindScene))
	assert.False(t, ValidKind("video"))
	assert.False(t, ValidKind(""))
}

func TestTaskSettledAndSuccessCount(t *testing.T) {
	task := &TryOnTask{
		Slots: []Slot{
			{Index: 0, Status: SlotStatusCompleted},
			{Index: 1, Status: SlotStatusGenerating},
			{Index: 2, Status: SlotStatusFailed},
		},
	}
	assert.False(t, task.Settled())
	assert.Equal(t, 1, task.SuccessCount())

	task.Slots[1].Status = SlotStatusFailed
	assert.True(t, task.Settled())
	assert.Equal(t, 1, task.SuccessCount())
}

func TestTaskResponseCopiesSlots(t *testing.T) {
	task := &TryOnTask{
		TaskID: "t1",
		Slots:  []Slot{{Index: 0, Status: SlotStatusPending}},
	}
	resp := task.Response()
	resp.Slots[0].Status = SlotStatusCompleted
	assert.Equal(t, SlotStatusPending, task.Slots[0].Status)
}
