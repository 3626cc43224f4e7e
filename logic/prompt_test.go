package logic

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superlion8/brand-camera-sub000/models"
)

func TestBuildGenerateRequest_TryOn(t *testing.T) {
	task := &models.TryOnTask{
		TaskID:     "t1",
		Kind:       models.KindTryOn,
		InputImage: "https://img.test/shirt.jpg",
		Params:     map[string]string{"model_style": "日系清新", "size": "2K"},
	}
	req := BuildGenerateRequest(task, 2)

	assert.Equal(t, "t1", req.TaskID)
	assert.Equal(t, 2, req.SlotIndex)
	assert.Equal(t, "2K", req.SizeHint)
	require.Len(t, req.ReferenceImages, 1)
	assert.Equal(t, "https://img.test/shirt.jpg", req.ReferenceImages[0])
	assert.True(t, strings.Contains(req.Prompt, "日系清新"))
}

func TestBuildGenerateRequest_OutfitUsesBothImages(t *testing.T) {
	task := &models.TryOnTask{
		TaskID:      "t2",
		Kind:        models.KindOutfit,
		InputImage:  "https://img.test/top.jpg",
		InputImage2: "https://img.test/skirt.jpg",
	}
	req := BuildGenerateRequest(task, 0)
	require.Len(t, req.ReferenceImages, 2)
	assert.Equal(t, "https://img.test/skirt.jpg", req.ReferenceImages[1])
}

func TestBuildGenerateRequest_KindsDifferOnlyInPrompt(t *testing.T) {
	base := func(kind string) string {
		return BuildGenerateRequest(&models.TryOnTask{TaskID: "t", Kind: kind, InputImage: "u"}, 0).Prompt
	}
	tryon, scene := base(models.KindTryOn), base(models.KindScene)
	assert.NotEqual(t, tryon, scene)
	// 同一任务的不同 slot 用同一份提示词
	task := &models.TryOnTask{TaskID: "t", Kind: models.KindTryOn, InputImage: "u"}
	assert.Equal(t, BuildGenerateRequest(task, 0).Prompt, BuildGenerateRequest(task, 3).Prompt)
}
