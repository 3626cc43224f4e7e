package logic

import (
	"strings"

	"github.com/superlion8/brand-camera-sub000/models"
	"github.com/superlion8/brand-camera-sub000/pkg/generate"
)

// 各工作流的提示词模板。params 里的键值只在这里拼进模板，编排器本身不解释。

const tryOnPrompt = `你是一位专业的电商服装摄影师。参考图是一件商品。
生成一张真实感的模特实拍图：模特自然地穿着参考图中的商品，
商品的款式、颜色、图案、材质必须与参考图完全一致，不允许改动商品本身。
构图为电商详情页常用的全身或七分身站姿，光线柔和均匀。`

const outfitPrompt = `你是一位专业的电商服装摄影师。两张参考图分别是两件商品。
生成一张真实感的模特实拍图：同一位模特同时穿着这两件商品组成整套穿搭，
每件商品的款式、颜色、图案、材质必须与对应参考图完全一致。
构图为全身站姿，突出整体搭配效果。`

const scenePrompt = `你是一位专业的电商服装摄影师。参考图是一件商品。
生成一张真实感的模特实拍图：模特穿着参考图中的商品，置身于指定场景中，
商品细节必须与参考图完全一致，场景光线与人物自然融合。`

// BuildGenerateRequest 把任务和 slot 信息组装成后端请求。
// 同一任务的所有 slot 用同一份提示词，多样性来自模型采样本身。
func BuildGenerateRequest(t *models.TryOnTask, slotIndex int) generate.Request {
	var b strings.Builder
	switch t.Kind {
	case models.KindOutfit:
		b.WriteString(outfitPrompt)
	case models.KindScene:
		b.WriteString(scenePrompt)
	default:
		b.WriteString(tryOnPrompt)
	}

	// 用户选择的风格参数透传进提示词
	if v := t.Params["model_style"]; v != "" {
		b.WriteString("\n模特风格：" + v)
	}
	if v := t.Params["background"]; v != "" {
		b.WriteString("\n背景/场景：" + v)
	}
	if v := t.Params["mood"]; v != "" {
		b.WriteString("\n画面氛围：" + v)
	}

	refs := []string{t.InputImage}
	if t.Kind == models.KindOutfit && t.InputImage2 != "" {
		refs = append(refs, t.InputImage2)
	}

	return generate.Request{
		Prompt:          b.String(),
		ReferenceImages: refs,
		SizeHint:        t.Params["size"],
		TaskID:          t.TaskID,
		SlotIndex:       slotIndex,
	}
}
