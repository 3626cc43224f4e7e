package generate

import (
	"context"

	"google.golang.org/genai"

	"github.com/superlion8/brand-camera-sub000/util"
)

// GeminiBackend 备用后端：走 gemini 图像生成，出图后落到本地目录。
// 它接受更小的工作图尺寸，所以主后端因负载或图片过大失败时还有机会成功。
type GeminiBackend struct {
	model     string
	publicDir string
}

func NewGeminiBackend(modelID, publicDir string) *GeminiBackend {
	return &GeminiBackend{model: modelID, publicDir: publicDir}
}

func (b *GeminiBackend) Name() string { return "gemini" }

func (b *GeminiBackend) Generate(ctx context.Context, req Request) (Result, error) {
	// genai client 从环境变量 GEMINI_API_KEY 读取鉴权
	client, err := genai.NewClient(ctx, nil)
	if err != nil {
		return Result{}, err
	}

	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	for _, img := range req.ReferenceImages {
		parts = append(parts, genai.NewPartFromURI(img, "image/jpeg"))
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := client.Models.GenerateContent(ctx, b.model, contents, nil)
	if err != nil {
		return Result{}, err
	}
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return Result{}, ErrMalformedResponse
	}

	// 从候选里捞第一块内联图片数据
	for _, p := range result.Candidates[0].Content.Parts {
		if p.InlineData != nil && len(p.InlineData.Data) > 0 {
			url, err := util.SaveImage(p.InlineData.Data, b.publicDir, req.TaskID, req.SlotIndex)
			if err != nil {
				return Result{}, err
			}
			return Result{ImageURL: url}, nil
		}
	}
	return Result{}, ErrMalformedResponse
}

var _ Backend = (*GeminiBackend)(nil)
