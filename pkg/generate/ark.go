package generate

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/volcengine/volcengine-go-sdk/service/arkruntime"
	"github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"
	"github.com/volcengine/volcengine-go-sdk/volcengine"
)

// ArkBackend 主后端：方舟 seedream 图生图
type ArkBackend struct {
	client *arkruntime.Client
	model  string
	size   string
}

func NewArkBackend(modelID, size string) *ArkBackend {
	return &ArkBackend{
		client: arkruntime.NewClientWithApiKey(os.Getenv("ARK_API_KEY")),
		model:  modelID,
		size:   size,
	}
}

func (b *ArkBackend) Name() string { return "ark" }

// Generate 单次调用出一张图。超时由调用方通过 ctx 控制。
func (b *ArkBackend) Generate(ctx context.Context, req Request) (Result, error) {
	var seq model.SequentialImageGeneration = "disabled" // 每个 slot 只要一张
	generateReq := model.GenerateImagesRequest{
		Model:                     b.model,
		Prompt:                    req.Prompt,
		Image:                     req.ReferenceImages,
		Size:                      volcengine.String(b.size),
		ResponseFormat:            volcengine.String(model.GenerateImagesResponseFormatURL),
		Watermark:                 volcengine.Bool(false),
		SequentialImageGeneration: &seq,
	}
	if req.SizeHint != "" {
		generateReq.Size = volcengine.String(req.SizeHint)
	}

	resp, err := b.client.GenerateImages(ctx, generateReq)
	if err != nil {
		return Result{}, err
	}
	if resp.Error != nil {
		return Result{}, fmt.Errorf("ark api error: %s - %s", resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Data) == 0 || resp.Data[0].Url == nil || *resp.Data[0].Url == "" {
		// 响应没报错但拿不到图，按畸形响应处理
		return Result{}, ErrMalformedResponse
	}
	return Result{ImageURL: *resp.Data[0].Url}, nil
}

var _ Backend = (*ArkBackend)(nil)

// 哨兵检查：没配 API key 时尽早暴露而不是首次出图才失败
func CheckArkEnv() error {
	if os.Getenv("ARK_API_KEY") == "" {
		return errors.New("ARK_API_KEY not set")
	}
	return nil
}
