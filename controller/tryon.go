package controller

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/superlion8/brand-camera-sub000/logic"
	"github.com/superlion8/brand-camera-sub000/models"
)

// Handler 试衣任务相关接口
type Handler struct {
	orch     *logic.Orchestrator
	resume   *logic.ResumptionManager
	progress logic.ProgressStore // 可选：跨进程轮询时读redis里的进度快照
}

func NewHandler(orch *logic.Orchestrator, resume *logic.ResumptionManager) *Handler {
	return &Handler{orch: orch, resume: resume}
}

// WithProgress 挂上进度快照存储，轮询接口在本进程没有该任务时先查快照
func (h *Handler) WithProgress(p logic.ProgressStore) *Handler {
	h.progress = p
	return h
}

// SubmitTryOnTask 提交一次生成任务。
// 创建是纯内存操作，立刻返回 202 和全 pending 的 slot 视图；
// 预扣配额和派发在后台 Run 里进行，结果靠 SSE 推送或轮询获取。
func (h *Handler) SubmitTryOnTask(c *gin.Context) {
	var req models.TryOnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		zap.L().Error("SubmitTryOnTask with invalid param", zap.Error(err))
		if errs, ok := err.(validator.ValidationErrors); ok {
			ResponseErrorWithMsg(c, CodeInvalidParams, errs.Error())
			return
		}
		ResponseError(c, CodeInvalidParams)
		return
	}
	if !models.ValidKind(req.Kind) {
		ResponseErrorWithMsg(c, CodeInvalidParams, "unknown kind: "+req.Kind)
		return
	}
	if req.Kind == models.KindOutfit && req.InputImage2 == "" {
		ResponseErrorWithMsg(c, CodeInvalidParams, "outfit kind requires input_image2")
		return
	}

	t := h.orch.CreateTask(req.UserID, req.Kind, req.InputImage, req.InputImage2, req.Params, req.SlotCount)

	// 派发后的工作不跟随本次HTTP请求取消——额度会被扣掉，活要干完
	go func() {
		if err := h.orch.Run(context.Background(), t); err != nil {
			zap.L().Warn("task run finished with error",
				zap.String("task_id", t.TaskID), zap.Error(err))
		}
	}()

	c.JSON(202, gin.H{
		"task_id": t.TaskID,
		"status":  "submitted",
		"slots":   t.RequestedSlotCount,
	})
}

// GetTryOnTask 轮询任务状态：先查在途内存，再走恢复链路查落库记录
func (h *Handler) GetTryOnTask(c *gin.Context) {
	taskID := c.Param("task_id")
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	if t := h.orch.LiveTask(taskID); t != nil {
		ResponseSuccess(c, t.Response())
		return
	}

	// 任务可能在别的进程上跑：redis 进度快照里仍是进行中就直接返回快照
	if h.progress != nil {
		if t, err := h.progress.LoadProgress(userID, taskID); err == nil &&
			(t.Status == models.TaskStatusPending || t.Status == models.TaskStatusRunning) {
			ResponseSuccess(c, t.Response())
			return
		}
	}

	t, _, err := h.resume.Resume(userID, taskID)
	if err != nil {
		if errors.Is(err, logic.ErrTaskAbandoned) {
			ResponseError(c, CodeTaskNotFound)
			return
		}
		zap.L().Error("GetTryOnTask failed", zap.String("task_id", taskID), zap.Error(err))
		ResponseError(c, CodeServerBusy)
		return
	}
	ResponseSuccess(c, t.Response())
}

// ResumeTryOnTask 断线重连：页面重新打开后询问“我有没有没看完的任务”。
// 只读操作，不会补扣额度也不会重新派发。
func (h *Handler) ResumeTryOnTask(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	t, live, err := h.resume.ResumeByHandle(userID)
	if err != nil {
		if errors.Is(err, logic.ErrTaskAbandoned) {
			// 没有可恢复的任务，前端回到提交前状态
			ResponseError(c, CodeTaskAbandoned)
			return
		}
		zap.L().Error("ResumeTryOnTask failed", zap.Uint64("user_id", userID), zap.Error(err))
		ResponseError(c, CodeServerBusy)
		return
	}
	resp := t.Response()
	ResponseSuccess(c, gin.H{
		"live": live,
		"task": resp,
	})
}
