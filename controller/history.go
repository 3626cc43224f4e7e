package controller

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/superlion8/brand-camera-sub000/dao/mysql"
	"github.com/superlion8/brand-camera-sub000/dao/store"
)

// GetUserHistory 用户的生成历史，游标分页
// GET /history/:user_id?cursor=&page_size=20
func GetUserHistory(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	cursor := c.Query("cursor")
	pageSize, _ := strconv.Atoi(c.Query("page_size"))

	page, err := store.GetUserTaskHistory(userID, cursor, pageSize)
	if err != nil {
		zap.L().Error("GetUserHistory failed", zap.Uint64("user_id", userID), zap.Error(err))
		ResponseError(c, CodeServerBusy)
		return
	}
	ResponseSuccess(c, page)
}

// GetTaskResults 单个任务的落库结果行（带 persisted_id，收藏/查看用）
func GetTaskResults(c *gin.Context) {
	taskID := c.Param("task_id")
	results, err := mysql.SlotResultsByTaskID(taskID)
	if err != nil {
		zap.L().Error("GetTaskResults failed", zap.String("task_id", taskID), zap.Error(err))
		ResponseError(c, CodeServerBusy)
		return
	}
	if len(results) == 0 {
		ResponseError(c, CodeTaskNotFound)
		return
	}
	ResponseSuccess(c, results)
}
