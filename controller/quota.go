package controller

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/superlion8/brand-camera-sub000/dao/mysql"
)

// GetUserQuotaInfo 查询用户当前的生成额度余额
func GetUserQuotaInfo(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	q, err := mysql.GetUserQuota(userID)
	if err != nil {
		if errors.Is(err, mysql.ErrQuotaAccountMissing) {
			ResponseError(c, CodeQuotaAccountMissing)
			return
		}
		zap.L().Error("GetUserQuotaInfo failed", zap.Uint64("user_id", userID), zap.Error(err))
		ResponseError(c, CodeServerBusy)
		return
	}
	ResponseSuccess(c, q)
}

// InitUserQuotaHandler 初始化用户额度（新用户注册时调用，初始 100）
func InitUserQuotaHandler(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	const initialCredits = 100
	if err := mysql.InitUserQuota(userID, initialCredits); err != nil {
		zap.L().Error("InitUserQuotaHandler failed", zap.Uint64("user_id", userID), zap.Error(err))
		ResponseError(c, CodeServerBusy)
		return
	}
	ResponseSuccess(c, nil)
}

// AddCreditsHandler 充值额度
func AddCreditsHandler(c *gin.Context) {
	var req struct {
		UserID uint64 `json:"user_id" binding:"required"`
		Amount int64  `json:"amount" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		ResponseError(c, CodeInvalidParams)
		return
	}
	if err := mysql.AddCredits(req.UserID, req.Amount); err != nil {
		if errors.Is(err, mysql.ErrQuotaAccountMissing) {
			ResponseError(c, CodeQuotaAccountMissing)
			return
		}
		zap.L().Error("AddCreditsHandler failed", zap.Uint64("user_id", req.UserID), zap.Error(err))
		ResponseError(c, CodeServerBusy)
		return
	}
	ResponseSuccess(c, nil)
}
