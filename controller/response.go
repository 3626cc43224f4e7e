package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// 业务响应码
type ResCode int64

const (
	CodeSuccess ResCode = 1000 + iota
	CodeInvalidParams
	CodeServerBusy
	CodeInsufficientQuota
	CodeTaskNotFound
	CodeTaskAbandoned
	CodeQuotaAccountMissing
)

var codeMsgMap = map[ResCode]string{
	CodeSuccess:             "success",
	CodeInvalidParams:       "请求参数错误",
	CodeServerBusy:          "服务繁忙",
	CodeInsufficientQuota:   "生成额度不足",
	CodeTaskNotFound:        "任务不存在",
	CodeTaskAbandoned:       "任务已废弃",
	CodeQuotaAccountMissing: "额度账户不存在",
}

func (c ResCode) Msg() string {
	msg, ok := codeMsgMap[c]
	if !ok {
		msg = codeMsgMap[CodeServerBusy]
	}
	return msg
}

type ResponseData struct {
	Code ResCode     `json:"code"`
	Msg  interface{} `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

func ResponseError(c *gin.Context, code ResCode) {
	c.JSON(http.StatusOK, &ResponseData{
		Code: code,
		Msg:  code.Msg(),
	})
}

func ResponseErrorWithMsg(c *gin.Context, code ResCode, msg interface{}) {
	c.JSON(http.StatusOK, &ResponseData{
		Code: code,
		Msg:  msg,
	})
}

func ResponseSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, &ResponseData{
		Code: CodeSuccess,
		Msg:  CodeSuccess.Msg(),
		Data: data,
	})
}

// parseUserID 从路径参数或查询参数取用户ID；非法时直接写响应并返回 false
func parseUserID(c *gin.Context) (uint64, bool) {
	s := c.Param("user_id")
	if s == "" {
		s = c.Query("user_id")
	}
	userID, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		ResponseError(c, CodeInvalidParams)
		return 0, false
	}
	return userID, true
}
