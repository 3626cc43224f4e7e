package logic

import (
	"github.com/superlion8/brand-camera-sub000/dao/mysql"
)

// ErrInsufficientQuota 余额不足，预留失败（派发前的致命错误）
var ErrInsufficientQuota = mysql.ErrInsufficientQuota

// mysqlLedger 生产环境的配额账本，落在MySQL上
type mysqlLedger struct{}

// NewMySQLLedger 返回基于 dao/mysql 的账本实现
func NewMySQLLedger() QuotaLedger {
	return mysqlLedger{}
}

func (mysqlLedger) Reserve(userID uint64, taskID string, count int) error {
	return mysql.ReserveQuota(userID, taskID, count)
}

func (mysqlLedger) Confirm(taskID string) error {
	return mysql.ConfirmReservation(taskID)
}

func (mysqlLedger) PartialRefund(taskID string, failedCount int) error {
	return mysql.PartialRefundReservation(taskID, failedCount)
}

func (mysqlLedger) FullRefund(taskID string) error {
	return mysql.FullRefundReservation(taskID)
}
