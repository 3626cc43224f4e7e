package mysql

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/superlion8/brand-camera-sub000/models"
)

// 配额相关表：
//   t_user_quota(user_id PK, credits, vip_level, created_at, updated_at)
//   t_quota_reservations(task_id PK, user_id, reserved_count, refunded_count, state, created_at, updated_at)
// 预留行按 task_id 幂等，state 只允许从 reserved 迁出一次，
// 所有结算操作都用条件 UPDATE 的影响行数做幂等短路。

var (
	ErrInsufficientQuota   = errors.New("insufficient quota")
	ErrQuotaAccountMissing = errors.New("quota account not found")
)

// GetUserQuota 查询用户额度账户
func GetUserQuota(userID uint64) (*models.UserQuota, error) {
	q := &models.UserQuota{}
	sqlStr := "SELECT user_id, credits, vip_level, created_at, updated_at FROM t_user_quota WHERE user_id = ?"
	err := Db.Get(q, sqlStr, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrQuotaAccountMissing
		}
		return nil, err
	}
	return q, nil
}

// InitUserQuota 为新用户初始化额度记录（重复调用等同充值）
func InitUserQuota(userID uint64, initialCredits int64) error {
	sqlStr := `INSERT INTO t_user_quota (user_id, credits, vip_level, created_at, updated_at)
	           VALUES (?, ?, 0, NOW(), NOW())
	           ON DUPLICATE KEY UPDATE credits = credits + ?`
	_, err := Db.Exec(sqlStr, userID, initialCredits, initialCredits)
	return err
}

// AddCredits 给用户充值额度
func AddCredits(userID uint64, amount int64) error {
	if amount <= 0 {
		return errors.New("amount must be greater than 0")
	}
	sqlStr := "UPDATE t_user_quota SET credits = credits + ?, updated_at = NOW() WHERE user_id = ?"
	result, err := Db.Exec(sqlStr, amount, userID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrQuotaAccountMissing
	}
	return nil
}

// GetReservation 按 task_id 读取预留行
func GetReservation(taskID string) (*models.QuotaReservation, error) {
	r := &models.QuotaReservation{}
	sqlStr := `SELECT task_id, user_id, reserved_count, refunded_count, state, created_at, updated_at
	           FROM t_quota_reservations WHERE task_id = ?`
	err := Db.Get(r, sqlStr, taskID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	return r, nil
}

// ReserveQuota 在一个事务内扣减余额并写入预留行。
// 同一 task_id 重复调用是幂等的：预留行已存在时直接返回成功，不会二次扣费。
// 余额不足返回 ErrInsufficientQuota，此时不产生任何写入。
func ReserveQuota(userID uint64, taskID string, count int) error {
	if count <= 0 {
		return errors.New("count must be greater than 0")
	}

	// 1. 幂等短路：预留行已存在说明本任务已扣过费
	if _, err := GetReservation(taskID); err == nil {
		return nil
	} else if err != sql.ErrNoRows {
		return fmt.Errorf("failed to query reservation: %v", err)
	}

	// 2. 开启事务（扣费和预留行必须同生共死）
	tx, err := Db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	// 3. 条件扣费：余额充足才会命中
	result, err := tx.Exec(`
        UPDATE t_user_quota
        SET credits = credits - ?, updated_at = NOW()
        WHERE user_id = ? AND credits >= ?`,
		count, userID, count)
	if err != nil {
		return fmt.Errorf("failed to deduct credits: %v", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrInsufficientQuota
	}

	// 4. 写入预留行；并发下撞到唯一键说明兄弟请求已扣过，回滚本次扣费即可
	_, err = tx.Exec(`
        INSERT INTO t_quota_reservations (task_id, user_id, reserved_count, refunded_count, state, created_at, updated_at)
        VALUES (?, ?, ?, 0, ?, NOW(), NOW())`,
		taskID, userID, count, models.ReservationReserved)
	if err != nil {
		// 并发重试撞唯一键：兄弟请求已经扣过费，放弃本次扣费（事务回滚），视为成功
		if strings.Contains(err.Error(), "Duplicate entry") {
			return nil
		}
		return fmt.Errorf("failed to insert reservation: %v", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reservation: %v", err)
	}
	return nil
}

// settleReservation 把预留行从 reserved 迁到终态并返还 refund 个额度。
// 条件 UPDATE 只会命中一次，重复调用（包括并发重试）直接返回成功。
func settleReservation(taskID string, toState string, refund int) error {
	// 1. 查预留行拿到 user_id 和 reserved_count
	r, err := GetReservation(taskID)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("reservation not found for task %s", taskID)
		}
		return err
	}
	if refund > r.ReservedCount {
		refund = r.ReservedCount
	}

	tx, err := Db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	// 2. 状态迁移（乐观锁：只有 reserved 状态才能迁出）
	result, err := tx.Exec(`
        UPDATE t_quota_reservations
        SET state = ?, refunded_count = ?, updated_at = NOW()
        WHERE task_id = ? AND state = ?`,
		toState, refund, taskID, models.ReservationReserved)
	if err != nil {
		return fmt.Errorf("failed to update reservation state: %v", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// 已经结算过，幂等返回
		return nil
	}

	// 3. 返还额度（Confirm 时 refund 为 0，跳过）
	if refund > 0 {
		if _, err = tx.Exec(`
            UPDATE t_user_quota
            SET credits = credits + ?, updated_at = NOW()
            WHERE user_id = ?`,
			refund, r.UserID); err != nil {
			return fmt.Errorf("failed to credit back: %v", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit settlement: %v", err)
	}
	return nil
}

// ConfirmReservation 全部成功：预留转实扣，不退额度
func ConfirmReservation(taskID string) error {
	return settleReservation(taskID, models.ReservationConfirmed, 0)
}

// PartialRefundReservation 部分成功：按失败数返还
func PartialRefundReservation(taskID string, failedCount int) error {
	if failedCount <= 0 {
		return errors.New("failedCount must be greater than 0")
	}
	return settleReservation(taskID, models.ReservationPartialRefund, failedCount)
}

// FullRefundReservation 零成功或派发前中止：整单返还
func FullRefundReservation(taskID string) error {
	r, err := GetReservation(taskID)
	if err != nil {
		if err == sql.ErrNoRows {
			// 还没预留过（如 Reserve 本身失败后的兜底退款），无事可做
			return nil
		}
		return err
	}
	return settleReservation(taskID, models.ReservationFullRefund, r.ReservedCount)
}
