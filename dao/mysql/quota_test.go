package mysql

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superlion8/brand-camera-sub000/models"
)

func newMockDb(t *testing.T) (sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	old := Db
	Db = sqlx.NewDb(db, "mysql")
	return mock, func() {
		_ = Db.Close()
		Db = old
	}
}

func reservationRows(taskID string, userID uint64, count, refunded int, state string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"task_id", "user_id", "reserved_count", "refunded_count", "state", "created_at", "updated_at",
	}).AddRow(taskID, userID, count, refunded, state, "2026-08-30 12:00:00", "2026-08-30 12:00:00")
}

// 同一 taskID 连续两次 Reserve：第二次命中预留行短路，一条扣费SQL都不能再发
func TestReserveQuota_SameTaskDebitsExactlyOnce(t *testing.T) {
	mock, cleanup := newMockDb(t)
	defer cleanup()

	// 第一次：无预留行 → 事务内扣费 + 写预留行
	mock.ExpectQuery("SELECT task_id, user_id, reserved_count").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE t_user_quota").
		WithArgs(4, uint64(7), 4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO t_quota_reservations").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	// 第二次：预留行已存在 → 直接成功，后面什么都没有
	mock.ExpectQuery("SELECT task_id, user_id, reserved_count").
		WillReturnRows(reservationRows("task-1", 7, 4, 0, models.ReservationReserved))

	require.NoError(t, ReserveQuota(7, "task-1", 4))
	require.NoError(t, ReserveQuota(7, "task-1", 4))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// 余额不足：条件扣费没命中行 → ErrInsufficientQuota，预留行不会写入
func TestReserveQuota_InsufficientBalanceWritesNothing(t *testing.T) {
	mock, cleanup := newMockDb(t)
	defer cleanup()

	mock.ExpectQuery("SELECT task_id, user_id, reserved_count").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE t_user_quota").
		WithArgs(4, uint64(7), 4).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := ReserveQuota(7, "task-1", 4)
	require.ErrorIs(t, err, ErrInsufficientQuota)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// 同一 taskID 连续两次部分退款：状态迁移的条件UPDATE只命中一次，
// 第二次影响行数为 0 → 幂等返回，额度不会被退两遍
func TestPartialRefund_SettlesExactlyOnce(t *testing.T) {
	mock, cleanup := newMockDb(t)
	defer cleanup()

	// 第一次：reserved → partial_refund，返还 1 个额度
	mock.ExpectQuery("SELECT task_id, user_id, reserved_count").
		WillReturnRows(reservationRows("task-1", 7, 4, 0, models.ReservationReserved))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE t_quota_reservations").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE t_user_quota").
		WithArgs(1, uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// 第二次：state 已不是 reserved，条件UPDATE命不中 → 不再返还
	mock.ExpectQuery("SELECT task_id, user_id, reserved_count").
		WillReturnRows(reservationRows("task-1", 7, 4, 1, models.ReservationPartialRefund))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE t_quota_reservations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	require.NoError(t, PartialRefundReservation("task-1", 1))
	require.NoError(t, PartialRefundReservation("task-1", 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Confirm 不返还额度：状态迁移后没有第二条UPDATE
func TestConfirmReservation_NoCreditBack(t *testing.T) {
	mock, cleanup := newMockDb(t)
	defer cleanup()

	mock.ExpectQuery("SELECT task_id, user_id, reserved_count").
		WillReturnRows(reservationRows("task-1", 7, 4, 0, models.ReservationReserved))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE t_quota_reservations").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, ConfirmReservation("task-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Reserve 本身失败后的兜底全额退：没有预留行时无事可做，不报错
func TestFullRefund_MissingReservationIsNoop(t *testing.T) {
	mock, cleanup := newMockDb(t)
	defer cleanup()

	mock.ExpectQuery("SELECT task_id, user_id, reserved_count").
		WillReturnError(sql.ErrNoRows)

	require.NoError(t, FullRefundReservation("task-gone"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
