package models

// 配额预留行的状态机：reserved 是唯一可迁出状态，
// 三个终态分别对应 Confirm / PartialRefund / FullRefund，迁移只发生一次。
const (
	ReservationReserved      = "reserved"
	ReservationConfirmed     = "confirmed"
	ReservationPartialRefund = "partial_refund"
	ReservationFullRefund    = "full_refund"
)

// QuotaReservation 一次任务的配额预留记录，按 task_id 幂等
type QuotaReservation struct {
	TaskID        string `json:"task_id" db:"task_id"`
	UserID        uint64 `json:"user_id" db:"user_id"`
	ReservedCount int    `json:"reserved_count" db:"reserved_count"`
	RefundedCount int    `json:"refunded_count" db:"refunded_count"`
	State         string `json:"state" db:"state"`
	CreatedAt     string `json:"created_at" db:"created_at"`
	UpdatedAt     string `json:"updated_at" db:"updated_at"`
}

// UserQuota 用户生成额度账户
type UserQuota struct {
	UserID    uint64 `json:"user_id" db:"user_id"`
	Credits   int64  `json:"credits" db:"credits"`
	VipLevel  uint8  `json:"vip_level" db:"vip_level"`
	CreatedAt string `json:"created_at" db:"created_at"`
	UpdatedAt string `json:"updated_at" db:"updated_at"`
}
