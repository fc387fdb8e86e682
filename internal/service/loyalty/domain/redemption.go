// internal/service/loyalty/domain/redemption.go
package domain

import "time"

// RedemptionStatus 定义了核销请求的生命周期状态。
// 核销是不可逆操作，所以在 PENDING 和 COMPLETED 之间强制插入了
// STAFF_CONFIRMED：店员必须显式二次确认，留出取消窗口，防止误触。
type RedemptionStatus string

const (
	RedemptionPending        RedemptionStatus = "PENDING"
	RedemptionStaffConfirmed RedemptionStatus = "STAFF_CONFIRMED"
	RedemptionCompleted      RedemptionStatus = "COMPLETED"
	RedemptionFailed         RedemptionStatus = "FAILED"
	RedemptionExpired        RedemptionStatus = "EXPIRED"
)

// RedemptionRequest 是核销流程的聚合根。
type RedemptionRequest struct {
	ID             string
	CustomerID     string
	RewardCouponID string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	Status         RedemptionStatus
	ConfirmedAt    *time.Time
	CompletedAt    *time.Time
	FailedAt       *time.Time
	FailReason     string
}

// NewRedemptionRequest 为一张可用的奖励券创建 PENDING 状态的核销请求。
// 券的可用性校验（存在、未使用、未过期）由调用方在同一原子作用域内完成。
func NewRedemptionRequest(id, customerID, couponID string, now time.Time, ttl time.Duration) *RedemptionRequest {
	return &RedemptionRequest{
		ID:             id,
		CustomerID:     customerID,
		RewardCouponID: couponID,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
		Status:         RedemptionPending,
	}
}

// StaffConfirm 店员确认：PENDING -> STAFF_CONFIRMED。
// 已到期的请求落到 EXPIRED 并返回 ErrRequestExpired。
func (r *RedemptionRequest) StaffConfirm(now time.Time) error {
	if r.Status != RedemptionPending {
		return ErrRequestAlreadyDecided
	}
	if !now.Before(r.ExpiresAt) {
		r.Status = RedemptionExpired
		return ErrRequestExpired
	}
	confirmedAt := now
	r.Status = RedemptionStaffConfirmed
	r.ConfirmedAt = &confirmedAt
	return nil
}

// Complete 完成核销：STAFF_CONFIRMED -> COMPLETED。
// 未经店员确认时返回 ErrNotStaffConfirmed，状态机保证 usedAt 不可能被
// 单次点击直接写入。
func (r *RedemptionRequest) Complete(now time.Time) error {
	switch r.Status {
	case RedemptionStaffConfirmed:
	case RedemptionPending:
		return ErrNotStaffConfirmed
	default:
		return ErrRequestAlreadyDecided
	}
	if !now.Before(r.ExpiresAt) {
		r.Status = RedemptionExpired
		return ErrRequestExpired
	}
	completedAt := now
	r.Status = RedemptionCompleted
	r.CompletedAt = &completedAt
	return nil
}

// Fail 从任意非终态流转到 FAILED，用于店员在确认环节拒绝核销。
// 不触碰奖励券。
func (r *RedemptionRequest) Fail(reason string, now time.Time) error {
	if r.IsTerminal() {
		return ErrRequestAlreadyDecided
	}
	failedAt := now
	r.Status = RedemptionFailed
	r.FailedAt = &failedAt
	r.FailReason = reason
	return nil
}

// ExpireIfDue 惰性过期：非终态且已到期则流转到 EXPIRED。
func (r *RedemptionRequest) ExpireIfDue(now time.Time) bool {
	if !r.IsTerminal() && !now.Before(r.ExpiresAt) {
		r.Status = RedemptionExpired
		return true
	}
	return false
}

// IsTerminal 表示请求是否已到达终态。
func (r *RedemptionRequest) IsTerminal() bool {
	switch r.Status {
	case RedemptionCompleted, RedemptionFailed, RedemptionExpired:
		return true
	}
	return false
}
