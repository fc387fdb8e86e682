// internal/service/loyalty/domain/errors.go
package domain

import "errors"

// 业务错误全部是终态条件：同步返回给调用方，不做自动重试。
var (
	ErrNotFound                = errors.New("record not found")
	ErrCardNotActive           = errors.New("stamp card is not active")
	ErrInvalidStampCount       = errors.New("requested stamp count must be at least 1")
	ErrDuplicatePendingRequest = errors.New("customer already has a pending issuance request for this card")
	ErrRequestAlreadyDecided   = errors.New("request has already been decided")
	ErrRequestExpired          = errors.New("request has expired")
	ErrCouponAlreadyUsed       = errors.New("reward coupon has already been used")
	ErrCouponExpired           = errors.New("reward coupon has expired")
	ErrNotStaffConfirmed       = errors.New("redemption has not been confirmed by staff")
	ErrNotEligible             = errors.New("request rejected by card eligibility rule")
)
