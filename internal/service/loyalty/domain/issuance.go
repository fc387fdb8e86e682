// internal/service/loyalty/domain/issuance.go
package domain

import (
	"fmt"
	"time"
)

// IssuanceStatus 定义了发放请求的生命周期状态。
// PENDING 只允许流转一次，之后任何决定都会被拒绝。
type IssuanceStatus string

const (
	IssuancePending  IssuanceStatus = "PENDING"
	IssuanceApproved IssuanceStatus = "APPROVED"
	IssuanceRejected IssuanceStatus = "REJECTED"
	IssuanceExpired  IssuanceStatus = "EXPIRED"
)

// Decision 是终端做出的决定。
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// IssuanceRequest 是发放流程的聚合根。
// ExpiresAt 存绝对时间戳：权威截止时间在服务端，不受客户端时钟漂移
// 和断线重连影响。创建后不可变。
type IssuanceRequest struct {
	ID                  string
	StoreID             string
	CustomerID          string
	StampCardID         string
	RequestedStampCount int
	CreatedAt           time.Time
	ExpiresAt           time.Time
	Status              IssuanceStatus
	DecidedAt           *time.Time // PENDING 或未经决定直接过期时为 nil
	DecidedBy           string
}

// NewIssuanceRequest 用工厂函数创建一个 PENDING 状态的发放请求。
func NewIssuanceRequest(id string, card *StampCard, customerID string, count int, now time.Time, ttl time.Duration) (*IssuanceRequest, error) {
	if !card.IsActive() {
		return nil, ErrCardNotActive
	}
	if count < 1 {
		return nil, ErrInvalidStampCount
	}
	return &IssuanceRequest{
		ID:                  id,
		StoreID:             card.StoreID,
		CustomerID:          customerID,
		StampCardID:         card.ID,
		RequestedStampCount: count,
		CreatedAt:           now,
		ExpiresAt:           now.Add(ttl),
		Status:              IssuancePending,
	}, nil
}

// Decide 应用终端的决定。只有 PENDING 且未到期的请求可以被决定；
// 重复决定返回 ErrRequestAlreadyDecided 而不是静默接受，防止台账被重复记账。
// 到期后收到的决定按 ErrRequestExpired 拒绝，同时把状态落到 EXPIRED
// （不设置 DecidedAt —— 过期不算决定）。
func (r *IssuanceRequest) Decide(decision Decision, decidedBy string, now time.Time) error {
	if r.Status != IssuancePending {
		return ErrRequestAlreadyDecided
	}
	if !now.Before(r.ExpiresAt) {
		r.Status = IssuanceExpired
		return ErrRequestExpired
	}
	switch decision {
	case DecisionApprove:
		r.Status = IssuanceApproved
	case DecisionReject:
		r.Status = IssuanceRejected
	default:
		return fmt.Errorf("unknown decision: %q", decision)
	}
	decidedAt := now
	r.DecidedAt = &decidedAt
	r.DecidedBy = decidedBy
	return nil
}

// ExpireIfDue 惰性过期：PENDING 且已到期则流转到 EXPIRED。
// 返回值表示本次调用是否发生了流转。过期绝不触碰台账。
func (r *IssuanceRequest) ExpireIfDue(now time.Time) bool {
	if r.Status == IssuancePending && !now.Before(r.ExpiresAt) {
		r.Status = IssuanceExpired
		return true
	}
	return false
}

// IsTerminal 表示请求是否已离开 PENDING。
func (r *IssuanceRequest) IsTerminal() bool {
	return r.Status != IssuancePending
}
