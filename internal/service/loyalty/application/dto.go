// internal/service/loyalty/application/dto.go
package application

import (
	"time"

	"loyalty/internal/service/loyalty/domain"
)

// CreateIssuanceRequest 是顾客端发起集章请求的入参。
type CreateIssuanceRequest struct {
	StoreID     string `json:"storeId"`
	StampCardID string `json:"stampCardId"`
	CustomerID  string `json:"customerId"`
	Count       int    `json:"count"`
}

// CreateIssuanceResponse 返回请求 ID 和权威截止时间。
// expiresAt 是绝对时间戳，客户端断线重连后据此恢复倒计时。
type CreateIssuanceResponse struct {
	RequestID string    `json:"requestId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// DecideIssuanceRequest 是终端审批的入参。
type DecideIssuanceRequest struct {
	DecidedBy string `json:"decidedBy"`
}

// IssuanceRequestView 是发放请求的完整读视图，轮询接口返回它。
type IssuanceRequestView struct {
	RequestID           string     `json:"requestId"`
	StoreID             string     `json:"storeId"`
	CustomerID          string     `json:"customerId"`
	StampCardID         string     `json:"stampCardId"`
	RequestedStampCount int        `json:"requestedStampCount"`
	CreatedAt           time.Time  `json:"createdAt"`
	ExpiresAt           time.Time  `json:"expiresAt"`
	Status              string     `json:"status"`
	DecidedAt           *time.Time `json:"decidedAt,omitempty"`
	DecidedBy           string     `json:"decidedBy,omitempty"`
}

func newIssuanceView(req *domain.IssuanceRequest) *IssuanceRequestView {
	return &IssuanceRequestView{
		RequestID:           req.ID,
		StoreID:             req.StoreID,
		CustomerID:          req.CustomerID,
		StampCardID:         req.StampCardID,
		RequestedStampCount: req.RequestedStampCount,
		CreatedAt:           req.CreatedAt,
		ExpiresAt:           req.ExpiresAt,
		Status:              string(req.Status),
		DecidedAt:           req.DecidedAt,
		DecidedBy:           req.DecidedBy,
	}
}

// CreateRedemptionRequest 是顾客端发起核销的入参。
type CreateRedemptionRequest struct {
	CustomerID string `json:"customerId"`
	CouponID   string `json:"couponId"`
}

// CreateRedemptionResponse 同发放：返回 ID 和权威截止时间。
type CreateRedemptionResponse struct {
	RequestID string    `json:"requestId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// FailRedemptionRequest 携带店员拒绝核销的原因。
type FailRedemptionRequest struct {
	Reason string `json:"reason"`
}

// RedemptionRequestView 是核销请求的完整读视图。
type RedemptionRequestView struct {
	RequestID      string     `json:"requestId"`
	CustomerID     string     `json:"customerId"`
	RewardCouponID string     `json:"rewardCouponId"`
	CreatedAt      time.Time  `json:"createdAt"`
	ExpiresAt      time.Time  `json:"expiresAt"`
	Status         string     `json:"status"`
	ConfirmedAt    *time.Time `json:"confirmedAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	FailedAt       *time.Time `json:"failedAt,omitempty"`
	FailReason     string     `json:"failReason,omitempty"`
}

func newRedemptionView(req *domain.RedemptionRequest) *RedemptionRequestView {
	return &RedemptionRequestView{
		RequestID:      req.ID,
		CustomerID:     req.CustomerID,
		RewardCouponID: req.RewardCouponID,
		CreatedAt:      req.CreatedAt,
		ExpiresAt:      req.ExpiresAt,
		Status:         string(req.Status),
		ConfirmedAt:    req.ConfirmedAt,
		CompletedAt:    req.CompletedAt,
		FailedAt:       req.FailedAt,
		FailReason:     req.FailReason,
	}
}

// CouponView 是奖励券的读视图。
type CouponView struct {
	CouponID    string     `json:"couponId"`
	CustomerID  string     `json:"customerId"`
	StampCardID string     `json:"stampCardId"`
	RewardName  string     `json:"rewardName"`
	IssuedAt    time.Time  `json:"issuedAt"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	UsedAt      *time.Time `json:"usedAt,omitempty"`
}

func newCouponView(c *domain.RewardCoupon) *CouponView {
	return &CouponView{
		CouponID:    c.ID,
		CustomerID:  c.CustomerID,
		StampCardID: c.StampCardID,
		RewardName:  c.RewardName,
		IssuedAt:    c.IssuedAt,
		ExpiresAt:   c.ExpiresAt,
		UsedAt:      c.UsedAt,
	}
}

// BalanceView 是印花台账的读视图。
type BalanceView struct {
	CustomerID    string    `json:"customerId"`
	StampCardID   string    `json:"stampCardId"`
	CurrentCount  int       `json:"currentCount"`
	GoalCount     int       `json:"goalCount"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
}
