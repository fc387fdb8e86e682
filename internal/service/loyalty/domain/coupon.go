// internal/service/loyalty/domain/coupon.go
package domain

import "time"

// RewardCoupon 是一张单次使用的奖励券实例。
// 由发放流程在台账到达目标值的那次审批中创建（同一原子单元），
// 之后只有核销流程可以写 UsedAt，且只写一次。
type RewardCoupon struct {
	ID          string
	CustomerID  string
	StampCardID string
	RewardName  string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	UsedAt      *time.Time
}

// NewRewardCoupon 按卡配置创建一张奖励券，有效期为 expireDays 天。
func NewRewardCoupon(id string, card *StampCard, customerID string, now time.Time) *RewardCoupon {
	return &RewardCoupon{
		ID:          id,
		CustomerID:  customerID,
		StampCardID: card.ID,
		RewardName:  card.RewardName,
		IssuedAt:    now,
		ExpiresAt:   now.AddDate(0, 0, card.ExpireDays),
	}
}

// Redeemable 校验券当前是否可发起核销。
func (c *RewardCoupon) Redeemable(now time.Time) error {
	if c.UsedAt != nil {
		return ErrCouponAlreadyUsed
	}
	if !now.Before(c.ExpiresAt) {
		return ErrCouponExpired
	}
	return nil
}

// Use 烧掉这张券。UsedAt 只允许被设置一次。
func (c *RewardCoupon) Use(now time.Time) error {
	if err := c.Redeemable(now); err != nil {
		return err
	}
	usedAt := now
	c.UsedAt = &usedAt
	return nil
}
