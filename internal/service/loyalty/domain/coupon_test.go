package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRewardCoupon(t *testing.T) {
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	card := activeCard()

	coupon := NewRewardCoupon("coupon-1", card, "cust-1", now)
	assert.Equal(t, "cust-1", coupon.CustomerID)
	assert.Equal(t, card.ID, coupon.StampCardID)
	assert.Equal(t, card.RewardName, coupon.RewardName)
	assert.Equal(t, now.AddDate(0, 0, card.ExpireDays), coupon.ExpiresAt)
	assert.Nil(t, coupon.UsedAt)
}

func TestCouponUse(t *testing.T) {
	now := time.Now()
	coupon := NewRewardCoupon("coupon-1", activeCard(), "cust-1", now)

	usedAt := now.Add(time.Hour)
	require.NoError(t, coupon.Use(usedAt))
	require.NotNil(t, coupon.UsedAt)
	assert.Equal(t, usedAt, *coupon.UsedAt)

	// 双花被拒绝
	err := coupon.Use(now.Add(2 * time.Hour))
	assert.ErrorIs(t, err, ErrCouponAlreadyUsed)
	assert.Equal(t, usedAt, *coupon.UsedAt)
}

func TestCouponRedeemableAfterExpiry(t *testing.T) {
	now := time.Now()
	coupon := NewRewardCoupon("coupon-1", activeCard(), "cust-1", now)

	err := coupon.Redeemable(coupon.ExpiresAt)
	assert.ErrorIs(t, err, ErrCouponExpired)

	err = coupon.Use(coupon.ExpiresAt.Add(time.Hour))
	assert.ErrorIs(t, err, ErrCouponExpired)
	assert.Nil(t, coupon.UsedAt)
}
