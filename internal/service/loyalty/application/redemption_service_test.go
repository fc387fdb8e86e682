package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyalty/internal/pkg/clock"
	"loyalty/internal/service/loyalty/application"
	"loyalty/internal/service/loyalty/domain"
	"loyalty/internal/service/loyalty/infrastructure"
)

const redemptionTTL = 60 * time.Second

type redemptionFixture struct {
	store     *infrastructure.MemoryStore
	clock     *clock.Manual
	scheduler *fakeScheduler
	notifier  *fakeNotifier
	svc       *application.RedemptionService
}

func newRedemptionFixture(t *testing.T) *redemptionFixture {
	t.Helper()
	card := newTestCard(10)
	f := &redemptionFixture{
		store:     seededStore(card),
		clock:     manualClock(),
		scheduler: &fakeScheduler{},
		notifier:  &fakeNotifier{},
	}
	f.store.SeedCoupon(domain.NewRewardCoupon("coupon-1", card, "cust-1", baseTime))
	f.svc = application.NewRedemptionService(f.store, f.scheduler, f.notifier, f.clock, redemptionTTL, testTracer)
	return f
}

func (f *redemptionFixture) create(t *testing.T) *application.CreateRedemptionResponse {
	t.Helper()
	resp, err := f.svc.Create(context.Background(), &application.CreateRedemptionRequest{
		CustomerID: "cust-1",
		CouponID:   "coupon-1",
	})
	require.NoError(t, err)
	return resp
}

func (f *redemptionFixture) coupon(t *testing.T) *application.CouponView {
	t.Helper()
	sync := application.NewSyncService(f.store, nil, f.clock, testTracer)
	coupons, err := sync.ListCoupons(context.Background(), "cust-1")
	require.NoError(t, err)
	require.Len(t, coupons, 1)
	return coupons[0]
}

func TestRedemptionCreate(t *testing.T) {
	f := newRedemptionFixture(t)

	resp := f.create(t)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, baseTime.Add(redemptionTTL), resp.ExpiresAt)

	require.Len(t, f.scheduler.scheduled, 1)
	assert.Equal(t, domain.KindRedemption, f.scheduler.scheduled[0].kind)
	// 创建核销请求不烧券
	assert.Nil(t, f.coupon(t).UsedAt)
}

func TestRedemptionCreateRejectsForeignCoupon(t *testing.T) {
	f := newRedemptionFixture(t)

	// 他人的券表现为不存在，不泄露存在性
	_, err := f.svc.Create(context.Background(), &application.CreateRedemptionRequest{
		CustomerID: "cust-2",
		CouponID:   "coupon-1",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRedemptionCreateRejectsUsedCoupon(t *testing.T) {
	f := newRedemptionFixture(t)

	resp := f.create(t)
	_, err := f.svc.StaffConfirm(context.Background(), resp.RequestID)
	require.NoError(t, err)
	_, err = f.svc.Complete(context.Background(), resp.RequestID)
	require.NoError(t, err)

	_, err = f.svc.Create(context.Background(), &application.CreateRedemptionRequest{
		CustomerID: "cust-1",
		CouponID:   "coupon-1",
	})
	assert.ErrorIs(t, err, domain.ErrCouponAlreadyUsed)
}

func TestRedemptionCreateRejectsExpiredCoupon(t *testing.T) {
	f := newRedemptionFixture(t)
	f.clock.Advance(31 * 24 * time.Hour) // 券有效期 30 天

	_, err := f.svc.Create(context.Background(), &application.CreateRedemptionRequest{
		CustomerID: "cust-1",
		CouponID:   "coupon-1",
	})
	assert.ErrorIs(t, err, domain.ErrCouponExpired)
}

func TestRedemptionHappyPathBurnsCoupon(t *testing.T) {
	f := newRedemptionFixture(t)
	resp := f.create(t)

	f.clock.Advance(10 * time.Second)
	view, err := f.svc.StaffConfirm(context.Background(), resp.RequestID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.RedemptionStaffConfirmed), view.Status)
	require.NotNil(t, view.ConfirmedAt)

	f.clock.Advance(10 * time.Second)
	view, err = f.svc.Complete(context.Background(), resp.RequestID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.RedemptionCompleted), view.Status)
	require.NotNil(t, view.CompletedAt)

	// usedAt 与 completedAt 同一时刻，同一事务提交
	coupon := f.coupon(t)
	require.NotNil(t, coupon.UsedAt)
	assert.Equal(t, *view.CompletedAt, *coupon.UsedAt)
}

func TestRedemptionCompleteWithoutConfirm(t *testing.T) {
	f := newRedemptionFixture(t)
	resp := f.create(t)

	_, err := f.svc.Complete(context.Background(), resp.RequestID)
	assert.ErrorIs(t, err, domain.ErrNotStaffConfirmed)
	assert.Nil(t, f.coupon(t).UsedAt)
}

func TestRedemptionFailDoesNotBurnCoupon(t *testing.T) {
	f := newRedemptionFixture(t)
	resp := f.create(t)

	_, err := f.svc.StaffConfirm(context.Background(), resp.RequestID)
	require.NoError(t, err)

	f.clock.Advance(5 * time.Second)
	view, err := f.svc.Fail(context.Background(), resp.RequestID, "wrong item")
	require.NoError(t, err)
	assert.Equal(t, string(domain.RedemptionFailed), view.Status)
	assert.Equal(t, "wrong item", view.FailReason)
	require.NotNil(t, view.FailedAt)
	assert.Equal(t, baseTime.Add(5*time.Second), *view.FailedAt)

	// 券未被烧掉，可再次发起核销
	assert.Nil(t, f.coupon(t).UsedAt)
	_, err = f.svc.Create(context.Background(), &application.CreateRedemptionRequest{
		CustomerID: "cust-1",
		CouponID:   "coupon-1",
	})
	require.NoError(t, err)
}

func TestRedemptionConfirmAfterExpiry(t *testing.T) {
	f := newRedemptionFixture(t)
	resp := f.create(t)

	f.clock.Advance(redemptionTTL)
	_, err := f.svc.StaffConfirm(context.Background(), resp.RequestID)
	assert.ErrorIs(t, err, domain.ErrRequestExpired)

	sync := application.NewSyncService(f.store, nil, f.clock, testTracer)
	view, err := sync.GetRedemption(context.Background(), resp.RequestID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.RedemptionExpired), view.Status)
	// 过期不烧券
	assert.Nil(t, f.coupon(t).UsedAt)
}

func TestRedemptionCompleteAfterExpiry(t *testing.T) {
	f := newRedemptionFixture(t)
	resp := f.create(t)

	_, err := f.svc.StaffConfirm(context.Background(), resp.RequestID)
	require.NoError(t, err)

	f.clock.Advance(redemptionTTL)
	_, err = f.svc.Complete(context.Background(), resp.RequestID)
	assert.ErrorIs(t, err, domain.ErrRequestExpired)
	assert.Nil(t, f.coupon(t).UsedAt)
}

func TestRedemptionExpireIsIdempotent(t *testing.T) {
	f := newRedemptionFixture(t)
	resp := f.create(t)

	f.clock.Advance(redemptionTTL)
	expired, err := f.svc.Expire(context.Background(), resp.RequestID)
	require.NoError(t, err)
	assert.True(t, expired)

	expired, err = f.svc.Expire(context.Background(), resp.RequestID)
	require.NoError(t, err)
	assert.False(t, expired)
	assert.Equal(t, string(domain.RedemptionExpired), f.notifier.lastStatus())
}
