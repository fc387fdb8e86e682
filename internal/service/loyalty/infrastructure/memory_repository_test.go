package infrastructure

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyalty/internal/service/loyalty/domain"
)

var testTime = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

func seedIssuance(t *testing.T, store *MemoryStore, id, customerID string, status domain.IssuanceStatus, createdAt time.Time) {
	t.Helper()
	err := store.WithinTx(context.Background(), func(ctx context.Context, r domain.TxRepos) error {
		return r.Issuances.Save(ctx, &domain.IssuanceRequest{
			ID:                  id,
			StoreID:             "store-1",
			CustomerID:          customerID,
			StampCardID:         "card-1",
			RequestedStampCount: 1,
			CreatedAt:           createdAt,
			ExpiresAt:           createdAt.Add(2 * time.Minute),
			Status:              status,
		})
	})
	require.NoError(t, err)
}

func TestMemoryStoreRollsBackOnError(t *testing.T) {
	store := NewMemoryStore()
	boom := errors.New("boom")

	err := store.WithinTx(context.Background(), func(ctx context.Context, r domain.TxRepos) error {
		if err := r.Issuances.Save(ctx, &domain.IssuanceRequest{ID: "req-1", Status: domain.IssuancePending}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// 失败的作用域不留痕迹
	err = store.WithinTx(context.Background(), func(ctx context.Context, r domain.TxRepos) error {
		_, err := r.Issuances.FindByID(ctx, "req-1")
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryStoreUnsavedMutationIsInvisible(t *testing.T) {
	store := NewMemoryStore()
	seedIssuance(t, store, "req-1", "cust-1", domain.IssuancePending, testTime)

	// 读到的是副本，未 Save 的修改不泄漏回存储
	err := store.WithinTx(context.Background(), func(ctx context.Context, r domain.TxRepos) error {
		req, err := r.Issuances.FindByIDForUpdate(ctx, "req-1")
		if err != nil {
			return err
		}
		req.Status = domain.IssuanceApproved
		return nil
	})
	require.NoError(t, err)

	err = store.WithinTx(context.Background(), func(ctx context.Context, r domain.TxRepos) error {
		req, err := r.Issuances.FindByID(ctx, "req-1")
		if err != nil {
			return err
		}
		assert.Equal(t, domain.IssuancePending, req.Status)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryHasPending(t *testing.T) {
	store := NewMemoryStore()
	seedIssuance(t, store, "req-1", "cust-1", domain.IssuanceApproved, testTime)

	err := store.WithinTx(context.Background(), func(ctx context.Context, r domain.TxRepos) error {
		pending, err := r.Issuances.HasPending(ctx, "cust-1", "card-1")
		require.NoError(t, err)
		assert.False(t, pending, "non-PENDING requests do not count")
		return nil
	})
	require.NoError(t, err)

	seedIssuance(t, store, "req-2", "cust-1", domain.IssuancePending, testTime)
	err = store.WithinTx(context.Background(), func(ctx context.Context, r domain.TxRepos) error {
		pending, err := r.Issuances.HasPending(ctx, "cust-1", "card-1")
		require.NoError(t, err)
		assert.True(t, pending)

		pending, err = r.Issuances.HasPending(ctx, "cust-2", "card-1")
		require.NoError(t, err)
		assert.False(t, pending)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryFindByFilterOrdering(t *testing.T) {
	store := NewMemoryStore()
	seedIssuance(t, store, "req-b", "cust-1", domain.IssuancePending, testTime.Add(time.Second))
	seedIssuance(t, store, "req-a", "cust-2", domain.IssuancePending, testTime)
	seedIssuance(t, store, "req-c", "cust-1", domain.IssuanceExpired, testTime.Add(2*time.Second))

	err := store.WithinTx(context.Background(), func(ctx context.Context, r domain.TxRepos) error {
		list, err := r.Issuances.FindByFilter(ctx, domain.PollFilter{StoreID: "store-1"})
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "req-a", list[0].ID)
		assert.Equal(t, "req-b", list[1].ID)
		assert.Equal(t, "req-c", list[2].ID)

		list, err = r.Issuances.FindByFilter(ctx, domain.PollFilter{
			Statuses: []domain.IssuanceStatus{domain.IssuancePending},
		})
		require.NoError(t, err)
		assert.Len(t, list, 2)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryBalanceFindOrCreate(t *testing.T) {
	store := NewMemoryStore()

	err := store.WithinTx(context.Background(), func(ctx context.Context, r domain.TxRepos) error {
		bal, err := r.Balances.FindOrCreateForUpdate(ctx, "cust-1", "card-1")
		require.NoError(t, err)
		assert.Equal(t, 0, bal.CurrentCount)

		bal.CurrentCount = 4
		bal.LastUpdatedAt = testTime
		return r.Balances.Save(ctx, bal)
	})
	require.NoError(t, err)

	err = store.WithinTx(context.Background(), func(ctx context.Context, r domain.TxRepos) error {
		bal, err := r.Balances.Find(ctx, "cust-1", "card-1")
		require.NoError(t, err)
		assert.Equal(t, 4, bal.CurrentCount)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryCouponsByCustomer(t *testing.T) {
	store := NewMemoryStore()
	card := &domain.StampCard{ID: "card-1", RewardName: "tea", ExpireDays: 7, Status: domain.CardActive}
	store.SeedCoupon(domain.NewRewardCoupon("coupon-2", card, "cust-1", testTime.Add(time.Hour)))
	store.SeedCoupon(domain.NewRewardCoupon("coupon-1", card, "cust-1", testTime))
	store.SeedCoupon(domain.NewRewardCoupon("coupon-3", card, "cust-2", testTime))

	err := store.WithinTx(context.Background(), func(ctx context.Context, r domain.TxRepos) error {
		coupons, err := r.Coupons.FindByCustomer(ctx, "cust-1")
		require.NoError(t, err)
		require.Len(t, coupons, 2)
		assert.Equal(t, "coupon-1", coupons[0].ID)
		assert.Equal(t, "coupon-2", coupons[1].ID)
		return nil
	})
	require.NoError(t, err)
}
