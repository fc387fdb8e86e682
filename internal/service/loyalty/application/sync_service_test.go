package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyalty/internal/service/loyalty/application"
	"loyalty/internal/service/loyalty/domain"
)

func TestPollFiltersAndOrders(t *testing.T) {
	f := newIssuanceFixture(t, newTestCard(10))
	sync := application.NewSyncService(f.store, f.notifier, f.clock, testTracer)

	first := f.create(t, 1)
	f.clock.Advance(time.Second)
	resp2, err := f.svc.Create(context.Background(), &application.CreateIssuanceRequest{
		StoreID: "store-1", StampCardID: "card-1", CustomerID: "cust-2", Count: 2,
	})
	require.NoError(t, err)

	views, err := sync.Poll(context.Background(), domain.PollFilter{StoreID: "store-1"})
	require.NoError(t, err)
	require.Len(t, views, 2)
	// CreatedAt 升序
	assert.Equal(t, first.RequestID, views[0].RequestID)
	assert.Equal(t, resp2.RequestID, views[1].RequestID)

	views, err = sync.Poll(context.Background(), domain.PollFilter{CustomerID: "cust-2"})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, resp2.RequestID, views[0].RequestID)

	views, err = sync.Poll(context.Background(), domain.PollFilter{StoreID: "store-404"})
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestPollLazilyExpiresDueRequests(t *testing.T) {
	f := newIssuanceFixture(t, newTestCard(10))
	sync := application.NewSyncService(f.store, f.notifier, f.clock, testTracer)

	resp := f.create(t, 1)
	f.clock.Advance(issuanceTTL)

	// 终端只拉 PENDING：刚过期的请求被流转并从结果中剔除
	views, err := sync.Poll(context.Background(), domain.PollFilter{
		StoreID:  "store-1",
		Statuses: []domain.IssuanceStatus{domain.IssuancePending},
	})
	require.NoError(t, err)
	assert.Empty(t, views)
	assert.Equal(t, string(domain.IssuanceExpired), f.notifier.lastStatus())

	// 不带状态过滤时能看到 EXPIRED
	views, err = sync.Poll(context.Background(), domain.PollFilter{StoreID: "store-1"})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, resp.RequestID, views[0].RequestID)
	assert.Equal(t, string(domain.IssuanceExpired), views[0].Status)
}

func TestGetIssuanceLazilyExpires(t *testing.T) {
	f := newIssuanceFixture(t, newTestCard(10))
	sync := application.NewSyncService(f.store, f.notifier, f.clock, testTracer)

	resp := f.create(t, 1)

	view, err := sync.GetIssuance(context.Background(), resp.RequestID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.IssuancePending), view.Status)

	f.clock.Advance(issuanceTTL)
	view, err = sync.GetIssuance(context.Background(), resp.RequestID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.IssuanceExpired), view.Status)

	// 惰性过期已落库：之后的审批被拒绝
	_, err = f.svc.Decide(context.Background(), resp.RequestID, domain.DecisionApprove, "staff-1")
	assert.ErrorIs(t, err, domain.ErrRequestAlreadyDecided)
}

func TestGetIssuanceNotFound(t *testing.T) {
	f := newIssuanceFixture(t, newTestCard(10))
	sync := application.NewSyncService(f.store, nil, f.clock, testTracer)

	_, err := sync.GetIssuance(context.Background(), "req-404")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetBalanceForUnknownCustomerIsZero(t *testing.T) {
	f := newIssuanceFixture(t, newTestCard(10))
	sync := application.NewSyncService(f.store, nil, f.clock, testTracer)

	bal, err := sync.GetBalance(context.Background(), "cust-404", "card-1")
	require.NoError(t, err)
	assert.Equal(t, 0, bal.CurrentCount)
	assert.Equal(t, 10, bal.GoalCount)

	_, err = sync.GetBalance(context.Background(), "cust-1", "card-404")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
