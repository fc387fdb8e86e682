package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeCard() *StampCard {
	return &StampCard{
		ID:             "card-1",
		StoreID:        "store-1",
		GoalStampCount: 10,
		RewardName:     "free coffee",
		RewardQuantity: 1,
		ExpireDays:     30,
		Status:         CardActive,
	}
}

func TestNewIssuanceRequest(t *testing.T) {
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	req, err := NewIssuanceRequest("req-1", activeCard(), "cust-1", 3, now, 120*time.Second)
	require.NoError(t, err)
	assert.Equal(t, IssuancePending, req.Status)
	assert.Equal(t, "store-1", req.StoreID)
	assert.Equal(t, now.Add(120*time.Second), req.ExpiresAt)
	assert.Nil(t, req.DecidedAt)
	assert.False(t, req.IsTerminal())
}

func TestNewIssuanceRequestRejectsInactiveCard(t *testing.T) {
	now := time.Now()
	for _, status := range []CardStatus{CardDraft, CardPaused, CardArchived} {
		card := activeCard()
		card.Status = status
		_, err := NewIssuanceRequest("req-1", card, "cust-1", 1, now, time.Minute)
		assert.ErrorIs(t, err, ErrCardNotActive, "status %s", status)
	}
}

func TestNewIssuanceRequestRejectsNonPositiveCount(t *testing.T) {
	now := time.Now()
	for _, count := range []int{0, -1} {
		_, err := NewIssuanceRequest("req-1", activeCard(), "cust-1", count, now, time.Minute)
		assert.ErrorIs(t, err, ErrInvalidStampCount)
	}
}

func TestDecideApprove(t *testing.T) {
	now := time.Now()
	req, err := NewIssuanceRequest("req-1", activeCard(), "cust-1", 2, now, time.Minute)
	require.NoError(t, err)

	decidedAt := now.Add(30 * time.Second)
	require.NoError(t, req.Decide(DecisionApprove, "staff-1", decidedAt))
	assert.Equal(t, IssuanceApproved, req.Status)
	require.NotNil(t, req.DecidedAt)
	assert.Equal(t, decidedAt, *req.DecidedAt)
	assert.Equal(t, "staff-1", req.DecidedBy)
	assert.True(t, req.IsTerminal())
}

func TestDecideReject(t *testing.T) {
	now := time.Now()
	req, err := NewIssuanceRequest("req-1", activeCard(), "cust-1", 2, now, time.Minute)
	require.NoError(t, err)

	require.NoError(t, req.Decide(DecisionReject, "staff-1", now.Add(time.Second)))
	assert.Equal(t, IssuanceRejected, req.Status)
}

func TestDecideIsSingleShot(t *testing.T) {
	now := time.Now()
	req, err := NewIssuanceRequest("req-1", activeCard(), "cust-1", 2, now, time.Minute)
	require.NoError(t, err)
	require.NoError(t, req.Decide(DecisionApprove, "staff-1", now.Add(time.Second)))

	// 重复决定被拒绝，状态和审计字段保持第一次的值
	err = req.Decide(DecisionReject, "staff-2", now.Add(2*time.Second))
	assert.ErrorIs(t, err, ErrRequestAlreadyDecided)
	assert.Equal(t, IssuanceApproved, req.Status)
	assert.Equal(t, "staff-1", req.DecidedBy)
}

func TestDecideAfterExpiry(t *testing.T) {
	now := time.Now()
	req, err := NewIssuanceRequest("req-1", activeCard(), "cust-1", 2, now, time.Minute)
	require.NoError(t, err)

	err = req.Decide(DecisionApprove, "staff-1", now.Add(time.Minute))
	assert.ErrorIs(t, err, ErrRequestExpired)
	assert.Equal(t, IssuanceExpired, req.Status)
	assert.Nil(t, req.DecidedAt, "expiry is not a decision")
	assert.Empty(t, req.DecidedBy)
}

func TestDecideUnknownDecision(t *testing.T) {
	now := time.Now()
	req, err := NewIssuanceRequest("req-1", activeCard(), "cust-1", 2, now, time.Minute)
	require.NoError(t, err)

	err = req.Decide(Decision("MAYBE"), "staff-1", now.Add(time.Second))
	require.Error(t, err)
	assert.Equal(t, IssuancePending, req.Status)
}

func TestExpireIfDue(t *testing.T) {
	now := time.Now()
	req, err := NewIssuanceRequest("req-1", activeCard(), "cust-1", 2, now, time.Minute)
	require.NoError(t, err)

	assert.False(t, req.ExpireIfDue(now.Add(59*time.Second)))
	assert.Equal(t, IssuancePending, req.Status)

	assert.True(t, req.ExpireIfDue(now.Add(time.Minute)))
	assert.Equal(t, IssuanceExpired, req.Status)

	// 已过期后的重复检查是空操作
	assert.False(t, req.ExpireIfDue(now.Add(2*time.Minute)))
}

func TestExpireIfDueSkipsDecidedRequest(t *testing.T) {
	now := time.Now()
	req, err := NewIssuanceRequest("req-1", activeCard(), "cust-1", 2, now, time.Minute)
	require.NoError(t, err)
	require.NoError(t, req.Decide(DecisionApprove, "staff-1", now.Add(time.Second)))

	assert.False(t, req.ExpireIfDue(now.Add(time.Hour)))
	assert.Equal(t, IssuanceApproved, req.Status)
}
