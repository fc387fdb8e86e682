package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAddStampsAccumulates(t *testing.T) {
	now := time.Now()
	bal := NewStampBalance("cust-1", "card-1", now)

	assert.False(t, bal.AddStamps(3, 10, now))
	assert.Equal(t, 3, bal.CurrentCount)

	assert.False(t, bal.AddStamps(4, 10, now))
	assert.Equal(t, 7, bal.CurrentCount)
}

func TestAddStampsClampsAtGoal(t *testing.T) {
	now := time.Now()
	bal := NewStampBalance("cust-1", "card-1", now)
	bal.CurrentCount = 8

	// 超出目标值的部分截断，不进位到下一张券
	assert.True(t, bal.AddStamps(5, 10, now))
	assert.Equal(t, 10, bal.CurrentCount)
}

func TestAddStampsReachedGoalOnlyOnFirstCrossing(t *testing.T) {
	now := time.Now()
	bal := NewStampBalance("cust-1", "card-1", now)

	assert.False(t, bal.AddStamps(9, 10, now))
	assert.True(t, bal.AddStamps(1, 10, now), "first crossing issues the coupon")

	// 已停在目标值上的后续累加不再触发发券
	assert.False(t, bal.AddStamps(3, 10, now))
	assert.Equal(t, 10, bal.CurrentCount)
}

func TestAddStampsExactGoal(t *testing.T) {
	now := time.Now()
	bal := NewStampBalance("cust-1", "card-1", now)

	assert.True(t, bal.AddStamps(10, 10, now))
	assert.Equal(t, 10, bal.CurrentCount)
}

func TestAddStampsUpdatesTimestamp(t *testing.T) {
	created := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	later := created.Add(time.Hour)

	bal := NewStampBalance("cust-1", "card-1", created)
	bal.AddStamps(1, 10, later)
	assert.Equal(t, later, bal.LastUpdatedAt)
}
