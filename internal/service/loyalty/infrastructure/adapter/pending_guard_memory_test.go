package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyalty/internal/pkg/clock"
)

func TestMemoryGuardBlocksDuplicate(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC))
	guard := NewPendingGuardMemoryAdapter(clk)

	ok, err := guard.Acquire(context.Background(), "cust-1", "card-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// 同一 (customer, card) 的第二次占位被挡回
	ok, err = guard.Acquire(context.Background(), "cust-1", "card-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// 不同顾客互不影响
	ok, err = guard.Acquire(context.Background(), "cust-2", "card-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryGuardExpiresWithTTL(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC))
	guard := NewPendingGuardMemoryAdapter(clk)

	ok, err := guard.Acquire(context.Background(), "cust-1", "card-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// TTL 到期后占位自然消失，语义同 Redis 键过期
	clk.Advance(time.Minute)
	ok, err = guard.Acquire(context.Background(), "cust-1", "card-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryGuardRelease(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC))
	guard := NewPendingGuardMemoryAdapter(clk)

	ok, err := guard.Acquire(context.Background(), "cust-1", "card-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, guard.Release(context.Background(), "cust-1", "card-1"))

	ok, err = guard.Acquire(context.Background(), "cust-1", "card-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
