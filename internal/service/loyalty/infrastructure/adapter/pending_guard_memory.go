// internal/service/loyalty/infrastructure/adapter/pending_guard_memory.go
package adapter

import (
	"context"
	"sync"
	"time"

	"loyalty/internal/pkg/clock"
)

// PendingGuardMemoryAdapter 是 port.PendingGuard 的内存实现，
// 供本地开发和测试使用，语义与 Redis 实现一致。
type PendingGuardMemoryAdapter struct {
	clock clock.Clock

	mu    sync.Mutex
	slots map[string]time.Time // key -> 过期时刻
}

// NewPendingGuardMemoryAdapter 创建内存守卫。
func NewPendingGuardMemoryAdapter(clk clock.Clock) *PendingGuardMemoryAdapter {
	return &PendingGuardMemoryAdapter{
		clock: clk,
		slots: make(map[string]time.Time),
	}
}

// Acquire 尝试占位。
func (a *PendingGuardMemoryAdapter) Acquire(ctx context.Context, customerID, cardID string, ttl time.Duration) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	key := guardKey(customerID, cardID)
	if expiresAt, ok := a.slots[key]; ok && now.Before(expiresAt) {
		return false, nil
	}
	a.slots[key] = now.Add(ttl)
	return true, nil
}

// Release 释放占位。
func (a *PendingGuardMemoryAdapter) Release(ctx context.Context, customerID, cardID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.slots, guardKey(customerID, cardID))
	return nil
}
