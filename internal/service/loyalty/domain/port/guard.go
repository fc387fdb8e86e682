// internal/service/loyalty/domain/port/guard.go
package port

import (
	"context"
	"time"
)

// PendingGuard 是"同一 (customer, card) 同时只允许一个 PENDING 发放请求"
// 的快路径守卫，Redis 实现用 SETNX + TTL 在事务之外提前拦截并发重复请求。
// 它只是优化：权威判定仍然是原子作用域内的 HasPending 检查，守卫丢失
// （Redis 重启、键过期）不会破坏正确性。
type PendingGuard interface {
	// Acquire 尝试占位，返回 false 表示已有在途请求。
	Acquire(ctx context.Context, customerID, cardID string, ttl time.Duration) (bool, error)

	// Release 在请求离开 PENDING 后释放占位。尽力而为，失败只记日志。
	Release(ctx context.Context, customerID, cardID string) error
}
