// internal/service/loyalty/domain/balance.go
package domain

import "time"

// StampBalance 是 (customer, stampCard) 维度的印花台账。
// 不变式：0 <= CurrentCount <= goal。只有发放流程的 APPROVED 流转
// 会修改它，且修改必须和状态流转发生在同一个原子作用域内。
type StampBalance struct {
	CustomerID    string
	StampCardID   string
	CurrentCount  int
	LastUpdatedAt time.Time
}

// NewStampBalance 创建一个空台账。
func NewStampBalance(customerID, cardID string, now time.Time) *StampBalance {
	return &StampBalance{
		CustomerID:    customerID,
		StampCardID:   cardID,
		LastUpdatedAt: now,
	}
}

// AddStamps 把 count 枚印花计入余额，超出目标值的部分截断。
// 仅当余额在本次累加中首次到达 goal 时返回 true，调用方据此发放
// 唯一的一张奖励券；余额已经停在 goal 上的后续累加不再触发。
func (b *StampBalance) AddStamps(count, goal int, now time.Time) (reachedGoal bool) {
	b.LastUpdatedAt = now
	if b.CurrentCount >= goal {
		return false
	}
	next := b.CurrentCount + count
	if next >= goal {
		next = goal
		reachedGoal = true
	}
	b.CurrentCount = next
	return reachedGoal
}
