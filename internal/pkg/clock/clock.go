// internal/pkg/clock/clock.go
package clock

import (
	"sync"
	"time"
)

// Clock 是时间源的抽象。TTL 的计算与到期判断全部经由它完成，
// 服务端的 expiresAt 以它为准，不信任客户端时钟。
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// System 返回基于 time.Now 的系统时钟。
func System() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

// Manual 是可以手动拨动的时钟，仅用于测试。
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual 创建一个停在 start 时刻的手动时钟。
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance 把时钟向前拨动 d。
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set 把时钟直接设置到 t。
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}
