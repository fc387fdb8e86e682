// internal/service/loyalty/domain/port/scheduler.go
package port

import (
	"context"
	"time"

	"loyalty/internal/service/loyalty/domain"
)

// DelayScheduler 把"TTL 到点检查这个请求"安排到未来执行。
// Kafka 实现写入延迟主题，由 expiry-scheduler 到期后搬运到真实主题。
// 调度是尽力而为的：decide 在决定时刻无论如何都会校验 expiresAt，
// 到期检查丢失只影响状态展示的及时性，不影响正确性。
type DelayScheduler interface {
	ScheduleExpiryCheck(ctx context.Context, kind domain.RequestKind, requestID string, delay time.Duration) error
}
