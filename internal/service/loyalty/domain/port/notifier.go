// internal/service/loyalty/domain/port/notifier.go
package port

import (
	"context"

	"loyalty/internal/service/loyalty/domain"
)

// StatusNotifier 把已提交的状态流转广播出去（Kafka 事件流、WebSocket 推送）。
// 通知失败不回滚业务：轮询通道保证最终至少一次观察到最新状态。
type StatusNotifier interface {
	NotifyStatusChanged(ctx context.Context, event *domain.StatusChanged) error
	// NotifyCouponIssued 在台账到达目标值、奖励券落库后广播发券事件。
	NotifyCouponIssued(ctx context.Context, event *domain.CouponIssued) error
}
