// internal/service/loyalty/infrastructure/adapter/notifier_fanout.go
package adapter

import (
	"context"

	"loyalty/internal/pkg/logger"
	"loyalty/internal/service/loyalty/domain"
	"loyalty/internal/service/loyalty/domain/port"
)

// NotifierFanout 把同一个状态流转事件广播给多个下游通道
// （Kafka 事件流 + WebSocket 推送）。单个通道失败只记日志，
// 不影响其余通道，也不向调用方返回错误。
type NotifierFanout struct {
	targets []port.StatusNotifier
}

// NewNotifierFanout 创建广播适配器，nil 目标被忽略。
func NewNotifierFanout(targets ...port.StatusNotifier) *NotifierFanout {
	fanout := &NotifierFanout{}
	for _, t := range targets {
		if t != nil {
			fanout.targets = append(fanout.targets, t)
		}
	}
	return fanout
}

// NotifyStatusChanged 实现 port.StatusNotifier。
func (f *NotifierFanout) NotifyStatusChanged(ctx context.Context, event *domain.StatusChanged) error {
	for _, t := range f.targets {
		if err := t.NotifyStatusChanged(ctx, event); err != nil {
			logger.Ctx(ctx).Warn().Err(err).
				Str("request_id", event.RequestID).
				Msg("status notifier target failed")
		}
	}
	return nil
}

// NotifyCouponIssued 实现 port.StatusNotifier。
func (f *NotifierFanout) NotifyCouponIssued(ctx context.Context, event *domain.CouponIssued) error {
	for _, t := range f.targets {
		if err := t.NotifyCouponIssued(ctx, event); err != nil {
			logger.Ctx(ctx).Warn().Err(err).
				Str("coupon_id", event.CouponID).
				Msg("coupon notifier target failed")
		}
	}
	return nil
}
