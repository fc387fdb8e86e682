// internal/service/loyalty/domain/events.go
package domain

import "time"

// RequestKind 区分两类请求，供过期检查等通用链路复用。
type RequestKind string

const (
	KindIssuance   RequestKind = "ISSUANCE"
	KindRedemption RequestKind = "REDEMPTION"
)

// StatusChanged 是请求状态发生流转时发布的事件。
// 同时写入 Kafka（下游统计/通知）和 WebSocket 推送（终端即时刷新）；
// 轮询仍然是权威同步通道，推送只是降低感知延迟的补充。
type StatusChanged struct {
	TraceID    string      `json:"traceId,omitempty"`
	Kind       RequestKind `json:"kind"`
	RequestID  string      `json:"requestId"`
	StoreID    string      `json:"storeId,omitempty"`
	CustomerID string      `json:"customerId"`
	Status     string      `json:"status"`
	OccurredAt time.Time   `json:"occurredAt"`
}

// ExpiryCheckDue 是延迟主题投递回来的到期检查任务。
// 处理它的一方执行和惰性过期完全相同的 CAS 流转，所以丢失或重复
// 投递都不影响正确性。
type ExpiryCheckDue struct {
	TraceID   string      `json:"traceId,omitempty"`
	Kind      RequestKind `json:"kind"`
	RequestID string      `json:"requestId"`
}

// CouponIssued 在台账到达目标值、奖励券发放时发布。
type CouponIssued struct {
	TraceID     string    `json:"traceId,omitempty"`
	CouponID    string    `json:"couponId"`
	CustomerID  string    `json:"customerId"`
	StampCardID string    `json:"stampCardId"`
	RewardName  string    `json:"rewardName"`
	IssuedAt    time.Time `json:"issuedAt"`
}
