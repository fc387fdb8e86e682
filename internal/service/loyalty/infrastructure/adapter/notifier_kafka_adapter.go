// internal/service/loyalty/infrastructure/adapter/notifier_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"loyalty/internal/pkg/mq"
	"loyalty/internal/service/loyalty/domain"
)

const (
	// StatusChangedTopic 是请求状态流转事件的主题，供下游统计和通知消费。
	StatusChangedTopic = "loyalty-status-changed-topic"
	// CouponIssuedTopic 是发券事件的主题，供营销和对账消费。
	CouponIssuedTopic = "loyalty-coupon-issued-topic"
)

// NotifierKafkaAdapter 把状态流转和发券事件写入 Kafka。
// 状态事件按 requestID 做 Key，发券事件按 customerID 做 Key：
// 同一请求/同一顾客的事件有序落在同一分区。
type NotifierKafkaAdapter struct {
	statusWriter *kafka.Writer
	couponWriter *kafka.Writer
}

// NewNotifierKafkaAdapter 创建事件通知适配器。
func NewNotifierKafkaAdapter(brokers []string) *NotifierKafkaAdapter {
	return &NotifierKafkaAdapter{
		statusWriter: mq.NewKafkaWriter(brokers, StatusChangedTopic),
		couponWriter: mq.NewKafkaWriter(brokers, CouponIssuedTopic),
	}
}

// NotifyStatusChanged 实现 port.StatusNotifier。
func (a *NotifierKafkaAdapter) NotifyStatusChanged(ctx context.Context, event *domain.StatusChanged) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return mq.ProduceMessage(ctx, a.statusWriter, []byte(event.RequestID), payload)
}

// NotifyCouponIssued 实现 port.StatusNotifier。
func (a *NotifierKafkaAdapter) NotifyCouponIssued(ctx context.Context, event *domain.CouponIssued) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return mq.ProduceMessage(ctx, a.couponWriter, []byte(event.CustomerID), payload)
}

// Close 关闭底层的 Kafka writer。
func (a *NotifierKafkaAdapter) Close() error {
	statusErr := a.statusWriter.Close()
	if err := a.couponWriter.Close(); err != nil && statusErr == nil {
		statusErr = err
	}
	return statusErr
}
