// internal/service/loyalty/infrastructure/adapter/scheduler_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"

	"loyalty/internal/pkg/mq"
	"loyalty/internal/service/loyalty/domain"
)

const (
	// ExpiryCheckTopic 是到期检查任务的真实主题，由 loyalty-service 消费。
	ExpiryCheckTopic = "loyalty-expiry-check-topic"
)

// DelayLevels 定义支持的延迟级别和对应的延迟主题。
// expiry-scheduler 为每个级别起一个轮询器，到期后把消息搬运到
// real-topic 头指定的真实主题。
var DelayLevels = map[string]time.Duration{
	"loyalty_delay_topic_1m":  1 * time.Minute,
	"loyalty_delay_topic_2m":  2 * time.Minute,
	"loyalty_delay_topic_10m": 10 * time.Minute,
}

// SchedulerKafkaAdapter 实现了 port.DelayScheduler 接口。
// 按请求 TTL 选最贴近的延迟级别写入延迟主题；级别粒度导致的晚触发
// 无关紧要，到期流转本身就允许任意晚到。
type SchedulerKafkaAdapter struct {
	brokers []string

	mu      sync.Mutex
	writers map[string]*kafka.Writer // key: 延迟主题
}

// NewSchedulerKafkaAdapter 创建一个新的延迟任务调度器适配器。
func NewSchedulerKafkaAdapter(brokers []string) *SchedulerKafkaAdapter {
	return &SchedulerKafkaAdapter{
		brokers: brokers,
		writers: make(map[string]*kafka.Writer),
	}
}

// ScheduleExpiryCheck 实现了发送延迟消息的逻辑。
func (a *SchedulerKafkaAdapter) ScheduleExpiryCheck(ctx context.Context, kind domain.RequestKind, requestID string, delay time.Duration) error {
	event := domain.ExpiryCheckDue{
		TraceID:   trace.SpanFromContext(ctx).SpanContext().TraceID().String(),
		Kind:      kind,
		RequestID: requestID,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(requestID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "real-topic", Value: []byte(ExpiryCheckTopic)},
		},
	}
	mq.InjectTraceContext(ctx, &msg.Headers)

	return a.writerFor(pickDelayTopic(delay)).WriteMessages(ctx, msg)
}

// Close 关闭所有底层的 Kafka writer。
func (a *SchedulerKafkaAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var firstErr error
	for _, w := range a.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.writers = make(map[string]*kafka.Writer)
	return firstErr
}

func (a *SchedulerKafkaAdapter) writerFor(topic string) *kafka.Writer {
	a.mu.Lock()
	defer a.mu.Unlock()
	if w, ok := a.writers[topic]; ok {
		return w
	}
	w := mq.NewKafkaWriter(a.brokers, topic)
	a.writers[topic] = w
	return w
}

// pickDelayTopic 选择延迟不小于 delay 的最小级别；都不够大时取最大级别。
func pickDelayTopic(delay time.Duration) string {
	type level struct {
		topic string
		d     time.Duration
	}
	levels := make([]level, 0, len(DelayLevels))
	for topic, d := range DelayLevels {
		levels = append(levels, level{topic, d})
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].d < levels[j].d })
	for _, l := range levels {
		if l.d >= delay {
			return l.topic
		}
	}
	return levels[len(levels)-1].topic
}
