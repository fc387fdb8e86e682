// cmd/expiry-scheduler/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"loyalty/internal/pkg/bootstrap"
	"loyalty/internal/pkg/logger"
	"loyalty/internal/pkg/mq"
	"loyalty/internal/pkg/tracing"
	"loyalty/internal/pkg/zlock"
	"loyalty/internal/service/loyalty/infrastructure/adapter"
)

const (
	serviceName  = "loyalty-expiry-scheduler"
	pollInterval = 1 * time.Second
	lockName     = "expiry-scheduler"
	lockWait     = 30 * time.Second
)

var tracer = otel.Tracer(serviceName)

// Scheduler 负责一个延迟级别的轮询：读延迟主题的队头消息，
// 到期后按 real-topic 头搬运到真实主题。
// 延迟主题内消息天然按进入时间有序，队头未到期则整个级别都未到期。
type Scheduler struct {
	level  string
	delay  time.Duration
	reader *kafka.Reader

	brokers    []string
	writerLock sync.Mutex
	writers    map[string]*kafka.Writer // key: 真实主题
}

// NewScheduler 创建一个针对特定延迟级别的调度器。
func NewScheduler(brokers []string, level string, delay time.Duration) *Scheduler {
	return &Scheduler{
		level:   level,
		delay:   delay,
		reader:  mq.NewKafkaReader(brokers, level, serviceName+"-group-"+level),
		brokers: brokers,
		writers: make(map[string]*kafka.Writer),
	}
}

// Run 启动轮询循环，随 ctx 取消退出。
func (s *Scheduler) Run(ctx context.Context) error {
	logger.Ctx(ctx).Info().
		Str("level", s.level).
		Dur("delay", s.delay).
		Msg("polling scheduler started")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	defer s.reader.Close()
	defer s.closeWriters()

	for {
		select {
		case <-ticker.C:
			s.checkAndPublish(ctx)
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Str("level", s.level).Msg("polling scheduler shutting down")
			return ctx.Err()
		}
	}
}

func (s *Scheduler) checkAndPublish(parentCtx context.Context) {
	for {
		// FetchMessage 不自动提交 offset，投递成功后才提交
		fetchCtx, cancel := context.WithTimeout(parentCtx, pollInterval)
		msg, err := s.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			// 没有新消息或上下文取消，等待下一次 tick
			return
		}

		spanCtx := mq.ExtractTraceContext(parentCtx, msg.Headers)
		ctx, span := tracer.Start(spanCtx, "scheduler.CheckAndPublish", trace.WithAttributes(
			attribute.String("delay.level", s.level),
		))

		deliveryTime := msg.Time.Add(s.delay)
		if time.Now().Before(deliveryTime) {
			// 队头消息未到期，后续消息更不会到期
			span.AddEvent("HeadMessageNotDue")
			span.End()
			return
		}

		realTopic := headerValue(msg.Headers, "real-topic")
		if realTopic == "" {
			logger.Ctx(ctx).Error().Str("level", s.level).Msg("real-topic header missing, skipping message")
			// 坏消息也要提交，否则会被无限重复消费
			if err := s.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("failed to commit skipped message")
			}
			span.End()
			continue
		}

		if err := s.publish(ctx, realTopic, msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("real_topic", realTopic).Msg("failed to publish due message")
			// 投递失败不提交 offset，等待下次轮询重试
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to publish to real topic")
			span.End()
			return
		}

		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("level", s.level).Msg("failed to commit after publish")
			span.RecordError(err)
			span.End()
			return
		}
		span.AddEvent("MessagePublishedAndCommitted", trace.WithAttributes(attribute.String("real.topic", realTopic)))
		span.End()
	}
}

func (s *Scheduler) publish(ctx context.Context, realTopic string, msg kafka.Message) error {
	s.writerLock.Lock()
	writer, ok := s.writers[realTopic]
	if !ok {
		writer = mq.NewKafkaWriter(s.brokers, realTopic)
		s.writers[realTopic] = writer
	}
	s.writerLock.Unlock()

	return mq.ProduceMessage(ctx, writer, msg.Key, msg.Value, msg.Headers...)
}

func (s *Scheduler) closeWriters() {
	s.writerLock.Lock()
	defer s.writerLock.Unlock()
	for _, w := range s.writers {
		w.Close()
	}
	s.writers = make(map[string]*kafka.Writer)
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func main() {
	bootstrap.Init()
	logger.Init(serviceName)
	cfg := bootstrap.GetCurrentConfig()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := tracing.InitTracerProvider(serviceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("failed to initialize tracer provider")
	}
	defer tp.Shutdown(context.Background())

	// 同一时刻只允许一个实例轮询，避免多实例重复投递到期消息。
	// 锁随会话存在：持有者崩溃后临时节点消失，备实例自动接管。
	zkConn, err := zlock.Connect(cfg.Infra.Zookeeper.Servers, 10*time.Second)
	if err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("failed to connect to zookeeper")
	}
	defer zkConn.Close()

	lock, err := zlock.NewDistributedLock(zkConn, lockName)
	if err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("failed to create distributed lock")
	}
	logger.Ctx(ctx).Info().Msg("waiting for scheduler leadership")
	for {
		if err := lock.Lock(lockWait); err == nil {
			break
		}
		// 等待超时后清掉自己的排队节点再重新竞争
		_ = lock.Unlock()
	}
	defer lock.Unlock()
	logger.Ctx(ctx).Info().Msg("acquired scheduler leadership")

	// 每个延迟级别一个独立的轮询器
	group, groupCtx := errgroup.WithContext(ctx)
	for level, delay := range adapter.DelayLevels {
		scheduler := NewScheduler(cfg.Infra.Kafka.Brokers, level, delay)
		group.Go(func() error {
			return scheduler.Run(groupCtx)
		})
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Ctx(ctx).Info().Msg("shutting down expiry scheduler")
	cancel()
	_ = group.Wait()
}
