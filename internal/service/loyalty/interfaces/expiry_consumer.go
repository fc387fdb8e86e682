// internal/service/loyalty/interfaces/expiry_consumer.go
package interfaces

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"loyalty/internal/pkg/logger"
	"loyalty/internal/pkg/mq"
	"loyalty/internal/service/loyalty/application"
	"loyalty/internal/service/loyalty/domain"
)

// ExpiryConsumerAdapter 是驱动适配器：监听到期检查主题，驱动应用服务
// 执行到期流转。到期检查是幂等的 CAS，消息重复投递是无害的空操作，
// 所以这里可以放心地"先处理再提交"。
type ExpiryConsumerAdapter struct {
	reader     *kafka.Reader
	issuance   *application.IssuanceService
	redemption *application.RedemptionService
	wg         sync.WaitGroup
	stopped    bool
}

// NewExpiryConsumerAdapter 创建到期检查消费者。
func NewExpiryConsumerAdapter(reader *kafka.Reader, issuance *application.IssuanceService, redemption *application.RedemptionService) *ExpiryConsumerAdapter {
	return &ExpiryConsumerAdapter{reader: reader, issuance: issuance, redemption: redemption}
}

// Start 开始监听。长期运行，随 ctx 取消退出。
func (a *ExpiryConsumerAdapter) Start(ctx context.Context) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", a.reader.Config().Topic).Msg("expiry consumer started")
		for {
			if a.stopped {
				return
			}
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Msg("expiry consumer shutting down")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("could not fetch message, retrying")
				time.Sleep(1 * time.Second)
				continue
			}

			newCtx := mq.ExtractTraceContext(ctx, msg.Headers)
			a.processMessage(newCtx, msg)

			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("failed to commit message")
			}
		}
	}()
	return nil
}

// Stop 优雅地停止消费者。
func (a *ExpiryConsumerAdapter) Stop(ctx context.Context) {
	a.stopped = true
	a.reader.Close()
	a.wg.Wait()
	logger.Ctx(ctx).Info().Msg("expiry consumer stopped")
}

func (a *ExpiryConsumerAdapter) processMessage(ctx context.Context, msg kafka.Message) {
	ctx, span := otel.Tracer(serviceName).Start(ctx, "consumer.ExpiryCheckDue")
	defer span.End()

	var event domain.ExpiryCheckDue
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal expiry check event, skipping")
		return
	}

	var (
		expired bool
		err     error
	)
	switch event.Kind {
	case domain.KindIssuance:
		expired, err = a.issuance.Expire(ctx, event.RequestID)
	case domain.KindRedemption:
		expired, err = a.redemption.Expire(ctx, event.RequestID)
	default:
		logger.Ctx(ctx).Error().Str("kind", string(event.Kind)).Msg("unknown request kind, skipping")
		return
	}
	if err != nil {
		// 请求可能尚未落库可见或已被清理，留给下一次投递或惰性过期兜底
		logger.Ctx(ctx).Warn().Err(err).
			Str("request_id", event.RequestID).
			Str("kind", string(event.Kind)).
			Msg("failed to apply expiry check")
		return
	}
	if !expired {
		logger.Ctx(ctx).Debug().
			Str("request_id", event.RequestID).
			Msg("expiry check was a no-op, request already settled")
	}
}
