// internal/service/loyalty/application/issuance_service.go
package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"loyalty/internal/pkg/clock"
	"loyalty/internal/pkg/logger"
	"loyalty/internal/service/loyalty/domain"
	"loyalty/internal/service/loyalty/domain/port"
)

// IssuanceService 编排集章发放流程：创建请求、终端审批、到期流转，
// 以及审批通过时对印花台账和奖励券的原子变更。
type IssuanceService struct {
	tx        domain.TxManager
	guard     port.PendingGuard    // 可为 nil：本地模式退化为纯事务内检查
	scheduler port.DelayScheduler  // 可为 nil：只依赖惰性过期
	notifier  port.StatusNotifier  // 可为 nil
	rules     port.RuleEngine      // 可为 nil：不启用资格规则
	clock     clock.Clock
	ttl       time.Duration
	tracer    trace.Tracer
}

// NewIssuanceService 创建发放服务实例。
func NewIssuanceService(tx domain.TxManager, guard port.PendingGuard, scheduler port.DelayScheduler, notifier port.StatusNotifier, rules port.RuleEngine, clk clock.Clock, ttl time.Duration, tracer trace.Tracer) *IssuanceService {
	return &IssuanceService{
		tx: tx, guard: guard, scheduler: scheduler, notifier: notifier,
		rules: rules, clock: clk, ttl: ttl, tracer: tracer,
	}
}

// Create 创建一个 PENDING 的发放请求。
// 前置条件：卡是 ACTIVE；count >= 1；(customer, card) 没有其他 PENDING
// 请求——并发重复请求会虚增台账，必须在这里挡住。
func (s *IssuanceService) Create(ctx context.Context, req *CreateIssuanceRequest) (*CreateIssuanceResponse, error) {
	ctx, span := s.tracer.Start(ctx, "issuance.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("customer.id", req.CustomerID),
		attribute.String("card.id", req.StampCardID),
		attribute.Int("stamp.count", req.Count),
	)

	if req.Count < 1 {
		return nil, domain.ErrInvalidStampCount
	}

	// 快路径守卫：并发的重复请求大多数在这里就被拦下，
	// 权威判定仍是下面事务里的 HasPending。
	if s.guard != nil {
		ok, err := s.guard.Acquire(ctx, req.CustomerID, req.StampCardID, s.ttl)
		if err != nil {
			// 守卫不可用时退化为纯事务内检查
			logger.Ctx(ctx).Warn().Err(err).Msg("pending guard unavailable, falling back to store check")
		} else if !ok {
			return nil, domain.ErrDuplicatePendingRequest
		}
	}

	var entity *domain.IssuanceRequest
	err := s.tx.WithinTx(ctx, func(ctx context.Context, r domain.TxRepos) error {
		card, err := r.Cards.FindByID(ctx, req.StampCardID)
		if err != nil {
			return err
		}
		if !card.IsActive() {
			return domain.ErrCardNotActive
		}

		pending, err := r.Issuances.HasPending(ctx, req.CustomerID, req.StampCardID)
		if err != nil {
			return err
		}
		if pending {
			return domain.ErrDuplicatePendingRequest
		}

		if s.rules != nil && card.EligibilityRule != "" {
			current := 0
			if bal, err := r.Balances.Find(ctx, req.CustomerID, req.StampCardID); err == nil {
				current = bal.CurrentCount
			} else if !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			ok, err := s.rules.Evaluate(ctx, card.EligibilityRule, port.EligibilityFact{
				CustomerID:     req.CustomerID,
				RequestedCount: req.Count,
				CurrentCount:   current,
				GoalCount:      card.GoalStampCount,
			})
			if err != nil {
				return errors.Wrap(err, "evaluate eligibility rule")
			}
			if !ok {
				return domain.ErrNotEligible
			}
		}

		entity, err = domain.NewIssuanceRequest(uuid.New().String(), card, req.CustomerID, req.Count, s.clock.Now(), s.ttl)
		if err != nil {
			return err
		}
		return r.Issuances.Save(ctx, entity)
	})
	if err != nil {
		// 真正的重复请求保留守卫占位（它在为在途请求服务）；
		// 其余失败释放占位，让顾客可以立即重试。
		if s.guard != nil && !errors.Is(err, domain.ErrDuplicatePendingRequest) {
			_ = s.guard.Release(ctx, req.CustomerID, req.StampCardID)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create issuance request")
		return nil, err
	}

	if s.scheduler != nil {
		if err := s.scheduler.ScheduleExpiryCheck(ctx, domain.KindIssuance, entity.ID, s.ttl); err != nil {
			// 到期检查是尽力而为：decide 时总会重新校验 expiresAt
			logger.Ctx(ctx).Warn().Err(err).Str("request_id", entity.ID).Msg("failed to schedule expiry check")
		}
	}
	s.notifyStatus(ctx, entity)

	logger.Ctx(ctx).Info().
		Str("request_id", entity.ID).
		Str("customer_id", entity.CustomerID).
		Msg("Issuance request created")
	span.AddEvent("Issuance request created")

	return &CreateIssuanceResponse{RequestID: entity.ID, ExpiresAt: entity.ExpiresAt}, nil
}

// Decide 提交终端的审批决定。compare-and-set：只有 PENDING 且未到期的
// 请求会被流转；APPROVE 分支里台账累加、达标发券和状态流转在同一个
// 事务内提交，崩溃不可能观察到"达标却没有券"。
func (s *IssuanceService) Decide(ctx context.Context, requestID string, decision domain.Decision, decidedBy string) (*IssuanceRequestView, error) {
	ctx, span := s.tracer.Start(ctx, "issuance.Decide")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.id", requestID),
		attribute.String("decision", string(decision)),
		attribute.String("decided.by", decidedBy),
	)

	now := s.clock.Now()
	var (
		entity       *domain.IssuanceRequest
		decideErr    error
		issuedCoupon *domain.RewardCoupon
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, r domain.TxRepos) error {
		req, err := r.Issuances.FindByIDForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		entity = req

		if err := req.Decide(decision, decidedBy, now); err != nil {
			if errors.Is(err, domain.ErrRequestExpired) {
				// 过期流转本身要提交，错误通过 decideErr 带出事务
				decideErr = err
				return r.Issuances.Save(ctx, req)
			}
			return err
		}

		if req.Status == domain.IssuanceApproved {
			card, err := r.Cards.FindByID(ctx, req.StampCardID)
			if err != nil {
				return err
			}
			bal, err := r.Balances.FindOrCreateForUpdate(ctx, req.CustomerID, req.StampCardID)
			if err != nil {
				return err
			}
			reached := bal.AddStamps(req.RequestedStampCount, card.GoalStampCount, now)
			if err := r.Balances.Save(ctx, bal); err != nil {
				return err
			}
			if reached {
				issuedCoupon = domain.NewRewardCoupon(uuid.New().String(), card, req.CustomerID, now)
				if err := r.Coupons.Save(ctx, issuedCoupon); err != nil {
					return err
				}
			}
		}
		return r.Issuances.Save(ctx, req)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// 请求已离开 PENDING，释放重复请求守卫
	if s.guard != nil {
		_ = s.guard.Release(ctx, entity.CustomerID, entity.StampCardID)
	}
	s.notifyStatus(ctx, entity)

	if decideErr != nil {
		span.AddEvent("Decision arrived after expiry")
		return nil, decideErr
	}

	if issuedCoupon != nil {
		s.notifyCouponIssued(ctx, issuedCoupon)
		logger.Ctx(ctx).Info().
			Str("coupon_id", issuedCoupon.ID).
			Str("customer_id", issuedCoupon.CustomerID).
			Str("card_id", issuedCoupon.StampCardID).
			Msg("Stamp goal reached, reward coupon issued")
		span.AddEvent("Reward coupon issued", trace.WithAttributes(attribute.String("coupon.id", issuedCoupon.ID)))
	}
	logger.Ctx(ctx).Info().
		Str("request_id", entity.ID).
		Str("status", string(entity.Status)).
		Str("decided_by", decidedBy).
		Msg("Issuance request decided")

	return newIssuanceView(entity), nil
}

// Expire 应用到期流转，由延迟消息消费者或惰性读取触发。
// 返回本次调用是否真的把请求流转到了 EXPIRED——到期检查可能重复投递，
// 已经离开 PENDING 的请求在这里是无害的空操作。
func (s *IssuanceService) Expire(ctx context.Context, requestID string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "issuance.Expire")
	defer span.End()
	span.SetAttributes(attribute.String("request.id", requestID))

	now := s.clock.Now()
	var (
		entity  *domain.IssuanceRequest
		expired bool
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, r domain.TxRepos) error {
		req, err := r.Issuances.FindByIDForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		entity = req
		if !req.ExpireIfDue(now) {
			return nil
		}
		expired = true
		return r.Issuances.Save(ctx, req)
	})
	if err != nil {
		span.RecordError(err)
		return false, err
	}

	if expired {
		// 守卫键的 TTL 与请求一致，此刻通常已自然过期；显式释放兜底
		if s.guard != nil {
			_ = s.guard.Release(ctx, entity.CustomerID, entity.StampCardID)
		}
		s.notifyStatus(ctx, entity)
		logger.Ctx(ctx).Info().Str("request_id", requestID).Msg("Issuance request expired")
	}
	return expired, nil
}

func (s *IssuanceService) notifyCouponIssued(ctx context.Context, coupon *domain.RewardCoupon) {
	if s.notifier == nil {
		return
	}
	event := &domain.CouponIssued{
		TraceID:     trace.SpanContextFromContext(ctx).TraceID().String(),
		CouponID:    coupon.ID,
		CustomerID:  coupon.CustomerID,
		StampCardID: coupon.StampCardID,
		RewardName:  coupon.RewardName,
		IssuedAt:    coupon.IssuedAt,
	}
	if err := s.notifier.NotifyCouponIssued(ctx, event); err != nil {
		// 同状态通知：失败不回滚业务，钱包轮询兜底
		logger.Ctx(ctx).Warn().Err(err).Str("coupon_id", coupon.ID).Msg("failed to notify coupon issued")
	}
}

func (s *IssuanceService) notifyStatus(ctx context.Context, req *domain.IssuanceRequest) {
	if s.notifier == nil {
		return
	}
	event := &domain.StatusChanged{
		TraceID:    trace.SpanContextFromContext(ctx).TraceID().String(),
		Kind:       domain.KindIssuance,
		RequestID:  req.ID,
		StoreID:    req.StoreID,
		CustomerID: req.CustomerID,
		Status:     string(req.Status),
		OccurredAt: s.clock.Now(),
	}
	if err := s.notifier.NotifyStatusChanged(ctx, event); err != nil {
		// 通知失败不回滚业务：轮询通道保证最终观察到最新状态
		logger.Ctx(ctx).Warn().Err(err).Str("request_id", req.ID).Msg("failed to notify status change")
	}
}
