// internal/service/loyalty/application/redemption_service.go
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

// RedemptionService 编排奖励券核销流程。核销不可逆，所以协议要求
// 店员确认（StaffConfirm）和完成（Complete)两次显式动作，且 TTL 刻意
// 短于发放流程。
type RedemptionService struct {
	tx        domain.TxManager
	scheduler port.DelayScheduler // 可为 nil
	notifier  port.StatusNotifier // 可为 nil
	clock     clock.Clock
	ttl       time.Duration
	tracer    trace.Tracer
}

// NewRedemptionService 创建核销服务实例。
func NewRedemptionService(tx domain.TxManager, scheduler port.DelayScheduler, notifier port.StatusNotifier, clk clock.Clock, ttl time.Duration, tracer trace.Tracer) *RedemptionService {
	return &RedemptionService{tx: tx, scheduler: scheduler, notifier: notifier, clock: clk, ttl: ttl, tracer: tracer}
}

// Create 为一张可用的奖励券创建 PENDING 的核销请求。
// 前置条件：券存在、属于该顾客、未使用、未过期。
func (s *RedemptionService) Create(ctx context.Context, req *CreateRedemptionRequest) (*CreateRedemptionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "redemption.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("customer.id", req.CustomerID),
		attribute.String("coupon.id", req.CouponID),
	)

	now := s.clock.Now()
	var (
		entity  *domain.RedemptionRequest
		storeID string
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, r domain.TxRepos) error {
		coupon, err := r.Coupons.FindByID(ctx, req.CouponID)
		if err != nil {
			return err
		}
		// 不泄露他人券的存在性
		if coupon.CustomerID != req.CustomerID {
			return domain.ErrNotFound
		}
		if err := coupon.Redeemable(now); err != nil {
			return err
		}
		// 店铺 ID 仅用于通知路由，卡配置缺失时容忍为空
		if card, err := r.Cards.FindByID(ctx, coupon.StampCardID); err == nil {
			storeID = card.StoreID
		}

		entity = domain.NewRedemptionRequest(uuid.New().String(), req.CustomerID, req.CouponID, now, s.ttl)
		return r.Redemptions.Save(ctx, entity)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create redemption request")
		return nil, err
	}

	if s.scheduler != nil {
		if err := s.scheduler.ScheduleExpiryCheck(ctx, domain.KindRedemption, entity.ID, s.ttl); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("request_id", entity.ID).Msg("failed to schedule expiry check")
		}
	}
	s.notifyStatus(ctx, entity, storeID)

	logger.Ctx(ctx).Info().
		Str("request_id", entity.ID).
		Str("coupon_id", req.CouponID).
		Msg("Redemption request created")

	return &CreateRedemptionResponse{RequestID: entity.ID, ExpiresAt: entity.ExpiresAt}, nil
}

// StaffConfirm 店员二次确认。PENDING -> STAFF_CONFIRMED 的 CAS 流转，
// 到期的请求落到 EXPIRED 并返回 ErrRequestExpired。
func (s *RedemptionService) StaffConfirm(ctx context.Context, requestID string) (*RedemptionRequestView, error) {
	return s.transition(ctx, "redemption.StaffConfirm", requestID, func(req *domain.RedemptionRequest, _ domain.TxRepos, _ context.Context) error {
		return req.StaffConfirm(s.clock.Now())
	})
}

// Complete 完成核销：STAFF_CONFIRMED -> COMPLETED，并在同一事务内把
// coupon.usedAt 写为当前时刻。券已被别的请求烧掉时整个事务回滚。
func (s *RedemptionService) Complete(ctx context.Context, requestID string) (*RedemptionRequestView, error) {
	now := s.clock.Now()
	return s.transition(ctx, "redemption.Complete", requestID, func(req *domain.RedemptionRequest, r domain.TxRepos, ctx context.Context) error {
		if err := req.Complete(now); err != nil {
			return err
		}
		coupon, err := r.Coupons.FindByIDForUpdate(ctx, req.RewardCouponID)
		if err != nil {
			return err
		}
		if err := coupon.Use(now); err != nil {
			return err
		}
		return r.Coupons.Save(ctx, coupon)
	})
}

// Fail 店员在确认环节拒绝核销：任意非终态 -> FAILED，不触碰券。
func (s *RedemptionService) Fail(ctx context.Context, requestID, reason string) (*RedemptionRequestView, error) {
	return s.transition(ctx, "redemption.Fail", requestID, func(req *domain.RedemptionRequest, _ domain.TxRepos, _ context.Context) error {
		return req.Fail(reason, s.clock.Now())
	})
}

// Expire 应用到期流转，语义同发放侧：重复投递是无害的空操作。
func (s *RedemptionService) Expire(ctx context.Context, requestID string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "redemption.Expire")
	defer span.End()
	span.SetAttributes(attribute.String("request.id", requestID))

	now := s.clock.Now()
	var (
		entity  *domain.RedemptionRequest
		expired bool
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, r domain.TxRepos) error {
		req, err := r.Redemptions.FindByIDForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		entity = req
		if !req.ExpireIfDue(now) {
			return nil
		}
		expired = true
		return r.Redemptions.Save(ctx, req)
	})
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if expired {
		s.notifyStatus(ctx, entity, "")
		logger.Ctx(ctx).Info().Str("request_id", requestID).Msg("Redemption request expired")
	}
	return expired, nil
}

// transition 是各 CAS 流转共用的骨架：锁定请求行，应用实体方法，
// 提交；实体把请求流转到 EXPIRED 时提交这次流转、把 ErrRequestExpired
// 带出事务。
func (s *RedemptionService) transition(ctx context.Context, spanName, requestID string, apply func(req *domain.RedemptionRequest, r domain.TxRepos, ctx context.Context) error) (*RedemptionRequestView, error) {
	ctx, span := s.tracer.Start(ctx, spanName)
	defer span.End()
	span.SetAttributes(attribute.String("request.id", requestID))

	var (
		entity        *domain.RedemptionRequest
		transitionErr error
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, r domain.TxRepos) error {
		req, err := r.Redemptions.FindByIDForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		entity = req
		if err := apply(req, r, ctx); err != nil {
			if errors.Is(err, domain.ErrRequestExpired) {
				transitionErr = err
				return r.Redemptions.Save(ctx, req)
			}
			return err
		}
		return r.Redemptions.Save(ctx, req)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.notifyStatus(ctx, entity, "")
	if transitionErr != nil {
		return nil, transitionErr
	}

	logger.Ctx(ctx).Info().
		Str("request_id", entity.ID).
		Str("status", string(entity.Status)).
		Msg("Redemption request transitioned")
	return newRedemptionView(entity), nil
}

func (s *RedemptionService) notifyStatus(ctx context.Context, req *domain.RedemptionRequest, storeID string) {
	if s.notifier == nil {
		return
	}
	event := &domain.StatusChanged{
		TraceID:    trace.SpanContextFromContext(ctx).TraceID().String(),
		Kind:       domain.KindRedemption,
		RequestID:  req.ID,
		StoreID:    storeID,
		CustomerID: req.CustomerID,
		Status:     string(req.Status),
		OccurredAt: s.clock.Now(),
	}
	if err := s.notifier.NotifyStatusChanged(ctx, event); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("request_id", req.ID).Msg("failed to notify status change")
	}
}
