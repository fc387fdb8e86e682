// internal/service/loyalty/application/sync_service.go
package application

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"loyalty/internal/pkg/clock"
	"loyalty/internal/pkg/logger"
	"loyalty/internal/service/loyalty/domain"
	"loyalty/internal/service/loyalty/domain/port"
)

// SyncService 实现同步通道的读侧：顾客轮询自己请求的状态，终端轮询
// 本店的 PENDING 列表。轮询间隔和客户端超时是部署配置，不属于协议的
// 正确性契约——契约只要求最终至少一次观察到最新状态。
//
// 读取时顺带做惰性过期：到期的 PENDING 请求在返回前被流转到 EXPIRED，
// 所以即使后台到期检查完全缺席，读到的状态也是正确的。
type SyncService struct {
	tx       domain.TxManager
	notifier port.StatusNotifier // 可为 nil
	clock    clock.Clock
	tracer   trace.Tracer
}

// NewSyncService 创建同步通道服务实例。
func NewSyncService(tx domain.TxManager, notifier port.StatusNotifier, clk clock.Clock, tracer trace.Tracer) *SyncService {
	return &SyncService{tx: tx, notifier: notifier, clock: clk, tracer: tracer}
}

// Poll 按条件查询发放请求，CreatedAt 升序。
// 本次读取中被惰性过期的请求，若不再匹配过滤条件则从结果中剔除
// （终端拉 PENDING 列表时不应看到刚刚过期的请求）。
func (s *SyncService) Poll(ctx context.Context, filter domain.PollFilter) ([]*IssuanceRequestView, error) {
	ctx, span := s.tracer.Start(ctx, "sync.Poll")
	defer span.End()
	span.SetAttributes(attribute.String("store.id", filter.StoreID))

	now := s.clock.Now()
	var (
		result  []*domain.IssuanceRequest
		expired []*domain.IssuanceRequest
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, r domain.TxRepos) error {
		list, err := r.Issuances.FindByFilter(ctx, filter)
		if err != nil {
			return err
		}
		result = result[:0]
		expired = expired[:0]
		for _, req := range list {
			if req.ExpireIfDue(now) {
				if err := r.Issuances.Save(ctx, req); err != nil {
					return err
				}
				expired = append(expired, req)
				if !matchesStatus(filter, req.Status) {
					continue
				}
			}
			result = append(result, req)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	for _, req := range expired {
		s.notifyStatus(ctx, req)
	}
	span.SetAttributes(attribute.Int("result.count", len(result)))

	views := make([]*IssuanceRequestView, 0, len(result))
	for _, req := range result {
		views = append(views, newIssuanceView(req))
	}
	return views, nil
}

// GetIssuance 按 ID 读取发放请求（顾客轮询自己的请求）。
func (s *SyncService) GetIssuance(ctx context.Context, requestID string) (*IssuanceRequestView, error) {
	ctx, span := s.tracer.Start(ctx, "sync.GetIssuance")
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
		if req.ExpireIfDue(now) {
			expired = true
			return r.Issuances.Save(ctx, req)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if expired {
		s.notifyStatus(ctx, entity)
	}
	return newIssuanceView(entity), nil
}

// GetRedemption 按 ID 读取核销请求，同样做惰性过期。
func (s *SyncService) GetRedemption(ctx context.Context, requestID string) (*RedemptionRequestView, error) {
	ctx, span := s.tracer.Start(ctx, "sync.GetRedemption")
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
		if req.ExpireIfDue(now) {
			expired = true
			return r.Redemptions.Save(ctx, req)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if expired && s.notifier != nil {
		event := &domain.StatusChanged{
			Kind:       domain.KindRedemption,
			RequestID:  entity.ID,
			CustomerID: entity.CustomerID,
			Status:     string(entity.Status),
			OccurredAt: now,
		}
		if err := s.notifier.NotifyStatusChanged(ctx, event); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("request_id", entity.ID).Msg("failed to notify status change")
		}
	}
	return newRedemptionView(entity), nil
}

// ListCoupons 返回顾客持有的奖励券（钱包视图）。
func (s *SyncService) ListCoupons(ctx context.Context, customerID string) ([]*CouponView, error) {
	ctx, span := s.tracer.Start(ctx, "sync.ListCoupons")
	defer span.End()

	var coupons []*domain.RewardCoupon
	err := s.tx.WithinTx(ctx, func(ctx context.Context, r domain.TxRepos) error {
		var err error
		coupons, err = r.Coupons.FindByCustomer(ctx, customerID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	views := make([]*CouponView, 0, len(coupons))
	for _, c := range coupons {
		views = append(views, newCouponView(c))
	}
	return views, nil
}

// GetBalance 返回 (customer, card) 的印花台账，未建账时返回零余额。
func (s *SyncService) GetBalance(ctx context.Context, customerID, cardID string) (*BalanceView, error) {
	ctx, span := s.tracer.Start(ctx, "sync.GetBalance")
	defer span.End()

	view := &BalanceView{CustomerID: customerID, StampCardID: cardID}
	err := s.tx.WithinTx(ctx, func(ctx context.Context, r domain.TxRepos) error {
		card, err := r.Cards.FindByID(ctx, cardID)
		if err != nil {
			return err
		}
		view.GoalCount = card.GoalStampCount
		bal, err := r.Balances.Find(ctx, customerID, cardID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			return err
		}
		view.CurrentCount = bal.CurrentCount
		view.LastUpdatedAt = bal.LastUpdatedAt
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return view, nil
}

func matchesStatus(filter domain.PollFilter, status domain.IssuanceStatus) bool {
	if len(filter.Statuses) == 0 {
		return true
	}
	for _, s := range filter.Statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (s *SyncService) notifyStatus(ctx context.Context, req *domain.IssuanceRequest) {
	if s.notifier == nil {
		return
	}
	event := &domain.StatusChanged{
		Kind:       domain.KindIssuance,
		RequestID:  req.ID,
		StoreID:    req.StoreID,
		CustomerID: req.CustomerID,
		Status:     string(req.Status),
		OccurredAt: s.clock.Now(),
	}
	if err := s.notifier.NotifyStatusChanged(ctx, event); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("request_id", req.ID).Msg("failed to notify status change")
	}
}
