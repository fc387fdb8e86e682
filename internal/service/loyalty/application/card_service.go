// internal/service/loyalty/application/card_service.go
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"loyalty/internal/pkg/clock"
	"loyalty/internal/pkg/logger"
	"loyalty/internal/service/loyalty/domain"
)

// CreateStampCardRequest 是后台创建集章卡配置的入参。
type CreateStampCardRequest struct {
	StoreID         string `json:"storeId"`
	GoalStampCount  int    `json:"goalStampCount"`
	RewardName      string `json:"rewardName"`
	RewardQuantity  int    `json:"rewardQuantity"`
	ExpireDays      int    `json:"expireDays"`
	EligibilityRule string `json:"eligibilityRule,omitempty"`
	Activate        bool   `json:"activate"`
}

// StampCardView 是卡配置的读视图。
type StampCardView struct {
	CardID          string    `json:"cardId"`
	StoreID         string    `json:"storeId"`
	GoalStampCount  int       `json:"goalStampCount"`
	RewardName      string    `json:"rewardName"`
	RewardQuantity  int       `json:"rewardQuantity"`
	ExpireDays      int       `json:"expireDays"`
	Status          string    `json:"status"`
	EligibilityRule string    `json:"eligibilityRule,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

func newCardView(c *domain.StampCard) *StampCardView {
	return &StampCardView{
		CardID:          c.ID,
		StoreID:         c.StoreID,
		GoalStampCount:  c.GoalStampCount,
		RewardName:      c.RewardName,
		RewardQuantity:  c.RewardQuantity,
		ExpireDays:      c.ExpireDays,
		Status:          string(c.Status),
		EligibilityRule: c.EligibilityRule,
		CreatedAt:       c.CreatedAt,
	}
}

// CardService 是集章卡配置的后台管理入口。核心流程只读卡配置，
// 写入只发生在这里。
type CardService struct {
	tx     domain.TxManager
	clock  clock.Clock
	tracer trace.Tracer
}

// NewCardService 创建卡管理服务实例。
func NewCardService(tx domain.TxManager, clk clock.Clock, tracer trace.Tracer) *CardService {
	return &CardService{tx: tx, clock: clk, tracer: tracer}
}

// Create 创建一张集章卡。goalStampCount 必须为正，expireDays 缺省 30 天。
func (s *CardService) Create(ctx context.Context, req *CreateStampCardRequest) (*StampCardView, error) {
	ctx, span := s.tracer.Start(ctx, "card.Create")
	defer span.End()
	span.SetAttributes(attribute.String("store.id", req.StoreID))

	if req.GoalStampCount < 1 {
		return nil, domain.ErrInvalidStampCount
	}
	expireDays := req.ExpireDays
	if expireDays <= 0 {
		expireDays = 30
	}
	quantity := req.RewardQuantity
	if quantity <= 0 {
		quantity = 1
	}
	status := domain.CardDraft
	if req.Activate {
		status = domain.CardActive
	}

	now := s.clock.Now()
	card := &domain.StampCard{
		ID:              uuid.New().String(),
		StoreID:         req.StoreID,
		GoalStampCount:  req.GoalStampCount,
		RewardName:      req.RewardName,
		RewardQuantity:  quantity,
		ExpireDays:      expireDays,
		Status:          status,
		EligibilityRule: req.EligibilityRule,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context, r domain.TxRepos) error {
		return r.Cards.Save(ctx, card)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Str("card_id", card.ID).
		Str("store_id", card.StoreID).
		Str("status", string(card.Status)).
		Msg("Stamp card created")
	return newCardView(card), nil
}

// Get 按 ID 读取卡配置。
func (s *CardService) Get(ctx context.Context, cardID string) (*StampCardView, error) {
	ctx, span := s.tracer.Start(ctx, "card.Get")
	defer span.End()

	var card *domain.StampCard
	err := s.tx.WithinTx(ctx, func(ctx context.Context, r domain.TxRepos) error {
		var err error
		card, err = r.Cards.FindByID(ctx, cardID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return newCardView(card), nil
}

// UpdateStatus 流转卡配置的生命周期状态（DRAFT/ACTIVE/PAUSED/ARCHIVED）。
func (s *CardService) UpdateStatus(ctx context.Context, cardID string, status domain.CardStatus) (*StampCardView, error) {
	ctx, span := s.tracer.Start(ctx, "card.UpdateStatus")
	defer span.End()
	span.SetAttributes(attribute.String("card.id", cardID), attribute.String("card.status", string(status)))

	switch status {
	case domain.CardDraft, domain.CardActive, domain.CardPaused, domain.CardArchived:
	default:
		return nil, fmt.Errorf("unknown card status: %q", status)
	}

	var card *domain.StampCard
	err := s.tx.WithinTx(ctx, func(ctx context.Context, r domain.TxRepos) error {
		var err error
		card, err = r.Cards.FindByID(ctx, cardID)
		if err != nil {
			return err
		}
		card.Status = status
		card.UpdatedAt = s.clock.Now()
		return r.Cards.Save(ctx, card)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return newCardView(card), nil
}
