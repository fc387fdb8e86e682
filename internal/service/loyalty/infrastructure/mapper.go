// internal/service/loyalty/infrastructure/mapper.go
package infrastructure

import (
	"database/sql"
	"time"

	"loyalty/internal/service/loyalty/domain"
)

// ToDomainStampCard 将数据库模型转换为领域模型
func ToDomainStampCard(model *StampCardModel) *domain.StampCard {
	if model == nil {
		return nil
	}
	return &domain.StampCard{
		ID:              model.ID,
		StoreID:         model.StoreID,
		GoalStampCount:  model.GoalStampCount,
		RewardName:      model.RewardName,
		RewardQuantity:  model.RewardQuantity,
		ExpireDays:      model.ExpireDays,
		Status:          domain.CardStatus(model.Status),
		EligibilityRule: model.EligibilityRule,
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}
}

// FromDomainStampCard 将领域模型转换为数据库模型
func FromDomainStampCard(card *domain.StampCard) *StampCardModel {
	if card == nil {
		return nil
	}
	return &StampCardModel{
		ID:              card.ID,
		StoreID:         card.StoreID,
		GoalStampCount:  card.GoalStampCount,
		RewardName:      card.RewardName,
		RewardQuantity:  card.RewardQuantity,
		ExpireDays:      card.ExpireDays,
		Status:          string(card.Status),
		EligibilityRule: card.EligibilityRule,
		CreatedAt:       card.CreatedAt,
		UpdatedAt:       card.UpdatedAt,
	}
}

// ToDomainIssuance 将数据库模型转换为领域模型
func ToDomainIssuance(model *IssuanceRequestModel) *domain.IssuanceRequest {
	if model == nil {
		return nil
	}
	return &domain.IssuanceRequest{
		ID:                  model.ID,
		StoreID:             model.StoreID,
		CustomerID:          model.CustomerID,
		StampCardID:         model.StampCardID,
		RequestedStampCount: model.RequestedStampCount,
		CreatedAt:           model.CreatedAt,
		ExpiresAt:           model.ExpiresAt,
		Status:              domain.IssuanceStatus(model.Status),
		DecidedAt:           fromNullTime(model.DecidedAt),
		DecidedBy:           model.DecidedBy,
	}
}

// FromDomainIssuance 将领域模型转换为数据库模型
func FromDomainIssuance(req *domain.IssuanceRequest) *IssuanceRequestModel {
	if req == nil {
		return nil
	}
	return &IssuanceRequestModel{
		ID:                  req.ID,
		StoreID:             req.StoreID,
		CustomerID:          req.CustomerID,
		StampCardID:         req.StampCardID,
		RequestedStampCount: req.RequestedStampCount,
		Status:              string(req.Status),
		DecidedBy:           req.DecidedBy,
		DecidedAt:           toNullTime(req.DecidedAt),
		CreatedAt:           req.CreatedAt,
		ExpiresAt:           req.ExpiresAt,
	}
}

// ToDomainRedemption 将数据库模型转换为领域模型
func ToDomainRedemption(model *RedemptionRequestModel) *domain.RedemptionRequest {
	if model == nil {
		return nil
	}
	return &domain.RedemptionRequest{
		ID:             model.ID,
		CustomerID:     model.CustomerID,
		RewardCouponID: model.RewardCouponID,
		CreatedAt:      model.CreatedAt,
		ExpiresAt:      model.ExpiresAt,
		Status:         domain.RedemptionStatus(model.Status),
		ConfirmedAt:    fromNullTime(model.ConfirmedAt),
		CompletedAt:    fromNullTime(model.CompletedAt),
		FailedAt:       fromNullTime(model.FailedAt),
		FailReason:     model.FailReason,
	}
}

// FromDomainRedemption 将领域模型转换为数据库模型
func FromDomainRedemption(req *domain.RedemptionRequest) *RedemptionRequestModel {
	if req == nil {
		return nil
	}
	return &RedemptionRequestModel{
		ID:             req.ID,
		CustomerID:     req.CustomerID,
		RewardCouponID: req.RewardCouponID,
		Status:         string(req.Status),
		FailReason:     req.FailReason,
		ConfirmedAt:    toNullTime(req.ConfirmedAt),
		CompletedAt:    toNullTime(req.CompletedAt),
		FailedAt:       toNullTime(req.FailedAt),
		CreatedAt:      req.CreatedAt,
		ExpiresAt:      req.ExpiresAt,
	}
}

// ToDomainBalance 将数据库模型转换为领域模型
func ToDomainBalance(model *StampBalanceModel) *domain.StampBalance {
	if model == nil {
		return nil
	}
	return &domain.StampBalance{
		CustomerID:    model.CustomerID,
		StampCardID:   model.StampCardID,
		CurrentCount:  model.CurrentCount,
		LastUpdatedAt: model.LastUpdatedAt,
	}
}

// ToDomainCoupon 将数据库模型转换为领域模型
func ToDomainCoupon(model *RewardCouponModel) *domain.RewardCoupon {
	if model == nil {
		return nil
	}
	return &domain.RewardCoupon{
		ID:          model.ID,
		CustomerID:  model.CustomerID,
		StampCardID: model.StampCardID,
		RewardName:  model.RewardName,
		IssuedAt:    model.IssuedAt,
		ExpiresAt:   model.ExpiresAt,
		UsedAt:      fromNullTime(model.UsedAt),
	}
}

// FromDomainCoupon 将领域模型转换为数据库模型
func FromDomainCoupon(coupon *domain.RewardCoupon) *RewardCouponModel {
	if coupon == nil {
		return nil
	}
	return &RewardCouponModel{
		ID:          coupon.ID,
		CustomerID:  coupon.CustomerID,
		StampCardID: coupon.StampCardID,
		RewardName:  coupon.RewardName,
		IssuedAt:    coupon.IssuedAt,
		ExpiresAt:   coupon.ExpiresAt,
		UsedAt:      toNullTime(coupon.UsedAt),
	}
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
