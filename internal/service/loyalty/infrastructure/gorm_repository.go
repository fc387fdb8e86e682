// internal/service/loyalty/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"loyalty/internal/service/loyalty/domain"
)

// GormTxManager 是 domain.TxManager 的 GORM 实现：原子作用域映射为
// 数据库事务，ForUpdate 系列查询在事务内加 FOR UPDATE 行锁，构成
// compare-and-set 的 compare 侧。
type GormTxManager struct {
	db *gorm.DB
}

// NewGormTxManager 创建一个新的事务管理器。
func NewGormTxManager(db *gorm.DB) *GormTxManager {
	return &GormTxManager{db: db}
}

// WithinTx 实现 domain.TxManager。
func (m *GormTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.TxRepos) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := domain.TxRepos{
			Cards:       &GormStampCardRepository{db: tx},
			Issuances:   &GormIssuanceRepository{db: tx},
			Redemptions: &GormRedemptionRepository{db: tx},
			Balances:    &GormBalanceRepository{db: tx},
			Coupons:     &GormCouponRepository{db: tx},
		}
		return fn(ctx, repos)
	})
}

// GormStampCardRepository 是 StampCardRepository 的 GORM 实现
type GormStampCardRepository struct {
	db *gorm.DB
}

// FindByID 按 ID 查找卡配置
func (r *GormStampCardRepository) FindByID(ctx context.Context, id string) (*domain.StampCard, error) {
	var model StampCardModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return ToDomainStampCard(&model), nil
}

// Save 写入卡配置（插入或整行更新）
func (r *GormStampCardRepository) Save(ctx context.Context, card *domain.StampCard) error {
	model := FromDomainStampCard(card)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(model).Error
}

// GormIssuanceRepository 是 IssuanceRequestRepository 的 GORM 实现
type GormIssuanceRepository struct {
	db *gorm.DB
}

// Save 写入发放请求（插入或整行更新）
func (r *GormIssuanceRepository) Save(ctx context.Context, req *domain.IssuanceRequest) error {
	model := FromDomainIssuance(req)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(model).Error
}

// FindByID 按 ID 查找发放请求
func (r *GormIssuanceRepository) FindByID(ctx context.Context, id string) (*domain.IssuanceRequest, error) {
	return r.findByID(ctx, id, false)
}

// FindByIDForUpdate 按 ID 查找并加 FOR UPDATE 行锁
func (r *GormIssuanceRepository) FindByIDForUpdate(ctx context.Context, id string) (*domain.IssuanceRequest, error) {
	return r.findByID(ctx, id, true)
}

func (r *GormIssuanceRepository) findByID(ctx context.Context, id string, forUpdate bool) (*domain.IssuanceRequest, error) {
	tx := r.db.WithContext(ctx)
	if forUpdate {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var model IssuanceRequestModel
	err := tx.Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return ToDomainIssuance(&model), nil
}

// HasPending 判断 (customer, card) 是否已有 PENDING 请求。
// 加行锁：并发的两个 Create 在这里串行化，保证最多一个通过。
func (r *GormIssuanceRepository) HasPending(ctx context.Context, customerID, cardID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&IssuanceRequestModel{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("customer_id = ? AND stamp_card_id = ? AND status = ?", customerID, cardID, string(domain.IssuancePending)).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindByFilter 按条件查询，CreatedAt 升序
func (r *GormIssuanceRepository) FindByFilter(ctx context.Context, filter domain.PollFilter) ([]*domain.IssuanceRequest, error) {
	tx := r.db.WithContext(ctx).Model(&IssuanceRequestModel{})
	if filter.StoreID != "" {
		tx = tx.Where("store_id = ?", filter.StoreID)
	}
	if filter.CustomerID != "" {
		tx = tx.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.StampCardID != "" {
		tx = tx.Where("stamp_card_id = ?", filter.StampCardID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		tx = tx.Where("status IN ?", statuses)
	}
	var models []IssuanceRequestModel
	if err := tx.Order("created_at ASC, id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	result := make([]*domain.IssuanceRequest, 0, len(models))
	for i := range models {
		result = append(result, ToDomainIssuance(&models[i]))
	}
	return result, nil
}

// GormRedemptionRepository 是 RedemptionRequestRepository 的 GORM 实现
type GormRedemptionRepository struct {
	db *gorm.DB
}

// Save 写入核销请求（插入或整行更新）
func (r *GormRedemptionRepository) Save(ctx context.Context, req *domain.RedemptionRequest) error {
	model := FromDomainRedemption(req)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(model).Error
}

// FindByID 按 ID 查找核销请求
func (r *GormRedemptionRepository) FindByID(ctx context.Context, id string) (*domain.RedemptionRequest, error) {
	return r.findByID(ctx, id, false)
}

// FindByIDForUpdate 按 ID 查找并加 FOR UPDATE 行锁
func (r *GormRedemptionRepository) FindByIDForUpdate(ctx context.Context, id string) (*domain.RedemptionRequest, error) {
	return r.findByID(ctx, id, true)
}

func (r *GormRedemptionRepository) findByID(ctx context.Context, id string, forUpdate bool) (*domain.RedemptionRequest, error) {
	tx := r.db.WithContext(ctx)
	if forUpdate {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var model RedemptionRequestModel
	err := tx.Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return ToDomainRedemption(&model), nil
}

// GormBalanceRepository 是 StampBalanceRepository 的 GORM 实现
type GormBalanceRepository struct {
	db *gorm.DB
}

// Find 查找台账
func (r *GormBalanceRepository) Find(ctx context.Context, customerID, cardID string) (*domain.StampBalance, error) {
	var model StampBalanceModel
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND stamp_card_id = ?", customerID, cardID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return ToDomainBalance(&model), nil
}

// FindOrCreateForUpdate 锁定台账行，不存在时返回零余额（Save 时落库）。
func (r *GormBalanceRepository) FindOrCreateForUpdate(ctx context.Context, customerID, cardID string) (*domain.StampBalance, error) {
	var model StampBalanceModel
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("customer_id = ? AND stamp_card_id = ?", customerID, cardID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &domain.StampBalance{CustomerID: customerID, StampCardID: cardID}, nil
		}
		return nil, err
	}
	return ToDomainBalance(&model), nil
}

// Save 落库台账，按 (customer_id, stamp_card_id) 唯一键做 upsert。
func (r *GormBalanceRepository) Save(ctx context.Context, balance *domain.StampBalance) error {
	model := &StampBalanceModel{
		CustomerID:    balance.CustomerID,
		StampCardID:   balance.StampCardID,
		CurrentCount:  balance.CurrentCount,
		LastUpdatedAt: balance.LastUpdatedAt,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "customer_id"}, {Name: "stamp_card_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"current_count", "last_updated_at"}),
		}).
		Create(model).Error
}

// GormCouponRepository 是 RewardCouponRepository 的 GORM 实现
type GormCouponRepository struct {
	db *gorm.DB
}

// Save 写入奖励券（插入或整行更新）
func (r *GormCouponRepository) Save(ctx context.Context, coupon *domain.RewardCoupon) error {
	model := FromDomainCoupon(coupon)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(model).Error
}

// FindByID 按 ID 查找奖励券
func (r *GormCouponRepository) FindByID(ctx context.Context, id string) (*domain.RewardCoupon, error) {
	return r.findByID(ctx, id, false)
}

// FindByIDForUpdate 按 ID 查找并加 FOR UPDATE 行锁，核销完成时防止双花
func (r *GormCouponRepository) FindByIDForUpdate(ctx context.Context, id string) (*domain.RewardCoupon, error) {
	return r.findByID(ctx, id, true)
}

func (r *GormCouponRepository) findByID(ctx context.Context, id string, forUpdate bool) (*domain.RewardCoupon, error) {
	tx := r.db.WithContext(ctx)
	if forUpdate {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var model RewardCouponModel
	err := tx.Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return ToDomainCoupon(&model), nil
}

// FindByCustomer 查询顾客持有的全部奖励券，IssuedAt 升序
func (r *GormCouponRepository) FindByCustomer(ctx context.Context, customerID string) ([]*domain.RewardCoupon, error) {
	var models []RewardCouponModel
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("issued_at ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	result := make([]*domain.RewardCoupon, 0, len(models))
	for i := range models {
		result = append(result, ToDomainCoupon(&models[i]))
	}
	return result, nil
}
