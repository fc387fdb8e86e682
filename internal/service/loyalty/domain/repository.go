// internal/service/loyalty/domain/repository.go
package domain

import "context"

// PollFilter 是同步通道的查询条件。结果一律按 CreatedAt 升序返回。
type PollFilter struct {
	StoreID     string
	CustomerID  string
	StampCardID string
	Statuses    []IssuanceStatus
}

// IssuanceRequestRepository 定义了发放请求的持久化接口。
// 位于领域层，由基础设施层实现。
type IssuanceRequestRepository interface {
	// Save 保存一个发放请求（创建或更新）。
	Save(ctx context.Context, req *IssuanceRequest) error

	// FindByID 按 ID 查找，不存在时返回 ErrNotFound。
	FindByID(ctx context.Context, id string) (*IssuanceRequest, error)

	// FindByIDForUpdate 在原子作用域内按 ID 查找并锁定该行，
	// 后续的状态流转以它读到的状态为准（compare-and-set 的 compare 侧）。
	FindByIDForUpdate(ctx context.Context, id string) (*IssuanceRequest, error)

	// HasPending 判断 (customer, card) 是否已有 PENDING 请求。
	HasPending(ctx context.Context, customerID, cardID string) (bool, error)

	// FindByFilter 按条件查询，CreatedAt 升序。
	FindByFilter(ctx context.Context, filter PollFilter) ([]*IssuanceRequest, error)
}

// RedemptionRequestRepository 定义了核销请求的持久化接口。
type RedemptionRequestRepository interface {
	Save(ctx context.Context, req *RedemptionRequest) error
	FindByID(ctx context.Context, id string) (*RedemptionRequest, error)
	FindByIDForUpdate(ctx context.Context, id string) (*RedemptionRequest, error)
}

// StampBalanceRepository 定义了印花台账的持久化接口。
type StampBalanceRepository interface {
	// Find 查找台账，不存在时返回 ErrNotFound。
	Find(ctx context.Context, customerID, cardID string) (*StampBalance, error)

	// FindOrCreateForUpdate 在原子作用域内查找并锁定台账，
	// 不存在时创建一个零余额台账。
	FindOrCreateForUpdate(ctx context.Context, customerID, cardID string) (*StampBalance, error)

	Save(ctx context.Context, balance *StampBalance) error
}

// RewardCouponRepository 定义了奖励券的持久化接口。
type RewardCouponRepository interface {
	Save(ctx context.Context, coupon *RewardCoupon) error
	FindByID(ctx context.Context, id string) (*RewardCoupon, error)
	FindByIDForUpdate(ctx context.Context, id string) (*RewardCoupon, error)
	FindByCustomer(ctx context.Context, customerID string) ([]*RewardCoupon, error)
}

// StampCardRepository 定义了集章卡配置的访问接口。
// 核心流程只读；Save 仅供后台配置方（或本地开发的 seed 接口）使用。
type StampCardRepository interface {
	FindByID(ctx context.Context, id string) (*StampCard, error)
	Save(ctx context.Context, card *StampCard) error
}

// TxRepos 聚合了同一个原子作用域内可见的各仓储。
type TxRepos struct {
	Cards       StampCardRepository
	Issuances   IssuanceRequestRepository
	Redemptions RedemptionRequestRepository
	Balances    StampBalanceRepository
	Coupons     RewardCouponRepository
}

// TxManager 在单个原子作用域内执行 fn。GORM 实现映射为数据库事务
// （配合 FOR UPDATE 行锁构成 compare-and-set），内存实现映射为全局互斥。
// 协议要求请求状态流转和由它触发的台账/奖励券变更落在同一个作用域里：
// 崩溃不可能留下"到达目标却没有券"的中间态。fn 返回错误时整个作用域回滚。
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos TxRepos) error) error
}
