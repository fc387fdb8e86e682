// internal/service/loyalty/infrastructure/memory_repository.go
package infrastructure

import (
	"context"
	"sort"
	"sync"

	"loyalty/internal/service/loyalty/domain"
)

// MemoryStore 是 domain.TxManager 的内存实现，供本地开发和测试使用。
// 单把全局互斥即是"原子作用域"：作用域内没有并发，FOR UPDATE 语义
// 天然成立。fn 返回错误时用进入作用域时的快照整体回滚。
type MemoryStore struct {
	mu sync.Mutex

	cards       map[string]*domain.StampCard
	issuances   map[string]*domain.IssuanceRequest
	redemptions map[string]*domain.RedemptionRequest
	balances    map[string]*domain.StampBalance // key: customerID + "/" + cardID
	coupons     map[string]*domain.RewardCoupon
}

// NewMemoryStore 创建一个空的内存存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cards:       make(map[string]*domain.StampCard),
		issuances:   make(map[string]*domain.IssuanceRequest),
		redemptions: make(map[string]*domain.RedemptionRequest),
		balances:    make(map[string]*domain.StampBalance),
		coupons:     make(map[string]*domain.RewardCoupon),
	}
}

// WithinTx 实现 domain.TxManager。
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.TxRepos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshot()
	repos := domain.TxRepos{
		Cards:       &memoryCardRepo{store: s},
		Issuances:   &memoryIssuanceRepo{store: s},
		Redemptions: &memoryRedemptionRepo{store: s},
		Balances:    &memoryBalanceRepo{store: s},
		Coupons:     &memoryCouponRepo{store: s},
	}
	if err := fn(ctx, repos); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

// SeedCard 直接写入一张卡配置，供测试和本地开发初始化数据。
func (s *MemoryStore) SeedCard(card *domain.StampCard) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards[card.ID] = cloneCard(card)
}

// SeedCoupon 直接写入一张奖励券。
func (s *MemoryStore) SeedCoupon(coupon *domain.RewardCoupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coupons[coupon.ID] = cloneCoupon(coupon)
}

// SeedBalance 直接写入一条印花台账。
func (s *MemoryStore) SeedBalance(balance *domain.StampBalance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[balanceKey(balance.CustomerID, balance.StampCardID)] = cloneBalance(balance)
}

type memorySnapshot struct {
	cards       map[string]*domain.StampCard
	issuances   map[string]*domain.IssuanceRequest
	redemptions map[string]*domain.RedemptionRequest
	balances    map[string]*domain.StampBalance
	coupons     map[string]*domain.RewardCoupon
}

func (s *MemoryStore) snapshot() memorySnapshot {
	snap := memorySnapshot{
		cards:       make(map[string]*domain.StampCard, len(s.cards)),
		issuances:   make(map[string]*domain.IssuanceRequest, len(s.issuances)),
		redemptions: make(map[string]*domain.RedemptionRequest, len(s.redemptions)),
		balances:    make(map[string]*domain.StampBalance, len(s.balances)),
		coupons:     make(map[string]*domain.RewardCoupon, len(s.coupons)),
	}
	for k, v := range s.cards {
		snap.cards[k] = cloneCard(v)
	}
	for k, v := range s.issuances {
		snap.issuances[k] = cloneIssuance(v)
	}
	for k, v := range s.redemptions {
		snap.redemptions[k] = cloneRedemption(v)
	}
	for k, v := range s.balances {
		snap.balances[k] = cloneBalance(v)
	}
	for k, v := range s.coupons {
		snap.coupons[k] = cloneCoupon(v)
	}
	return snap
}

func (s *MemoryStore) restore(snap memorySnapshot) {
	s.cards = snap.cards
	s.issuances = snap.issuances
	s.redemptions = snap.redemptions
	s.balances = snap.balances
	s.coupons = snap.coupons
}

func balanceKey(customerID, cardID string) string {
	return customerID + "/" + cardID
}

// 仓储之间共享 store，读写一律经过 clone：作用域内拿到的实体是
// 独立副本，未 Save 的修改不会泄漏回存储。

type memoryCardRepo struct{ store *MemoryStore }

func (r *memoryCardRepo) FindByID(ctx context.Context, id string) (*domain.StampCard, error) {
	card, ok := r.store.cards[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneCard(card), nil
}

func (r *memoryCardRepo) Save(ctx context.Context, card *domain.StampCard) error {
	r.store.cards[card.ID] = cloneCard(card)
	return nil
}

type memoryIssuanceRepo struct{ store *MemoryStore }

func (r *memoryIssuanceRepo) Save(ctx context.Context, req *domain.IssuanceRequest) error {
	r.store.issuances[req.ID] = cloneIssuance(req)
	return nil
}

func (r *memoryIssuanceRepo) FindByID(ctx context.Context, id string) (*domain.IssuanceRequest, error) {
	req, ok := r.store.issuances[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneIssuance(req), nil
}

func (r *memoryIssuanceRepo) FindByIDForUpdate(ctx context.Context, id string) (*domain.IssuanceRequest, error) {
	return r.FindByID(ctx, id)
}

func (r *memoryIssuanceRepo) HasPending(ctx context.Context, customerID, cardID string) (bool, error) {
	for _, req := range r.store.issuances {
		if req.CustomerID == customerID && req.StampCardID == cardID && req.Status == domain.IssuancePending {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryIssuanceRepo) FindByFilter(ctx context.Context, filter domain.PollFilter) ([]*domain.IssuanceRequest, error) {
	var result []*domain.IssuanceRequest
	for _, req := range r.store.issuances {
		if filter.StoreID != "" && req.StoreID != filter.StoreID {
			continue
		}
		if filter.CustomerID != "" && req.CustomerID != filter.CustomerID {
			continue
		}
		if filter.StampCardID != "" && req.StampCardID != filter.StampCardID {
			continue
		}
		if len(filter.Statuses) > 0 {
			matched := false
			for _, st := range filter.Statuses {
				if req.Status == st {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		result = append(result, cloneIssuance(req))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

type memoryRedemptionRepo struct{ store *MemoryStore }

func (r *memoryRedemptionRepo) Save(ctx context.Context, req *domain.RedemptionRequest) error {
	r.store.redemptions[req.ID] = cloneRedemption(req)
	return nil
}

func (r *memoryRedemptionRepo) FindByID(ctx context.Context, id string) (*domain.RedemptionRequest, error) {
	req, ok := r.store.redemptions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneRedemption(req), nil
}

func (r *memoryRedemptionRepo) FindByIDForUpdate(ctx context.Context, id string) (*domain.RedemptionRequest, error) {
	return r.FindByID(ctx, id)
}

type memoryBalanceRepo struct{ store *MemoryStore }

func (r *memoryBalanceRepo) Find(ctx context.Context, customerID, cardID string) (*domain.StampBalance, error) {
	bal, ok := r.store.balances[balanceKey(customerID, cardID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneBalance(bal), nil
}

func (r *memoryBalanceRepo) FindOrCreateForUpdate(ctx context.Context, customerID, cardID string) (*domain.StampBalance, error) {
	if bal, ok := r.store.balances[balanceKey(customerID, cardID)]; ok {
		return cloneBalance(bal), nil
	}
	return &domain.StampBalance{CustomerID: customerID, StampCardID: cardID}, nil
}

func (r *memoryBalanceRepo) Save(ctx context.Context, balance *domain.StampBalance) error {
	r.store.balances[balanceKey(balance.CustomerID, balance.StampCardID)] = cloneBalance(balance)
	return nil
}

type memoryCouponRepo struct{ store *MemoryStore }

func (r *memoryCouponRepo) Save(ctx context.Context, coupon *domain.RewardCoupon) error {
	r.store.coupons[coupon.ID] = cloneCoupon(coupon)
	return nil
}

func (r *memoryCouponRepo) FindByID(ctx context.Context, id string) (*domain.RewardCoupon, error) {
	coupon, ok := r.store.coupons[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneCoupon(coupon), nil
}

func (r *memoryCouponRepo) FindByIDForUpdate(ctx context.Context, id string) (*domain.RewardCoupon, error) {
	return r.FindByID(ctx, id)
}

func (r *memoryCouponRepo) FindByCustomer(ctx context.Context, customerID string) ([]*domain.RewardCoupon, error) {
	var result []*domain.RewardCoupon
	for _, coupon := range r.store.coupons {
		if coupon.CustomerID == customerID {
			result = append(result, cloneCoupon(coupon))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].IssuedAt.Equal(result[j].IssuedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].IssuedAt.Before(result[j].IssuedAt)
	})
	return result, nil
}

func cloneCard(c *domain.StampCard) *domain.StampCard {
	cp := *c
	return &cp
}

func cloneIssuance(r *domain.IssuanceRequest) *domain.IssuanceRequest {
	cp := *r
	if r.DecidedAt != nil {
		t := *r.DecidedAt
		cp.DecidedAt = &t
	}
	return &cp
}

func cloneRedemption(r *domain.RedemptionRequest) *domain.RedemptionRequest {
	cp := *r
	if r.ConfirmedAt != nil {
		t := *r.ConfirmedAt
		cp.ConfirmedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	if r.FailedAt != nil {
		t := *r.FailedAt
		cp.FailedAt = &t
	}
	return &cp
}

func cloneBalance(b *domain.StampBalance) *domain.StampBalance {
	cp := *b
	return &cp
}

func cloneCoupon(c *domain.RewardCoupon) *domain.RewardCoupon {
	cp := *c
	if c.UsedAt != nil {
		t := *c.UsedAt
		cp.UsedAt = &t
	}
	return &cp
}
