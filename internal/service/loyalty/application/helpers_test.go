package application_test

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"loyalty/internal/pkg/clock"
	"loyalty/internal/service/loyalty/domain"
	"loyalty/internal/service/loyalty/domain/port"
	"loyalty/internal/service/loyalty/infrastructure"
)

var testTracer trace.Tracer = otel.Tracer("loyalty-test")

var baseTime = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

func newTestCard(goal int) *domain.StampCard {
	return &domain.StampCard{
		ID:             "card-1",
		StoreID:        "store-1",
		GoalStampCount: goal,
		RewardName:     "free coffee",
		RewardQuantity: 1,
		ExpireDays:     30,
		Status:         domain.CardActive,
		CreatedAt:      baseTime,
		UpdatedAt:      baseTime,
	}
}

func seededStore(card *domain.StampCard) *infrastructure.MemoryStore {
	store := infrastructure.NewMemoryStore()
	if card != nil {
		store.SeedCard(card)
	}
	return store
}

// fakeGuard 记录占位/释放调用，语义与 Redis 守卫一致。
type fakeGuard struct {
	mu       sync.Mutex
	held     map[string]bool
	acquires int
	releases int
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{held: make(map[string]bool)}
}

func (g *fakeGuard) Acquire(ctx context.Context, customerID, cardID string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.acquires++
	key := customerID + "/" + cardID
	if g.held[key] {
		return false, nil
	}
	g.held[key] = true
	return true, nil
}

func (g *fakeGuard) Release(ctx context.Context, customerID, cardID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.releases++
	delete(g.held, customerID+"/"+cardID)
	return nil
}

// fakeScheduler 记录安排过的到期检查。
type fakeScheduler struct {
	mu        sync.Mutex
	scheduled []scheduledCheck
}

type scheduledCheck struct {
	kind      domain.RequestKind
	requestID string
	delay     time.Duration
}

func (s *fakeScheduler) ScheduleExpiryCheck(ctx context.Context, kind domain.RequestKind, requestID string, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, scheduledCheck{kind: kind, requestID: requestID, delay: delay})
	return nil
}

// fakeNotifier 记录广播出去的状态流转和发券事件。
type fakeNotifier struct {
	mu      sync.Mutex
	events  []*domain.StatusChanged
	coupons []*domain.CouponIssued
}

func (n *fakeNotifier) NotifyStatusChanged(ctx context.Context, event *domain.StatusChanged) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *fakeNotifier) NotifyCouponIssued(ctx context.Context, event *domain.CouponIssued) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.coupons = append(n.coupons, event)
	return nil
}

func (n *fakeNotifier) lastStatus() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) == 0 {
		return ""
	}
	return n.events[len(n.events)-1].Status
}

// fakeRules 按固定结果回答资格规则求值。
type fakeRules struct {
	allow bool
	err   error
	rules []string
}

func (r *fakeRules) Evaluate(ctx context.Context, rule string, fact port.EligibilityFact) (bool, error) {
	r.rules = append(r.rules, rule)
	if r.err != nil {
		return false, r.err
	}
	return r.allow, nil
}

func manualClock() *clock.Manual {
	return clock.NewManual(baseTime)
}
