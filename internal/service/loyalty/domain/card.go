// internal/service/loyalty/domain/card.go
package domain

import "time"

// CardStatus 定义了集章卡配置的生命周期状态。
type CardStatus string

const (
	CardDraft    CardStatus = "DRAFT"
	CardActive   CardStatus = "ACTIVE"
	CardPaused   CardStatus = "PAUSED"
	CardArchived CardStatus = "ARCHIVED"
)

// StampCard 是店家定义的集章卡配置。对发放/核销流程而言它是只读的
// 外部协作方：核心流程消费它，绝不修改它。
type StampCard struct {
	ID             string
	StoreID        string
	GoalStampCount int
	RewardName     string
	RewardQuantity int
	ExpireDays     int // 奖励券自发放起的有效天数
	Status         CardStatus

	// EligibilityRule 是可选的 CEL 表达式，发放请求创建时求值。
	// 可用变量：customerId, requestedCount, currentCount, goalCount。
	EligibilityRule string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive 只有 ACTIVE 状态的卡才接受发放请求。
func (c *StampCard) IsActive() bool {
	return c.Status == CardActive
}
