// internal/service/loyalty/domain/port/rule.go
package port

import "context"

// EligibilityFact 是规则求值时可见的事实。
type EligibilityFact struct {
	CustomerID     string
	RequestedCount int
	CurrentCount   int
	GoalCount      int
}

// RuleEngine 对集章卡上配置的资格规则求值。
// CEL 实现把表达式编译结果按规则文本缓存。
type RuleEngine interface {
	Evaluate(ctx context.Context, rule string, fact EligibilityFact) (bool, error)
}
