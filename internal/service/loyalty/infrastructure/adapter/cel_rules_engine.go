// internal/service/loyalty/infrastructure/adapter/cel_rules_engine.go
package adapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"loyalty/internal/service/loyalty/domain/port"
)

// CelRulesEngine 是 port.RuleEngine 的 CEL 实现。
// 卡配置上的资格规则是一条返回 bool 的 CEL 表达式，例如：
//
//	requestedCount <= 5 && currentCount < goalCount
//
// 编译结果按规则文本缓存，同一条规则只编译一次。
type CelRulesEngine struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewCelRulesEngine 创建规则引擎，声明规则可见的全部变量。
func NewCelRulesEngine() (*CelRulesEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("customerId", cel.StringType),
		cel.Variable("requestedCount", cel.IntType),
		cel.Variable("currentCount", cel.IntType),
		cel.Variable("goalCount", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &CelRulesEngine{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Evaluate 实现 port.RuleEngine。
func (e *CelRulesEngine) Evaluate(ctx context.Context, rule string, fact port.EligibilityFact) (bool, error) {
	prg, err := e.programFor(rule)
	if err != nil {
		return false, err
	}

	val, _, err := prg.ContextEval(ctx, map[string]interface{}{
		"customerId":     fact.CustomerID,
		"requestedCount": int64(fact.RequestedCount),
		"currentCount":   int64(fact.CurrentCount),
		"goalCount":      int64(fact.GoalCount),
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rule: %w", err)
	}
	result, ok := val.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule did not evaluate to bool: %T", val.Value())
	}
	return result, nil
}

func (e *CelRulesEngine) programFor(rule string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[rule]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, iss := e.env.Compile(rule)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule: %w", iss.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule program: %w", err)
	}

	e.mu.Lock()
	e.programs[rule] = prg
	e.mu.Unlock()
	return prg, nil
}
