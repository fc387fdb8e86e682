// internal/service/loyalty/infrastructure/adapter/pending_guard_redis.go
package adapter

import (
	"context"
	"fmt"
	"time"

	"loyalty/internal/pkg/redis"
)

const acquireGuardScriptName = "acquire_pending_guard"

// PendingGuardRedisAdapter 是 port.PendingGuard 的 Redis 实现。
// SETNX + TTL 抢占位：键存活期间同一 (customer, card) 的第二个发放
// 请求直接被挡回，不用进数据库事务。键的 TTL 与请求一致，请求自然
// 到期时守卫也自然消失。
type PendingGuardRedisAdapter struct {
	redisClient *redis.Client
}

// NewPendingGuardRedisAdapter 创建守卫适配器，初始化时加载 Lua 脚本。
func NewPendingGuardRedisAdapter(redisClient *redis.Client) (*PendingGuardRedisAdapter, error) {
	if err := redisClient.LoadScriptFromContent(acquireGuardScriptName, acquireGuardScript); err != nil {
		return nil, fmt.Errorf("failed to load pending guard script: %w", err)
	}
	return &PendingGuardRedisAdapter{redisClient: redisClient}, nil
}

// Acquire 尝试占位，返回 false 表示已有在途请求。
func (a *PendingGuardRedisAdapter) Acquire(ctx context.Context, customerID, cardID string, ttl time.Duration) (bool, error) {
	key := guardKey(customerID, cardID)
	result, err := a.redisClient.RunScript(ctx, acquireGuardScriptName, []string{key}, ttl.Milliseconds())
	if err != nil {
		return false, fmt.Errorf("pending guard failed to run script: %w", err)
	}
	code, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected result type from Lua script: %T", result)
	}
	return code == 1, nil
}

// Release 删除占位键。
func (a *PendingGuardRedisAdapter) Release(ctx context.Context, customerID, cardID string) error {
	return a.redisClient.GetClient().Del(ctx, guardKey(customerID, cardID)).Err()
}

func guardKey(customerID, cardID string) string {
	// hash tag 保证集群模式下键落在同一槽位
	return fmt.Sprintf("loyalty:pending:{%s:%s}", cardID, customerID)
}

var acquireGuardScript = `
-- KEYS[1]: 守卫键, 例如: loyalty:pending:{card-1:cust-1}
-- ARGV[1]: TTL 毫秒数

-- 1. 键已存在说明有在途请求
if redis.call('exists', KEYS[1]) == 1 then
    return 0 -- 占位失败
end

-- 2. 占位并设置过期时间
redis.call('set', KEYS[1], '1', 'PX', tonumber(ARGV[1]))
return 1 -- 占位成功
`
