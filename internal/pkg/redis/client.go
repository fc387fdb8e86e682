// internal/pkg/redis/client.go
package redis

import (
	"context"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"
)

// Client 封装了 go-redis 客户端，并维护一个按名字注册的 Lua 脚本表。
// 需要原子多步操作的调用方在初始化时注册脚本，运行时按名字执行。
type Client struct {
	rdb *goredis.Client

	mu      sync.RWMutex
	scripts map[string]*goredis.Script
}

// NewClient 创建一个连接到 addr 的客户端。
func NewClient(addr string) *Client {
	return &Client{
		rdb:     goredis.NewClient(&goredis.Options{Addr: addr}),
		scripts: make(map[string]*goredis.Script),
	}
}

// GetClient 暴露底层客户端，供简单命令（Pipeline、Del 等）直接使用。
func (c *Client) GetClient() *goredis.Client {
	return c.rdb
}

// LoadScriptFromContent 按名字注册一段 Lua 脚本。
func (c *Client) LoadScriptFromContent(name, content string) error {
	if content == "" {
		return fmt.Errorf("script %q is empty", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[name] = goredis.NewScript(content)
	return nil
}

// RunScript 执行已注册的脚本。go-redis 的 Script.Run 会优先走 EVALSHA，
// 脚本未缓存时自动回退到 EVAL。
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("script %q is not loaded", name)
	}
	return script.Run(ctx, c.rdb, keys, args...).Result()
}

// Close 关闭底层连接。
func (c *Client) Close() error {
	return c.rdb.Close()
}
