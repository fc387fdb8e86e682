// internal/pkg/zlock/lock.go
package zlock

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
)

const lockRoot = "/loyalty/locks" // 所有分布式锁的根节点

// Conn 封装一个 ZooKeeper 会话。
type Conn struct {
	*zk.Conn
}

// Connect 建立到 ZooKeeper 集群的会话。
func Connect(servers []string, sessionTimeout time.Duration) (*Conn, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to zookeeper: %w", err)
	}
	return &Conn{Conn: conn}, nil
}

// DistributedLock 是基于临时顺序节点的分布式锁。
// expiry-scheduler 用它保证同一延迟级别同时只有一个实例在轮询，
// 避免多实例重复投递到期消息。
type DistributedLock struct {
	conn     *Conn
	path     string // 锁的父路径，例如 /loyalty/locks/expiry-sweeper
	lockNode string // 成功获取锁后自己创建的节点路径
}

// NewDistributedLock 创建一个名为 resourceID 的锁实例。
func NewDistributedLock(conn *Conn, resourceID string) (*DistributedLock, error) {
	// 逐级确保父路径存在
	if err := ensurePath(conn, lockRoot); err != nil {
		return nil, err
	}
	lockPath := lockRoot + "/" + resourceID
	if err := ensurePath(conn, lockPath); err != nil {
		return nil, err
	}
	return &DistributedLock{conn: conn, path: lockPath}, nil
}

func ensurePath(conn *Conn, path string) error {
	var current string
	for _, part := range strings.Split(strings.TrimPrefix(path, "/"), "/") {
		current += "/" + part
		exists, _, err := conn.Exists(current)
		if err != nil {
			return fmt.Errorf("failed to check node %s: %w", current, err)
		}
		if exists {
			continue
		}
		if _, err := conn.Create(current, []byte(""), 0, zk.WorldACL(zk.PermAll)); err != nil && err != zk.ErrNodeExists {
			return fmt.Errorf("failed to create node %s: %w", current, err)
		}
	}
	return nil
}

// Lock 尝试获取锁，获取不到时阻塞等待，最多等待 wait。
func (l *DistributedLock) Lock(wait time.Duration) error {
	// 1. 在锁路径下创建临时顺序节点
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return fmt.Errorf("failed to create sequential node: %w", err)
	}
	l.lockNode = nodePath

	deadline := time.Now().Add(wait)
	for {
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			return fmt.Errorf("failed to get children nodes: %w", err)
		}
		sort.Strings(children)

		// 2. 自己是最小节点则持有锁
		myNodeName := strings.TrimPrefix(l.lockNode, l.path+"/")
		if myNodeName == children[0] {
			return nil
		}

		// 3. 否则监听前一个节点，等它释放
		prevNodeIndex := -1
		for i, child := range children {
			if child == myNodeName {
				prevNodeIndex = i - 1
				break
			}
		}
		if prevNodeIndex < 0 {
			return errors.New("cannot find own node among children")
		}
		prevNodePath := l.path + "/" + children[prevNodeIndex]

		_, _, eventChan, err := l.conn.ExistsW(prevNodePath)
		if err != nil {
			if err == zk.ErrNoNode {
				continue // 前一个节点刚好消失，重新竞争
			}
			return fmt.Errorf("failed to watch previous node: %w", err)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return errors.New("timeout waiting for lock")
		}
		select {
		case event := <-eventChan:
			if event.Type == zk.EventNodeDeleted {
				continue
			}
		case <-time.After(remaining):
			return errors.New("timeout waiting for lock")
		}
	}
}

// Unlock 释放锁。
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && err != zk.ErrNoNode {
		return fmt.Errorf("failed to delete lock node: %w", err)
	}
	l.lockNode = ""
	return nil
}
