// Package guard provides keyed try-locks used to keep duplicate work from running
// concurrently: one order execution per order id, one tick per instrument.
package guard

import (
	"context"
	"sync"
)

// Locker 非阻塞的键锁，拿不到锁时立即返回
type Locker interface {
	// TryLock 尝试获取 key 的锁，成功时返回释放函数
	TryLock(ctx context.Context, key string) (unlock func(), ok bool, err error)
	// Locked 探测 key 当前是否被持有
	Locked(ctx context.Context, key string) (bool, error)
}

// KeyedGuard 进程内键锁
type KeyedGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewKeyedGuard 创建进程内键锁
func NewKeyedGuard() *KeyedGuard {
	return &KeyedGuard{held: make(map[string]struct{})}
}

var _ Locker = (*KeyedGuard)(nil)

// TryLock 尝试获取 key 的锁，释放函数可重复调用
func (g *KeyedGuard) TryLock(_ context.Context, key string) (func(), bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.held[key]; ok {
		return nil, false, nil
	}
	g.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, true, nil
}

// Locked 探测 key 当前是否被持有
func (g *KeyedGuard) Locked(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.held[key]
	return ok, nil
}

// Len 当前持有的锁数量
func (g *KeyedGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.held)
}
