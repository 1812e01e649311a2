package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/daniel8038/tg-golddog-alert/internal/guard"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// unlockLua 仅当值与持有者令牌一致时删除，避免误删他人的锁
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// renewLua 仅当仍由持有者持有时续期
const renewLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// Locker 基于 SETNX + TTL 的分布式键锁，多实例共享同一代币的处理标记。
// 持有期间后台按 ttl/3 续期，进程崩溃时锁在 ttl 后自动释放
type Locker struct {
	rdb      *redis.Client
	prefix   string
	ttl      time.Duration
	unlockSc *redis.Script
	renewSc  *redis.Script
}

// NewLocker 创建分布式键锁
func NewLocker(rdb *redis.Client, prefix string, ttl time.Duration) *Locker {
	return &Locker{
		rdb:      rdb,
		prefix:   prefix,
		ttl:      ttl,
		unlockSc: redis.NewScript(unlockLua),
		renewSc:  redis.NewScript(renewLua),
	}
}

var _ guard.Locker = (*Locker)(nil)

func (l *Locker) key(key string) string {
	return l.prefix + "lock:" + key
}

// TryLock 尝试获取锁，释放函数可重复调用
func (l *Locker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	token := ulid.Make().String()
	lk := l.key(key)

	ok, err := l.rdb.SetNX(ctx, lk, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(lk, token, stop, done)

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			close(stop)
			<-done
			// 调用方的 context 可能已取消，释放时使用独立的超时
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = l.unlockSc.Run(unlockCtx, l.rdb, []string{lk}, token).Err()
		})
	}
	return unlock, true, nil
}

// keepAlive 持有期间定时续期，锁已不属于自己时退出
func (l *Locker) keepAlive(lk, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := l.ttl / 3
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			renewCtx, cancel := context.WithTimeout(context.Background(), interval)
			n, err := l.renewSc.Run(renewCtx, l.rdb, []string{lk}, token, l.ttl.Milliseconds()).Int64()
			cancel()
			if err == nil && n == 0 {
				return
			}
		}
	}
}

// Locked 探测锁是否存在
func (l *Locker) Locked(ctx context.Context, key string) (bool, error) {
	n, err := l.rdb.Exists(ctx, l.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: check lock %s: %w", key, err)
	}
	return n > 0, nil
}
