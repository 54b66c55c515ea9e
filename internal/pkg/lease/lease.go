// Package lease 基于 redis 的互斥租约，保证同一时刻只有一个进程执行定时任务。
package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var ErrLeaseHeld = errors.New("lease is held by another holder")

const keyPrefix = "careerlane:lease:"

// 只有持有者本人可以释放
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Locker struct {
	client *redis.Client
}

func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client}
}

// Lease 一次成功的获取
type Lease struct {
	locker *Locker
	key    string
	token  string
}

// Acquire 获取租约，ttl 到期后自动失效
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	key := keyPrefix + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", name, err)
	}
	if !ok {
		return nil, ErrLeaseHeld
	}
	return &Lease{locker: l, key: key, token: token}, nil
}

// Release 释放租约，租约已过期或被他人持有时什么都不做
func (le *Lease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, le.locker.client, []string{le.key}, le.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// Held 查询租约是否被任何人持有
func (l *Locker) Held(ctx context.Context, name string) (bool, error) {
	n, err := l.client.Exists(ctx, keyPrefix+name).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// WithLease 在租约保护下执行 fn
func (l *Locker) WithLease(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) error {
	le, err := l.Acquire(ctx, name, ttl)
	if err != nil {
		return err
	}
	defer le.Release(context.Background())
	return fn(ctx)
}
