package xshardlock

import (
	"context"
	"sync"
)

// Guard 绑定 (ShardLock, key) 的便捷句柄，token 收在内部，
// 暴露与 sync.RWMutex 同形的方法面，适配 defer 解锁等作用域惯用法。
//
// 单个 Guard 同一时刻只能承载一次在途持有，且不能跨 goroutine
// 并发使用；并发访问同一 key 各自创建 Guard。对误用（重复加锁、
// 未加锁即解锁）直接 panic，与 sync.RWMutex 一致。
// Guard 的生命周期不得超过其 ShardLock。
type Guard struct {
	l   *ShardLock
	key string
	tok Token
}

var _ sync.Locker = (*Guard)(nil)

// Guard 创建绑定指定 key 的句柄。key 不得为空，否则 panic。
func (l *ShardLock) Guard(key string) *Guard {
	if key == "" {
		panic("xshardlock: Guard with empty key")
	}
	return &Guard{l: l, key: key}
}

// Key 返回句柄绑定的 key。
func (g *Guard) Key() string { return g.key }

// Lock 以独占模式锁定 key，阻塞直到成功。
func (g *Guard) Lock() {
	if g.tok.held {
		panic("xshardlock: Guard.Lock while previous hold outstanding")
	}
	tok, err := g.l.Lock(context.Background(), g.key)
	if err != nil {
		// key 非空且 ctx 不可取消时 Lock 不会失败；此处是能力缺失
		panic("xshardlock: Guard.Lock failed: " + err.Error())
	}
	g.tok = tok
}

// Unlock 释放最近一次 Lock 的独占持有。
func (g *Guard) Unlock() {
	tok := g.tok
	g.tok = Token{}
	if err := g.l.Unlock(g.key, tok); err != nil {
		panic("xshardlock: Unlock of unlocked Guard")
	}
}

// RLock 以共享模式锁定 key，阻塞直到成功。
func (g *Guard) RLock() {
	if g.tok.held {
		panic("xshardlock: Guard.RLock while previous hold outstanding")
	}
	tok, err := g.l.RLock(context.Background(), g.key)
	if err != nil {
		panic("xshardlock: Guard.RLock failed: " + err.Error())
	}
	g.tok = tok
}

// RUnlock 释放最近一次 RLock 的共享持有。
func (g *Guard) RUnlock() {
	tok := g.tok
	g.tok = Token{}
	if err := g.l.RUnlock(g.key, tok); err != nil {
		panic("xshardlock: RUnlock of unlocked Guard")
	}
}
