package xsplitlock

import "sync"

// Guard 借用 SplitLock 的句柄，暴露与 sync.RWMutex 同形的方法面，
// 读 token 收在内部，适配 defer 解锁等作用域惯用法。
//
// 单个 Guard 同一时刻只能承载一次在途的共享持有，且不能跨 goroutine
// 并发使用；并发读各自调用 [SplitLock.Guard] 创建独立实例。
// Guard 的生命周期不得超过其 SplitLock。
type Guard struct {
	l   *SplitLock
	tok ReadToken
}

var _ sync.Locker = (*Guard)(nil)

// Guard 创建一个绑定本锁的句柄。
func (l *SplitLock) Guard() *Guard {
	return &Guard{l: l}
}

// Lock 独占加锁。
func (g *Guard) Lock() { g.l.Lock() }

// Unlock 释放独占锁。
func (g *Guard) Unlock() { g.l.Unlock() }

// RLock 共享加锁并记录 token。
// 上一次共享持有尚未释放时调用是编程错误，直接 panic。
func (g *Guard) RLock() {
	if g.tok.held {
		panic("xsplitlock: Guard.RLock while previous read hold outstanding")
	}
	g.tok = g.l.RLock()
}

// RUnlock 释放最近一次 RLock 的共享持有。
func (g *Guard) RUnlock() {
	tok := g.tok
	g.tok = ReadToken{}
	g.l.RUnlock(tok)
}
