package xrwlock

import (
	"context"
	"sync"
)

// RWLocker 槽位读写互斥量的最小能力面。
// *sync.RWMutex 满足此接口。
type RWLocker interface {
	// Lock 独占加锁，阻塞直到获取成功。
	Lock()
	// Unlock 释放独占锁。
	Unlock()
	// RLock 共享加锁，阻塞直到获取成功。
	RLock()
	// RUnlock 释放一次共享锁。
	RUnlock()
	// TryLock 非阻塞尝试独占加锁。
	TryLock() bool
	// TryRLock 非阻塞尝试共享加锁。
	TryRLock() bool
}

// ContextRWLocker 在 RWLocker 之上增加限期获取能力。
// ctx 取消或超时后返回 ctx.Err()，且不持有任何锁。
type ContextRWLocker interface {
	RWLocker

	// LockContext 独占加锁，受 ctx 超时/取消约束。
	LockContext(ctx context.Context) error
	// RLockContext 共享加锁，受 ctx 超时/取消约束。
	RLockContext(ctx context.Context) error
}

// Factory 创建一个槽位互斥量。
// 分片锁在构造时对每个槽位调用一次；返回值不得为 nil。
type Factory func() RWLocker

// StdFactory 返回基于 *sync.RWMutex 的槽位。
// 不支持限期获取，适用于不需要超时语义的场景。
func StdFactory() RWLocker { return new(sync.RWMutex) }

// CtxFactory 返回默认的 [CtxRWMutex] 槽位。
func CtxFactory() RWLocker { return NewCtxRWMutex() }

// 编译期接口检查。
var (
	_ RWLocker        = (*sync.RWMutex)(nil)
	_ ContextRWLocker = (*CtxRWMutex)(nil)
)
