package xrwlock

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// maxReaders 单个槽位允许的最大并发读者数。
// 写者获取全部权重，读者各占 1，与 sync.RWMutex 的上限同数量级。
const maxReaders = 1 << 30

// CtxRWMutex 支持 ctx 限期获取的读写互斥量。
//
// 基于带权信号量实现：读者占 1 个权重，写者占全部权重。
// 信号量按 FIFO 排队，等待中的写者会阻止新读者插队，不会写饥饿。
// 限期获取失败时信号量状态不变，不会残留部分权重。
//
// 必须通过 [NewCtxRWMutex] 创建，零值不可用。
type CtxRWMutex struct {
	sem *semaphore.Weighted
}

// NewCtxRWMutex 创建一个 CtxRWMutex。
func NewCtxRWMutex() *CtxRWMutex {
	return &CtxRWMutex{sem: semaphore.NewWeighted(maxReaders)}
}

// Lock 独占加锁，阻塞直到获取成功。
func (m *CtxRWMutex) Lock() {
	// Background ctx 永不取消，Acquire 不会返回错误。
	_ = m.sem.Acquire(context.Background(), maxReaders)
}

// LockContext 独占加锁，受 ctx 约束。
func (m *CtxRWMutex) LockContext(ctx context.Context) error {
	return m.sem.Acquire(ctx, maxReaders)
}

// TryLock 非阻塞尝试独占加锁。
// 存在等待者时直接失败，保持排队公平性。
func (m *CtxRWMutex) TryLock() bool {
	return m.sem.TryAcquire(maxReaders)
}

// Unlock 释放独占锁。
// 未持有独占锁时调用是编程错误，信号量会 panic。
func (m *CtxRWMutex) Unlock() {
	m.sem.Release(maxReaders)
}

// RLock 共享加锁，阻塞直到获取成功。
func (m *CtxRWMutex) RLock() {
	_ = m.sem.Acquire(context.Background(), 1)
}

// RLockContext 共享加锁，受 ctx 约束。
func (m *CtxRWMutex) RLockContext(ctx context.Context) error {
	return m.sem.Acquire(ctx, 1)
}

// TryRLock 非阻塞尝试共享加锁。
func (m *CtxRWMutex) TryRLock() bool {
	return m.sem.TryAcquire(1)
}

// RUnlock 释放一次共享锁。
func (m *CtxRWMutex) RUnlock() {
	m.sem.Release(1)
}
