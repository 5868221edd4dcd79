// Package locktest 为分片锁的包内测试提供可观测的槽位互斥量假件。
//
// Recorder 跨全部槽位记录加解锁事件的全局顺序，用于断言：
// 多槽位获取按槽位下标升序进行、失败回滚按逆序进行、
// 限期失败后不残留任何持有。
package locktest

import (
	"context"
	"fmt"
	"sync"

	"github.com/omeyang/xmutex/pkg/lock/xrwlock"
)

// Event 一次槽位加解锁事件。
type Event struct {
	Slot int
	Op   string // "lock" / "unlock" / "rlock" / "runlock"
}

func (e Event) String() string {
	return fmt.Sprintf("%s(%d)", e.Op, e.Slot)
}

// Recorder 记录全部槽位上的事件序列，并可注入阻塞槽位。
type Recorder struct {
	mu      sync.Mutex
	events  []Event
	blocked map[int]bool // 标记为 blocked 的槽位拒绝/阻塞获取
	next    int
}

// NewRecorder 创建事件记录器。
func NewRecorder() *Recorder {
	return &Recorder{blocked: make(map[int]bool)}
}

// Factory 返回槽位工厂；第 n 次调用产出下标为 n 的记录槽位。
func (r *Recorder) Factory() xrwlock.Factory {
	return func() xrwlock.RWLocker {
		r.mu.Lock()
		defer r.mu.Unlock()
		m := &recordingMutex{rec: r, slot: r.next, inner: xrwlock.NewCtxRWMutex()}
		r.next++
		return m
	}
}

// Block 将槽位标记为不可获取：Try* 直接失败，限期获取等待 ctx 超时。
func (r *Recorder) Block(slot int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocked[slot] = true
}

// Unblock 解除槽位的不可获取标记。
func (r *Recorder) Unblock(slot int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.blocked, slot)
}

// Events 返回事件序列快照。
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Reset 清空事件序列（保留槽位与 blocked 标记）。
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = r.events[:0]
}

// Ops 返回指定操作涉及的槽位下标，按事件先后排列。
func (r *Recorder) Ops(op string) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, e := range r.events {
		if e.Op == op {
			out = append(out, e.Slot)
		}
	}
	return out
}

func (r *Recorder) record(slot int, op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Slot: slot, Op: op})
}

func (r *Recorder) isBlocked(slot int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blocked[slot]
}

// recordingMutex 委托给 CtxRWMutex 并上报事件。
type recordingMutex struct {
	rec   *Recorder
	slot  int
	inner *xrwlock.CtxRWMutex
}

var _ xrwlock.ContextRWLocker = (*recordingMutex)(nil)

func (m *recordingMutex) Lock() {
	m.inner.Lock()
	m.rec.record(m.slot, "lock")
}

func (m *recordingMutex) LockContext(ctx context.Context) error {
	if m.rec.isBlocked(m.slot) {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := m.inner.LockContext(ctx); err != nil {
		return err
	}
	m.rec.record(m.slot, "lock")
	return nil
}

func (m *recordingMutex) TryLock() bool {
	if m.rec.isBlocked(m.slot) || !m.inner.TryLock() {
		return false
	}
	m.rec.record(m.slot, "lock")
	return true
}

func (m *recordingMutex) Unlock() {
	m.rec.record(m.slot, "unlock")
	m.inner.Unlock()
}

func (m *recordingMutex) RLock() {
	m.inner.RLock()
	m.rec.record(m.slot, "rlock")
}

func (m *recordingMutex) RLockContext(ctx context.Context) error {
	if m.rec.isBlocked(m.slot) {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := m.inner.RLockContext(ctx); err != nil {
		return err
	}
	m.rec.record(m.slot, "rlock")
	return nil
}

func (m *recordingMutex) TryRLock() bool {
	if m.rec.isBlocked(m.slot) || !m.inner.TryRLock() {
		return false
	}
	m.rec.record(m.slot, "rlock")
	return true
}

func (m *recordingMutex) RUnlock() {
	m.rec.record(m.slot, "runlock")
	m.inner.RUnlock()
}
