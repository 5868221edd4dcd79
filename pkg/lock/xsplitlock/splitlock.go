package xsplitlock

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"

	"github.com/omeyang/xmutex/pkg/lock/xrwlock"
)

// SplitLock 单资源 K 路拆分读写锁。
// 写者取全部 K 个槽位，读者随机取 1 个。所有方法并发安全。
type SplitLock struct {
	slots      []xrwlock.RWLocker
	ctxCapable bool

	// 读槽位选择的随机引擎。rand/v2 的 Rand 非并发安全，用互斥量保护；
	// 临界区只有一次整数抽取，体量远小于随后的槽位获取。
	rngMu sync.Mutex
	rng   *rand.Rand
}

// ReadToken 记录一次共享获取实际持有的槽位，
// RUnlock 时必须回传。零值不代表任何持有。
type ReadToken struct {
	slot int
	held bool
}

// Slot 返回 token 持有的槽位下标。未持有时返回 -1。
func (t ReadToken) Slot() int {
	if !t.held {
		return -1
	}
	return t.slot
}

// New 创建一个 SplitLock。配置无效时返回错误。
func New(opts ...Option) (*SplitLock, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	slots := make([]xrwlock.RWLocker, o.slotCount)
	ctxCapable := true
	for i := range slots {
		s := o.factory()
		if s == nil {
			return nil, ErrNilSlotFactory
		}
		if _, ok := s.(xrwlock.ContextRWLocker); !ok {
			ctxCapable = false
		}
		slots[i] = s
	}

	return &SplitLock{
		slots:      slots,
		ctxCapable: ctxCapable,
		rng:        newEngine(o),
	}, nil
}

// newEngine 构造实例私有的随机引擎。
// 未注入种子时从系统熵源独立播种，避免实例间共享隐式全局状态。
func newEngine(o options) *rand.Rand {
	seed := o.seed
	if !o.seeded {
		var buf [8]byte
		if _, err := cryptorand.Read(buf[:]); err != nil {
			// 系统熵源不可用属于系统级故障，快速失败便于定位
			panic("xsplitlock: crypto/rand.Read failed: " + err.Error())
		}
		seed = binary.LittleEndian.Uint64(buf[:])
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// SlotCount 返回槽位数 K。
func (l *SplitLock) SlotCount() int { return len(l.slots) }

// Lock 独占加锁：按下标升序获取全部 K 个槽位，阻塞直到全部持有。
// 升序是跨所有调用方的全局加锁顺序，不可改变。
func (l *SplitLock) Lock() {
	for _, s := range l.slots {
		s.Lock()
	}
}

// LockContext 独占加锁，受 ctx 约束。
// 任一槽位未能在期限内获取时，已获取的槽位按逆序全部释放后才返回，
// 不会残留部分持有。ctx 不得为 nil，否则 panic。
func (l *SplitLock) LockContext(ctx context.Context) error {
	if ctx == nil {
		panic("xsplitlock: nil Context")
	}
	if !l.ctxCapable {
		if ctx.Done() == nil {
			l.Lock()
			return nil
		}
		return ErrContextUnsupported
	}
	for i, s := range l.slots {
		if err := s.(xrwlock.ContextRWLocker).LockContext(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				l.slots[j].Unlock()
			}
			return err
		}
	}
	return nil
}

// TryLock 非阻塞尝试独占加锁。
// 首个失败槽位之前已获取的槽位按逆序释放，之后报告失败。
func (l *SplitLock) TryLock() bool {
	for i, s := range l.slots {
		if !s.TryLock() {
			for j := i - 1; j >= 0; j-- {
				l.slots[j].Unlock()
			}
			return false
		}
	}
	return true
}

// Unlock 释放独占锁持有的全部 K 个槽位。
func (l *SplitLock) Unlock() {
	for _, s := range l.slots {
		s.Unlock()
	}
}

// RLock 共享加锁：随机选择一个槽位并取共享持有。
// 返回的 token 必须原样回传给 RUnlock。
func (l *SplitLock) RLock() ReadToken {
	i := l.pick()
	l.slots[i].RLock()
	return ReadToken{slot: i, held: true}
}

// RLockContext 共享加锁，受 ctx 约束。
// 失败时无任何副作用。ctx 不得为 nil，否则 panic。
func (l *SplitLock) RLockContext(ctx context.Context) (ReadToken, error) {
	if ctx == nil {
		panic("xsplitlock: nil Context")
	}
	i := l.pick()
	if !l.ctxCapable {
		if ctx.Done() == nil {
			l.slots[i].RLock()
			return ReadToken{slot: i, held: true}, nil
		}
		return ReadToken{}, ErrContextUnsupported
	}
	if err := l.slots[i].(xrwlock.ContextRWLocker).RLockContext(ctx); err != nil {
		return ReadToken{}, err
	}
	return ReadToken{slot: i, held: true}, nil
}

// TryRLock 非阻塞尝试共享加锁。失败时无任何副作用。
func (l *SplitLock) TryRLock() (ReadToken, bool) {
	i := l.pick()
	if !l.slots[i].TryRLock() {
		return ReadToken{}, false
	}
	return ReadToken{slot: i, held: true}, true
}

// RUnlock 释放 token 记录的共享持有。
// 回传零值 token 或重放已用过的 token 是编程错误，直接 panic，
// 与 sync.RWMutex 对误用的处理一致。
func (l *SplitLock) RUnlock(tok ReadToken) {
	if !tok.held || tok.slot < 0 || tok.slot >= len(l.slots) {
		panic("xsplitlock: RUnlock of invalid read token")
	}
	l.slots[tok.slot].RUnlock()
}

func (l *SplitLock) pick() int {
	l.rngMu.Lock()
	i := l.rng.IntN(len(l.slots))
	l.rngMu.Unlock()
	return i
}
