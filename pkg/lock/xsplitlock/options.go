package xsplitlock

import (
	"fmt"

	"github.com/omeyang/xmutex/pkg/lock/xrwlock"
)

const (
	// DefaultSlotCount 默认槽位数。
	DefaultSlotCount = 4

	// maxSlotCount 槽位数上限。写者每次获取都要遍历全部槽位，
	// 更大的 K 只会放大写路径成本，没有实际收益。
	maxSlotCount = 1 << 16
)

// Option 定义 SplitLock 可选配置。
type Option func(*options)

type options struct {
	slotCount int
	factory   xrwlock.Factory
	seed      uint64
	seeded    bool
}

func defaultOptions() options {
	return options{
		slotCount: DefaultSlotCount,
		factory:   xrwlock.CtxFactory,
	}
}

// WithSlotCount 设置槽位数 K。
// 必须为正整数且不超过 65536，否则 New 返回错误。默认 4。
func WithSlotCount(k int) Option {
	return func(o *options) {
		o.slotCount = k
	}
}

// WithSlotFactory 设置槽位互斥量工厂。
// 默认 xrwlock.CtxFactory（支持 ctx 限期获取）。
// 工厂产出的槽位不实现 xrwlock.ContextRWLocker 时，
// 限期操作返回 [ErrContextUnsupported]。
func WithSlotFactory(f xrwlock.Factory) Option {
	return func(o *options) {
		if f != nil {
			o.factory = f
		}
	}
}

// WithSeed 注入读槽位选择的随机种子，便于测试复现。
// 不设置时使用系统熵源独立播种，实例间互不干扰。
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
		o.seeded = true
	}
}

func (o *options) validate() error {
	if o.slotCount <= 0 || o.slotCount > maxSlotCount {
		return fmt.Errorf("%w: must be in [1, %d], got %d",
			ErrInvalidSlotCount, maxSlotCount, o.slotCount)
	}
	if o.factory == nil {
		return ErrNilSlotFactory
	}
	return nil
}
