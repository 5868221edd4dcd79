package xshardlock

import (
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/omeyang/xmutex/pkg/lock/xrwlock"
)

const (
	// DefaultBuckets 默认槽位总数 N。
	DefaultBuckets = 1024

	// DefaultHashes 默认散列函数个数 K。
	DefaultHashes = 8

	// maxBuckets 槽位总数上限。每个槽位占一份互斥量内存，
	// 再多的槽位对争用摊薄已无可测收益。
	maxBuckets = 1 << 20
)

// Option 定义 ShardLock 可选配置。
type Option func(*options)

type options struct {
	buckets       int
	hashes        int
	readQuorum    int
	writeQuorum   int
	quorumSet     bool
	factory       xrwlock.Factory
	seed          uint64
	seeded        bool
	logger        *slog.Logger
	meterProvider metric.MeterProvider
	slowThreshold time.Duration
}

func defaultOptions() options {
	return options{
		buckets: DefaultBuckets,
		hashes:  DefaultHashes,
		factory: xrwlock.CtxFactory,
	}
}

// WithBuckets 设置槽位总数 N。
// 必须为正整数且不超过 2^20，且不小于散列函数个数 K。默认 1024。
func WithBuckets(n int) Option {
	return func(o *options) {
		o.buckets = n
	}
}

// WithHashes 设置每个 key 的候选散列函数个数 K。默认 8。
func WithHashes(k int) Option {
	return func(o *options) {
		o.hashes = k
	}
}

// WithQuorum 设置读仲裁 R 与写仲裁 W。
// 必须满足 1 ≤ R ≤ K、1 ≤ W ≤ K 且 R+W > K，否则 New 返回错误。
// 默认 R=1、W=K。
//
// 写/写互斥额外要求 2W > K；该约束不做强制校验，
// 由调用方根据业务对写并发的容忍度自行负责。
func WithQuorum(r, w int) Option {
	return func(o *options) {
		o.readQuorum = r
		o.writeQuorum = w
		o.quorumSet = true
	}
}

// WithSlotFactory 设置槽位互斥量工厂。
// 默认 xrwlock.CtxFactory（支持 ctx 限期获取）。
func WithSlotFactory(f xrwlock.Factory) Option {
	return func(o *options) {
		if f != nil {
			o.factory = f
		}
	}
}

// WithSeed 注入子集选择与读槽位选择的随机种子，便于测试复现。
// 种子只影响随机子集的抽取，不影响 key 到候选槽位的确定性映射。
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
		o.seeded = true
	}
}

// WithLogger 设置结构化日志记录器。
// 用于构造期配置告警与慢获取告警；nil 表示不记录。
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMeterProvider 设置 OpenTelemetry MeterProvider。
// 用于收集获取/释放计数与获取耗时直方图；不设置则不收集。
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WithSlowThreshold 设置慢获取告警阈值。
// 获取耗时达到阈值且配置了 logger 时记录 Warn 日志。
// d <= 0 表示关闭（默认）。
func WithSlowThreshold(d time.Duration) Option {
	return func(o *options) {
		if d < 0 {
			d = 0
		}
		o.slowThreshold = d
	}
}

func (o *options) validate() error {
	if o.buckets <= 0 || o.buckets > maxBuckets {
		return fmt.Errorf("%w: must be in [1, %d], got %d",
			ErrInvalidBuckets, maxBuckets, o.buckets)
	}
	if o.hashes <= 0 || o.hashes > o.buckets {
		return fmt.Errorf("%w: must be in [1, buckets=%d], got %d",
			ErrInvalidHashes, o.buckets, o.hashes)
	}
	if !o.quorumSet {
		o.readQuorum = 1
		o.writeQuorum = o.hashes
	}
	r, w, k := o.readQuorum, o.writeQuorum, o.hashes
	if r < 1 || r > k || w < 1 || w > k {
		return fmt.Errorf("%w: R/W must be in [1, K=%d], got R=%d W=%d",
			ErrInvalidQuorum, k, r, w)
	}
	if r+w <= k {
		return fmt.Errorf("%w: need R+W > K, got R=%d W=%d K=%d",
			ErrInvalidQuorum, r, w, k)
	}
	if o.factory == nil {
		return ErrNilSlotFactory
	}
	return nil
}
