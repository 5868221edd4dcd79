package xshardlock

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/binary"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/omeyang/xmutex/pkg/lock/xrwlock"
)

// 获取模式标签，供日志与指标使用。
const (
	modeRead  = "read"
	modeWrite = "write"
)

// ShardLock 按 key 寻址的 N 槽位仲裁读写锁。
// 所有方法并发安全。槽位数量与候选映射在构造后不变。
type ShardLock struct {
	slots []xrwlock.RWLocker
	k     int
	r     int
	w     int

	// idHash[i] 是散列标识 i 的预计算散列，
	// candidate(i, key) = (idHash[i] XOR xxhash(key)) mod N。
	idHash []uint64

	ctxCapable bool

	// 子集抽取与读槽位选择的随机引擎，互斥量保护。
	rngMu sync.Mutex
	rng   *rand.Rand

	logger  *slog.Logger
	metrics *Metrics
	slow    time.Duration
}

// New 创建一个 ShardLock。配置无效时返回错误。
func New(opts ...Option) (*ShardLock, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	slots := make([]xrwlock.RWLocker, o.buckets)
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

	idHash := make([]uint64, o.hashes)
	var buf [8]byte
	for i := range idHash {
		binary.LittleEndian.PutUint64(buf[:], uint64(i))
		idHash[i] = xxhash.Sum64(buf[:])
	}

	metrics, err := NewMetrics(o.meterProvider)
	if err != nil {
		return nil, err
	}

	l := &ShardLock{
		slots:      slots,
		k:          o.hashes,
		r:          o.readQuorum,
		w:          o.writeQuorum,
		idHash:     idHash,
		ctxCapable: ctxCapable,
		rng:        newEngine(o),
		logger:     o.logger,
		metrics:    metrics,
		slow:       o.slowThreshold,
	}

	if l.logger != nil {
		if 2*l.w <= l.k {
			l.logger.Warn("writer/writer exclusion not guaranteed: need 2W > K",
				AttrQuorum(l.r, l.w), AttrHashes(l.k))
		}
		l.logger.Debug("shard lock created",
			AttrBuckets(len(slots)), AttrHashes(l.k), AttrQuorum(l.r, l.w))
	}
	return l, nil
}

// newEngine 构造实例私有的随机引擎。
// 未注入种子时从系统熵源独立播种，避免实例间共享隐式全局状态。
func newEngine(o options) *rand.Rand {
	seed := o.seed
	if !o.seeded {
		var buf [8]byte
		if _, err := cryptorand.Read(buf[:]); err != nil {
			// 系统熵源不可用属于系统级故障，快速失败便于定位
			panic("xshardlock: crypto/rand.Read failed: " + err.Error())
		}
		seed = binary.LittleEndian.Uint64(buf[:])
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Buckets 返回槽位总数 N。
func (l *ShardLock) Buckets() int { return len(l.slots) }

// Hashes 返回散列函数个数 K。
func (l *ShardLock) Hashes() int { return l.k }

// Quorum 返回读仲裁 R 与写仲裁 W。
func (l *ShardLock) Quorum() (r, w int) { return l.r, l.w }

// Candidates 返回 key 的候选槽位集合，去重升序。
// 同一 key 的返回值恒定。空 key 返回 nil。
func (l *ShardLock) Candidates(key string) []uint32 {
	if key == "" {
		return nil
	}
	return l.pickSlots(xxhash.Sum64String(key), l.k)
}

// Lock 以独占模式锁定 key：取 W 个候选槽位（去重升序）并逐个独占获取。
// 受 ctx 超时/取消约束；失败时已获取的槽位按逆序全部释放。
// ctx 不得为 nil，否则 panic。空 key 返回 [ErrInvalidKey]。
func (l *ShardLock) Lock(ctx context.Context, key string) (Token, error) {
	if err := l.checkAcquire(ctx, key); err != nil {
		return Token{}, err
	}
	start := time.Now()
	tok, err := l.lockSlots(ctx, l.pickSlots(xxhash.Sum64String(key), l.w), false)
	l.observe(ctx, key, modeWrite, tok, err, time.Since(start))
	return tok, err
}

// RLock 以共享模式锁定 key：取 R 个候选槽位并逐个共享获取。
// R=1 时走免分配的单槽位快路径。约束与 Lock 相同。
func (l *ShardLock) RLock(ctx context.Context, key string) (Token, error) {
	if err := l.checkAcquire(ctx, key); err != nil {
		return Token{}, err
	}
	start := time.Now()
	sum := xxhash.Sum64String(key)

	var tok Token
	var err error
	if l.r == 1 {
		slot := l.slotOf(l.pickOne(), sum)
		if err = l.acquireSlot(ctx, slot, true); err == nil {
			tok = singleToken(slot)
		}
	} else {
		tok, err = l.lockSlots(ctx, l.pickSlots(sum, l.r), true)
	}
	l.observe(ctx, key, modeRead, tok, err, time.Since(start))
	return tok, err
}

// TryLock 非阻塞尝试独占锁定 key。
// 任一槽位忙碌时，已获取的槽位按逆序释放并报告失败。
// 空 key 恒返回失败。
func (l *ShardLock) TryLock(key string) (Token, bool) {
	if key == "" {
		return Token{}, false
	}
	return l.tryLockSlots(key, l.pickSlots(xxhash.Sum64String(key), l.w), false)
}

// TryRLock 非阻塞尝试共享锁定 key。失败时无任何副作用。
func (l *ShardLock) TryRLock(key string) (Token, bool) {
	if key == "" {
		return Token{}, false
	}
	sum := xxhash.Sum64String(key)
	if l.r == 1 {
		slot := l.slotOf(l.pickOne(), sum)
		if !l.slots[slot].TryRLock() {
			l.recordTry(modeRead, false)
			return Token{}, false
		}
		l.recordTry(modeRead, true)
		return singleToken(slot), true
	}
	return l.tryLockSlots(key, l.pickSlots(sum, l.r), true)
}

// Unlock 释放独占 token 记录的全部槽位。
// token 为零值、槽位越界或与 key 的候选集不符时返回 [ErrInvalidToken]，
// 且不释放任何槽位。token 不得重放。
func (l *ShardLock) Unlock(key string, tok Token) error {
	return l.release(key, tok, false)
}

// RUnlock 释放共享 token 记录的全部槽位。约束与 Unlock 相同。
func (l *ShardLock) RUnlock(key string, tok Token) error {
	return l.release(key, tok, true)
}

func (l *ShardLock) checkAcquire(ctx context.Context, key string) error {
	if ctx == nil {
		panic("xshardlock: nil Context")
	}
	if key == "" {
		return ErrInvalidKey
	}
	if !l.ctxCapable && ctx.Done() != nil {
		return ErrContextUnsupported
	}
	return nil
}

// lockSlots 按升序逐个获取 slots；任一失败则把已获取的按逆序释放。
func (l *ShardLock) lockSlots(ctx context.Context, slots []uint32, shared bool) (Token, error) {
	for i, s := range slots {
		if err := l.acquireSlot(ctx, s, shared); err != nil {
			for j := i - 1; j >= 0; j-- {
				l.releaseSlot(slots[j], shared)
			}
			return Token{}, err
		}
	}
	if len(slots) == 1 {
		return singleToken(slots[0]), nil
	}
	return multiToken(slots), nil
}

func (l *ShardLock) tryLockSlots(key string, slots []uint32, shared bool) (Token, bool) {
	mode := modeWrite
	if shared {
		mode = modeRead
	}
	for i, s := range slots {
		var ok bool
		if shared {
			ok = l.slots[s].TryRLock()
		} else {
			ok = l.slots[s].TryLock()
		}
		if !ok {
			for j := i - 1; j >= 0; j-- {
				l.releaseSlot(slots[j], shared)
			}
			l.recordTry(mode, false)
			return Token{}, false
		}
	}
	l.recordTry(mode, true)
	if len(slots) == 1 {
		return singleToken(slots[0]), true
	}
	return multiToken(slots), true
}

func (l *ShardLock) acquireSlot(ctx context.Context, slot uint32, shared bool) error {
	s := l.slots[slot]
	if l.ctxCapable {
		c := s.(xrwlock.ContextRWLocker)
		if shared {
			return c.RLockContext(ctx)
		}
		return c.LockContext(ctx)
	}
	// 能力检查已在 checkAcquire 完成，此处 ctx 必为不可取消，纯阻塞获取。
	if shared {
		s.RLock()
	} else {
		s.Lock()
	}
	return nil
}

func (l *ShardLock) releaseSlot(slot uint32, shared bool) {
	if shared {
		l.slots[slot].RUnlock()
	} else {
		l.slots[slot].Unlock()
	}
}

func (l *ShardLock) release(key string, tok Token, shared bool) error {
	if key == "" {
		return ErrInvalidKey
	}
	if !tok.valid(len(l.slots)) {
		return ErrInvalidToken
	}
	// 廉价误用防御：token 的槽位必须全部落在 key 的候选集内。
	if !l.tokenMatchesKey(xxhash.Sum64String(key), tok) {
		return ErrInvalidToken
	}
	tok.each(func(s uint32) {
		l.releaseSlot(s, shared)
	})
	if l.metrics != nil {
		mode := modeWrite
		if shared {
			mode = modeRead
		}
		l.metrics.recordRelease(context.Background(), mode)
	}
	return nil
}

// tokenMatchesKey 校验 token 的每个槽位都属于 key 的 K 个候选。
// 候选集上限为 K，线性扫描即可。
func (l *ShardLock) tokenMatchesKey(sum uint64, tok Token) bool {
	ok := true
	tok.each(func(slot uint32) {
		found := false
		for i := 0; i < l.k; i++ {
			if l.slotOf(i, sum) == slot {
				found = true
				break
			}
		}
		if !found {
			ok = false
		}
	})
	return ok
}

// slotOf 计算散列标识 i 与 key 散列的组合落在哪个槽位。
func (l *ShardLock) slotOf(i int, sum uint64) uint32 {
	return uint32((l.idHash[i] ^ sum) % uint64(len(l.slots)))
}

// pickSlots 从 key 的 K 个候选中选出 count 个槽位，去重升序。
// count == K 时全选；否则对散列标识做部分 Fisher–Yates 打乱后取前 count 个。
// 升序排序是全局加锁顺序的一部分，不是整理性操作。
func (l *ShardLock) pickSlots(sum uint64, count int) []uint32 {
	chosen := make([]uint32, 0, count)
	if count == l.k {
		for i := 0; i < l.k; i++ {
			chosen = append(chosen, l.slotOf(i, sum))
		}
	} else {
		for _, i := range l.pickIDs(count) {
			chosen = append(chosen, l.slotOf(i, sum))
		}
	}
	slices.Sort(chosen)
	return slices.Compact(chosen)
}

// pickIDs 均匀抽取 count 个互异的散列标识。
func (l *ShardLock) pickIDs(count int) []int {
	ids := make([]int, l.k)
	for i := range ids {
		ids[i] = i
	}
	l.rngMu.Lock()
	for i := 0; i < count; i++ {
		j := i + l.rng.IntN(l.k-i)
		ids[i], ids[j] = ids[j], ids[i]
	}
	l.rngMu.Unlock()
	return ids[:count]
}

func (l *ShardLock) pickOne() int {
	l.rngMu.Lock()
	i := l.rng.IntN(l.k)
	l.rngMu.Unlock()
	return i
}

func (l *ShardLock) observe(ctx context.Context, key, mode string, tok Token, err error, d time.Duration) {
	if l.metrics != nil {
		l.metrics.recordAcquire(ctx, mode, resultLabel(err), d)
	}
	if err == nil && l.slow > 0 && d >= l.slow && l.logger != nil {
		l.logger.Warn("slow lock acquisition",
			AttrKey(key), AttrMode(mode), AttrDuration(d), AttrSlots(tok.Slots()))
	}
}

func (l *ShardLock) recordTry(mode string, acquired bool) {
	if l.metrics == nil {
		return
	}
	result := resultBusy
	if acquired {
		result = resultAcquired
	}
	l.metrics.recordAcquire(context.Background(), mode, result, 0)
}
