package xshardlock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/omeyang/xmutex/internal/locktest"
	"github.com/omeyang/xmutex/pkg/lock/xrwlock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewDefaults(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	assert.Equal(t, DefaultBuckets, l.Buckets())
	assert.Equal(t, DefaultHashes, l.Hashes())
	r, w := l.Quorum()
	assert.Equal(t, 1, r)
	assert.Equal(t, DefaultHashes, w)
}

func TestNewInvalidConfig(t *testing.T) {
	cases := []struct {
		name string
		opts []Option
		want error
	}{
		{"zero buckets", []Option{WithBuckets(0)}, ErrInvalidBuckets},
		{"too many buckets", []Option{WithBuckets(maxBuckets + 1)}, ErrInvalidBuckets},
		{"zero hashes", []Option{WithHashes(0)}, ErrInvalidHashes},
		{"hashes exceed buckets", []Option{WithBuckets(4), WithHashes(8)}, ErrInvalidHashes},
		{"zero read quorum", []Option{WithQuorum(0, 8)}, ErrInvalidQuorum},
		{"write quorum above K", []Option{WithQuorum(1, 9)}, ErrInvalidQuorum},
		{"quorum without overlap", []Option{WithQuorum(2, 6)}, ErrInvalidQuorum},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.opts...)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestNewWithNilOption(t *testing.T) {
	l, err := New(nil)
	require.NoError(t, err)
	require.NotNil(t, l)
}

func TestCandidatesDeterministic(t *testing.T) {
	l, err := New(WithBuckets(1024), WithHashes(8))
	require.NoError(t, err)

	first := l.Candidates("fizz")
	require.NotEmpty(t, first)
	assert.LessOrEqual(t, len(first), 8)
	assert.True(t, sortedUnique(first), "candidates must be deduplicated and ascending")

	for range 16 {
		assert.Equal(t, first, l.Candidates("fizz"))
	}

	// 候选映射不依赖实例的随机种子
	other, err := New(WithBuckets(1024), WithHashes(8), WithSeed(99))
	require.NoError(t, err)
	assert.Equal(t, first, other.Candidates("fizz"))

	assert.Nil(t, l.Candidates(""))
}

// 规格场景：N=1024、K=8、R=1、W=8，key "fizz" 的独占锁定必须
// 恰好按升序获取其全部候选槽位；并发的共享锁定必须阻塞到释放。
func TestLockAcquiresExactlyCandidatesAscending(t *testing.T) {
	rec := locktest.NewRecorder()
	l, err := New(WithBuckets(1024), WithHashes(8), WithSlotFactory(rec.Factory()))
	require.NoError(t, err)

	want := l.Candidates("fizz")

	tok, err := l.Lock(context.Background(), "fizz")
	require.NoError(t, err)
	assert.Equal(t, want, tok.Slots())

	got := rec.Ops("lock")
	locked := make([]uint32, len(got))
	for i, s := range got {
		locked[i] = uint32(s)
	}
	assert.Equal(t, want, locked, "writer must take candidates in ascending slot order")

	acquired := make(chan Token)
	go func() {
		rt, rerr := l.RLock(context.Background(), "fizz")
		assert.NoError(t, rerr)
		acquired <- rt
	}()

	select {
	case <-acquired:
		t.Fatal("RLock succeeded while writer held the full candidate set")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, l.Unlock("fizz", tok))

	select {
	case rt := <-acquired:
		assert.Contains(t, want, rt.Slots()[0])
		require.NoError(t, l.RUnlock("fizz", rt))
	case <-time.After(time.Second):
		t.Fatal("RLock did not unblock after Unlock")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	l, err := New(WithBuckets(64), WithHashes(4), WithSeed(1))
	require.NoError(t, err)

	tok, err := l.Lock(context.Background(), "key1")
	require.NoError(t, err)
	assert.Equal(t, len(l.Candidates("key1")), tok.Size())
	require.NoError(t, l.Unlock("key1", tok))

	rt, err := l.RLock(context.Background(), "key1")
	require.NoError(t, err)
	assert.Equal(t, 1, rt.Size())
	require.NoError(t, l.RUnlock("key1", rt))

	// 全部槽位回到空闲：再次独占锁定立即成功
	tok2, ok := l.TryLock("key1")
	require.True(t, ok)
	require.NoError(t, l.Unlock("key1", tok2))
}

func TestUnlockInvalidToken(t *testing.T) {
	l, err := New(WithBuckets(64), WithHashes(4))
	require.NoError(t, err)

	assert.ErrorIs(t, l.Unlock("key1", Token{}), ErrInvalidToken)
	assert.ErrorIs(t, l.RUnlock("key1", Token{}), ErrInvalidToken)
	assert.ErrorIs(t, l.Unlock("", Token{}), ErrInvalidKey)
}

func TestUnlockMismatchedKey(t *testing.T) {
	l, err := New(WithBuckets(1024), WithHashes(4), WithSeed(2))
	require.NoError(t, err)

	// 找一个候选集与 key1 不同的 key
	other := ""
	for i := 0; ; i++ {
		k := fmt.Sprintf("other-%d", i)
		if !assert.ObjectsAreEqual(l.Candidates("key1"), l.Candidates(k)) {
			other = k
			break
		}
	}

	tok, err := l.Lock(context.Background(), "key1")
	require.NoError(t, err)

	assert.ErrorIs(t, l.Unlock(other, tok), ErrInvalidToken,
		"token presented with the wrong key must be rejected")

	require.NoError(t, l.Unlock("key1", tok))
}

func TestEmptyKey(t *testing.T) {
	l, err := New(WithBuckets(16), WithHashes(2))
	require.NoError(t, err)

	_, err = l.Lock(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = l.RLock(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, ok := l.TryLock("")
	assert.False(t, ok)
	_, ok = l.TryRLock("")
	assert.False(t, ok)
}

func TestNilContextPanics(t *testing.T) {
	l, err := New(WithBuckets(16), WithHashes(2))
	require.NoError(t, err)

	assert.PanicsWithValue(t, "xshardlock: nil Context", func() {
		l.Lock(nil, "key1") //nolint:errcheck,staticcheck // 测试 nil ctx panic 行为
	})
}

func TestTryLockWhileHeld(t *testing.T) {
	l, err := New(WithBuckets(64), WithHashes(4), WithSeed(3))
	require.NoError(t, err)

	tok, err := l.Lock(context.Background(), "key1")
	require.NoError(t, err)

	_, ok := l.TryLock("key1")
	assert.False(t, ok)
	_, ok = l.TryRLock("key1")
	assert.False(t, ok)

	require.NoError(t, l.Unlock("key1", tok))

	tok2, ok := l.TryLock("key1")
	require.True(t, ok)
	require.NoError(t, l.Unlock("key1", tok2))
}

func TestSharedHoldBlocksWriterQuorum(t *testing.T) {
	l, err := New(WithBuckets(64), WithHashes(4), WithSeed(4))
	require.NoError(t, err)

	rt, err := l.RLock(context.Background(), "key1")
	require.NoError(t, err)

	// R+W > K：读者持有的槽位必在写者的 W 子集内
	_, ok := l.TryLock("key1")
	assert.False(t, ok, "writer quorum must intersect the reader's slot")

	require.NoError(t, l.RUnlock("key1", rt))
}

func TestConcurrentReaders(t *testing.T) {
	l, err := New(WithBuckets(64), WithHashes(4))
	require.NoError(t, err)

	rt1, err := l.RLock(context.Background(), "key1")
	require.NoError(t, err)
	rt2, err := l.RLock(context.Background(), "key1")
	require.NoError(t, err)

	require.NoError(t, l.RUnlock("key1", rt1))
	require.NoError(t, l.RUnlock("key1", rt2))
}

func TestLockContextTimeoutIsTransactional(t *testing.T) {
	rec := locktest.NewRecorder()
	l, err := New(WithBuckets(32), WithHashes(4), WithSlotFactory(rec.Factory()))
	require.NoError(t, err)

	cands := l.Candidates("key1")
	require.GreaterOrEqual(t, len(cands), 2, "need at least two distinct candidate slots")

	// 阻塞候选集中最大的槽位，使写者在获取了前面的槽位后超时
	rec.Block(int(cands[len(cands)-1]))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = l.Lock(ctx, "key1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	locked := rec.Ops("lock")
	unlocked := rec.Ops("unlock")
	require.Len(t, unlocked, len(locked), "every acquired slot must be rolled back")
	for i := range locked {
		assert.Equal(t, locked[len(locked)-1-i], unlocked[i], "rollback must run in reverse order")
	}

	// 解除阻塞后写者可完整获取：无残留持有
	rec.Unblock(int(cands[len(cands)-1]))
	tok, err := l.Lock(context.Background(), "key1")
	require.NoError(t, err)
	require.NoError(t, l.Unlock("key1", tok))
}

func TestStdSlotsRejectDeadlines(t *testing.T) {
	l, err := New(WithBuckets(16), WithHashes(2), WithSlotFactory(xrwlock.StdFactory))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = l.Lock(ctx, "key1")
	assert.ErrorIs(t, err, ErrContextUnsupported)

	// 无期限 ctx 退化为阻塞获取
	tok, err := l.Lock(context.Background(), "key1")
	require.NoError(t, err)
	require.NoError(t, l.Unlock("key1", tok))
}

// 两个散列标识撞到同一槽位时显式去重：token 记录去重后的集合，
// 且同一槽位不会被重复获取（sync.RWMutex 槽位下重复获取会死锁）。
func TestHashCollisionDeduplicated(t *testing.T) {
	l, err := New(WithBuckets(2), WithHashes(2), WithSlotFactory(xrwlock.StdFactory))
	require.NoError(t, err)

	// N=2、K=2 下碰撞概率约 1/2，扫描若干 key 必能找到候选集缩为 1 的
	key := ""
	for i := 0; ; i++ {
		k := fmt.Sprintf("collide-%d", i)
		if len(l.Candidates(k)) == 1 {
			key = k
			break
		}
	}

	tok, err := l.Lock(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, 1, tok.Size(), "duplicate candidates must collapse into one hold")
	require.NoError(t, l.Unlock(key, tok))

	tok2, ok := l.TryLock(key)
	require.True(t, ok)
	require.NoError(t, l.Unlock(key, tok2))
}

func TestGeneralQuorumSubsetSizes(t *testing.T) {
	// R=2、W=7、K=8：一般仲裁路径（读写子集都要抽取）
	l, err := New(WithBuckets(4096), WithHashes(8), WithQuorum(2, 7), WithSeed(5))
	require.NoError(t, err)

	tok, err := l.Lock(context.Background(), "key1")
	require.NoError(t, err)
	assert.LessOrEqual(t, tok.Size(), 7)
	assert.True(t, sortedUnique(tok.Slots()))
	require.NoError(t, l.Unlock("key1", tok))

	rt, err := l.RLock(context.Background(), "key1")
	require.NoError(t, err)
	assert.LessOrEqual(t, rt.Size(), 2)
	assert.True(t, sortedUnique(rt.Slots()))
	require.NoError(t, l.RUnlock("key1", rt))
}

func TestGeneralQuorumReaderWriterExclusion(t *testing.T) {
	l, err := New(WithBuckets(1024), WithHashes(8), WithQuorum(2, 7))
	require.NoError(t, err)

	const goroutines = 12
	const iterations = 80

	var writing atomic.Int64
	var violations atomic.Int64
	var wg sync.WaitGroup

	for i := range goroutines {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for range iterations {
				if id%3 == 0 {
					tok, err := l.Lock(context.Background(), "hot")
					if !assert.NoError(t, err) {
						return
					}
					writing.Add(1)
					writing.Add(-1)
					assert.NoError(t, l.Unlock("hot", tok))
				} else {
					tok, err := l.RLock(context.Background(), "hot")
					if !assert.NoError(t, err) {
						return
					}
					if writing.Load() != 0 {
						violations.Add(1)
					}
					assert.NoError(t, l.RUnlock("hot", tok))
				}
			}
		}(i)
	}

	wg.Wait()
	assert.Equal(t, int64(0), violations.Load(), "reader overlapped an in-flight writer")
}

func TestWriterMutualExclusionStress(t *testing.T) {
	l, err := New(WithBuckets(64), WithHashes(4))
	require.NoError(t, err)

	const goroutines = 16
	const iterations = 100

	var inside atomic.Int64
	var violations atomic.Int64
	var wg sync.WaitGroup

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range iterations {
				tok, err := l.Lock(context.Background(), "shared-key")
				if !assert.NoError(t, err) {
					return
				}
				if inside.Add(1) != 1 {
					violations.Add(1)
				}
				inside.Add(-1)
				assert.NoError(t, l.Unlock("shared-key", tok))
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, int64(0), violations.Load(), "writer mutual exclusion violated")
}

// 死锁自由：多 goroutine 在相互重叠的 key 集上交错执行多槽位获取，
// 升序加锁纪律下必须全局推进；全局超时兜底捕获回归。
func TestDeadlockFreedomOverlappingKeys(t *testing.T) {
	// 小 N 大 W 使不同 key 的槽位集合高度重叠
	l, err := New(WithBuckets(16), WithHashes(8), WithQuorum(3, 6))
	require.NoError(t, err)

	keys := []string{"alpha", "beta", "gamma", "delta", "epsilon"}

	const goroutines = 20
	const iterations = 60

	done := make(chan struct{})
	var wg sync.WaitGroup

	for i := range goroutines {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for n := range iterations {
				key := keys[(id+n)%len(keys)]
				if n%2 == 0 {
					tok, err := l.Lock(context.Background(), key)
					if !assert.NoError(t, err) {
						return
					}
					assert.NoError(t, l.Unlock(key, tok))
				} else {
					tok, err := l.RLock(context.Background(), key)
					if !assert.NoError(t, err) {
						return
					}
					assert.NoError(t, l.RUnlock(key, tok))
				}
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("global progress stalled: ordering discipline regression")
	}
}

func TestSeedReproducible(t *testing.T) {
	tokens := func() [][]uint32 {
		l, err := New(WithBuckets(256), WithHashes(8), WithQuorum(3, 6), WithSeed(42))
		require.NoError(t, err)
		out := make([][]uint32, 0, 16)
		for range 16 {
			tok, err := l.Lock(context.Background(), "key1")
			require.NoError(t, err)
			out = append(out, tok.Slots())
			require.NoError(t, l.Unlock("key1", tok))
		}
		return out
	}

	assert.Equal(t, tokens(), tokens(), "identical seeds must yield identical subsets")
}

func TestGuard(t *testing.T) {
	l, err := New(WithBuckets(64), WithHashes(4), WithSeed(6))
	require.NoError(t, err)

	g := l.Guard("resource:42")
	assert.Equal(t, "resource:42", g.Key())

	g.Lock()
	_, ok := l.TryLock("resource:42")
	assert.False(t, ok)
	g.Unlock()

	g.RLock()
	_, ok = l.TryLock("resource:42")
	assert.False(t, ok)
	g.RUnlock()

	tok, ok := l.TryLock("resource:42")
	require.True(t, ok)
	require.NoError(t, l.Unlock("resource:42", tok))
}

func TestGuardMisusePanics(t *testing.T) {
	l, err := New(WithBuckets(16), WithHashes(2))
	require.NoError(t, err)

	assert.Panics(t, func() { l.Guard("") })
	assert.Panics(t, func() { l.Guard("k").Unlock() })
	assert.Panics(t, func() { l.Guard("k").RUnlock() })

	g := l.Guard("k")
	g.Lock()
	assert.Panics(t, func() { g.Lock() })
	g.Unlock()
}

func TestDifferentKeysIndependent(t *testing.T) {
	l, err := New(WithBuckets(4096), WithHashes(4), WithSeed(7))
	require.NoError(t, err)

	// N 远大于 K 时绝大多数 key 对的候选集不相交；找一对不相交的
	base := l.Candidates("key-a")
	other := ""
	for i := 0; ; i++ {
		k := fmt.Sprintf("key-b-%d", i)
		if !overlaps(base, l.Candidates(k)) {
			other = k
			break
		}
	}

	tok, err := l.Lock(context.Background(), "key-a")
	require.NoError(t, err)

	tok2, ok := l.TryLock(other)
	assert.True(t, ok, "disjoint keys must not contend")

	require.NoError(t, l.Unlock(other, tok2))
	require.NoError(t, l.Unlock("key-a", tok))
}

func sortedUnique(s []uint32) bool {
	for i := 1; i < len(s); i++ {
		if s[i] <= s[i-1] {
			return false
		}
	}
	return true
}

func overlaps(a, b []uint32) bool {
	set := make(map[uint32]struct{}, len(a))
	for _, x := range a {
		set[x] = struct{}{}
	}
	for _, x := range b {
		if _, ok := set[x]; ok {
			return true
		}
	}
	return false
}
