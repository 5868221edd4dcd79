package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/omeyang/xmutex/pkg/lock/xshardlock"
)

// usageError 表示命令行参数错误，退出码为 2。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func newUsageError(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// createCommands 创建所有子命令。
func createCommands() []*cli.Command {
	return []*cli.Command{
		createRunCommand(),
		createShowCommand(),
	}
}

// createRunCommand 创建 run 命令: 运行争用压测并校验互斥不变式。
func createRunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "运行争用压测并校验互斥不变式",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "并发 worker 数",
				Value:   16,
			},
			&cli.DurationFlag{
				Name:    "duration",
				Aliases: []string{"d"},
				Usage:   "压测时长",
				Value:   5 * time.Second,
			},
			&cli.IntFlag{
				Name:  "keys",
				Usage: "key 空间大小",
				Value: 64,
			},
			&cli.IntFlag{
				Name:  "read-pct",
				Usage: "读操作百分比 (0..100)",
				Value: 90,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			prof, err := loadProfile(cmd.String("config"))
			if err != nil {
				return err
			}

			logger, cleanup, err := setupLogger(cmd.String("log-level"), cmd.String("log-file"))
			if err != nil {
				return err
			}
			defer cleanup()

			opts := benchOptions{
				workers:  int(cmd.Int("workers")),
				duration: cmd.Duration("duration"),
				keys:     int(cmd.Int("keys")),
				readPct:  int(cmd.Int("read-pct")),
			}
			if opts.workers <= 0 {
				return newUsageError("workers 必须为正数: %d", opts.workers)
			}
			if opts.duration <= 0 {
				return newUsageError("duration 必须为正数: %v", opts.duration)
			}
			if opts.keys <= 0 {
				return newUsageError("keys 必须为正数: %d", opts.keys)
			}
			if opts.readPct < 0 || opts.readPct > 100 {
				return newUsageError("read-pct 必须在 [0,100] 区间内: %d", opts.readPct)
			}

			return cmdRun(ctx, logger, prof, opts)
		},
	}
}

// createShowCommand 创建 show 命令: 打印 key 的候选槽位集合。
func createShowCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "打印 key 的候选槽位集合",
		ArgsUsage: "<key>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return newUsageError("show 需要且仅需要一个 key 参数")
			}
			prof, err := loadProfile(cmd.String("config"))
			if err != nil {
				return err
			}
			return cmdShow(cmd.Args().First(), prof)
		},
	}
}

type benchOptions struct {
	workers  int
	duration time.Duration
	keys     int
	readPct  int
}

// cmdRun 运行压测: 每个 key 对应一个受锁保护的计数器结构，
// 写者对计数器做非原子的读改写，读者校验两份副本一致。
// 若锁的互斥保证被破坏，副本必然出现不一致。
func cmdRun(ctx context.Context, logger *slog.Logger, prof *profile, opts benchOptions) error {
	runID := uuid.NewString()

	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))

	l, err := xshardlock.New(
		xshardlock.WithBuckets(prof.Buckets),
		xshardlock.WithHashes(prof.Hashes),
		xshardlock.WithQuorum(prof.ReadQuorum, prof.WriteQuorum),
		xshardlock.WithLogger(logger),
		xshardlock.WithMeterProvider(provider),
	)
	if err != nil {
		return fmt.Errorf("创建锁失败: %w", err)
	}

	logger.Info("压测开始",
		slog.String("run_id", runID),
		slog.Int("buckets", prof.Buckets),
		slog.Int("hashes", prof.Hashes),
		slog.Int("read_quorum", prof.ReadQuorum),
		slog.Int("write_quorum", prof.WriteQuorum),
		slog.Int("workers", opts.workers),
		slog.Duration("duration", opts.duration),
		slog.Int("keys", opts.keys),
		slog.Int("read_pct", opts.readPct),
	)

	// 受保护资源: 每个 key 两份计数器副本。
	// 写临界区内两份副本短暂不一致，互斥失效时读者会观察到。
	type cell struct {
		a, b int64
	}
	cells := make([]cell, opts.keys)
	keys := make([]string, opts.keys)
	for i := range keys {
		keys[i] = fmt.Sprintf("bench-key-%d", i)
	}

	var (
		reads      atomic.Int64
		writes     atomic.Int64
		violations atomic.Int64
	)

	runCtx, cancel := context.WithTimeout(ctx, opts.duration)
	defer cancel()

	var wg sync.WaitGroup
	for w := range opts.workers {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
			for runCtx.Err() == nil {
				i := rng.IntN(len(keys))
				key := keys[i]
				if rng.IntN(100) < opts.readPct {
					tok, err := l.RLock(runCtx, key)
					if err != nil {
						return
					}
					if cells[i].a != cells[i].b {
						violations.Add(1)
					}
					_ = l.RUnlock(key, tok)
					reads.Add(1)
				} else {
					tok, err := l.Lock(runCtx, key)
					if err != nil {
						return
					}
					cells[i].a++
					cells[i].b++
					_ = l.Unlock(key, tok)
					writes.Add(1)
				}
			}
		}(uint64(w + 1))
	}
	wg.Wait()

	elapsed := opts.duration
	total := reads.Load() + writes.Load()
	fmt.Printf("run_id:     %s\n", runID)
	fmt.Printf("reads:      %d\n", reads.Load())
	fmt.Printf("writes:     %d\n", writes.Load())
	fmt.Printf("throughput: %.0f op/s\n", float64(total)/elapsed.Seconds())
	fmt.Printf("violations: %d\n", violations.Load())

	dumpMetrics(reader)

	if violations.Load() > 0 {
		return fmt.Errorf("发现 %d 次互斥违例", violations.Load())
	}
	logger.Info("压测完成", slog.String("run_id", runID), slog.Int64("total_ops", total))
	return nil
}

// dumpMetrics 收集并打印本次运行积累的 otel 指标数据点。
func dumpMetrics(reader *metric.ManualReader) {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		fmt.Fprintf(os.Stderr, "收集指标失败: %v\n", err)
		return
	}
	fmt.Println("metrics:")
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					fmt.Printf("  %s%s = %d\n", m.Name, formatAttrs(dp.Attributes), dp.Value)
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					fmt.Printf("  %s%s: count=%d sum=%.6fs\n",
						m.Name, formatAttrs(dp.Attributes), dp.Count, dp.Sum)
				}
			}
		}
	}
}

// formatAttrs 将数据点属性格式化为 {k=v,...} 形式，无属性时返回空串。
func formatAttrs(set attribute.Set) string {
	if set.Len() == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, kv := range set.ToSlice() {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%s", kv.Key, kv.Value.Emit())
	}
	b.WriteByte('}')
	return b.String()
}

// cmdShow 打印 key 的候选槽位集合。
func cmdShow(key string, prof *profile) error {
	l, err := xshardlock.New(
		xshardlock.WithBuckets(prof.Buckets),
		xshardlock.WithHashes(prof.Hashes),
		xshardlock.WithQuorum(prof.ReadQuorum, prof.WriteQuorum),
	)
	if err != nil {
		return fmt.Errorf("创建锁失败: %w", err)
	}

	slots := l.Candidates(key)
	if slots == nil {
		return newUsageError("key 不能为空")
	}

	fmt.Printf("key:        %q\n", key)
	fmt.Printf("buckets:    %d\n", prof.Buckets)
	fmt.Printf("hashes:     %d\n", prof.Hashes)
	fmt.Printf("candidates: %v\n", slots)
	if len(slots) < prof.Hashes {
		fmt.Printf("note:       %d 个哈希候选因碰撞去重为 %d 个槽位\n", prof.Hashes, len(slots))
	}
	return nil
}
