// xlockbench 是分片读写锁的压测与诊断命令行工具。
//
// 用法:
//
//	xlockbench [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config     锁参数配置文件（.yaml/.yml/.json）
//	    --log-level  日志级别 (debug/info/warn/error, 默认: info)
//	    --log-file   日志输出文件（按大小轮转），默认输出到 stderr
//
// 命令:
//
//	run            运行争用压测并校验互斥不变式
//	  --workers      并发 worker 数 (默认: 16)
//	  --duration     压测时长 (默认: 5s)
//	  --keys         key 空间大小 (默认: 64)
//	  --read-pct     读操作百分比 0..100 (默认: 90)
//	show <key>     打印 key 的候选槽位集合
//	help           显示帮助信息
//
// 配置文件中的锁参数（buckets/hashes/read_quorum/write_quorum）
// 作为 flag 未显式给出时的缺省值。
//
// 退出码:
//
//	0: 压测完成且未发现互斥违例
//	1: 发现互斥违例或运行失败
//	2: 参数错误
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

// 版本信息（可通过 -ldflags 注入）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

// createApp 创建 CLI 应用。
func createApp() *cli.Command {
	return &cli.Command{
		Name:    "xlockbench",
		Usage:   "分片读写锁压测与诊断工具",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "锁参数配置文件路径",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "日志级别 (debug/info/warn/error)",
				Value: "info",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "日志输出文件（按大小轮转）",
			},
		},
		Commands:       createCommands(),
		DefaultCommand: "help",
		Authors: []any{
			"XKit Team",
		},
		// 禁止 urfave/cli 直接调用 os.Exit，
		// 由 run() 统一处理退出码映射，确保与文档退出码契约一致。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run() int {
	app := createApp()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	setupSignalHandler(cancel)

	if err := app.Run(ctx, os.Args); err != nil {
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "参数错误: %v\n", usageErr)
			return 2
		}
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		return 1
	}

	return 0
}

// setupSignalHandler 设置信号处理。
// 第一次信号优雅取消，第二次信号强制退出（退出码 130 = 128 + SIGINT）。
// 压测阻塞时，用户可通过再次 Ctrl+C 强制退出。
func setupSignalHandler(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()

		<-sigCh
		signal.Stop(sigCh)
		os.Exit(130)
	}()
}
