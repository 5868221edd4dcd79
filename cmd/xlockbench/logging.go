package main

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// setupLogger 按命令行选项创建 slog 日志器。
// logFile 非空时写入按大小轮转的文件，否则输出到 stderr。
// 返回的 cleanup 在进程退出前调用，负责关闭轮转文件句柄。
func setupLogger(level, logFile string) (*slog.Logger, func(), error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, nil, err
	}

	var w io.Writer = os.Stderr
	cleanup := func() {}
	if logFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100, // MB
			MaxBackups: 3,
			MaxAge:     7, // 天
			Compress:   true,
		}
		w = rotator
		cleanup = func() { _ = rotator.Close() }
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler), cleanup, nil
}

// parseLevel 解析日志级别字符串。
func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, newUsageError("无效的日志级别: %q", s)
	}
}
