package xshardlock

import (
	"log/slog"
	"time"
)

// 日志属性键常量
const (
	attrKeyKey      = "key"
	attrKeyMode     = "mode"
	attrKeySlots    = "slots"
	attrKeyDuration = "duration"
	attrKeyBuckets  = "buckets"
	attrKeyHashes   = "hashes"
	attrKeyReadQ    = "read_quorum"
	attrKeyWriteQ   = "write_quorum"
)

// AttrKey 返回锁 key 属性
func AttrKey(key string) slog.Attr {
	return slog.String(attrKeyKey, key)
}

// AttrMode 返回获取模式属性（read/write）
func AttrMode(mode string) slog.Attr {
	return slog.String(attrKeyMode, mode)
}

// AttrSlots 返回持有槽位属性
func AttrSlots(slots []uint32) slog.Attr {
	out := make([]int64, len(slots))
	for i, s := range slots {
		out[i] = int64(s)
	}
	return slog.Any(attrKeySlots, out)
}

// AttrDuration 返回耗时属性
func AttrDuration(d time.Duration) slog.Attr {
	return slog.Duration(attrKeyDuration, d)
}

// AttrBuckets 返回槽位总数属性
func AttrBuckets(n int) slog.Attr {
	return slog.Int(attrKeyBuckets, n)
}

// AttrHashes 返回散列函数个数属性
func AttrHashes(k int) slog.Attr {
	return slog.Int(attrKeyHashes, k)
}

// AttrQuorum 返回仲裁参数属性组
func AttrQuorum(r, w int) slog.Attr {
	return slog.Group("quorum",
		slog.Int(attrKeyReadQ, r),
		slog.Int(attrKeyWriteQ, w),
	)
}
