package xshardlock

import "errors"

var (
	// ErrInvalidBuckets 表示槽位总数 N 配置无效。
	ErrInvalidBuckets = errors.New("xshardlock: invalid bucket count")

	// ErrInvalidHashes 表示散列函数个数 K 配置无效。
	ErrInvalidHashes = errors.New("xshardlock: invalid hash count")

	// ErrInvalidQuorum 表示仲裁参数 R/W 不满足约束
	// （1 ≤ R ≤ K、1 ≤ W ≤ K、R+W > K）。
	ErrInvalidQuorum = errors.New("xshardlock: invalid quorum")

	// ErrInvalidKey 表示 key 为空字符串。
	ErrInvalidKey = errors.New("xshardlock: empty key")

	// ErrInvalidToken 表示 token 为零值或与本锁不匹配。
	ErrInvalidToken = errors.New("xshardlock: invalid token")

	// ErrNilSlotFactory 表示槽位工厂为 nil 或产出了 nil 槽位。
	ErrNilSlotFactory = errors.New("xshardlock: nil slot factory")

	// ErrContextUnsupported 表示槽位互斥量不支持 ctx 限期获取。
	ErrContextUnsupported = errors.New("xshardlock: slot mutex does not support context acquisition")
)
