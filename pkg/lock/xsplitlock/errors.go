package xsplitlock

import "errors"

var (
	// ErrInvalidSlotCount 表示槽位数配置无效。
	ErrInvalidSlotCount = errors.New("xsplitlock: invalid slot count")

	// ErrNilSlotFactory 表示槽位工厂为 nil 或产出了 nil 槽位。
	ErrNilSlotFactory = errors.New("xsplitlock: nil slot factory")

	// ErrContextUnsupported 表示槽位互斥量不支持 ctx 限期获取。
	// 使用 xrwlock.StdFactory 等无限期能力的槽位时，
	// LockContext/RLockContext 在 ctx 可取消时返回此错误。
	ErrContextUnsupported = errors.New("xsplitlock: slot mutex does not support context acquisition")
)
