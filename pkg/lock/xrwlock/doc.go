// Package xrwlock 定义分片锁所依赖的槽位读写互斥量抽象。
//
// 分片锁（xsplitlock、xshardlock）不关心槽位互斥量的内部实现，
// 只通过 [RWLocker] 的加解锁能力面与其交互。*sync.RWMutex 即满足
// [RWLocker]，可通过 [StdFactory] 直接用作槽位。
//
// # 限期获取能力
//
//	能力            RWLocker    ContextRWLocker
//	────────────────────────────────────────────
//	阻塞获取        ✓           ✓
//	非阻塞尝试      ✓           ✓
//	ctx 超时/取消   ✗           ✓
//
// 分片锁的限期操作（带 deadline 的 ctx）要求槽位实现 [ContextRWLocker]；
// 默认槽位 [CtxRWMutex] 基于 golang.org/x/sync/semaphore 实现，
// 具备全部能力。槽位不具备该能力时，限期操作返回各包的
// ErrContextUnsupported，属于构造期即可确定的能力缺失而非运行时故障。
package xrwlock
