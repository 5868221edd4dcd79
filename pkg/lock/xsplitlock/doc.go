// Package xsplitlock 提供单资源的 K 路拆分读写锁。
//
// 把一把读写锁拆成 K 个独立槽位：写者按槽位下标升序取全部 K 个槽位，
// 读者随机取其中 1 个。读路径的缓存行争用被摊到 K 个槽位上，
// 代价是写路径变慢 K 倍。等价于 Dynamo 式仲裁中 R=1、W=K 的特例。
//
// # 与 sync.RWMutex 的取舍
//
//	特性            sync.RWMutex    xsplitlock
//	──────────────────────────────────────────
//	读获取争用      单缓存行        摊到 K 个槽位
//	写获取成本      1 次            K 次
//	ctx 限期获取    ✗               ✓（默认槽位）
//	读解锁          无需记录        需回传 ReadToken
//
// 读多写极少、且读争用已被剖析确认为瓶颈时才值得使用。
//
// # 使用契约
//
//   - 每次成功的 Lock/RLock 必须恰好配对一次 Unlock/RUnlock，
//     RUnlock 必须回传对应 RLock 返回的 token。
//   - [Guard] 把 token 收在内部，暴露 sync.RWMutex 同形的方法面，
//     但单个 Guard 同一时刻只能承载一次在途持有，且不能跨 goroutine
//     并发使用；并发读各自创建 Guard 或直接使用 token API。
//   - 多槽位获取恒按槽位下标升序进行，这是跨调用方的全局加锁顺序，
//     用于排除循环等待。
package xsplitlock
