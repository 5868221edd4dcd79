// Package xshardlock 提供按 key 寻址的 Dynamo 式仲裁读写锁。
//
// N 个槽位被全部 key 共享。每个 key 通过 K 个散列函数确定性地映射到
// K 个候选槽位；写者取其中 W 个，读者取其中 R 个。只要 R+W > K，
// 同一 key 的任意读者子集与任意写者子集必有交集（K 元全集上的鸽笼），
// 读写互斥由交集保证，而无需读者触碰全部槽位。
//
// # 仲裁参数
//
//	约束            保证                    由谁负责
//	────────────────────────────────────────────────
//	R+W > K         同 key 读/写互斥        New 构造期校验
//	2W > K          同 key 写/写互斥        调用方配置责任
//	R=1, W=K        两者皆满足（默认）      —
//
// 2W > K 不做强制校验：W < K 的配置牺牲写/写互斥换取写路径吞吐，
// 属于调用方的自觉选择；配置了 logger 时构造期会给出警告。
//
// # 与 xsplitlock 的区别
//
//	特性          xsplitlock            xshardlock
//	──────────────────────────────────────────────
//	寻址          单资源                按 key
//	槽位归属      独占 K 个             N 个被全部 key 共享
//	仲裁          固定 R=1, W=K         R、W 可调
//	token         单下标                单下标或升序下标集
//
// # 候选槽位碰撞
//
// 同一 key 的两个散列标识可能撞到同一槽位。本实现显式去重：
// 重复槽位只获取一次、释放一次，token 记录去重后的集合。
// 代价是有效子集可能小于配置的 R/W，鸽笼论证随之弱化——
// 去重后的读写子集仍取自同一个去重候选集，R+W > K 时交集依然成立，
// 但写/写互斥在 2W > K 临界配置下可能被碰撞削弱。K ≪ N 时
// 碰撞概率约为 K²/2N，默认参数（K=8，N=1024）下约 3%。
//
// # 使用契约
//
//   - 每次成功的 Lock/RLock 返回 token，必须恰好一次回传给
//     Unlock/RUnlock；token 不得重放。
//   - 多槽位获取恒按槽位下标升序进行（候选子集选定后排序），
//     这是跨所有 key、所有调用方的全局加锁顺序，用于排除循环等待。
//   - 槽位数量与候选映射在构造后不变，无再均衡、无迁移。
package xshardlock
