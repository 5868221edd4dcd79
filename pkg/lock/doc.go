// Package lock 提供进程内锁原语相关的子包。
//
// 子包列表：
//   - xrwlock: 读写锁抽象与可上下文取消的读写互斥量
//   - xsplitlock: 单资源分裂锁，读与读之间无缓存行争用
//   - xshardlock: 按 key 寻址的仲裁分片读写锁
//
// 设计原则：
//   - 保持 sync 包的调用习惯，阻塞操作提供 context 变体
//   - 多槽位获取统一按槽位下标升序，杜绝交叉死锁
//   - 内置结构化日志与指标收集，默认零开销可关闭
package lock
