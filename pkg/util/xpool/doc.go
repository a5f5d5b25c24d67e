// Package xpool 提供通用的 worker pool 实现。
//
// Pool 是一个轻量级的泛型 worker pool，用于异步执行任务：
//   - 泛型任务类型
//   - 可配置的 worker 数量（[1, 65536]）和队列大小（[1, 16777216]）
//   - 优雅关闭（处理完队列中的任务后退出），Shutdown(ctx) 支持超时
//   - panic 恢复（单个任务失败不影响 pool）
//   - 队列满时返回 ErrQueueFull，Submit 永不阻塞
//
// 在本模块中，xpool 承载 storageopt 慢查询检测器的异步钩子：
// 慢查询通知属于可丢弃事件，队列满时直接丢弃即可。
//
// # 注意事项
//
//   - Close/Shutdown 不可在 handler 内调用，否则会死锁
//   - panic 的任务不会被重试，仅记录任务类型后丢弃
package xpool
