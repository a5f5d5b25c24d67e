// Package xmongo 提供 MongoDB 查询整形、执行诊断与批量执行工具。
//
// # 设计理念
//
// xmongo 不包装底层客户端的所有 API，只在 driver 之上补充：
//   - 显式的 Query 句柄（Where/Select/Skip/Limit/Sort/ReadPreference/Lean/Explain/Exec）
//   - 整形函数：SelectFields、Paginate、SetReadPreference
//   - 查询计划分析：AnalyzeQuery 生成 ExecutionReport（效率、使用的索引、索引建议）
//   - 索引创建：CreateIndex、CreateTextIndex（EqualWeight / WeightedFields）
//   - 批量执行：ProcessInBatches（_id 游标分页）、BulkInsert（分块无序插入）
//   - 聚合：OptimizedAggregate（默认允许落盘、60 秒执行超时、可选执行计划日志）
//   - 时间桶查询：Buckets、TimeRangeQuery
//   - 连接池建议：SuggestPoolSettings、TunePool
//   - 索引建议聚合：Advisor
//
// 通过 Client() 直接执行的操作不会进入统计和慢查询检测。
//
// # 生命周期
//
// Close() 可安全重复调用，首次关闭执行断连，后续调用返回 ErrClosed。
// 除 Client()、Stats() 和 TunePool() 外的方法在 Close() 后返回 ErrClosed。
// 包装器并发安全；Query 句柄不是，每个 goroutine 应各自构建。
//
// # 超时
//
// 查询与写入默认自带兜底超时（查询 30 秒，写入 60 秒），仅当调用方 context 没有 deadline 时生效。
// OptimizedAggregate 的执行超时总是叠加在 context 上，可用 AggregateOptions.Timeout 按调用覆盖。
// ProcessInBatches 和 TimeRangeQuery 本身没有整体超时，调用方应以 context 控制整次运行。
//
// # 错误处理
//
// 批处理的单文档失败、批量插入的单批失败只计数并继续；索引创建失败记录日志后返回；
// TunePool 的参数下发失败只记日志。整个包不做重试。
//
// # 日志
//
// 日志通过 WithLogger 注入，默认丢弃，包内不使用全局 logger：
//
//	logger, cleanup, _ := xlog.New().SetFormat("json").Build()
//	defer cleanup()
//	m, _ := xmongo.New(client, xmongo.WithLogger(logger))
package xmongo
