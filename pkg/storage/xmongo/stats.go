package xmongo

// Stats 包装器统计信息。
type Stats struct {
	PingCount   int64
	PingErrors  int64
	SlowQueries int64

	// Batch ProcessInBatches 的累计统计。
	Batch BatchTotals

	// Bulk BulkInsert 的累计统计，Processed 为成功插入数，Errors 为失败文档数。
	Bulk BatchTotals

	Pool PoolStats
}

// BatchTotals 跨多次运行的累计计数。
type BatchTotals struct {
	Runs      int64
	Batches   int64
	Processed int64
	Errors    int64
}

// PoolStats 连接池状态。
//
// driver v2 不暴露连接池明细，只导出能拿到真实值的字段。
// 需要连接数时使用 serverStatus 命令或服务端监控。
type PoolStats struct {
	// InUseConnections 活跃会话数（NumberSessionsInProgress），作为使用中连接数的近似。
	InUseConnections int
}
