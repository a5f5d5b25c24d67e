package storageopt

import "sync/atomic"

// =============================================================================
// 健康检查计数
// =============================================================================

// HealthCounter 健康检查计数器。
type HealthCounter struct {
	pingCount  atomic.Int64
	pingErrors atomic.Int64
}

// IncPing 增加 ping 计数。
func (h *HealthCounter) IncPing() { h.pingCount.Add(1) }

// IncPingError 增加 ping 错误计数。
func (h *HealthCounter) IncPingError() { h.pingErrors.Add(1) }

// PingCount 返回 ping 计数。
func (h *HealthCounter) PingCount() int64 { return h.pingCount.Load() }

// PingErrors 返回 ping 错误计数。
func (h *HealthCounter) PingErrors() int64 { return h.pingErrors.Load() }

// =============================================================================
// 慢查询计数
// =============================================================================

// SlowQueryCounter 慢查询计数器。
type SlowQueryCounter struct {
	count atomic.Int64
}

// Inc 增加慢查询计数。
func (s *SlowQueryCounter) Inc() { s.count.Add(1) }

// Count 返回慢查询计数。
func (s *SlowQueryCounter) Count() int64 { return s.count.Load() }

// =============================================================================
// 批处理计数
// =============================================================================

// BatchCounter 批处理累计计数器。
//
// 跨多次批处理/批量插入运行累加，用于 Stats() 汇总；
// 单次运行的结果由调用方各自的局部累加器返回，不依赖此计数器。
type BatchCounter struct {
	runs      atomic.Int64
	batches   atomic.Int64
	processed atomic.Int64
	errors    atomic.Int64
}

// Record 记录一次运行的结果。
func (b *BatchCounter) Record(batches, processed, errors int64) {
	b.runs.Add(1)
	b.batches.Add(batches)
	b.processed.Add(processed)
	b.errors.Add(errors)
}

// Runs 返回运行次数。
func (b *BatchCounter) Runs() int64 { return b.runs.Load() }

// Batches 返回累计批次数。
func (b *BatchCounter) Batches() int64 { return b.batches.Load() }

// Processed 返回累计处理（或插入）的文档数。
func (b *BatchCounter) Processed() int64 { return b.processed.Load() }

// Errors 返回累计失败数。
func (b *BatchCounter) Errors() int64 { return b.errors.Load() }
