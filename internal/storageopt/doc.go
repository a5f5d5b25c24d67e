// Package storageopt 提供 xmongo 共享的参数校验、超时兜底、慢查询检测和计数器。
//
// 本包是 internal 包，仅供 pkg/storage 下的子包使用。
//
// 主要功能：
//   - 分页参数验证（ValidatePagination）与批次大小归一化（NormalizeBatchSize）
//   - 超时兜底（HealthContext / FallbackTimeout）
//   - 慢查询检测器（支持同步/异步钩子，异步钩子由 xpool 承载）
//   - 原子计数器（HealthCounter、SlowQueryCounter、BatchCounter）
package storageopt
