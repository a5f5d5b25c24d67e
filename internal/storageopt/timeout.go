package storageopt

import (
	"context"
	"time"
)

// =============================================================================
// 健康检查超时
// =============================================================================

// DefaultHealthTimeout 默认健康检查超时时间。
const DefaultHealthTimeout = 5 * time.Second

// HealthContext 创建带健康检查超时的 context。
// timeout <= 0 时返回原始 context 和空的 cancel 函数。
func HealthContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// =============================================================================
// 操作超时
// =============================================================================

// FallbackTimeout 仅在调用方 context 没有 deadline 且 timeout > 0 时添加超时兜底。
// 调用方需 defer cancel()。
func FallbackTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			return context.WithTimeout(ctx, timeout)
		}
	}
	return ctx, func() {}
}

// ForcedTimeout 无论调用方是否已设置 deadline，都在 ctx 上叠加 timeout。
// 父 context 的 deadline 更早时仍以父 context 为准。
//
// 设计决策: 聚合管道可能远超调用方预期的耗时，因此聚合走强制超时而非兜底超时。
func ForcedTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// =============================================================================
// 计时
// =============================================================================

// MeasureOperation 测量操作耗时，作为 storage 子包统一的计时入口。
func MeasureOperation(start time.Time) time.Duration {
	return time.Since(start)
}
