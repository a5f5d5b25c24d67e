package storageopt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/omeyang/xmongoopt/pkg/util/xpool"
)

// SlowQueryHook 慢查询同步回调钩子，在请求路径上同步执行。
type SlowQueryHook[T any] func(ctx context.Context, info T)

// AsyncSlowQueryHook 慢查询异步回调钩子，通过 worker pool 执行。
// 不接收 context：异步执行时原始 context 可能已取消。
type AsyncSlowQueryHook[T any] func(info T)

// SlowQueryOptions 慢查询检测配置。
type SlowQueryOptions[T any] struct {
	// Threshold 慢查询阈值，为 0 时禁用检测。
	Threshold time.Duration

	// SyncHook 同步回调钩子。
	SyncHook SlowQueryHook[T]

	// AsyncHook 异步回调钩子。与 SyncHook 同时设置时两者都会被调用。
	AsyncHook AsyncSlowQueryHook[T]

	// AsyncWorkerPoolSize 异步 worker 数量，默认 10。
	AsyncWorkerPoolSize int

	// AsyncQueueSize 异步队列大小，默认 1000。队列满时新通知被丢弃。
	AsyncQueueSize int
}

// 默认值常量。
const (
	DefaultAsyncWorkerPoolSize = 10
	DefaultAsyncQueueSize      = 1000
)

// =============================================================================
// 检测器
// =============================================================================

// SlowQueryDetector 慢查询检测器，封装同步/异步钩子的调用逻辑。
type SlowQueryDetector[T any] struct {
	options SlowQueryOptions[T]
	pool    *xpool.Pool[T]
	mu      sync.RWMutex
	closed  bool
}

// NewSlowQueryDetector 创建慢查询检测器。
// AsyncHook 非 nil 时立即创建 worker pool，参数非法时返回错误。
func NewSlowQueryDetector[T any](opts SlowQueryOptions[T]) (*SlowQueryDetector[T], error) {
	if opts.AsyncWorkerPoolSize <= 0 {
		opts.AsyncWorkerPoolSize = DefaultAsyncWorkerPoolSize
	}
	if opts.AsyncQueueSize <= 0 {
		opts.AsyncQueueSize = DefaultAsyncQueueSize
	}

	d := &SlowQueryDetector[T]{options: opts}
	if opts.AsyncHook != nil {
		pool, err := xpool.New(opts.AsyncWorkerPoolSize, opts.AsyncQueueSize, opts.AsyncHook,
			xpool.WithName("storageopt.slowquery"))
		if err != nil {
			return nil, fmt.Errorf("storageopt: create async pool: %w", err)
		}
		d.pool = pool
	}
	return d, nil
}

// MaybeSlowQuery 在 duration >= Threshold 时触发钩子，返回是否触发。
//
// ⚠️ SyncHook 在调用方 goroutine 中执行，耗时会直接计入操作延迟；
// 异步队列满时通知被丢弃。
func (d *SlowQueryDetector[T]) MaybeSlowQuery(ctx context.Context, info T, duration time.Duration) bool {
	if d == nil || d.options.Threshold == 0 || duration < d.options.Threshold {
		return false
	}

	if d.options.SyncHook != nil {
		d.options.SyncHook(ctx, info)
	}

	d.mu.RLock()
	if !d.closed && d.pool != nil {
		_ = d.pool.Submit(info) //nolint:errcheck // 队列满时丢弃通知
	}
	d.mu.RUnlock()
	return true
}

// Close 关闭检测器并等待异步队列排空。可重复调用。
//
// pool 引用在锁内取出，pool.Close() 在锁外执行，
// 排空期间并发的 MaybeSlowQuery 不会被写锁阻塞。
func (d *SlowQueryDetector[T]) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	pool := d.pool
	d.pool = nil
	d.mu.Unlock()

	if pool != nil {
		_ = pool.Close() //nolint:errcheck // 内部清理
	}
}
