package xmongo

import (
	"context"
	"time"

	"github.com/omeyang/xmongoopt/internal/storageopt"
	"github.com/omeyang/xmongoopt/pkg/observability/xlog"
	"github.com/omeyang/xmongoopt/pkg/observability/xmetrics"
)

// SlowQueryInfo 慢查询详细信息。
//
// Filter 是原始查询条件，可能含敏感信息，钩子写日志时注意脱敏。
type SlowQueryInfo struct {
	Database   string
	Collection string
	Operation  string
	Filter     any
	Duration   time.Duration
}

// SlowQueryHook 慢查询同步钩子，在请求路径上执行，应保持微秒级。
type SlowQueryHook func(ctx context.Context, info SlowQueryInfo)

// AsyncSlowQueryHook 慢查询异步钩子，经内部 worker pool 执行。
type AsyncSlowQueryHook func(info SlowQueryInfo)

// 默认值。
const (
	DefaultAsyncSlowQueryWorkers   = storageopt.DefaultAsyncWorkerPoolSize
	DefaultAsyncSlowQueryQueueSize = storageopt.DefaultAsyncQueueSize

	// DefaultQueryTimeout 调用方 ctx 无 deadline 时查询类操作的兜底超时。
	DefaultQueryTimeout = 30 * time.Second

	// DefaultWriteTimeout 调用方 ctx 无 deadline 时写入类操作的兜底超时。
	DefaultWriteTimeout = 60 * time.Second

	// DefaultAggregateTimeout OptimizedAggregate 的默认执行超时，可按调用覆盖。
	DefaultAggregateTimeout = 60 * time.Second

	// DefaultLowEfficiencyThreshold 返回/扫描比低于此值时给出低效建议。
	DefaultLowEfficiencyThreshold = 0.2
)

// Options 包装器配置。
type Options struct {
	HealthTimeout time.Duration

	// SlowQueryThreshold 慢查询阈值，0 表示禁用。
	SlowQueryThreshold      time.Duration
	SlowQueryHook           SlowQueryHook
	AsyncSlowQueryHook      AsyncSlowQueryHook
	AsyncSlowQueryWorkers   int
	AsyncSlowQueryQueueSize int

	// QueryTimeout/WriteTimeout 仅在调用方 ctx 无 deadline 时生效，0 表示禁用兜底。
	QueryTimeout time.Duration
	WriteTimeout time.Duration

	// AggregateTimeout OptimizedAggregate 未指定 Timeout 时使用。
	AggregateTimeout time.Duration

	// LowEfficiencyThreshold 执行效率低于此值时给出建议，取值 (0,1]。
	LowEfficiencyThreshold float64

	// SuggestFilterIndexes 是否为未被索引覆盖的过滤字段建议单字段索引。
	// 复合过滤条件下这条启发式可能噪声较大，可以关闭。
	SuggestFilterIndexes bool

	Logger   xlog.Logger
	Observer xmetrics.Observer
}

// Option 配置函数。
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		HealthTimeout:           storageopt.DefaultHealthTimeout,
		AsyncSlowQueryWorkers:   DefaultAsyncSlowQueryWorkers,
		AsyncSlowQueryQueueSize: DefaultAsyncSlowQueryQueueSize,
		QueryTimeout:            DefaultQueryTimeout,
		WriteTimeout:            DefaultWriteTimeout,
		AggregateTimeout:        DefaultAggregateTimeout,
		LowEfficiencyThreshold:  DefaultLowEfficiencyThreshold,
		SuggestFilterIndexes:    true,
		Logger:                  xlog.Discard(),
		Observer:                xmetrics.NoopObserver{},
	}
}

// WithHealthTimeout 设置健康检查超时，非正值被忽略。
func WithHealthTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		if timeout > 0 {
			o.HealthTimeout = timeout
		}
	}
}

// WithSlowQueryThreshold 设置慢查询阈值，0 禁用，负值被忽略。
func WithSlowQueryThreshold(threshold time.Duration) Option {
	return func(o *Options) {
		if threshold >= 0 {
			o.SlowQueryThreshold = threshold
		}
	}
}

// WithSlowQueryHook 设置慢查询同步钩子。
func WithSlowQueryHook(hook SlowQueryHook) Option {
	return func(o *Options) {
		o.SlowQueryHook = hook
	}
}

// WithAsyncSlowQueryHook 设置慢查询异步钩子。
func WithAsyncSlowQueryHook(hook AsyncSlowQueryHook) Option {
	return func(o *Options) {
		o.AsyncSlowQueryHook = hook
	}
}

// WithAsyncSlowQueryWorkers 设置异步钩子 worker 数量。
func WithAsyncSlowQueryWorkers(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.AsyncSlowQueryWorkers = n
		}
	}
}

// WithAsyncSlowQueryQueueSize 设置异步钩子队列大小，队列满时丢弃通知。
func WithAsyncSlowQueryQueueSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.AsyncSlowQueryQueueSize = n
		}
	}
}

// WithQueryTimeout 设置查询兜底超时，0 禁用，负值被忽略。
func WithQueryTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		if timeout >= 0 {
			o.QueryTimeout = timeout
		}
	}
}

// WithWriteTimeout 设置写入兜底超时，0 禁用，负值被忽略。
func WithWriteTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		if timeout >= 0 {
			o.WriteTimeout = timeout
		}
	}
}

// WithAggregateTimeout 设置聚合默认超时，非正值被忽略。
func WithAggregateTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		if timeout > 0 {
			o.AggregateTimeout = timeout
		}
	}
}

// WithLowEfficiencyThreshold 设置低效阈值，取值范围 (0,1]，越界被忽略。
func WithLowEfficiencyThreshold(threshold float64) Option {
	return func(o *Options) {
		if threshold > 0 && threshold <= 1 {
			o.LowEfficiencyThreshold = threshold
		}
	}
}

// WithFilterIndexSuggestions 开关过滤字段的单字段索引建议，默认开启。
func WithFilterIndexSuggestions(enable bool) Option {
	return func(o *Options) {
		o.SuggestFilterIndexes = enable
	}
}

// WithLogger 注入日志记录器，默认丢弃。
func WithLogger(logger xlog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithObserver 设置统一观测接口。
func WithObserver(observer xmetrics.Observer) Option {
	return func(o *Options) {
		if observer != nil {
			o.Observer = observer
		}
	}
}
