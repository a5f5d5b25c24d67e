package xmongo

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/omeyang/xmongoopt/internal/storageopt"
	"github.com/omeyang/xmongoopt/pkg/observability/xlog"
)

// 连接池建议参数。
const (
	MaxSuggestedPoolSize = 100
	PoolSizePerCPU       = 5
	MinMaxConnecting     = 2

	DefaultSocketTimeout  = 30 * time.Second
	DefaultConnectTimeout = 30 * time.Second
)

// PoolSettings 连接池建议值，供构建客户端时使用。
type PoolSettings struct {
	PoolSize       uint64
	SocketTimeout  time.Duration
	ConnectTimeout time.Duration
	MaxConnecting  uint64
}

// SuggestPoolSettings 按 CPU 数计算连接池建议：PoolSize = min(100, cpu*5)，
// MaxConnecting = max(2, PoolSize/10)。cpu 小于 1 按 1 计算。
func SuggestPoolSettings(cpuCount int) PoolSettings {
	cpuCount = max(cpuCount, 1)
	pool := uint64(min(MaxSuggestedPoolSize, cpuCount*PoolSizePerCPU))
	return PoolSettings{
		PoolSize:       pool,
		SocketTimeout:  DefaultSocketTimeout,
		ConnectTimeout: DefaultConnectTimeout,
		MaxConnecting:  max(MinMaxConnecting, pool/10),
	}
}

// Apply 写入客户端选项。
//
// v2 driver 移除了 socketTimeout，SocketTimeout 映射为客户端级操作超时 SetTimeout。
func (s PoolSettings) Apply(opts *options.ClientOptions) *options.ClientOptions {
	if opts == nil {
		opts = options.Client()
	}
	if s.PoolSize > 0 {
		opts.SetMaxPoolSize(s.PoolSize)
	}
	if s.MaxConnecting > 0 {
		opts.SetMaxConnecting(s.MaxConnecting)
	}
	if s.ConnectTimeout > 0 {
		opts.SetConnectTimeout(s.ConnectTimeout)
	}
	if s.SocketTimeout > 0 {
		opts.SetTimeout(s.SocketTimeout)
	}
	return opts
}

// =============================================================================
// 服务端参数下发
// =============================================================================

// TunePool 按本机 CPU 数计算建议并尽力下发 maxConnecting。
// setParameter 只在 mongos 上有意义，失败只记 Warn。
func (w *mongoWrapper) TunePool(ctx context.Context) PoolSettings {
	settings := SuggestPoolSettings(runtime.NumCPU())
	if ctx == nil || w.closed.Load() || w.admin == nil {
		return settings
	}
	w.applyMaxConnecting(ctx, settings.MaxConnecting)
	return settings
}

func (w *mongoWrapper) applyMaxConnecting(ctx context.Context, n uint64) {
	ctx, cancel := storageopt.HealthContext(ctx, w.options.HealthTimeout)
	defer cancel()

	cmd := bson.D{
		{Key: "setParameter", Value: 1},
		{Key: "ShardingTaskExecutorPoolMaxConnecting", Value: int64(n)},
	}
	if err := w.admin.RunCommand(ctx, cmd).Err(); err != nil {
		w.logger.Warn(ctx, "apply maxConnecting failed", slog.Uint64("max_connecting", n), xlog.Err(err))
		return
	}
	w.logger.Info(ctx, "maxConnecting applied", slog.Uint64("max_connecting", n))
}
