package xmongo

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Config 可由 xconf 加载的连接与调优配置。零值字段使用包默认值。
type Config struct {
	URI      string `koanf:"uri"`
	Database string `koanf:"database"`
	AppName  string `koanf:"app_name"`

	HealthTimeout    time.Duration `koanf:"health_timeout"`
	QueryTimeout     time.Duration `koanf:"query_timeout"`
	WriteTimeout     time.Duration `koanf:"write_timeout"`
	AggregateTimeout time.Duration `koanf:"aggregate_timeout"`

	SlowQueryThreshold time.Duration `koanf:"slow_query_threshold"`

	LowEfficiencyThreshold float64 `koanf:"low_efficiency_threshold"`

	// SuggestFilterIndexes 为 nil 时保持默认开启。
	SuggestFilterIndexes *bool `koanf:"suggest_filter_indexes"`

	Pool PoolConfig `koanf:"pool"`
}

// PoolConfig 连接池配置。
type PoolConfig struct {
	// Auto 按本机 CPU 数使用 SuggestPoolSettings，忽略下面的显式值。
	Auto bool `koanf:"auto"`

	Size           uint64        `koanf:"size"`
	MaxConnecting  uint64        `koanf:"max_connecting"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	SocketTimeout  time.Duration `koanf:"socket_timeout"`
}

// Settings 返回生效的连接池参数。
func (p PoolConfig) Settings() PoolSettings {
	if p.Auto {
		return SuggestPoolSettings(runtime.NumCPU())
	}
	return PoolSettings{
		PoolSize:       p.Size,
		MaxConnecting:  p.MaxConnecting,
		ConnectTimeout: p.ConnectTimeout,
		SocketTimeout:  p.SocketTimeout,
	}
}

// Validate 检查必填项与取值范围。
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.URI) == "" {
		errs = append(errs, ErrEmptyURI)
	}
	if c.LowEfficiencyThreshold < 0 || c.LowEfficiencyThreshold > 1 {
		errs = append(errs, fmt.Errorf("xmongo: low_efficiency_threshold %v out of range [0,1]", c.LowEfficiencyThreshold))
	}
	return errors.Join(errs...)
}

// Options 转换为包装器选项。
func (c Config) Options() []Option {
	opts := []Option{
		WithHealthTimeout(c.HealthTimeout),
		WithSlowQueryThreshold(c.SlowQueryThreshold),
		WithAggregateTimeout(c.AggregateTimeout),
		WithLowEfficiencyThreshold(c.LowEfficiencyThreshold),
	}
	if c.QueryTimeout > 0 {
		opts = append(opts, WithQueryTimeout(c.QueryTimeout))
	}
	if c.WriteTimeout > 0 {
		opts = append(opts, WithWriteTimeout(c.WriteTimeout))
	}
	if c.SuggestFilterIndexes != nil {
		opts = append(opts, WithFilterIndexSuggestions(*c.SuggestFilterIndexes))
	}
	return opts
}

// ClientOptions 构建 driver 客户端选项。
func (c Config) ClientOptions() *options.ClientOptions {
	opts := options.Client().ApplyURI(c.URI)
	if c.AppName != "" {
		opts.SetAppName(c.AppName)
	}
	return c.Pool.Settings().Apply(opts)
}

// Open 按配置连接并创建包装器。额外的 opts 在配置项之后应用。
func Open(cfg Config, opts ...Option) (Mongo, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := mongo.Connect(cfg.ClientOptions())
	if err != nil {
		return nil, fmt.Errorf("xmongo connect: %w", err)
	}
	m, err := New(client, append(cfg.Options(), opts...)...)
	if err != nil {
		return nil, errors.Join(err, client.Disconnect(context.Background()))
	}
	return m, nil
}
