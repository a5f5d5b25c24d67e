package xrun

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/omeyang/xmongoopt/pkg/observability/xlog"
)

// Option Group 配置选项。
type Option func(*groupOptions)

type groupOptions struct {
	logger  xlog.Logger
	name    string
	signals []os.Signal
	// notify 订阅信号，返回通道与取消订阅函数；测试中替换为可控通道
	notify func(sigs []os.Signal) (<-chan os.Signal, func())
}

func defaultOptions() *groupOptions {
	return &groupOptions{
		logger:  xlog.Discard(),
		name:    "xrun",
		signals: DefaultSignals(),
		notify:  notifySignals,
	}
}

// WithLogger 设置生命周期日志记录器，默认丢弃。
func WithLogger(logger xlog.Logger) Option {
	return func(o *groupOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithName 设置 Group 名称，出现在日志的 group 字段。
func WithName(name string) Option {
	return func(o *groupOptions) {
		if name != "" {
			o.name = name
		}
	}
}

// WithSignals 设置 Run 监听的信号，空列表保持默认。
func WithSignals(signals ...os.Signal) Option {
	copied := append([]os.Signal(nil), signals...)
	return func(o *groupOptions) {
		if len(copied) > 0 {
			o.signals = copied
		}
	}
}

// DefaultSignals 返回默认监听的 SIGHUP、SIGINT、SIGTERM、SIGQUIT。
func DefaultSignals() []os.Signal {
	return []os.Signal{syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT}
}

func notifySignals(sigs []os.Signal) (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	return ch, func() { signal.Stop(ch) }
}
