package xrun

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/omeyang/xmongoopt/pkg/observability/xlog"
)

// Group 管理多个 goroutine 的并发运行与协调取消。
//
// Go 可并发调用；Wait 只应调用一次。
type Group struct {
	eg       *errgroup.Group
	ctx      context.Context
	causeCtx context.Context
	cancel   context.CancelCauseFunc
	opts     *groupOptions
}

// NewGroup 创建 Group，返回的 ctx 在任一 goroutine 出错或 Cancel 时取消。
func NewGroup(ctx context.Context, opts ...Option) (*Group, context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	options := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	causeCtx, cancel := context.WithCancelCause(ctx)
	eg, egCtx := errgroup.WithContext(causeCtx)
	return &Group{
		eg:       eg,
		ctx:      egCtx,
		causeCtx: causeCtx,
		cancel:   cancel,
		opts:     options,
	}, egCtx
}

// Go 启动一个 goroutine 执行 fn，fn 应监听 ctx.Done()。
func (g *Group) Go(fn func(ctx context.Context) error) {
	g.eg.Go(func() error {
		if fn == nil {
			return ErrNilFunc
		}
		return fn(g.ctx)
	})
}

// Cancel 主动取消所有 goroutine，Wait 返回 cause（nil 时返回 nil）。
//
// cause 不应包装 context.Canceled，否则会被当作普通取消过滤。
func (g *Group) Cancel(cause error) {
	g.cancel(cause)
}

// Wait 等待所有 goroutine 结束。
//
// 普通取消产生的 context.Canceled 被过滤；通过 Cancel 或信号设置的原因会被返回，
// 即使所有服务都返回 nil。
func (g *Group) Wait() error {
	defer g.cancel(nil)

	err := g.eg.Wait()
	g.opts.logger.Debug(context.Background(), "group stopped", slog.String("group", g.opts.name))

	cause := context.Cause(g.causeCtx)
	explicit := g.causeCtx.Err() != nil && cause != nil && !errors.Is(cause, context.Canceled)

	if errors.Is(err, context.Canceled) && g.causeCtx.Err() != nil {
		if explicit {
			return cause
		}
		return nil
	}
	if err == nil && explicit {
		return cause
	}
	return err
}

// Run 创建带信号监听的 Group 运行 services，直到全部退出。
//
// 收到信号时返回 *SignalError（errors.Is(err, ErrSignal) 成立）。
func Run(ctx context.Context, opts []Option, services ...func(ctx context.Context) error) error {
	g, _ := NewGroup(ctx, opts...)

	sigCh, stop := g.opts.notify(g.opts.signals)
	g.Go(func(ctx context.Context) error {
		defer stop()
		select {
		case sig := <-sigCh:
			g.opts.logger.Info(ctx, "received signal",
				slog.String("group", g.opts.name),
				slog.String("signal", sig.String()),
			)
			g.Cancel(&SignalError{Signal: sig})
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	for _, svc := range services {
		g.Go(logged(g.opts, svc))
	}
	return g.Wait()
}

func logged(opts *groupOptions, fn func(ctx context.Context) error) func(ctx context.Context) error {
	if fn == nil {
		return nil
	}
	return func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			opts.logger.Warn(ctx, "service exited with error",
				slog.String("group", opts.name), xlog.Err(err))
		}
		return err
	}
}

// Ticker 返回周期执行 fn 的服务函数；immediate 为 true 时启动即执行一次。
// fn 返回错误时服务退出。
func Ticker(interval time.Duration, immediate bool, fn func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if interval <= 0 {
			return ErrInvalidInterval
		}
		if fn == nil {
			return ErrNilFunc
		}
		if immediate {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx); err != nil {
				return err
			}
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := fn(ctx); err != nil {
					return err
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
