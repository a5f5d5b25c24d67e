// Package xrun 基于 errgroup 的进程生命周期管理。
//
// [Group] 管理一组协作 goroutine：任一返回错误或收到退出信号时，
// 其余 goroutine 通过 ctx 收到取消。xmongoctl 的 advise 命令用它
// 组合"周期分析"、"配置热重载"和"信号监听"三个服务。
//
//	err := xrun.Run(ctx, []xrun.Option{xrun.WithLogger(logger)},
//		xrun.Ticker(time.Minute, true, analyze),
//		watcher.Run,
//	)
//	if errors.Is(err, xrun.ErrSignal) {
//		// 正常退出
//	}
package xrun
