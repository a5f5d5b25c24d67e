// Package xrotate 提供基于 lumberjack 的日志文件轮转。
//
// xlog.Builder.SetRotation 使用它把日志写入文件；xmongoctl 的 --log-file 参数最终落到这里。
//
//	r, err := xrotate.NewLumberjack("/var/log/xmongoctl/app.log",
//		xrotate.WithMaxSize(100),
//		xrotate.WithMaxBackups(5),
//	)
package xrotate
