package xlog

import (
	"context"
	"log/slog"
)

// Discard 返回丢弃所有日志的 Logger。
//
// 库组件在调用方未注入 Logger 时使用它，避免依赖进程级全局状态。
func Discard() Logger {
	return discardLogger{}
}

type discardLogger struct{}

func (discardLogger) Debug(context.Context, string, ...slog.Attr) {}
func (discardLogger) Info(context.Context, string, ...slog.Attr)  {}
func (discardLogger) Warn(context.Context, string, ...slog.Attr)  {}
func (discardLogger) Error(context.Context, string, ...slog.Attr) {}
func (discardLogger) Stack(context.Context, string, ...slog.Attr) {}
func (d discardLogger) With(...slog.Attr) Logger                  { return d }
func (d discardLogger) WithGroup(string) Logger                   { return d }
