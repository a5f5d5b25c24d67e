package xlog

import (
	"log/slog"
	"time"
)

// 常用属性 Key。
const (
	KeyError      = "error"
	KeyStack      = "stack"
	KeyDuration   = "duration"
	KeyCount      = "count"
	KeyComponent  = "component"
	KeyOperation  = "operation"
	KeyDatabase   = "db.name"
	KeyCollection = "db.collection"
	KeyRunID      = "run_id"
)

// Err 创建错误属性。err 为 nil 时返回空属性（被 slog 忽略）。
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Duration 创建人类可读的耗时属性（如 "1.5s"）。
func Duration(d time.Duration) slog.Attr {
	return slog.String(KeyDuration, d.String())
}

// Component 创建组件名属性。
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}

// Operation 创建操作名属性。
func Operation(name string) slog.Attr {
	return slog.String(KeyOperation, name)
}

// Count 创建计数属性。
func Count(n int64) slog.Attr {
	return slog.Int64(KeyCount, n)
}

// Database 创建数据库名属性。
func Database(name string) slog.Attr {
	return slog.String(KeyDatabase, name)
}

// Collection 创建集合名属性。
func Collection(name string) slog.Attr {
	return slog.String(KeyCollection, name)
}

// RunID 创建批处理运行 ID 属性。
func RunID(id string) slog.Attr {
	return slog.String(KeyRunID, id)
}
