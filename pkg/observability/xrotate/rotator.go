package xrotate

import "io"

var _ io.WriteCloser = (Rotator)(nil)

// Rotator 日志轮转器接口。
//
// 所有实现都必须并发安全；Close 后调用 Write 或 Rotate 返回 [ErrClosed]。
type Rotator interface {
	Write(p []byte) (n int, err error)

	// Close 关闭轮转器。重复调用返回 [ErrClosed]。
	Close() error

	// Rotate 手动触发轮转：关闭当前文件，重命名为备份，创建新文件。
	Rotate() error
}
