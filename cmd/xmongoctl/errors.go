package main

import (
	"errors"
	"strings"
)

// usageError 参数错误，run() 映射为退出码 2。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func newUsageError(msg string) error { return &usageError{msg: msg} }

// isCLIUsageError 判断是否为 urfave/cli 解析阶段产生的参数错误。
// cli 未导出这类错误的类型，只能按消息前缀识别。
func isCLIUsageError(err error) bool {
	if err == nil {
		return false
	}
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		return false
	}
	msg := err.Error()
	for _, prefix := range []string{
		"flag provided but not defined",
		"invalid value",
		"flag needs an argument",
		"No help topic for",
		"Required flag",
		"Required flags",
	} {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}
