package storageopt

import (
	"errors"
	"math"
)

// =============================================================================
// 错误定义
// =============================================================================

// 分页相关错误。
var (
	// ErrInvalidPage 表示页码无效（必须 >= 1）。
	ErrInvalidPage = errors.New("storageopt: invalid page number, must be >= 1")

	// ErrInvalidPageSize 表示每页大小无效（必须 >= 1）。
	ErrInvalidPageSize = errors.New("storageopt: invalid page size, must be >= 1")

	// ErrPageOverflow 表示分页计算溢出。
	// 当 (page-1) * pageSize 超过 int64 最大值时返回此错误。
	ErrPageOverflow = errors.New("storageopt: page calculation overflow, reduce page number or page size")
)

// =============================================================================
// 分页计算
// =============================================================================

// ValidatePagination 验证分页参数并返回 skip 偏移量 (page-1) * pageSize。
//
// page 从 1 开始；pageSize 必须 >= 1。
// 返回的错误可能是 ErrInvalidPage、ErrInvalidPageSize 或 ErrPageOverflow。
func ValidatePagination(page, pageSize int64) (offset int64, err error) {
	if page < 1 {
		return 0, ErrInvalidPage
	}
	if pageSize < 1 {
		return 0, ErrInvalidPageSize
	}
	// page-1 > MaxInt64/pageSize 时乘法溢出
	if page-1 > math.MaxInt64/pageSize {
		return 0, ErrPageOverflow
	}
	return (page - 1) * pageSize, nil
}

// CalculateTotalPages 计算总页数。
// total 或 pageSize <= 0 时返回 0。
func CalculateTotalPages(total, pageSize int64) int64 {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	totalPages := total / pageSize
	if total%pageSize > 0 {
		totalPages++
	}
	return totalPages
}

// NormalizeBatchSize 将批次大小归一化到 [1, maxSize]。
// size < 1 时使用 defaultSize，超过 maxSize 时截断为 maxSize。
func NormalizeBatchSize(size, defaultSize, maxSize int) int {
	if size < 1 {
		size = defaultSize
	}
	if maxSize > 0 && size > maxSize {
		size = maxSize
	}
	return size
}
