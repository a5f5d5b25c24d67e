package xmongo

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/omeyang/xmongoopt/internal/storageopt"
)

// 读偏好模式名称。
const (
	ReadPrimary            = "primary"
	ReadPrimaryPreferred   = "primaryPreferred"
	ReadSecondary          = "secondary"
	ReadSecondaryPreferred = "secondaryPreferred"
	ReadNearest            = "nearest"
)

// SelectFields 为查询追加字段投影。q 为 nil 时返回 nil。
func SelectFields(q Query, fields ...string) Query {
	if q == nil {
		return nil
	}
	return q.Select(fields...)
}

// Paginate 按页码与每页大小设置 skip/limit，skip = (page-1)*limit。
// page 从 1 开始，limit 必须为正。
func Paginate(q Query, page, limit int64) (Query, error) {
	if q == nil {
		return nil, ErrNilQuery
	}
	skip, err := storageopt.ValidatePagination(page, limit)
	if err != nil {
		return nil, convertPaginationError(err)
	}
	return q.Skip(skip).Limit(limit), nil
}

// SetReadPreference 为查询设置读偏好，mode 为空时使用 secondaryPreferred。
//
// 读从节点放弃了读己之写：紧跟在同一调用方写入之后、需要看到写入结果的查询不应使用。
func SetReadPreference(q Query, mode string) (Query, error) {
	if q == nil {
		return nil, ErrNilQuery
	}
	rp, err := ParseReadPreference(mode)
	if err != nil {
		return nil, err
	}
	return q.ReadPreference(rp), nil
}

// ParseReadPreference 解析读偏好模式名称，大小写不敏感。
func ParseReadPreference(mode string) (*readpref.ReadPref, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", strings.ToLower(ReadSecondaryPreferred):
		return readpref.SecondaryPreferred(), nil
	case strings.ToLower(ReadPrimary):
		return readpref.Primary(), nil
	case strings.ToLower(ReadPrimaryPreferred):
		return readpref.PrimaryPreferred(), nil
	case strings.ToLower(ReadSecondary):
		return readpref.Secondary(), nil
	case strings.ToLower(ReadNearest):
		return readpref.Nearest(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidReadPreference, mode)
	}
}
