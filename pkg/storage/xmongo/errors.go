package xmongo

import (
	"errors"
	"fmt"

	"github.com/omeyang/xmongoopt/internal/storageopt"
)

var (
	// ErrNilClient 传入的客户端为 nil。
	ErrNilClient = errors.New("xmongo: nil client")

	// ErrNilContext 传入的 context 为 nil。Close 例外：nil ctx 会被替换为 Background。
	ErrNilContext = errors.New("xmongo: context must not be nil")

	// ErrClosed 包装器已关闭。
	ErrClosed = errors.New("xmongo: client closed")

	// ErrNilCollection 传入的 collection 为 nil。
	ErrNilCollection = errors.New("xmongo: nil collection")

	// ErrNilQuery 传入的 Query 为 nil，或 QueryFactory 返回了 nil。
	ErrNilQuery = errors.New("xmongo: nil query")
)

// 分页错误，包装 storageopt 的对应错误，errors.Is 可匹配任一层。
var (
	ErrInvalidPage     = fmt.Errorf("xmongo: %w", storageopt.ErrInvalidPage)
	ErrInvalidPageSize = fmt.Errorf("xmongo: %w", storageopt.ErrInvalidPageSize)
	ErrPageOverflow    = fmt.Errorf("xmongo: %w", storageopt.ErrPageOverflow)
)

var (
	// ErrEmptyDocs 批量插入的文档列表为空。
	ErrEmptyDocs = errors.New("xmongo: empty documents")

	// ErrMissingID 批处理读到的文档缺少 _id，无法推进游标。
	ErrMissingID = errors.New("xmongo: document has no _id")

	// ErrNilDocumentFunc 批处理回调为 nil。
	ErrNilDocumentFunc = errors.New("xmongo: nil document func")
)

var (
	// ErrEmptyIndexKeys 索引字段为空。
	ErrEmptyIndexKeys = errors.New("xmongo: empty index keys")

	// ErrInvalidTextIndex 文本索引定义为空或权重非正。
	ErrInvalidTextIndex = errors.New("xmongo: invalid text index spec")
)

var (
	// ErrInvalidReadPreference 未知的 read preference 模式。
	ErrInvalidReadPreference = errors.New("xmongo: invalid read preference")

	// ErrInvalidVerbosity 未知的 explain verbosity。
	ErrInvalidVerbosity = errors.New("xmongo: invalid explain verbosity")
)

var (
	// ErrInvalidRange 时间范围结束早于开始。
	ErrInvalidRange = errors.New("xmongo: time range end before start")

	// ErrInvalidBucketSize 未知的时间桶粒度。
	ErrInvalidBucketSize = errors.New("xmongo: invalid bucket size")

	// ErrTooManyBuckets 时间范围切分出的桶数超过 MaxBuckets。
	ErrTooManyBuckets = errors.New("xmongo: too many time buckets")

	// ErrEmptyTimeField 时间字段名为空。
	ErrEmptyTimeField = errors.New("xmongo: empty time field")

	// ErrNilQueryBuilder 时间桶查询构建函数为 nil。
	ErrNilQueryBuilder = errors.New("xmongo: nil query builder")
)

// ErrEmptyURI 配置缺少连接串。
var ErrEmptyURI = errors.New("xmongo: empty uri")
