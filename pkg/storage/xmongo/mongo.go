package xmongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/omeyang/xmongoopt/internal/storageopt"
)

// Mongo MongoDB 查询整形与批量执行包装器。
//
// 只提供 mongo.Client 原生不具备的增值功能，基础操作直接使用 Client()。
// 经 Client() 执行的操作不进入统计与慢查询检测。
type Mongo interface {
	Client() *mongo.Client

	// Query 基于集合创建查询句柄，句柄执行时经过本包装器的观测与慢查询检测。
	Query(coll *mongo.Collection) Query

	Health(ctx context.Context) error
	Stats() Stats

	// Close 断开连接。重复调用返回 ErrClosed。
	Close(ctx context.Context) error

	// FindPage 分页查询，返回总数与当前页。
	//
	// COUNT 与数据查询是两次独立请求，高并发写入时 Total 与实际数据可能略有出入；
	// 大数据量遍历应使用 ProcessInBatches 的 _id 游标分页。
	FindPage(ctx context.Context, coll *mongo.Collection, filter any, opts PageOptions) (*PageResult, error)

	// AnalyzeQuery 以 executionStats 模式 explain 查询并生成执行报告。只读。
	AnalyzeQuery(ctx context.Context, q Query) (*ExecutionReport, error)

	// CreateIndex 创建复合索引。失败时记录日志并返回错误，不重试。
	CreateIndex(ctx context.Context, coll *mongo.Collection, keys bson.D, opts IndexOptions) (string, error)

	// CreateTextIndex 创建文本索引。失败时记录日志并返回错误，不重试。
	CreateTextIndex(ctx context.Context, coll *mongo.Collection, spec TextIndexSpec, opts IndexOptions) (string, error)

	// ProcessInBatches 按 _id 游标分页遍历集合，逐文档调用 fn。
	ProcessInBatches(ctx context.Context, factory QueryFactory, fn DocumentFunc, opts BatchOptions) (*BatchStats, error)

	// BulkInsert 分块插入文档，默认无序写入，所有分块都会执行。
	BulkInsert(ctx context.Context, coll *mongo.Collection, docs []any, opts BulkOptions) (*BulkResult, error)

	// OptimizedAggregate 执行聚合，默认允许落盘并带 60 秒执行超时。
	OptimizedAggregate(ctx context.Context, coll *mongo.Collection, pipeline any, opts AggregateOptions) ([]bson.M, error)

	// TimeRangeQuery 将时间范围切分为时间桶，逐桶顺序执行查询。
	TimeRangeQuery(ctx context.Context, opts TimeRangeOptions) ([]bson.M, error)

	// TunePool 按 CPU 数计算连接池建议，并尽力下发 maxConnecting 参数。下发失败只记日志。
	TunePool(ctx context.Context) PoolSettings
}

// PageOptions 分页查询选项。
type PageOptions struct {
	// Page 页码，从 1 开始。
	Page int64

	// PageSize 每页大小。
	PageSize int64

	// Sort 排序条件。未指定时 MongoDB 不保证顺序，翻页可能重复或遗漏。
	Sort bson.D

	// Projection 字段投影。
	Projection bson.D
}

// PageResult 分页查询结果。
type PageResult struct {
	Data       []bson.M
	Total      int64
	Page       int64
	PageSize   int64
	TotalPages int64
}

// New 创建包装器。client 必须已初始化。
func New(client *mongo.Client, opts ...Option) (Mongo, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	w, err := newWrapper(client, opts...)
	if err != nil {
		return nil, err
	}
	w.admin = client.Database("admin")
	return w, nil
}

func newWrapper(client *mongo.Client, opts ...Option) (*mongoWrapper, error) {
	options := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	detector, err := newSlowQueryDetector(options)
	if err != nil {
		return nil, fmt.Errorf("xmongo: %w", err)
	}

	w := &mongoWrapper{
		client:            client,
		options:           options,
		logger:            options.Logger.With(slogComponent),
		slowQueryDetector: detector,
	}
	if client != nil {
		w.clientOps = client
	}
	return w, nil
}

func newSlowQueryDetector(opts *Options) (*storageopt.SlowQueryDetector[SlowQueryInfo], error) {
	sqOpts := storageopt.SlowQueryOptions[SlowQueryInfo]{
		Threshold:           opts.SlowQueryThreshold,
		AsyncWorkerPoolSize: opts.AsyncSlowQueryWorkers,
		AsyncQueueSize:      opts.AsyncSlowQueryQueueSize,
	}
	if opts.SlowQueryHook != nil {
		sqOpts.SyncHook = storageopt.SlowQueryHook[SlowQueryInfo](opts.SlowQueryHook)
	}
	if opts.AsyncSlowQueryHook != nil {
		sqOpts.AsyncHook = storageopt.AsyncSlowQueryHook[SlowQueryInfo](opts.AsyncSlowQueryHook)
	}
	return storageopt.NewSlowQueryDetector(sqOpts)
}
