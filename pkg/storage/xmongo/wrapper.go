package xmongo

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/omeyang/xmongoopt/internal/storageopt"
	"github.com/omeyang/xmongoopt/pkg/observability/xlog"
	"github.com/omeyang/xmongoopt/pkg/observability/xmetrics"
)

const mongoComponent = "xmongo"

var slogComponent = xlog.Component(mongoComponent)

// =============================================================================
// 包装器
// =============================================================================

type mongoWrapper struct {
	client    *mongo.Client
	clientOps clientOperations
	// admin 用于 setParameter 等管理命令，测试中可注入 mock
	admin   commandRunner
	options *Options
	logger  xlog.Logger

	slowQueryDetector *storageopt.SlowQueryDetector[SlowQueryInfo]

	healthCounter    storageopt.HealthCounter
	slowQueryCounter storageopt.SlowQueryCounter
	batchCounter     storageopt.BatchCounter
	bulkCounter      storageopt.BatchCounter

	closed atomic.Bool
}

// Client 返回底层客户端，不检查 closed 状态：Disconnect 后 driver 自身会返回明确错误。
func (w *mongoWrapper) Client() *mongo.Client {
	return w.client
}

func (w *mongoWrapper) Query(coll *mongo.Collection) Query {
	return w.queryOn(adaptCollection(coll))
}

func (w *mongoWrapper) queryOn(coll collectionOperations) *mongoQuery {
	q := newQuery(coll)
	q.w = w
	return q
}

// =============================================================================
// 健康检查与统计
// =============================================================================

func (w *mongoWrapper) Health(ctx context.Context) (err error) {
	if err := w.checkUsable(ctx); err != nil {
		return err
	}

	ctx, span := xmetrics.Start(ctx, w.options.Observer, xmetrics.SpanOptions{
		Component: mongoComponent,
		Operation: "health",
		Kind:      xmetrics.KindClient,
		Attrs:     []xmetrics.Attr{xmetrics.String("db.system", "mongodb")},
	})
	defer func() {
		span.End(xmetrics.Result{Err: err})
	}()

	w.healthCounter.IncPing()

	ctx, cancel := storageopt.HealthContext(ctx, w.options.HealthTimeout)
	defer cancel()

	if w.clientOps == nil {
		w.healthCounter.IncPingError()
		return ErrNilClient
	}
	if err = w.clientOps.Ping(ctx, readpref.Primary()); err != nil {
		w.healthCounter.IncPingError()
		return fmt.Errorf("xmongo health: %w", err)
	}
	return nil
}

func (w *mongoWrapper) Stats() Stats {
	return Stats{
		PingCount:   w.healthCounter.PingCount(),
		PingErrors:  w.healthCounter.PingErrors(),
		SlowQueries: w.slowQueryCounter.Count(),
		Batch:       totals(&w.batchCounter),
		Bulk:        totals(&w.bulkCounter),
		Pool:        w.poolStats(),
	}
}

func totals(c *storageopt.BatchCounter) BatchTotals {
	return BatchTotals{
		Runs:      c.Runs(),
		Batches:   c.Batches(),
		Processed: c.Processed(),
		Errors:    c.Errors(),
	}
}

func (w *mongoWrapper) poolStats() PoolStats {
	if w.clientOps == nil {
		return PoolStats{}
	}
	return PoolStats{InUseConnections: w.clientOps.NumberSessionsInProgress()}
}

// =============================================================================
// 生命周期
// =============================================================================

// Close 断开连接。并发安全；Disconnect 失败不回滚 closed 状态。
//
// 设计决策: closed 用 CAS 切换，重复 Close 返回 ErrClosed 而不是再次 Disconnect。
func (w *mongoWrapper) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !w.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	w.slowQueryDetector.Close()

	if w.clientOps == nil {
		return nil
	}
	if err := w.clientOps.Disconnect(ctx); err != nil {
		return fmt.Errorf("xmongo close: %w", err)
	}
	return nil
}

func (w *mongoWrapper) checkUsable(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	if w.closed.Load() {
		return ErrClosed
	}
	return nil
}

// =============================================================================
// 观测与慢查询
// =============================================================================

// startOp 开启一次数据库往返的观测。返回的 finish 负责慢查询检测与结束 span。
func (w *mongoWrapper) startOp(ctx context.Context, coll collectionOperations, op string, filter any) (context.Context, func(err error, attrs ...xmetrics.Attr)) {
	info := slowQueryInfo(coll, op, filter)
	start := time.Now()

	ctx, span := xmetrics.Start(ctx, w.options.Observer, xmetrics.SpanOptions{
		Component: mongoComponent,
		Operation: op,
		Kind:      xmetrics.KindClient,
		Attrs: []xmetrics.Attr{
			xmetrics.String("db.system", "mongodb"),
			xmetrics.String("db.name", info.Database),
			xmetrics.String("db.collection", info.Collection),
		},
	})

	return ctx, func(err error, attrs ...xmetrics.Attr) {
		info.Duration = storageopt.MeasureOperation(start)
		if w.maybeSlowQuery(ctx, info) {
			attrs = append(attrs,
				xmetrics.Bool("slow", true),
				xmetrics.Int64("slow_threshold_ms", w.options.SlowQueryThreshold.Milliseconds()),
			)
		}
		span.End(xmetrics.Result{Err: err, Attrs: attrs})
	}
}

func (w *mongoWrapper) maybeSlowQuery(ctx context.Context, info SlowQueryInfo) bool {
	if !w.slowQueryDetector.MaybeSlowQuery(ctx, info, info.Duration) {
		return false
	}
	w.slowQueryCounter.Inc()
	w.logger.Warn(ctx, "slow query",
		xlog.Operation(info.Operation),
		xlog.Database(info.Database),
		xlog.Collection(info.Collection),
		xlog.Duration(info.Duration),
	)
	return true
}

func slowQueryInfo(coll collectionOperations, op string, filter any) SlowQueryInfo {
	info := SlowQueryInfo{Operation: op, Filter: filter}
	if coll != nil {
		info.Database = coll.DatabaseName()
		info.Collection = coll.Name()
	}
	return info
}

// =============================================================================
// 分页查询
// =============================================================================

func (w *mongoWrapper) FindPage(ctx context.Context, coll *mongo.Collection, filter any, opts PageOptions) (*PageResult, error) {
	if err := w.checkUsable(ctx); err != nil {
		return nil, err
	}
	if coll == nil {
		return nil, ErrNilCollection
	}
	return w.findPage(ctx, adaptCollection(coll), filter, opts)
}

func convertPaginationError(err error) error {
	switch {
	case errors.Is(err, storageopt.ErrInvalidPage):
		return ErrInvalidPage
	case errors.Is(err, storageopt.ErrInvalidPageSize):
		return ErrInvalidPageSize
	case errors.Is(err, storageopt.ErrPageOverflow):
		return ErrPageOverflow
	default:
		return err
	}
}

func (w *mongoWrapper) findPage(ctx context.Context, coll collectionOperations, filter any, opts PageOptions) (result *PageResult, err error) {
	skip, err := storageopt.ValidatePagination(opts.Page, opts.PageSize)
	if err != nil {
		return nil, convertPaginationError(err)
	}
	if filter == nil {
		filter = bson.D{}
	}

	ctx, cancel := storageopt.FallbackTimeout(ctx, w.options.QueryTimeout)
	defer cancel()

	ctx, finish := w.startOp(ctx, coll, "find_page", filter)
	defer func() { finish(err) }()

	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("xmongo find_page count %s.%s: %w", coll.DatabaseName(), coll.Name(), err)
	}

	findOpts := options.Find().SetSkip(skip).SetLimit(opts.PageSize)
	if len(opts.Sort) > 0 {
		findOpts.SetSort(opts.Sort)
	}
	if len(opts.Projection) > 0 {
		findOpts.SetProjection(opts.Projection)
	}

	data, err := findAll(ctx, coll, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("xmongo find_page %s.%s: %w", coll.DatabaseName(), coll.Name(), err)
	}

	return &PageResult{
		Data:       data,
		Total:      total,
		Page:       opts.Page,
		PageSize:   opts.PageSize,
		TotalPages: storageopt.CalculateTotalPages(total, opts.PageSize),
	}, nil
}

// =============================================================================
// 结果解码
// =============================================================================

// findAll 执行 Find 并把结果解码为 bson.M。空结果返回空切片，JSON 序列化为 [] 而非 null。
func findAll(ctx context.Context, coll collectionOperations, filter any, opts *options.FindOptionsBuilder) (docs []bson.M, err error) {
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	return decodeAll(ctx, cursor)
}

func decodeAll(ctx context.Context, cursor *mongo.Cursor) (docs []bson.M, err error) {
	defer func() {
		if closeErr := cursor.Close(ctx); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close cursor: %w", closeErr))
		}
	}()
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if docs == nil {
		docs = []bson.M{}
	}
	return docs, nil
}
