package xmongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/omeyang/xmongoopt/internal/storageopt"
	"github.com/omeyang/xmongoopt/pkg/observability/xlog"
	"github.com/omeyang/xmongoopt/pkg/observability/xmetrics"
)

const (
	defaultBatchSize = 1000
	maxBatchSize     = 10000
)

// =============================================================================
// 类型定义
// =============================================================================

// QueryFactory 每页调用一次，返回全新的查询句柄。
type QueryFactory func() Query

// DocumentFunc 逐文档回调。返回错误只计数，不中断批处理。
type DocumentFunc func(ctx context.Context, doc bson.M) error

// BatchOptions 批处理选项。
type BatchOptions struct {
	// BatchSize 每页文档数，默认 1000，上限 10000。
	BatchSize int
}

// BatchStats 一次批处理运行的统计。
type BatchStats struct {
	// TotalProcessed 回调成功的文档数。
	TotalProcessed int64
	Batches        int64
	// Errors 回调失败的文档数。
	Errors int64
}

// BulkOptions 批量插入选项。
type BulkOptions struct {
	// BatchSize 每批大小，默认 1000，上限 10000。
	BatchSize int

	// Ordered 有序写入。遇到错误会停止后续批次，默认无序。
	Ordered bool
}

// BulkResult 批量插入结果。
//
// 即使返回的 error 不为 nil，result 仍包含有效统计，调用方应同时检查两者。
type BulkResult struct {
	// InsertedCount 成功插入数量，部分失败的批次中已插入的文档也计入。
	InsertedCount int64

	// Batches 已执行的 InsertMany 次数。
	Batches int64

	// ErrorCount 已执行批次中未插入的文档数。
	ErrorCount int64

	// Errors 每个失败批次一个错误。
	Errors []error
}

// =============================================================================
// 游标分页批处理
// =============================================================================

// ProcessInBatches 按 _id 游标分页遍历。
//
// 每页通过 factory 构建新查询，追加 _id > last 条件，按 _id 升序、限制页大小、Lean 执行；
// 空页结束。文档按 _id 非递减顺序访问；运行期间插入的 _id 不大于当前游标的文档可能被遗漏。
// 拉取失败立即返回，同时返回已累计的统计。
//
// ⚠️ 要求集合的 _id 唯一且可比较排序；混合类型的 _id 按 BSON 类型序推进游标。
// factory 自身的 _id 条件会与游标条件同时生效，不会被覆盖。
func (w *mongoWrapper) ProcessInBatches(ctx context.Context, factory QueryFactory, fn DocumentFunc, opts BatchOptions) (stats *BatchStats, err error) {
	if err := w.checkUsable(ctx); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, ErrNilQuery
	}
	if fn == nil {
		return nil, ErrNilDocumentFunc
	}

	size := storageopt.NormalizeBatchSize(opts.BatchSize, defaultBatchSize, maxBatchSize)
	runID := uuid.NewString()
	logger := w.logger.With(xlog.RunID(runID))

	ctx, span := xmetrics.Start(ctx, w.options.Observer, xmetrics.SpanOptions{
		Component: mongoComponent,
		Operation: "process_in_batches",
		Kind:      xmetrics.KindInternal,
		Attrs: []xmetrics.Attr{
			xmetrics.String("run_id", runID),
			xmetrics.Int("batch_size", size),
		},
	})

	stats = &BatchStats{}
	defer func() {
		w.batchCounter.Record(stats.Batches, stats.TotalProcessed, stats.Errors)
		span.End(xmetrics.Result{Err: err, Attrs: []xmetrics.Attr{
			xmetrics.Int64("batches", stats.Batches),
			xmetrics.Int64("processed", stats.TotalProcessed),
			xmetrics.Int64("errors", stats.Errors),
		}})
	}()

	var lastID any
	for {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("xmongo process_in_batches before batch %d: %w", stats.Batches, err)
		}

		docs, err := fetchPage(ctx, factory, lastID, size)
		if err != nil {
			logger.Error(ctx, "batch fetch failed", xlog.Count(stats.Batches), xlog.Err(err))
			return stats, fmt.Errorf("xmongo process_in_batches batch %d: %w", stats.Batches, err)
		}
		if len(docs) == 0 {
			break
		}

		for _, doc := range docs {
			if err := fn(ctx, doc); err != nil {
				stats.Errors++
				logger.Warn(ctx, "document processing failed", slog.Any("_id", doc["_id"]), xlog.Err(err))
				continue
			}
			stats.TotalProcessed++
		}

		id, ok := docs[len(docs)-1]["_id"]
		if !ok {
			return stats, fmt.Errorf("%w: batch %d", ErrMissingID, stats.Batches)
		}
		lastID = id
		stats.Batches++
	}

	logger.Info(ctx, "batch processing completed",
		slog.Int64("processed", stats.TotalProcessed),
		slog.Int64("batches", stats.Batches),
		slog.Int64("errors", stats.Errors),
	)
	return stats, nil
}

// fetchPage 拉取 _id > lastID 的一页。lastID 为 nil 表示首页。
// 游标条件与 factory 设置的 _id 条件同时生效。
func fetchPage(ctx context.Context, factory QueryFactory, lastID any, size int) ([]bson.M, error) {
	q := factory()
	if q == nil {
		return nil, ErrNilQuery
	}
	if lastID != nil {
		q = narrow(q, "_id", bson.M{"$gt": lastID})
	}
	return q.Sort(bson.D{{Key: "_id", Value: 1}}).Limit(int64(size)).Lean().Exec(ctx)
}

// =============================================================================
// 批量插入
// =============================================================================

// BulkInsert 批量插入文档。
//
// 设计决策: 默认 unordered，单条失败不阻断其余文档；失败明细汇总到 BulkResult.Errors，
// 调用方据此决定是否重试。
//
// ⚠️ docs 为空返回 ErrEmptyDocs，不发起请求。
func (w *mongoWrapper) BulkInsert(ctx context.Context, coll *mongo.Collection, docs []any, opts BulkOptions) (*BulkResult, error) {
	if err := w.checkUsable(ctx); err != nil {
		return nil, err
	}
	if coll == nil {
		return nil, ErrNilCollection
	}
	return w.bulkInsert(ctx, adaptCollection(coll), docs, opts)
}

func (w *mongoWrapper) bulkInsert(ctx context.Context, coll collectionOperations, docs []any, opts BulkOptions) (result *BulkResult, err error) {
	if len(docs) == 0 {
		return nil, ErrEmptyDocs
	}

	ctx, cancel := storageopt.FallbackTimeout(ctx, w.options.WriteTimeout)
	defer cancel()

	ctx, finish := w.startOp(ctx, coll, "bulk_insert", nil)
	result = &BulkResult{}
	defer func() {
		w.bulkCounter.Record(result.Batches, result.InsertedCount, result.ErrorCount)
		finish(err,
			xmetrics.Int64("inserted", result.InsertedCount),
			xmetrics.Int64("batches", result.Batches),
			xmetrics.Int64("failed", result.ErrorCount),
		)
	}()

	size := storageopt.NormalizeBatchSize(opts.BatchSize, defaultBatchSize, maxBatchSize)
	insertOpts := options.InsertMany().SetOrdered(opts.Ordered)

	for i := 0; i < len(docs); i += size {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("context canceled before batch %d: %w", i/size, err))
			break
		}

		chunk := docs[i:min(i+size, len(docs))]
		inserted, chunkErr := insertChunk(ctx, coll, chunk, insertOpts, opts.Ordered)
		result.Batches++
		result.InsertedCount += inserted
		if chunkErr == nil {
			continue
		}

		failed := int64(len(chunk)) - inserted
		result.ErrorCount += failed
		result.Errors = append(result.Errors, fmt.Errorf("xmongo bulk_insert batch %d: %w", i/size, chunkErr))
		w.logger.Warn(ctx, "bulk insert batch failed",
			xlog.Collection(coll.Name()),
			slog.Int("batch", i/size),
			xlog.Count(failed),
			xlog.Err(chunkErr),
		)
		if opts.Ordered {
			break
		}
	}

	if len(result.Errors) > 0 {
		err = errors.Join(result.Errors...)
	}
	return result, err
}

// insertChunk 插入一个分块，返回实际插入的文档数。
//
// 无序模式下 BulkWriteException 的每个 WriteError 对应一个未插入的文档；
// 有序模式下首个 WriteError 的 Index 之前的文档均已插入。
func insertChunk(ctx context.Context, coll collectionOperations, chunk []any, opts *options.InsertManyOptionsBuilder, ordered bool) (int64, error) {
	res, err := coll.InsertMany(ctx, chunk, opts)
	if err == nil {
		if res == nil {
			return int64(len(chunk)), nil
		}
		return int64(len(res.InsertedIDs)), nil
	}

	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) {
		return 0, err
	}
	if ordered && len(bwe.WriteErrors) > 0 {
		return int64(bwe.WriteErrors[0].Index), err
	}
	return int64(max(len(chunk)-len(bwe.WriteErrors), 0)), err
}
