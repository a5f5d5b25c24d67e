package xmongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/omeyang/xmongoopt/internal/storageopt"
	"github.com/omeyang/xmongoopt/pkg/observability/xlog"
)

// AggregateOptions 聚合选项。
type AggregateOptions struct {
	// AllowDiskUse 是否允许落盘，nil 表示 true。
	AllowDiskUse *bool

	// Timeout 执行超时，0 使用 Options.AggregateTimeout（默认 60 秒）。
	// 无论调用方 ctx 是否已有 deadline 都会叠加。
	Timeout time.Duration

	// Debug 执行前以 queryPlanner 模式 explain 管道并记录 Debug 日志。
	Debug bool

	// BatchSize 游标批大小，0 使用服务端默认值。
	BatchSize int32
}

func (w *mongoWrapper) OptimizedAggregate(ctx context.Context, coll *mongo.Collection, pipeline any, opts AggregateOptions) ([]bson.M, error) {
	if err := w.checkUsable(ctx); err != nil {
		return nil, err
	}
	if coll == nil {
		return nil, ErrNilCollection
	}
	return w.aggregate(ctx, adaptCollection(coll), pipeline, opts)
}

func (w *mongoWrapper) aggregate(ctx context.Context, coll collectionOperations, pipeline any, opts AggregateOptions) (docs []bson.M, err error) {
	if pipeline == nil {
		pipeline = bson.A{}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = w.options.AggregateTimeout
	}
	ctx, cancel := storageopt.ForcedTimeout(ctx, timeout)
	defer cancel()

	if opts.Debug {
		w.logAggregatePlan(ctx, coll, pipeline)
	}

	ctx, finish := w.startOp(ctx, coll, "aggregate", pipeline)
	defer func() { finish(err) }()

	allowDisk := true
	if opts.AllowDiskUse != nil {
		allowDisk = *opts.AllowDiskUse
	}
	aggOpts := options.Aggregate().SetAllowDiskUse(allowDisk)
	if opts.BatchSize > 0 {
		aggOpts.SetBatchSize(opts.BatchSize)
	}

	cursor, err := coll.Aggregate(ctx, pipeline, aggOpts)
	if err != nil {
		return nil, fmt.Errorf("xmongo aggregate %s.%s: %w", coll.DatabaseName(), coll.Name(), err)
	}
	docs, err = decodeAll(ctx, cursor)
	if err != nil {
		return nil, fmt.Errorf("xmongo aggregate %s.%s: %w", coll.DatabaseName(), coll.Name(), err)
	}
	return docs, nil
}

// logAggregatePlan 记录聚合执行计划。explain 失败只记 Warn，不影响聚合本身。
func (w *mongoWrapper) logAggregatePlan(ctx context.Context, coll collectionOperations, pipeline any) {
	cmd := bson.D{
		{Key: "explain", Value: bson.D{
			{Key: "aggregate", Value: coll.Name()},
			{Key: "pipeline", Value: pipeline},
			{Key: "cursor", Value: bson.D{}},
		}},
		{Key: "verbosity", Value: VerbosityQueryPlanner},
	}

	plan, err := runExplain(ctx, coll, cmd, nil)
	if err != nil {
		w.logger.Warn(ctx, "aggregate explain failed",
			xlog.Database(coll.DatabaseName()),
			xlog.Collection(coll.Name()),
			xlog.Err(err),
		)
		return
	}
	w.logger.Debug(ctx, "aggregate plan",
		xlog.Database(coll.DatabaseName()),
		xlog.Collection(coll.Name()),
		slog.Any("plan", plan),
	)
}
