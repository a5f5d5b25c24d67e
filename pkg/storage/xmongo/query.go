package xmongo

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/omeyang/xmongoopt/internal/storageopt"
)

// explain verbosity。
const (
	VerbosityQueryPlanner      = "queryPlanner"
	VerbosityExecutionStats    = "executionStats"
	VerbosityAllPlansExecution = "allPlansExecution"
)

// Query 未执行的查询句柄。
//
// 整形方法原地修改并返回自身以便链式调用，句柄不是并发安全的。
// 本包不会持有调用方传入的句柄。
type Query interface {
	// Where 合并过滤条件，同名键后者覆盖前者。
	Where(filter bson.M) Query

	// Select 追加字段投影，"-" 前缀表示排除该字段。
	Select(fields ...string) Query

	Skip(n int64) Query
	Limit(n int64) Query

	// Sort 替换排序条件。
	Sort(sort bson.D) Query

	// ReadPreference 设置读偏好，nil 表示沿用集合配置。
	ReadPreference(rp *readpref.ReadPref) Query

	// Lean 标记只需要普通文档。Exec 总是解码为 bson.M，此标记用于表明调用方意图。
	Lean() Query

	// Explain 以指定 verbosity 执行 explain，返回原始输出。
	Explain(ctx context.Context, verbosity string) (bson.M, error)

	// Exec 执行查询。
	Exec(ctx context.Context) ([]bson.M, error)

	Collection() string
	Filter() bson.M
	SortSpec() bson.D
	Projection() bson.D
	SkipN() int64
	LimitN() int64
	ReadPref() *readpref.ReadPref
	IsLean() bool
}

// =============================================================================
// 查询句柄实现
// =============================================================================

type mongoQuery struct {
	coll collectionOperations
	// w 非 nil 时执行经过包装器的观测与慢查询检测
	w *mongoWrapper

	filter     bson.M
	projection bson.D
	sort       bson.D
	skip       int64
	limit      int64
	rp         *readpref.ReadPref
	lean       bool
}

// NewQuery 基于集合创建独立查询句柄，不经过任何包装器的统计。
// 需要观测与慢查询检测时使用 Mongo.Query。
func NewQuery(coll *mongo.Collection) Query {
	return newQuery(adaptCollection(coll))
}

func newQuery(coll collectionOperations) *mongoQuery {
	return &mongoQuery{coll: coll, filter: bson.M{}}
}

func (q *mongoQuery) Where(filter bson.M) Query {
	maps.Copy(q.filter, filter)
	return q
}

func (q *mongoQuery) Select(fields ...string) Query {
	for _, f := range fields {
		f = strings.TrimSpace(f)
		value := 1
		if name, ok := strings.CutPrefix(f, "-"); ok {
			f, value = name, 0
		}
		if f == "" {
			continue
		}
		q.projection = setKey(q.projection, f, value)
	}
	return q
}

func setKey(d bson.D, key string, value any) bson.D {
	for i := range d {
		if d[i].Key == key {
			d[i].Value = value
			return d
		}
	}
	return append(d, bson.E{Key: key, Value: value})
}

func (q *mongoQuery) Skip(n int64) Query {
	q.skip = n
	return q
}

func (q *mongoQuery) Limit(n int64) Query {
	q.limit = n
	return q
}

func (q *mongoQuery) Sort(sort bson.D) Query {
	q.sort = sort
	return q
}

func (q *mongoQuery) ReadPreference(rp *readpref.ReadPref) Query {
	q.rp = rp
	return q
}

func (q *mongoQuery) Lean() Query {
	q.lean = true
	return q
}

func (q *mongoQuery) Collection() string {
	if q.coll == nil {
		return ""
	}
	return q.coll.Name()
}

// Filter 返回过滤条件的浅拷贝。
func (q *mongoQuery) Filter() bson.M {
	return maps.Clone(q.filter)
}

func (q *mongoQuery) SortSpec() bson.D             { return q.sort }
func (q *mongoQuery) Projection() bson.D           { return q.projection }
func (q *mongoQuery) SkipN() int64                 { return q.skip }
func (q *mongoQuery) LimitN() int64                { return q.limit }
func (q *mongoQuery) ReadPref() *readpref.ReadPref { return q.rp }
func (q *mongoQuery) IsLean() bool                 { return q.lean }

// =============================================================================
// 执行
// =============================================================================

func (q *mongoQuery) checkUsable(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	if q.coll == nil {
		return ErrNilCollection
	}
	if q.w != nil {
		return q.w.checkUsable(ctx)
	}
	return nil
}

func (q *mongoQuery) queryTimeout() time.Duration {
	if q.w != nil {
		return q.w.options.QueryTimeout
	}
	return DefaultQueryTimeout
}

// observe 有包装器时开启观测，否则返回空 finish。
func (q *mongoQuery) observe(ctx context.Context, op string) (context.Context, func(err error)) {
	if q.w == nil {
		return ctx, func(error) {}
	}
	ctx, finish := q.w.startOp(ctx, q.coll, op, q.filter)
	return ctx, func(err error) { finish(err) }
}

func (q *mongoQuery) findOptions() *options.FindOptionsBuilder {
	opts := options.Find()
	if len(q.projection) > 0 {
		opts.SetProjection(q.projection)
	}
	if len(q.sort) > 0 {
		opts.SetSort(q.sort)
	}
	if q.skip > 0 {
		opts.SetSkip(q.skip)
	}
	if q.limit > 0 {
		opts.SetLimit(q.limit)
	}
	return opts
}

func (q *mongoQuery) Exec(ctx context.Context) (docs []bson.M, err error) {
	if err := q.checkUsable(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := storageopt.FallbackTimeout(ctx, q.queryTimeout())
	defer cancel()

	ctx, finish := q.observe(ctx, "find")
	defer func() { finish(err) }()

	coll := q.coll.WithReadPreference(q.rp)
	docs, err = findAll(ctx, coll, q.filter, q.findOptions())
	if err != nil {
		return nil, fmt.Errorf("xmongo find %s.%s: %w", q.coll.DatabaseName(), q.coll.Name(), err)
	}
	return docs, nil
}

// =============================================================================
// 执行计划
// =============================================================================

// ValidVerbosity 报告 verbosity 是否为 explain 支持的取值。
func ValidVerbosity(verbosity string) bool {
	switch verbosity {
	case VerbosityQueryPlanner, VerbosityExecutionStats, VerbosityAllPlansExecution:
		return true
	default:
		return false
	}
}

// explainCommand 构造 find 的 explain 命令。
func (q *mongoQuery) explainCommand(verbosity string) bson.D {
	find := bson.D{
		{Key: "find", Value: q.coll.Name()},
		{Key: "filter", Value: q.filter},
	}
	if len(q.sort) > 0 {
		find = append(find, bson.E{Key: "sort", Value: q.sort})
	}
	if len(q.projection) > 0 {
		find = append(find, bson.E{Key: "projection", Value: q.projection})
	}
	if q.skip > 0 {
		find = append(find, bson.E{Key: "skip", Value: q.skip})
	}
	if q.limit > 0 {
		find = append(find, bson.E{Key: "limit", Value: q.limit})
	}
	return bson.D{
		{Key: "explain", Value: find},
		{Key: "verbosity", Value: verbosity},
	}
}

func (q *mongoQuery) Explain(ctx context.Context, verbosity string) (out bson.M, err error) {
	if err := q.checkUsable(ctx); err != nil {
		return nil, err
	}
	if !ValidVerbosity(verbosity) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVerbosity, verbosity)
	}

	ctx, cancel := storageopt.FallbackTimeout(ctx, q.queryTimeout())
	defer cancel()

	ctx, finish := q.observe(ctx, "explain")
	defer func() { finish(err) }()

	return runExplain(ctx, q.coll, q.explainCommand(verbosity), q.rp)
}

// runExplain 在集合所在数据库执行 explain 命令。
func runExplain(ctx context.Context, coll collectionOperations, cmd bson.D, rp *readpref.ReadPref) (bson.M, error) {
	runOpts := options.RunCmd()
	if rp != nil {
		runOpts.SetReadPreference(rp)
	}

	var out bson.M
	if err := coll.Runner().RunCommand(ctx, cmd, runOpts).Decode(&out); err != nil {
		return nil, fmt.Errorf("xmongo explain %s.%s: %w", coll.DatabaseName(), coll.Name(), err)
	}
	return out, nil
}
