package xmongo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/omeyang/xmongoopt/pkg/observability/xlog"
	"github.com/omeyang/xmongoopt/pkg/observability/xmetrics"
)

// BucketSize 时间桶粒度。
type BucketSize string

const (
	BucketHour  BucketSize = "hour"
	BucketDay   BucketSize = "day"
	BucketWeek  BucketSize = "week"
	BucketMonth BucketSize = "month"
)

// ParseBucketSize 解析时间桶粒度，大小写不敏感。
func ParseBucketSize(s string) (BucketSize, error) {
	size := BucketSize(strings.ToLower(strings.TrimSpace(s)))
	switch size {
	case BucketHour, BucketDay, BucketWeek, BucketMonth:
		return size, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidBucketSize, s)
	}
}

// MaxBuckets 单次切分允许的最大桶数。Buckets 会一次性分配全部桶，
// 按小时切分百年范围即接近百万个桶，超过上限返回 ErrTooManyBuckets。
const MaxBuckets = 100_000

// TimeBucket 左闭右开的时间区间 [Start, End)。
type TimeBucket struct {
	Start time.Time
	End   time.Time
}

func (b TimeBucket) String() string {
	return b.Start.Format(time.RFC3339) + "/" + b.End.Format(time.RFC3339)
}

// Buckets 将 [start, end) 切分为连续不重叠的时间桶，最后一个桶截断到 end。
//
// 天、周、月按 start 所在时区的日历推进；月末日期在短月份中取当月最后一天，
// 后续桶仍以 start 的日期为基准，不会逐月漂移。start 等于 end 时返回空。
//
// ⚠️ 桶数超过 MaxBuckets 时返回 ErrTooManyBuckets，调用方应改用更粗的粒度或缩小范围。
func Buckets(start, end time.Time, size BucketSize) ([]TimeBucket, error) {
	if end.Before(start) {
		return nil, ErrInvalidRange
	}
	step, err := bucketStep(start, size)
	if err != nil {
		return nil, err
	}

	var buckets []TimeBucket
	cur := start
	for i := 1; cur.Before(end); i++ {
		if len(buckets) >= MaxBuckets {
			return nil, fmt.Errorf("%w: more than %d %s buckets", ErrTooManyBuckets, MaxBuckets, size)
		}
		next := step(i)
		if next.After(end) {
			next = end
		}
		buckets = append(buckets, TimeBucket{Start: cur, End: next})
		cur = next
	}
	return buckets, nil
}

// bucketStep 返回第 i 个桶边界的计算函数，均以 start 为基准计算避免累积误差。
func bucketStep(start time.Time, size BucketSize) (func(i int) time.Time, error) {
	switch size {
	case BucketHour:
		return func(i int) time.Time { return addHours(start, i) }, nil
	case BucketDay:
		return func(i int) time.Time { return start.AddDate(0, 0, i) }, nil
	case BucketWeek:
		return func(i int) time.Time { return start.AddDate(0, 0, 7*i) }, nil
	case BucketMonth:
		return func(i int) time.Time { return addMonths(start, i) }, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidBucketSize, size)
	}
}

// addHours 加 n 小时。
//
// 设计决策: time.Duration 只能表示约 292 年，i*time.Hour 在长范围上会溢出导致边界回退。
// 整天部分在 UTC 下用 AddDate 推进（UTC 无夏令时，每天恰为 24 小时），
// 只有不足一天的余数走 Duration，结果换回 start 的时区。
func addHours(t time.Time, n int) time.Time {
	days, hours := n/24, n%24
	return t.UTC().AddDate(0, 0, days).Add(time.Duration(hours) * time.Hour).In(t.Location())
}

// addMonths 加 n 个月，日期超出目标月天数时取月末。time.AddDate 会溢出到下月，这里不用。
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	return first.AddDate(0, 0, min(d, last)-1)
}

// TimeRangeOptions 时间桶查询选项。
type TimeRangeOptions struct {
	// Field 时间字段名。
	Field string

	Start time.Time
	End   time.Time

	BucketSize BucketSize

	// Build 为每个桶构建查询，必填。时间条件由 TimeRangeQuery 追加。
	Build func(bucket TimeBucket) Query

	// Process 可选，对单桶结果做变换，返回值追加到总结果。
	Process func(docs []bson.M, bucket TimeBucket) ([]bson.M, error)
}

// TimeRangeQuery 逐桶顺序执行查询，同一时刻只持有一个桶的结果。
// 任一桶构建、执行或处理失败立即返回。
func (w *mongoWrapper) TimeRangeQuery(ctx context.Context, opts TimeRangeOptions) (out []bson.M, err error) {
	if err := w.checkUsable(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.Field) == "" {
		return nil, ErrEmptyTimeField
	}
	if opts.Build == nil {
		return nil, ErrNilQueryBuilder
	}
	buckets, err := Buckets(opts.Start, opts.End, opts.BucketSize)
	if err != nil {
		return nil, err
	}

	ctx, span := xmetrics.Start(ctx, w.options.Observer, xmetrics.SpanOptions{
		Component: mongoComponent,
		Operation: "time_range_query",
		Kind:      xmetrics.KindInternal,
		Attrs: []xmetrics.Attr{
			xmetrics.String("field", opts.Field),
			xmetrics.String("bucket_size", string(opts.BucketSize)),
			xmetrics.Int("buckets", len(buckets)),
		},
	})
	defer func() {
		span.End(xmetrics.Result{Err: err, Attrs: []xmetrics.Attr{xmetrics.Int("docs", len(out))}})
	}()

	out = []bson.M{}
	for i, b := range buckets {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("xmongo time_range_query bucket %s: %w", b, err)
		}
		docs, err := runBucket(ctx, opts, b)
		if err != nil {
			return nil, fmt.Errorf("xmongo time_range_query bucket %s: %w", b, err)
		}
		w.logger.Debug(ctx, "time bucket done",
			slog.Int("bucket", i),
			slog.Time("start", b.Start),
			slog.Time("end", b.End),
			xlog.Count(int64(len(docs))),
		)
		out = append(out, docs...)
	}
	return out, nil
}

func runBucket(ctx context.Context, opts TimeRangeOptions, b TimeBucket) ([]bson.M, error) {
	q := opts.Build(b)
	if q == nil {
		return nil, ErrNilQuery
	}
	docs, err := narrow(q, opts.Field, bson.M{"$gte": b.Start, "$lt": b.End}).Exec(ctx)
	if err != nil {
		return nil, err
	}
	if opts.Process == nil {
		return docs, nil
	}
	docs, err = opts.Process(docs, b)
	if err != nil {
		return nil, fmt.Errorf("process: %w", err)
	}
	return docs, nil
}
