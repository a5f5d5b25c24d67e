package xmongo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBuckets_DayExample(t *testing.T) {
	buckets, err := Buckets(date(2023, 1, 1), date(2023, 1, 10), BucketDay)
	require.NoError(t, err)

	require.Len(t, buckets, 9)
	assert.Equal(t, TimeBucket{Start: date(2023, 1, 1), End: date(2023, 1, 2)}, buckets[0])
	assert.Equal(t, TimeBucket{Start: date(2023, 1, 9), End: date(2023, 1, 10)}, buckets[8])
	for _, b := range buckets {
		assert.Equal(t, 24*time.Hour, b.End.Sub(b.Start))
	}
}

func TestBuckets_CoverageAndNonOverlap(t *testing.T) {
	start := time.Date(2023, 1, 31, 6, 30, 0, 0, time.UTC)
	ends := []time.Time{
		start.Add(90 * time.Minute),
		start.Add(36 * time.Hour),
		start.AddDate(0, 0, 20),
		start.AddDate(1, 2, 3),
	}
	for _, size := range []BucketSize{BucketHour, BucketDay, BucketWeek, BucketMonth} {
		for _, end := range ends {
			t.Run(fmt.Sprintf("%s→%s", size, end.Format(time.DateOnly)), func(t *testing.T) {
				buckets, err := Buckets(start, end, size)
				require.NoError(t, err)
				require.NotEmpty(t, buckets)

				assert.Equal(t, start, buckets[0].Start)
				assert.Equal(t, end, buckets[len(buckets)-1].End)
				for i, b := range buckets {
					assert.True(t, b.Start.Before(b.End), "桶非空")
					assert.False(t, b.End.After(end), "不超过 end")
					if i > 0 {
						assert.Equal(t, buckets[i-1].End, b.Start, "连续不重叠")
					}
				}
			})
		}
	}
}

func TestBuckets_Month(t *testing.T) {
	buckets, err := Buckets(date(2023, 1, 31), date(2023, 5, 15), BucketMonth)
	require.NoError(t, err)

	want := []time.Time{date(2023, 1, 31), date(2023, 2, 28), date(2023, 3, 31), date(2023, 4, 30), date(2023, 5, 15)}
	require.Len(t, buckets, len(want)-1)
	for i, b := range buckets {
		assert.Equal(t, want[i], b.Start)
		assert.Equal(t, want[i+1], b.End)
	}
}

func TestBuckets_Week(t *testing.T) {
	buckets, err := Buckets(date(2023, 1, 1), date(2023, 1, 20), BucketWeek)
	require.NoError(t, err)

	require.Len(t, buckets, 3)
	assert.Equal(t, date(2023, 1, 8), buckets[0].End)
	assert.Equal(t, date(2023, 1, 15), buckets[1].End)
	assert.Equal(t, date(2023, 1, 20), buckets[2].End, "最后一个桶截断")
}

func TestBuckets_Edges(t *testing.T) {
	start := date(2023, 1, 1)

	buckets, err := Buckets(start, start, BucketDay)
	require.NoError(t, err)
	assert.Empty(t, buckets)

	_, err = Buckets(start, start.Add(-time.Second), BucketDay)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = Buckets(start, start.AddDate(0, 0, 1), BucketSize("year"))
	assert.ErrorIs(t, err, ErrInvalidBucketSize)
}

func TestBuckets_HourLongRange(t *testing.T) {
	start := date(1700, 1, 1)

	// 超过 time.Duration 可表示的约 292 年后边界仍单调递增
	prev := addHours(start, 2562047)
	next := addHours(start, 2562048)
	assert.True(t, next.After(prev), "prev=%s next=%s", prev, next)
	assert.Equal(t, time.Hour, next.Sub(prev))

	_, err := Buckets(start, date(2023, 1, 1), BucketHour)
	assert.ErrorIs(t, err, ErrTooManyBuckets)
}

func TestBuckets_HourAcrossZoneKeepsElapsedHours(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	start := time.Date(2023, 3, 1, 22, 0, 0, 0, loc)

	buckets, err := Buckets(start, start.Add(5*time.Hour), BucketHour)
	require.NoError(t, err)
	require.Len(t, buckets, 5)
	for _, b := range buckets {
		assert.Equal(t, time.Hour, b.End.Sub(b.Start))
		assert.Equal(t, loc, b.Start.Location())
	}
}

func TestBuckets_MaxBuckets(t *testing.T) {
	start := date(2023, 1, 1)

	buckets, err := Buckets(start, start.Add(MaxBuckets*time.Hour), BucketHour)
	require.NoError(t, err)
	assert.Len(t, buckets, MaxBuckets)

	_, err = Buckets(start, start.Add((MaxBuckets+1)*time.Hour), BucketHour)
	assert.ErrorIs(t, err, ErrTooManyBuckets)
}

func TestParseBucketSize(t *testing.T) {
	tests := []struct {
		in      string
		want    BucketSize
		wantErr bool
	}{
		{"hour", BucketHour, false},
		{"Day", BucketDay, false},
		{" week ", BucketWeek, false},
		{"MONTH", BucketMonth, false},
		{"year", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBucketSize(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidBucketSize)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func eventDocs() []bson.M {
	var docs []bson.M
	id := 1
	for d := 1; d <= 5; d++ {
		for h := range 3 {
			docs = append(docs, bson.M{"_id": id, "ts": time.Date(2023, 1, d, h*6, 0, 0, 0, time.UTC)})
			id++
		}
	}
	return docs
}

func TestTimeRangeQuery(t *testing.T) {
	w := newTestWrapper(t)
	fake := newFakeCollection(eventDocs()...)

	var built []TimeBucket
	docs, err := w.TimeRangeQuery(context.Background(), TimeRangeOptions{
		Field:      "ts",
		Start:      date(2023, 1, 2),
		End:        date(2023, 1, 4),
		BucketSize: BucketDay,
		Build: func(b TimeBucket) Query {
			built = append(built, b)
			return w.queryOn(fake)
		},
	})
	require.NoError(t, err)

	assert.Len(t, docs, 6)
	require.Len(t, built, 2)
	require.Len(t, fake.findCalls, 2)

	cond, ok := fake.findCalls[0].filter["ts"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, date(2023, 1, 2), cond["$gte"])
	assert.Equal(t, date(2023, 1, 3), cond["$lt"])
}

func TestTimeRangeQuery_KeepsBuilderTimeCondition(t *testing.T) {
	w := newTestWrapper(t)
	fake := newFakeCollection(eventDocs()...)
	cutoff := time.Date(2023, 1, 2, 6, 0, 0, 0, time.UTC)

	docs, err := w.TimeRangeQuery(context.Background(), TimeRangeOptions{
		Field:      "ts",
		Start:      date(2023, 1, 2),
		End:        date(2023, 1, 3),
		BucketSize: BucketDay,
		Build: func(TimeBucket) Query {
			return w.queryOn(fake).Where(bson.M{"ts": bson.M{"$gte": cutoff}})
		},
	})
	require.NoError(t, err)

	require.Len(t, docs, 2, "00:00 的文档被调用方条件排除")
	for _, d := range docs {
		ts, ok := d["ts"].(time.Time)
		require.True(t, ok)
		assert.False(t, ts.Before(cutoff))
	}
}

func TestTimeRangeQuery_MergesBuilderOperators(t *testing.T) {
	w := newTestWrapper(t)
	fake := newFakeCollection(eventDocs()...)

	_, err := w.TimeRangeQuery(context.Background(), TimeRangeOptions{
		Field:      "ts",
		Start:      date(2023, 1, 2),
		End:        date(2023, 1, 3),
		BucketSize: BucketDay,
		Build: func(TimeBucket) Query {
			return w.queryOn(fake).Where(bson.M{"ts": bson.M{"$ne": nil}})
		},
	})
	require.NoError(t, err)

	require.Len(t, fake.findCalls, 1)
	cond, ok := fake.findCalls[0].filter["ts"].(bson.M)
	require.True(t, ok)
	assert.Contains(t, cond, "$ne")
	assert.Equal(t, date(2023, 1, 2), cond["$gte"])
	assert.Equal(t, date(2023, 1, 3), cond["$lt"])
}

func TestTimeRangeQuery_Process(t *testing.T) {
	w := newTestWrapper(t)
	fake := newFakeCollection(eventDocs()...)

	docs, err := w.TimeRangeQuery(context.Background(), TimeRangeOptions{
		Field:      "ts",
		Start:      date(2023, 1, 1),
		End:        date(2023, 1, 6),
		BucketSize: BucketDay,
		Build:      func(TimeBucket) Query { return w.queryOn(fake) },
		Process: func(docs []bson.M, b TimeBucket) ([]bson.M, error) {
			return []bson.M{{"day": b.Start, "count": len(docs)}}, nil
		},
	})
	require.NoError(t, err)

	require.Len(t, docs, 5)
	for i, d := range docs {
		assert.Equal(t, date(2023, 1, i+1), d["day"], "按时间顺序")
		assert.Equal(t, 3, d["count"])
	}
}

func TestTimeRangeQuery_Errors(t *testing.T) {
	w := newTestWrapper(t)
	ctx := context.Background()
	fake := newFakeCollection(eventDocs()...)
	build := func(TimeBucket) Query { return w.queryOn(fake) }
	base := TimeRangeOptions{Field: "ts", Start: date(2023, 1, 1), End: date(2023, 1, 3), BucketSize: BucketDay, Build: build}

	t.Run("缺少字段", func(t *testing.T) {
		opts := base
		opts.Field = ""
		_, err := w.TimeRangeQuery(ctx, opts)
		assert.ErrorIs(t, err, ErrEmptyTimeField)
	})

	t.Run("缺少构建函数", func(t *testing.T) {
		opts := base
		opts.Build = nil
		_, err := w.TimeRangeQuery(ctx, opts)
		assert.ErrorIs(t, err, ErrNilQueryBuilder)
	})

	t.Run("范围倒置", func(t *testing.T) {
		opts := base
		opts.Start, opts.End = opts.End, opts.Start
		_, err := w.TimeRangeQuery(ctx, opts)
		assert.ErrorIs(t, err, ErrInvalidRange)
	})

	t.Run("构建返回 nil", func(t *testing.T) {
		opts := base
		opts.Build = func(TimeBucket) Query { return nil }
		_, err := w.TimeRangeQuery(ctx, opts)
		assert.ErrorIs(t, err, ErrNilQuery)
	})

	t.Run("处理失败中止", func(t *testing.T) {
		opts := base
		boom := errors.New("transform failed")
		calls := 0
		opts.Process = func([]bson.M, TimeBucket) ([]bson.M, error) {
			calls++
			return nil, boom
		}
		_, err := w.TimeRangeQuery(ctx, opts)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "2023-01-01T00:00:00Z")
		assert.Equal(t, 1, calls)
	})

	t.Run("查询失败中止", func(t *testing.T) {
		failing := newFakeCollection()
		failing.findErr = errors.New("timeout")
		opts := base
		opts.Build = func(TimeBucket) Query { return w.queryOn(failing) }
		_, err := w.TimeRangeQuery(ctx, opts)
		assert.ErrorIs(t, err, failing.findErr)
		assert.Len(t, failing.findCalls, 1)
	})
}
