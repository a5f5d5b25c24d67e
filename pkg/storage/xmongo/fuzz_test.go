package xmongo

import (
	"errors"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/omeyang/xmongoopt/pkg/observability/xmetrics"
)

// =============================================================================
// Buckets Fuzz 测试
// =============================================================================

var fuzzBucketSizes = []BucketSize{BucketHour, BucketDay, BucketWeek, BucketMonth}

// FuzzBuckets 任意 [start, end) 与粒度下，桶连续、不重叠且恰好覆盖整个区间。
func FuzzBuckets(f *testing.F) {
	f.Add(int64(1672531200), int64(9*86400), uint8(1), int32(0))            // 2023-01-01 起 9 天
	f.Add(int64(1675123200), int64(90*86400), uint8(3), int32(0))           // 1 月 31 日起按月
	f.Add(int64(-8520336000), int64(323*365*86400), uint8(0), int32(0))     // 1700 年起按小时
	f.Add(int64(1672531200), int64(0), uint8(2), int32(8*3600))             // 空区间
	f.Add(int64(1672531200), int64(-3600), uint8(0), int32(-5*3600))        // 倒置
	f.Add(int64(1678582800), int64(48*3600), uint8(0), int32(-7*3600+1800)) // 非整点时区

	f.Fuzz(func(t *testing.T, startSec, spanSec int64, sizeIdx uint8, offset int32) {
		// 限制在 ±1000 年内，避免 Unix 秒数相加溢出
		const bound = int64(1000 * 366 * 86400)
		if startSec > bound || startSec < -bound || spanSec > bound || spanSec < -bound {
			return
		}
		loc := time.FixedZone("fuzz", int(offset%(18*3600)))
		start := time.Unix(startSec, 0).In(loc)
		end := time.Unix(startSec+spanSec, 0).In(loc)
		size := fuzzBucketSizes[int(sizeIdx)%len(fuzzBucketSizes)]

		buckets, err := Buckets(start, end, size)
		switch {
		case spanSec < 0:
			if !errors.Is(err, ErrInvalidRange) {
				t.Fatalf("Buckets(%s, %s) error = %v, want ErrInvalidRange", start, end, err)
			}
			return
		case errors.Is(err, ErrTooManyBuckets):
			return
		case err != nil:
			t.Fatalf("Buckets(%s, %s, %s) unexpected error: %v", start, end, size, err)
		}

		if spanSec == 0 {
			if len(buckets) != 0 {
				t.Fatalf("empty range produced %d buckets", len(buckets))
			}
			return
		}
		if len(buckets) == 0 {
			t.Fatalf("Buckets(%s, %s, %s) returned no buckets", start, end, size)
		}
		if len(buckets) > MaxBuckets {
			t.Fatalf("got %d buckets, cap is %d", len(buckets), MaxBuckets)
		}
		if !buckets[0].Start.Equal(start) {
			t.Errorf("first start = %s, want %s", buckets[0].Start, start)
		}
		if last := buckets[len(buckets)-1]; !last.End.Equal(end) {
			t.Errorf("last end = %s, want %s", last.End, end)
		}
		for i, b := range buckets {
			if !b.Start.Before(b.End) {
				t.Fatalf("bucket %d not increasing: %s", i, b)
			}
			if i > 0 && !buckets[i-1].End.Equal(b.Start) {
				t.Fatalf("bucket %d not contiguous: prev end %s, start %s", i, buckets[i-1].End, b.Start)
			}
		}
	})
}

// FuzzParseBucketSize 解析结果要么是四种粒度之一，要么是 ErrInvalidBucketSize。
func FuzzParseBucketSize(f *testing.F) {
	for _, s := range []string{"hour", "DAY", " week ", "Month", "year", "", "日"} {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, s string) {
		size, err := ParseBucketSize(s)
		if err != nil {
			if !errors.Is(err, ErrInvalidBucketSize) {
				t.Fatalf("ParseBucketSize(%q) error = %v", s, err)
			}
			return
		}
		if string(size) != strings.ToLower(strings.TrimSpace(s)) {
			t.Errorf("ParseBucketSize(%q) = %q", s, size)
		}
	})
}

// =============================================================================
// 读偏好与索引名 Fuzz 测试
// =============================================================================

// FuzzParseReadPreference 不应 panic，成功时返回非 nil 读偏好。
func FuzzParseReadPreference(f *testing.F) {
	for _, s := range []string{"", "primary", "SECONDARY", "secondaryPreferred", "nearest", "any"} {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, mode string) {
		rp, err := ParseReadPreference(mode)
		if err != nil {
			if !errors.Is(err, ErrInvalidReadPreference) {
				t.Fatalf("ParseReadPreference(%q) error = %v", mode, err)
			}
			return
		}
		if rp == nil {
			t.Fatalf("ParseReadPreference(%q) returned nil", mode)
		}
	})
}

// FuzzIndexName 索引名由键与方向以 _ 连接。
func FuzzIndexName(f *testing.F) {
	f.Add("status", int32(1), "createdAt", int32(-1))
	f.Add("", int32(0), "", int32(0))
	f.Add("字段", int32(1), "a_b", int32(1))

	f.Fuzz(func(t *testing.T, k1 string, v1 int32, k2 string, v2 int32) {
		name := IndexName(bson.D{{Key: k1, Value: v1}, {Key: k2, Value: v2}})
		if !strings.HasPrefix(name, k1+"_") {
			t.Errorf("IndexName = %q, want prefix %q", name, k1+"_")
		}
		if strings.Count(name, "_") < 3 {
			t.Errorf("IndexName = %q, want at least 3 separators", name)
		}
	})
}

// =============================================================================
// Options Fuzz 测试
// =============================================================================

// FuzzWithHealthTimeout 非正值被忽略。
func FuzzWithHealthTimeout(f *testing.F) {
	f.Add(int64(0))
	f.Add(int64(1))
	f.Add(int64(-1))
	f.Add(int64(5000000000))

	f.Fuzz(func(t *testing.T, ns int64) {
		timeout := time.Duration(ns)
		opts := defaultOptions()
		original := opts.HealthTimeout

		WithHealthTimeout(timeout)(opts)

		if timeout <= 0 {
			if opts.HealthTimeout != original {
				t.Errorf("WithHealthTimeout(%v) should keep default, got %v", timeout, opts.HealthTimeout)
			}
		} else if opts.HealthTimeout != timeout {
			t.Errorf("WithHealthTimeout(%v) set HealthTimeout to %v", timeout, opts.HealthTimeout)
		}
	})
}

// FuzzWithSlowQueryThreshold 负值被忽略，0 禁用。
func FuzzWithSlowQueryThreshold(f *testing.F) {
	f.Add(int64(0))
	f.Add(int64(-1))
	f.Add(int64(100000000))

	f.Fuzz(func(t *testing.T, ns int64) {
		threshold := time.Duration(ns)
		opts := defaultOptions()
		original := opts.SlowQueryThreshold

		WithSlowQueryThreshold(threshold)(opts)

		if threshold < 0 {
			if opts.SlowQueryThreshold != original {
				t.Errorf("WithSlowQueryThreshold(%v) should keep default, got %v", threshold, opts.SlowQueryThreshold)
			}
		} else if opts.SlowQueryThreshold != threshold {
			t.Errorf("WithSlowQueryThreshold(%v) set SlowQueryThreshold to %v", threshold, opts.SlowQueryThreshold)
		}
	})
}

// FuzzWithQueryAndWriteTimeout 负值被忽略，0 禁用兜底超时。
func FuzzWithQueryAndWriteTimeout(f *testing.F) {
	f.Add(int64(0))
	f.Add(int64(-1))
	f.Add(int64(30000000000))

	f.Fuzz(func(t *testing.T, ns int64) {
		d := time.Duration(ns)
		opts := defaultOptions()

		WithQueryTimeout(d)(opts)
		WithWriteTimeout(d)(opts)

		wantQuery, wantWrite := DefaultQueryTimeout, DefaultWriteTimeout
		if d >= 0 {
			wantQuery, wantWrite = d, d
		}
		if opts.QueryTimeout != wantQuery || opts.WriteTimeout != wantWrite {
			t.Errorf("timeouts = %v/%v, want %v/%v", opts.QueryTimeout, opts.WriteTimeout, wantQuery, wantWrite)
		}
	})
}

// FuzzWithAggregateTimeout 非正值被忽略。
func FuzzWithAggregateTimeout(f *testing.F) {
	f.Add(int64(0))
	f.Add(int64(-1))
	f.Add(int64(60000000000))

	f.Fuzz(func(t *testing.T, ns int64) {
		d := time.Duration(ns)
		opts := defaultOptions()

		WithAggregateTimeout(d)(opts)

		want := DefaultAggregateTimeout
		if d > 0 {
			want = d
		}
		if opts.AggregateTimeout != want {
			t.Errorf("WithAggregateTimeout(%v) = %v, want %v", d, opts.AggregateTimeout, want)
		}
	})
}

// FuzzWithLowEfficiencyThreshold 取值范围 (0,1]，越界被忽略。
func FuzzWithLowEfficiencyThreshold(f *testing.F) {
	f.Add(0.2)
	f.Add(0.0)
	f.Add(1.0)
	f.Add(1.5)
	f.Add(-0.1)

	f.Fuzz(func(t *testing.T, v float64) {
		opts := defaultOptions()

		WithLowEfficiencyThreshold(v)(opts)

		want := DefaultLowEfficiencyThreshold
		if v > 0 && v <= 1 {
			want = v
		}
		if opts.LowEfficiencyThreshold != want {
			t.Errorf("WithLowEfficiencyThreshold(%v) = %v, want %v", v, opts.LowEfficiencyThreshold, want)
		}
	})
}

// FuzzWithAsyncSlowQuery worker 与队列大小非正值被忽略。
func FuzzWithAsyncSlowQuery(f *testing.F) {
	f.Add(0, 0)
	f.Add(4, 1024)
	f.Add(-1, -1)

	f.Fuzz(func(t *testing.T, workers, queue int) {
		opts := defaultOptions()

		WithAsyncSlowQueryWorkers(workers)(opts)
		WithAsyncSlowQueryQueueSize(queue)(opts)

		if workers > 0 && opts.AsyncSlowQueryWorkers != workers {
			t.Errorf("workers = %d, want %d", opts.AsyncSlowQueryWorkers, workers)
		}
		if workers <= 0 && opts.AsyncSlowQueryWorkers != DefaultAsyncSlowQueryWorkers {
			t.Errorf("workers = %d, want default", opts.AsyncSlowQueryWorkers)
		}
		if queue > 0 && opts.AsyncSlowQueryQueueSize != queue {
			t.Errorf("queue = %d, want %d", opts.AsyncSlowQueryQueueSize, queue)
		}
		if queue <= 0 && opts.AsyncSlowQueryQueueSize != DefaultAsyncSlowQueryQueueSize {
			t.Errorf("queue = %d, want default", opts.AsyncSlowQueryQueueSize)
		}
	})
}

// FuzzWithObserver nil observer 不改变原值。
func FuzzWithObserver(f *testing.F) {
	f.Add(true)
	f.Add(false)

	f.Fuzz(func(t *testing.T, useNoop bool) {
		opts := defaultOptions()
		original := opts.Observer

		var observer xmetrics.Observer
		if useNoop {
			observer = xmetrics.NoopObserver{}
		}
		WithObserver(observer)(opts)

		if observer == nil && opts.Observer != original {
			t.Error("WithObserver(nil) should not change observer")
		}
		if _, ok := opts.Observer.(xmetrics.NoopObserver); !ok {
			t.Error("observer should remain NoopObserver")
		}
	})
}

// =============================================================================
// 分页 Fuzz 测试
// =============================================================================

// FuzzPaginate 合法参数设置 skip/limit，非法参数返回分页错误且不修改查询。
func FuzzPaginate(f *testing.F) {
	f.Add(int64(1), int64(10))
	f.Add(int64(3), int64(20))
	f.Add(int64(0), int64(10))
	f.Add(int64(1), int64(0))
	f.Add(int64(1<<62), int64(1<<62))

	f.Fuzz(func(t *testing.T, page, limit int64) {
		q, err := Paginate(newQuery(newFakeCollection()), page, limit)
		if err != nil {
			if q != nil {
				t.Errorf("Paginate(%d, %d) returned query with error %v", page, limit, err)
			}
			return
		}
		if q.LimitN() != limit || q.SkipN() != (page-1)*limit {
			t.Errorf("Paginate(%d, %d) skip=%d limit=%d", page, limit, q.SkipN(), q.LimitN())
		}
	})
}
