package xmongo

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/omeyang/xmongoopt/pkg/observability/xmetrics"
)

func TestNew_NilClient(t *testing.T) {
	m, err := New(nil)
	assert.Nil(t, m)
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestNewWrapper_Defaults(t *testing.T) {
	w := newTestWrapper(t, nil)

	assert.Equal(t, DefaultQueryTimeout, w.options.QueryTimeout)
	assert.Equal(t, DefaultWriteTimeout, w.options.WriteTimeout)
	assert.Equal(t, DefaultAggregateTimeout, w.options.AggregateTimeout)
	assert.InDelta(t, DefaultLowEfficiencyThreshold, w.options.LowEfficiencyThreshold, 1e-9)
	assert.True(t, w.options.SuggestFilterIndexes)
	assert.Nil(t, w.clientOps)
}

func TestOptions(t *testing.T) {
	tests := []struct {
		name  string
		opt   Option
		check func(t *testing.T, o *Options)
	}{
		{"健康检查超时", WithHealthTimeout(time.Second), func(t *testing.T, o *Options) {
			assert.Equal(t, time.Second, o.HealthTimeout)
		}},
		{"健康检查超时非正忽略", WithHealthTimeout(0), func(t *testing.T, o *Options) {
			assert.Equal(t, 5*time.Second, o.HealthTimeout)
		}},
		{"查询超时可禁用", WithQueryTimeout(0), func(t *testing.T, o *Options) {
			assert.Zero(t, o.QueryTimeout)
		}},
		{"写入超时负值忽略", WithWriteTimeout(-1), func(t *testing.T, o *Options) {
			assert.Equal(t, DefaultWriteTimeout, o.WriteTimeout)
		}},
		{"聚合超时", WithAggregateTimeout(time.Minute), func(t *testing.T, o *Options) {
			assert.Equal(t, time.Minute, o.AggregateTimeout)
		}},
		{"低效阈值", WithLowEfficiencyThreshold(0.5), func(t *testing.T, o *Options) {
			assert.InDelta(t, 0.5, o.LowEfficiencyThreshold, 1e-9)
		}},
		{"低效阈值越界忽略", WithLowEfficiencyThreshold(1.5), func(t *testing.T, o *Options) {
			assert.InDelta(t, DefaultLowEfficiencyThreshold, o.LowEfficiencyThreshold, 1e-9)
		}},
		{"关闭过滤字段建议", WithFilterIndexSuggestions(false), func(t *testing.T, o *Options) {
			assert.False(t, o.SuggestFilterIndexes)
		}},
		{"nil logger 忽略", WithLogger(nil), func(t *testing.T, o *Options) {
			assert.NotNil(t, o.Logger)
		}},
		{"nil observer 忽略", WithObserver(nil), func(t *testing.T, o *Options) {
			assert.NotNil(t, o.Observer)
		}},
		{"异步 worker", WithAsyncSlowQueryWorkers(3), func(t *testing.T, o *Options) {
			assert.Equal(t, 3, o.AsyncSlowQueryWorkers)
		}},
		{"异步队列", WithAsyncSlowQueryQueueSize(7), func(t *testing.T, o *Options) {
			assert.Equal(t, 7, o.AsyncSlowQueryQueueSize)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := defaultOptions()
			tt.opt(o)
			tt.check(t, o)
		})
	}
}

func TestHealth(t *testing.T) {
	w := newTestWrapper(t)
	client := &fakeClient{}
	w.clientOps = client

	require.NoError(t, w.Health(context.Background()))

	client.pingErr = errors.New("no reachable servers")
	err := w.Health(context.Background())
	assert.ErrorIs(t, err, client.pingErr)

	s := w.Stats()
	assert.Equal(t, int64(2), s.PingCount)
	assert.Equal(t, int64(1), s.PingErrors)
}

func TestHealth_NoClient(t *testing.T) {
	w := newTestWrapper(t)
	assert.ErrorIs(t, w.Health(context.Background()), ErrNilClient)
	//nolint:staticcheck // 验证 nil ctx 防御
	assert.ErrorIs(t, w.Health(nil), ErrNilContext)
}

func TestStats_Pool(t *testing.T) {
	w := newTestWrapper(t)
	w.clientOps = &fakeClient{sessions: 3}

	assert.Equal(t, 3, w.Stats().Pool.InUseConnections)
}

func TestClose(t *testing.T) {
	w := newTestWrapper(t)
	client := &fakeClient{}
	w.clientOps = client

	require.NoError(t, w.Close(context.Background()))
	assert.True(t, client.disconnected)
	assert.ErrorIs(t, w.Close(context.Background()), ErrClosed)
	assert.ErrorIs(t, w.Health(context.Background()), ErrClosed)

	// 关闭后 Stats 仍可用
	assert.Equal(t, int64(0), w.Stats().PingCount)
}

func TestClose_Concurrent(t *testing.T) {
	w := newTestWrapper(t)
	w.clientOps = &fakeClient{}

	var ok atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			//nolint:staticcheck // nil ctx 在 Close 中被替换为 Background
			if w.Close(nil) == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), ok.Load())
}

func TestClose_DisconnectError(t *testing.T) {
	w := newTestWrapper(t)
	w.clientOps = &fakeClient{disconnectErr: errors.New("disconnect timeout")}

	assert.Error(t, w.Close(context.Background()))
	assert.ErrorIs(t, w.Close(context.Background()), ErrClosed)
}

func TestFindPage(t *testing.T) {
	w := newTestWrapper(t)
	fake := newFakeCollection(seqDocs(25)...)
	fake.count = 25

	result, err := w.findPage(context.Background(), fake, nil, PageOptions{
		Page:       3,
		PageSize:   10,
		Sort:       bson.D{{Key: "_id", Value: 1}},
		Projection: bson.D{{Key: "n", Value: 1}},
	})
	require.NoError(t, err)

	assert.Len(t, result.Data, 5)
	assert.Equal(t, int64(25), result.Total)
	assert.Equal(t, int64(3), result.TotalPages)
	assert.EqualValues(t, 21, toInt64(result.Data[0]["_id"]))

	require.Len(t, fake.findCalls, 1)
	assert.Equal(t, int64(20), *fake.findCalls[0].opts.Skip)
}

func TestFindPage_Errors(t *testing.T) {
	w := newTestWrapper(t)
	ctx := context.Background()

	_, err := w.FindPage(ctx, nil, nil, PageOptions{Page: 1, PageSize: 10})
	assert.ErrorIs(t, err, ErrNilCollection)

	_, err = w.findPage(ctx, newFakeCollection(), nil, PageOptions{Page: 0, PageSize: 10})
	assert.ErrorIs(t, err, ErrInvalidPage)

	fake := newFakeCollection()
	fake.countErr = errors.New("count failed")
	_, err = w.findPage(ctx, fake, nil, PageOptions{Page: 1, PageSize: 10})
	assert.ErrorIs(t, err, fake.countErr)
}

func TestSlowQuery_HookAndCounter(t *testing.T) {
	var captured []SlowQueryInfo
	var mu sync.Mutex
	w := newTestWrapper(t,
		WithSlowQueryThreshold(time.Nanosecond),
		WithSlowQueryHook(func(_ context.Context, info SlowQueryInfo) {
			mu.Lock()
			captured = append(captured, info)
			mu.Unlock()
		}),
	)

	fake := newFakeCollection(seqDocs(3)...)
	_, err := w.queryOn(fake).Where(bson.M{"n": 1}).Exec(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, captured, 1)
	assert.Equal(t, "find", captured[0].Operation)
	assert.Equal(t, "testdb", captured[0].Database)
	assert.Equal(t, "orders", captured[0].Collection)
	assert.Equal(t, int64(1), w.Stats().SlowQueries)
}

func TestObserver_RecordsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	observer, err := xmetrics.NewOTelObserver(xmetrics.WithTracerProvider(tp))
	require.NoError(t, err)

	w := newTestWrapper(t, WithObserver(observer))
	fake := newFakeCollection(seqDocs(5)...)

	_, err = w.ProcessInBatches(context.Background(),
		func() Query { return w.queryOn(fake) },
		func(context.Context, bson.M) error { return nil },
		BatchOptions{BatchSize: 2},
	)
	require.NoError(t, err)

	names := map[string]int{}
	for _, s := range exporter.GetSpans() {
		names[s.Name]++
	}
	assert.Equal(t, 1, names["process_in_batches"])
	assert.Equal(t, 4, names["find"], "三个数据页加一个空页")
}
