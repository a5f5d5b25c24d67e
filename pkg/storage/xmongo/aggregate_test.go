package xmongo

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/mock/gomock"
)

var groupByStatus = bson.A{
	bson.M{"$group": bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}},
}

func TestOptimizedAggregate_Defaults(t *testing.T) {
	w := newTestWrapper(t)
	fake := newFakeCollection()
	fake.aggregateDocs = []bson.M{{"_id": "paid", "count": 3}}

	start := time.Now()
	docs, err := w.aggregate(context.Background(), fake, groupByStatus, AggregateOptions{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "paid", docs[0]["_id"])

	require.NotNil(t, fake.aggregateOpts.AllowDiskUse)
	assert.True(t, *fake.aggregateOpts.AllowDiskUse)
	assert.WithinDuration(t, start.Add(DefaultAggregateTimeout), fake.aggregateDL, 5*time.Second)
}

func TestOptimizedAggregate_Overrides(t *testing.T) {
	w := newTestWrapper(t)
	fake := newFakeCollection()
	allow := false

	// 调用方 deadline 更晚时仍以聚合超时为准
	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()

	start := time.Now()
	_, err := w.aggregate(ctx, fake, groupByStatus, AggregateOptions{
		AllowDiskUse: &allow,
		Timeout:      2 * time.Second,
		BatchSize:    50,
	})
	require.NoError(t, err)

	require.NotNil(t, fake.aggregateOpts.AllowDiskUse)
	assert.False(t, *fake.aggregateOpts.AllowDiskUse)
	require.NotNil(t, fake.aggregateOpts.BatchSize)
	assert.Equal(t, int32(50), *fake.aggregateOpts.BatchSize)
	assert.WithinDuration(t, start.Add(2*time.Second), fake.aggregateDL, time.Second)
}

func TestOptimizedAggregate_DriverError(t *testing.T) {
	w := newTestWrapper(t)
	fake := newFakeCollection()
	fake.aggregateErr = errors.New("exceeded memory limit")

	_, err := w.aggregate(context.Background(), fake, groupByStatus, AggregateOptions{})
	assert.ErrorIs(t, err, fake.aggregateErr)
}

func TestOptimizedAggregate_DebugLogsPlan(t *testing.T) {
	var buf bytes.Buffer
	w := newTestWrapper(t, WithLogger(newCaptureLogger(t, &buf)))

	ctrl := gomock.NewController(t)
	runner := NewMockcommandRunner(ctrl)
	fake := newFakeCollection()
	fake.runner = runner

	runner.EXPECT().
		RunCommand(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cmd any, _ ...options.Lister[options.RunCmdOptions]) *mongo.SingleResult {
			d := cmd.(bson.D)
			inner := d[0].Value.(bson.D)
			assert.Equal(t, bson.E{Key: "aggregate", Value: "orders"}, inner[0])
			assert.Equal(t, bson.E{Key: "verbosity", Value: VerbosityQueryPlanner}, d[1])
			return mongo.NewSingleResultFromDocument(bson.M{"stages": bson.A{}}, nil, nil)
		})

	_, err := w.aggregate(context.Background(), fake, groupByStatus, AggregateOptions{Debug: true})
	require.NoError(t, err)

	line := findLog(logLines(t, &buf), "aggregate plan")
	require.NotNil(t, line)
	assert.Equal(t, "DEBUG", line["level"])
}

func TestOptimizedAggregate_DebugExplainFailureIsNotFatal(t *testing.T) {
	var buf bytes.Buffer
	w := newTestWrapper(t, WithLogger(newCaptureLogger(t, &buf)))

	ctrl := gomock.NewController(t)
	runner := NewMockcommandRunner(ctrl)
	fake := newFakeCollection()
	fake.runner = runner
	fake.aggregateDocs = []bson.M{{"_id": 1}}

	runner.EXPECT().
		RunCommand(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(mongo.NewSingleResultFromDocument(bson.M{}, errors.New("explain unsupported"), nil))

	docs, err := w.aggregate(context.Background(), fake, groupByStatus, AggregateOptions{Debug: true})
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	line := findLog(logLines(t, &buf), "aggregate explain failed")
	require.NotNil(t, line)
	assert.Equal(t, "WARN", line["level"])
}

func TestOptimizedAggregate_Validation(t *testing.T) {
	w := newTestWrapper(t)

	_, err := w.OptimizedAggregate(context.Background(), nil, groupByStatus, AggregateOptions{})
	assert.ErrorIs(t, err, ErrNilCollection)
}
