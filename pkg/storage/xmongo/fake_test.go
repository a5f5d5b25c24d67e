package xmongo

import (
	"bytes"
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/omeyang/xmongoopt/pkg/observability/xlog"
)

// fakeClient 实现 clientOperations。
type fakeClient struct {
	pingErr       error
	pingCount     int
	disconnectErr error
	disconnected  bool
	sessions      int
}

func (f *fakeClient) Ping(context.Context, *readpref.ReadPref) error {
	f.pingCount++
	return f.pingErr
}

func (f *fakeClient) Disconnect(context.Context) error {
	f.disconnected = true
	return f.disconnectErr
}

func (f *fakeClient) NumberSessionsInProgress() int { return f.sessions }

type findCall struct {
	filter bson.M
	opts   options.FindOptions
	rp     *readpref.ReadPref
}

// fakeCollection 内存集合，按 _id 升序存放文档。
// Find 支持等值与 $gt/$gte/$lt/$lte 条件，以及 skip/limit。
type fakeCollection struct {
	mu sync.Mutex

	db   string
	name string
	docs []bson.M

	count    int64
	countErr error

	findCalls []findCall
	// findErrAt 第 n 次（从 1 开始）Find 返回 findErr，0 表示总是返回
	findErr   error
	findErrAt int

	insertCalls [][]any
	insertOpts  []options.InsertManyOptions
	insertFn    func(call int, docs []any) (*mongo.InsertManyResult, error)

	aggregateDocs []bson.M
	aggregateErr  error
	aggregateOpts options.AggregateOptions
	aggregateDL   time.Time

	indexModels []mongo.IndexModel
	indexErr    error

	runner commandRunner
	rp     *readpref.ReadPref
}

func newFakeCollection(docs ...bson.M) *fakeCollection {
	return &fakeCollection{db: "testdb", name: "orders", docs: docs}
}

// seqDocs 生成 _id 为 1..n 的文档。
func seqDocs(n int) []bson.M {
	docs := make([]bson.M, 0, n)
	for i := 1; i <= n; i++ {
		docs = append(docs, bson.M{"_id": i, "n": i})
	}
	return docs
}

func (f *fakeCollection) CountDocuments(context.Context, any, ...options.Lister[options.CountOptions]) (int64, error) {
	return f.count, f.countErr
}

func (f *fakeCollection) Find(_ context.Context, filter any, opts ...options.Lister[options.FindOptions]) (*mongo.Cursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var fo options.FindOptions
	for _, o := range opts {
		for _, set := range o.List() {
			_ = set(&fo)
		}
	}
	m, _ := asDoc(filter)
	f.findCalls = append(f.findCalls, findCall{filter: m, opts: fo, rp: f.rp})
	if f.findErr != nil && (f.findErrAt == 0 || f.findErrAt == len(f.findCalls)) {
		return nil, f.findErr
	}

	var out []any
	skipped := int64(0)
	for _, d := range f.docs {
		if !matchFilter(d, m) {
			continue
		}
		if fo.Skip != nil && skipped < *fo.Skip {
			skipped++
			continue
		}
		if fo.Limit != nil && *fo.Limit > 0 && int64(len(out)) >= *fo.Limit {
			break
		}
		out = append(out, d)
	}
	return mongo.NewCursorFromDocuments(out, nil, nil)
}

func (f *fakeCollection) InsertMany(_ context.Context, documents []any, opts ...options.Lister[options.InsertManyOptions]) (*mongo.InsertManyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var io options.InsertManyOptions
	for _, o := range opts {
		for _, set := range o.List() {
			_ = set(&io)
		}
	}
	f.insertCalls = append(f.insertCalls, documents)
	f.insertOpts = append(f.insertOpts, io)
	if f.insertFn != nil {
		return f.insertFn(len(f.insertCalls), documents)
	}
	ids := make([]any, len(documents))
	for i := range documents {
		ids[i] = bson.NewObjectID()
	}
	return &mongo.InsertManyResult{InsertedIDs: ids}, nil
}

func (f *fakeCollection) Aggregate(ctx context.Context, _ any, opts ...options.Lister[options.AggregateOptions]) (*mongo.Cursor, error) {
	for _, o := range opts {
		for _, set := range o.List() {
			_ = set(&f.aggregateOpts)
		}
	}
	f.aggregateDL, _ = ctx.Deadline()
	if f.aggregateErr != nil {
		return nil, f.aggregateErr
	}
	out := make([]any, 0, len(f.aggregateDocs))
	for _, d := range f.aggregateDocs {
		out = append(out, d)
	}
	return mongo.NewCursorFromDocuments(out, nil, nil)
}

func (f *fakeCollection) CreateIndex(_ context.Context, model mongo.IndexModel) (string, error) {
	f.indexModels = append(f.indexModels, model)
	if f.indexErr != nil {
		return "", f.indexErr
	}
	if keys, ok := model.Keys.(bson.D); ok {
		return IndexName(keys), nil
	}
	return "idx", nil
}

func (f *fakeCollection) WithReadPreference(rp *readpref.ReadPref) collectionOperations {
	f.rp = rp
	return f
}

func (f *fakeCollection) Runner() commandRunner { return f.runner }
func (f *fakeCollection) DatabaseName() string  { return f.db }
func (f *fakeCollection) Name() string          { return f.name }

func matchFilter(doc, filter bson.M) bool {
	for k, cond := range filter {
		if k == "$and" {
			list, _ := cond.(bson.A)
			for _, item := range list {
				sub, ok := asDoc(item)
				if !ok || !matchFilter(doc, sub) {
					return false
				}
			}
			continue
		}
		v := doc[k]
		ops, ok := cond.(bson.M)
		if !ok {
			if compareValues(v, cond) != 0 {
				return false
			}
			continue
		}
		for op, want := range ops {
			c := compareValues(v, want)
			switch op {
			case "$gt":
				ok = c > 0
			case "$gte":
				ok = c >= 0
			case "$lt":
				ok = c < 0
			case "$lte":
				ok = c <= 0
			case "$ne":
				ok = c != 0
			default:
				ok = false
			}
			if !ok {
				return false
			}
		}
	}
	return true
}

// compareValues 比较整数或时间，其他类型只判断相等（相等返回 0，否则 1）。
func compareValues(a, b any) int {
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	if isInt(a) && isInt(b) {
		x, y := toInt64(a), toInt64(b)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	}
	if reflect.DeepEqual(a, b) {
		return 0
	}
	return 1
}

func isInt(v any) bool {
	switch v.(type) {
	case int, int32, int64:
		return true
	default:
		return false
	}
}

// newTestWrapper 创建不连接数据库的包装器。
func newTestWrapper(t *testing.T, opts ...Option) *mongoWrapper {
	t.Helper()
	w, err := newWrapper(nil, opts...)
	require.NoError(t, err)
	t.Cleanup(w.slowQueryDetector.Close)
	return w
}

// newCaptureLogger 返回写入 buf 的 JSON logger。
func newCaptureLogger(t *testing.T, buf *bytes.Buffer) xlog.Logger {
	t.Helper()
	logger, cleanup, err := xlog.New().SetOutput(buf).SetFormat("json").SetLevel(xlog.LevelDebug).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = cleanup() })
	return logger
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func findLog(lines []map[string]any, msg string) map[string]any {
	for _, l := range lines {
		if l["msg"] == msg {
			return l
		}
	}
	return nil
}

// offlineCollection 返回未连接服务端的真实集合，用于参数校验测试。driver 连接是惰性的。
func offlineCollection(t *testing.T) *mongo.Collection {
	t.Helper()
	client, err := mongo.Connect(options.Client().ApplyURI("mongodb://127.0.0.1:1").SetServerSelectionTimeout(50 * time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	return client.Database("testdb").Collection("orders")
}
