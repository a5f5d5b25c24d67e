package xmongo

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/omeyang/xmongoopt/internal/storageopt"
	"github.com/omeyang/xmongoopt/pkg/observability/xlog"
)

// IndexOptions 索引创建选项，零值字段不下发。
type IndexOptions struct {
	// Name 索引名，为空时由服务端按字段生成。
	Name   string
	Unique bool
	Sparse bool

	// ExpireAfter TTL 秒数，0 表示不过期。
	ExpireAfter int32

	// PartialFilter 部分索引过滤条件。
	PartialFilter any

	// DefaultLanguage 文本索引默认语言。
	DefaultLanguage string
}

func (o IndexOptions) builder() *options.IndexOptionsBuilder {
	b := options.Index()
	if o.Name != "" {
		b.SetName(o.Name)
	}
	if o.Unique {
		b.SetUnique(true)
	}
	if o.Sparse {
		b.SetSparse(true)
	}
	if o.ExpireAfter > 0 {
		b.SetExpireAfterSeconds(o.ExpireAfter)
	}
	if o.PartialFilter != nil {
		b.SetPartialFilterExpression(o.PartialFilter)
	}
	if o.DefaultLanguage != "" {
		b.SetDefaultLanguage(o.DefaultLanguage)
	}
	return b
}

// =============================================================================
// 文本索引定义
// =============================================================================

// TextIndexSpec 文本索引定义：EqualWeight 或 WeightedFields。
type TextIndexSpec interface {
	textIndex() (keys, weights bson.D, err error)
}

// EqualWeight 所有字段权重相同的文本索引。
type EqualWeight struct {
	Fields []string
}

func (e EqualWeight) textIndex() (bson.D, bson.D, error) {
	if len(e.Fields) == 0 {
		return nil, nil, ErrInvalidTextIndex
	}
	keys := make(bson.D, 0, len(e.Fields))
	for _, f := range e.Fields {
		if strings.TrimSpace(f) == "" {
			return nil, nil, fmt.Errorf("%w: empty field name", ErrInvalidTextIndex)
		}
		keys = setKey(keys, f, "text")
	}
	return keys, nil, nil
}

// WeightedFields 按字段指定权重的文本索引，权重原样下发。
type WeightedFields struct {
	Weights map[string]int32
}

// textIndex 按字段名排序输出，保证同一定义生成相同的索引。
func (w WeightedFields) textIndex() (bson.D, bson.D, error) {
	if len(w.Weights) == 0 {
		return nil, nil, ErrInvalidTextIndex
	}
	fields := make([]string, 0, len(w.Weights))
	for f, weight := range w.Weights {
		if strings.TrimSpace(f) == "" {
			return nil, nil, fmt.Errorf("%w: empty field name", ErrInvalidTextIndex)
		}
		if weight <= 0 {
			return nil, nil, fmt.Errorf("%w: weight of %q must be positive", ErrInvalidTextIndex, f)
		}
		fields = append(fields, f)
	}
	slices.Sort(fields)

	keys := make(bson.D, 0, len(fields))
	weights := make(bson.D, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, bson.E{Key: f, Value: "text"})
		weights = append(weights, bson.E{Key: f, Value: w.Weights[f]})
	}
	return keys, weights, nil
}

// =============================================================================
// 索引创建
// =============================================================================

// IndexName 按 MongoDB 默认规则生成索引名，如 {a:1,b:-1} → a_1_b_-1。
func IndexName(keys bson.D) string {
	parts := make([]string, 0, len(keys)*2)
	for _, e := range keys {
		parts = append(parts, e.Key, fmt.Sprint(e.Value))
	}
	return strings.Join(parts, "_")
}

func (w *mongoWrapper) CreateIndex(ctx context.Context, coll *mongo.Collection, keys bson.D, opts IndexOptions) (string, error) {
	if err := w.checkUsable(ctx); err != nil {
		return "", err
	}
	if coll == nil {
		return "", ErrNilCollection
	}
	if len(keys) == 0 {
		return "", ErrEmptyIndexKeys
	}
	return w.createIndex(ctx, adaptCollection(coll), mongo.IndexModel{Keys: keys, Options: opts.builder()})
}

func (w *mongoWrapper) CreateTextIndex(ctx context.Context, coll *mongo.Collection, spec TextIndexSpec, opts IndexOptions) (string, error) {
	if err := w.checkUsable(ctx); err != nil {
		return "", err
	}
	if coll == nil {
		return "", ErrNilCollection
	}
	model, err := textIndexModel(spec, opts)
	if err != nil {
		return "", err
	}
	return w.createIndex(ctx, adaptCollection(coll), model)
}

func textIndexModel(spec TextIndexSpec, opts IndexOptions) (mongo.IndexModel, error) {
	if spec == nil {
		return mongo.IndexModel{}, ErrInvalidTextIndex
	}
	keys, weights, err := spec.textIndex()
	if err != nil {
		return mongo.IndexModel{}, err
	}
	b := opts.builder()
	if len(weights) > 0 {
		b.SetWeights(weights)
	}
	return mongo.IndexModel{Keys: keys, Options: b}, nil
}

// createIndex 下发索引创建。服务端对等价索引幂等，本层不做去重与重试。
func (w *mongoWrapper) createIndex(ctx context.Context, coll collectionOperations, model mongo.IndexModel) (name string, err error) {
	ctx, cancel := storageopt.FallbackTimeout(ctx, w.options.WriteTimeout)
	defer cancel()

	ctx, finish := w.startOp(ctx, coll, "create_index", nil)
	defer func() { finish(err) }()

	keys, _ := model.Keys.(bson.D)
	name, err = coll.CreateIndex(ctx, model)
	if err != nil {
		w.logger.Error(ctx, "create index failed",
			xlog.Database(coll.DatabaseName()),
			xlog.Collection(coll.Name()),
			xlog.Err(err),
			slog.String("keys", IndexName(keys)),
		)
		return "", fmt.Errorf("xmongo create_index %s.%s: %w", coll.DatabaseName(), coll.Name(), err)
	}

	w.logger.Info(ctx, "index created",
		xlog.Database(coll.DatabaseName()),
		xlog.Collection(coll.Name()),
		slog.String("index", name),
	)
	return name, nil
}
