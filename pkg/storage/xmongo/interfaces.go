package xmongo

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// clientOperations 客户端级别操作，*mongo.Client 实现此接口。
type clientOperations interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
	Disconnect(ctx context.Context) error
	NumberSessionsInProgress() int
}

// collectionOperations 集合级别操作，由 collectionAdapter 包装 *mongo.Collection 实现。
type collectionOperations interface {
	CountDocuments(ctx context.Context, filter any, opts ...options.Lister[options.CountOptions]) (int64, error)
	Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (*mongo.Cursor, error)
	InsertMany(ctx context.Context, documents []any, opts ...options.Lister[options.InsertManyOptions]) (*mongo.InsertManyResult, error)
	Aggregate(ctx context.Context, pipeline any, opts ...options.Lister[options.AggregateOptions]) (*mongo.Cursor, error)
	CreateIndex(ctx context.Context, model mongo.IndexModel) (string, error)

	// WithReadPreference 返回使用指定 read preference 的集合视图，原集合不受影响。
	WithReadPreference(rp *readpref.ReadPref) collectionOperations

	// Runner 返回集合所在数据库的命令执行器。
	Runner() commandRunner

	DatabaseName() string
	Name() string
}

type collectionAdapter struct {
	coll *mongo.Collection
}

func adaptCollection(coll *mongo.Collection) collectionOperations {
	if coll == nil {
		return nil
	}
	return &collectionAdapter{coll: coll}
}

func (a *collectionAdapter) CountDocuments(ctx context.Context, filter any, opts ...options.Lister[options.CountOptions]) (int64, error) {
	return a.coll.CountDocuments(ctx, filter, opts...)
}

func (a *collectionAdapter) Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (*mongo.Cursor, error) {
	return a.coll.Find(ctx, filter, opts...)
}

func (a *collectionAdapter) InsertMany(ctx context.Context, documents []any, opts ...options.Lister[options.InsertManyOptions]) (*mongo.InsertManyResult, error) {
	return a.coll.InsertMany(ctx, documents, opts...)
}

func (a *collectionAdapter) Aggregate(ctx context.Context, pipeline any, opts ...options.Lister[options.AggregateOptions]) (*mongo.Cursor, error) {
	return a.coll.Aggregate(ctx, pipeline, opts...)
}

func (a *collectionAdapter) CreateIndex(ctx context.Context, model mongo.IndexModel) (string, error) {
	return a.coll.Indexes().CreateOne(ctx, model)
}

func (a *collectionAdapter) WithReadPreference(rp *readpref.ReadPref) collectionOperations {
	if rp == nil {
		return a
	}
	return &collectionAdapter{coll: a.coll.Clone(options.Collection().SetReadPreference(rp))}
}

func (a *collectionAdapter) Runner() commandRunner {
	return a.coll.Database()
}

func (a *collectionAdapter) DatabaseName() string {
	if db := a.coll.Database(); db != nil {
		return db.Name()
	}
	return ""
}

func (a *collectionAdapter) Name() string {
	return a.coll.Name()
}
