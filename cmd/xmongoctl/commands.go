package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"runtime"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/omeyang/xmongoopt/pkg/storage/xmongo"
	"github.com/omeyang/xmongoopt/pkg/util/xjson"
)

// reportView 执行报告的输出结构。
type reportView struct {
	Collection       string   `bson:"collection"`
	Filter           bson.M   `bson:"filter"`
	Sort             bson.D   `bson:"sort,omitempty"`
	ExecutionTimeMS  int64    `bson:"executionTimeMillis"`
	DocsExamined     int64    `bson:"docsExamined"`
	KeysExamined     int64    `bson:"keysExamined"`
	DocsReturned     int64    `bson:"docsReturned"`
	Efficiency       float64  `bson:"efficiency"`
	UsedIndex        bool     `bson:"usedIndex"`
	IndexesUsed      []string `bson:"indexesUsed"`
	SuggestedIndexes []bson.D `bson:"suggestedIndexes"`
	Suggestions      []string `bson:"suggestions"`
}

func newReportView(r *xmongo.ExecutionReport) reportView {
	v := reportView{
		Collection:       r.Collection,
		Filter:           r.Filter,
		Sort:             r.Sort,
		ExecutionTimeMS:  r.ExecutionTime.Milliseconds(),
		DocsExamined:     r.DocsExamined,
		KeysExamined:     r.KeysExamined,
		DocsReturned:     r.DocsReturned,
		Efficiency:       r.Efficiency,
		UsedIndex:        r.UsedIndex,
		IndexesUsed:      r.IndexesUsed,
		SuggestedIndexes: r.SuggestedIndexes,
		Suggestions:      r.Suggestions,
	}
	if v.Filter == nil {
		v.Filter = bson.M{}
	}
	if v.IndexesUsed == nil {
		v.IndexesUsed = []string{}
	}
	if v.SuggestedIndexes == nil {
		v.SuggestedIndexes = []bson.D{}
	}
	if v.Suggestions == nil {
		v.Suggestions = []string{}
	}
	return v
}

// writeReport 按输出格式打印执行报告。
func writeReport(w io.Writer, r *xmongo.ExecutionReport, format string) {
	if format == "json" {
		fmt.Fprintln(w, xjson.Pretty(newReportView(r)))
		return
	}
	fmt.Fprintf(w, "集合:       %s\n", r.Collection)
	fmt.Fprintf(w, "耗时:       %s\n", r.ExecutionTime)
	fmt.Fprintf(w, "扫描文档:   %d\n", r.DocsExamined)
	fmt.Fprintf(w, "扫描索引键: %d\n", r.KeysExamined)
	fmt.Fprintf(w, "返回文档:   %d\n", r.DocsReturned)
	fmt.Fprintf(w, "效率:       %.1f%%\n", r.Efficiency*100)
	if r.UsedIndex {
		fmt.Fprintf(w, "使用索引:   %s\n", strings.Join(r.IndexesUsed, ", "))
	} else {
		fmt.Fprintln(w, "使用索引:   否")
	}
	for _, s := range r.Suggestions {
		fmt.Fprintf(w, "建议: %s\n", s)
	}
	for _, keys := range r.SuggestedIndexes {
		fmt.Fprintf(w, "建议索引: %s %s\n", xmongo.IndexName(keys), compactJSON(keys))
	}
}

// compactJSON 单行输出文档。
func compactJSON(doc any) string {
	data, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return fmt.Sprintf("<marshal error: %v>", err)
	}
	return string(data)
}

func collectionFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "collection",
		Aliases:  []string{"C"},
		Usage:    "集合名",
		Required: true,
	}
}

func outputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "输出格式 (text/json)",
		Value:   "text",
	}
}

// createExplainCommand 创建 explain 子命令。
func createExplainCommand() *cli.Command {
	return &cli.Command{
		Name:  "explain",
		Usage: "分析查询执行计划，输出效率与索引建议",
		Flags: []cli.Flag{
			collectionFlag(),
			&cli.StringFlag{Name: "filter", Aliases: []string{"f"}, Usage: "查询条件（Extended JSON）"},
			&cli.StringFlag{Name: "sort", Aliases: []string{"s"}, Usage: "排序（Extended JSON，保留键顺序）"},
			&cli.StringFlag{Name: "select", Usage: "投影字段，逗号分隔，-前缀表示排除"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "返回条数上限，0 表示不限制"},
			&cli.StringFlag{Name: "read-pref", Usage: "读偏好 (primary/primaryPreferred/secondary/secondaryPreferred/nearest)"},
			&cli.StringFlag{Name: "raw", Usage: "直接输出原始 explain 结果，取值为 verbosity"},
			outputFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			spec, err := parseQueryFlags(cmd)
			if err != nil {
				return err
			}
			raw := cmd.String("raw")
			if raw != "" && !xmongo.ValidVerbosity(raw) {
				return newUsageError(fmt.Sprintf("--raw must be one of %s, %s, %s, got %q",
					xmongo.VerbosityQueryPlanner, xmongo.VerbosityExecutionStats, xmongo.VerbosityAllPlansExecution, raw))
			}
			return withEnv(ctx, cmd, func(ctx context.Context, e *env) error {
				q, err := spec.build(e.mongo, e.db)
				if err != nil {
					return err
				}
				w := output(cmd)
				if raw != "" {
					plan, err := q.Explain(ctx, raw)
					if err != nil {
						return err
					}
					fmt.Fprintln(w, xjson.Pretty(plan))
					return nil
				}
				report, err := e.mongo.AnalyzeQuery(ctx, q)
				if err != nil {
					return err
				}
				writeReport(w, report, cmd.String("output"))
				return nil
			})
		},
	}
}

// querySpec 由命令行或配置文件描述的查询。
type querySpec struct {
	collection string
	filter     bson.M
	sort       bson.D
	fields     []string
	limit      int64
	readPref   string
}

func parseQueryFlags(cmd *cli.Command) (querySpec, error) {
	spec, err := parseQuery(cmd.String("collection"), cmd.String("filter"), cmd.String("sort"), int64(cmd.Int("limit")))
	if err != nil {
		return spec, err
	}
	spec.fields = splitList(cmd.String("select"))
	spec.readPref = cmd.String("read-pref")
	return spec, nil
}

// parseQuery 解析 Extended JSON 形式的查询条件与排序。
func parseQuery(collection, filter, sort string, limit int64) (querySpec, error) {
	spec := querySpec{collection: collection, limit: limit}
	if strings.TrimSpace(collection) == "" {
		return spec, newUsageError("集合名不能为空")
	}
	if limit < 0 {
		return spec, newUsageError(fmt.Sprintf("limit 不能为负数: %d", limit))
	}
	var err error
	if spec.filter, err = xjson.ParseDocument(filter); err != nil {
		return spec, newUsageError(fmt.Sprintf("filter: %v", err))
	}
	if spec.sort, err = xjson.ParseOrdered(sort); err != nil {
		return spec, newUsageError(fmt.Sprintf("sort: %v", err))
	}
	return spec, nil
}

// build 基于连接构造查询句柄。
func (s querySpec) build(m xmongo.Mongo, db *mongo.Database) (xmongo.Query, error) {
	q := m.Query(db.Collection(s.collection)).Where(s.filter)
	if len(s.sort) > 0 {
		q = q.Sort(s.sort)
	}
	if s.limit > 0 {
		q = q.Limit(s.limit)
	}
	if len(s.fields) > 0 {
		q = xmongo.SelectFields(q, s.fields...)
	}
	if s.readPref != "" {
		var err error
		if q, err = xmongo.SetReadPreference(q, s.readPref); err != nil {
			return nil, newUsageError(err.Error())
		}
	}
	return q, nil
}

// splitList 拆分逗号分隔的参数，忽略空项。
func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// createIndexCommand 创建 index 子命令。
func createIndexCommand() *cli.Command {
	return &cli.Command{
		Name:  "index",
		Usage: "创建复合索引",
		Flags: []cli.Flag{
			collectionFlag(),
			&cli.StringFlag{Name: "keys", Aliases: []string{"k"}, Usage: `索引键（Extended JSON，如 {"status":1,"createdAt":-1}）`, Required: true},
			&cli.StringFlag{Name: "name", Usage: "索引名，为空时由服务端生成"},
			&cli.BoolFlag{Name: "unique", Usage: "唯一索引"},
			&cli.BoolFlag{Name: "sparse", Usage: "稀疏索引"},
			&cli.DurationFlag{Name: "ttl", Usage: "TTL 过期时间，按秒取整"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			keys, err := xjson.ParseOrdered(cmd.String("keys"))
			if err != nil {
				return newUsageError(fmt.Sprintf("keys: %v", err))
			}
			if len(keys) == 0 {
				return newUsageError("keys 不能为空")
			}
			opts := xmongo.IndexOptions{
				Name:        cmd.String("name"),
				Unique:      cmd.Bool("unique"),
				Sparse:      cmd.Bool("sparse"),
				ExpireAfter: int32(cmd.Duration("ttl") / time.Second),
			}
			return withEnv(ctx, cmd, func(ctx context.Context, e *env) error {
				name, err := e.mongo.CreateIndex(ctx, e.db.Collection(cmd.String("collection")), keys, opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(output(cmd), "索引已创建: %s\n", name)
				return nil
			})
		},
	}
}

// createTextIndexCommand 创建 text-index 子命令。
func createTextIndexCommand() *cli.Command {
	return &cli.Command{
		Name:  "text-index",
		Usage: "创建文本索引",
		Flags: []cli.Flag{
			collectionFlag(),
			&cli.StringFlag{Name: "fields", Usage: "等权重字段，逗号分隔"},
			&cli.StringFlag{Name: "weights", Usage: `字段权重（JSON，如 {"title":10,"body":2}）`},
			&cli.StringFlag{Name: "name", Usage: "索引名"},
			&cli.StringFlag{Name: "language", Usage: "默认语言"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			spec, err := parseTextIndexSpec(cmd.String("fields"), cmd.String("weights"))
			if err != nil {
				return err
			}
			opts := xmongo.IndexOptions{
				Name:            cmd.String("name"),
				DefaultLanguage: cmd.String("language"),
			}
			return withEnv(ctx, cmd, func(ctx context.Context, e *env) error {
				name, err := e.mongo.CreateTextIndex(ctx, e.db.Collection(cmd.String("collection")), spec, opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(output(cmd), "文本索引已创建: %s\n", name)
				return nil
			})
		},
	}
}

// parseTextIndexSpec --fields 与 --weights 二选一。
func parseTextIndexSpec(fields, weights string) (xmongo.TextIndexSpec, error) {
	switch {
	case fields != "" && weights != "":
		return nil, newUsageError("--fields 与 --weights 不能同时指定")
	case fields != "":
		return xmongo.EqualWeight{Fields: splitList(fields)}, nil
	case weights != "":
		doc, err := xjson.ParseDocument(weights)
		if err != nil {
			return nil, newUsageError(fmt.Sprintf("weights: %v", err))
		}
		w := make(map[string]int32, len(doc))
		for field, v := range doc {
			n, ok := weightValue(v)
			if !ok {
				return nil, newUsageError(fmt.Sprintf("weights: 字段 %s 的权重必须是整数", field))
			}
			w[field] = n
		}
		return xmongo.WeightedFields{Weights: w}, nil
	default:
		return nil, newUsageError("需要指定 --fields 或 --weights")
	}
}

func weightValue(v any) (int32, bool) {
	switch n := v.(type) {
	case int32:
		return n, true
	case int64:
		if n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false
		}
		return int32(n), true
	case float64:
		if n != float64(int32(n)) {
			return 0, false
		}
		return int32(n), true
	default:
		return 0, false
	}
}

// createTunePoolCommand 创建 tune-pool 子命令。
func createTunePoolCommand() *cli.Command {
	return &cli.Command{
		Name:  "tune-pool",
		Usage: "计算连接池建议，--apply 时连接数据库并下发 maxConnecting",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "cpu", Usage: "按指定 CPU 数计算，默认为本机 CPU 数"},
			&cli.BoolFlag{Name: "apply", Usage: "连接数据库并尽力下发 ShardingTaskExecutorPoolMaxConnecting"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Bool("apply") {
				return withEnv(ctx, cmd, func(ctx context.Context, e *env) error {
					writePoolSettings(output(cmd), e.mongo.TunePool(ctx))
					return nil
				})
			}
			cpu := int(cmd.Int("cpu"))
			if cpu == 0 {
				cpu = runtime.NumCPU()
			}
			if cpu < 0 {
				return newUsageError(fmt.Sprintf("cpu 不能为负数: %d", cpu))
			}
			writePoolSettings(output(cmd), xmongo.SuggestPoolSettings(cpu))
			return nil
		},
	}
}

func writePoolSettings(w io.Writer, s xmongo.PoolSettings) {
	fmt.Fprintf(w, "maxPoolSize:     %d\n", s.PoolSize)
	fmt.Fprintf(w, "maxConnecting:   %d\n", s.MaxConnecting)
	fmt.Fprintf(w, "connectTimeout:  %s\n", s.ConnectTimeout)
	fmt.Fprintf(w, "socketTimeout:   %s\n", s.SocketTimeout)
}

// createBucketsCommand 创建 buckets 子命令。
func createBucketsCommand() *cli.Command {
	return &cli.Command{
		Name:  "buckets",
		Usage: "打印时间桶切分结果（不连接数据库）",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "start", Usage: "起始时间（2006-01-02 或 RFC3339）", Required: true},
			&cli.StringFlag{Name: "end", Usage: "结束时间（不含）", Required: true},
			&cli.StringFlag{Name: "size", Usage: "桶大小 (hour/day/week/month)", Value: string(xmongo.BucketDay)},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			start, err := parseTime(cmd.String("start"))
			if err != nil {
				return newUsageError(fmt.Sprintf("start: %v", err))
			}
			end, err := parseTime(cmd.String("end"))
			if err != nil {
				return newUsageError(fmt.Sprintf("end: %v", err))
			}
			size, err := xmongo.ParseBucketSize(cmd.String("size"))
			if err != nil {
				return newUsageError(err.Error())
			}
			buckets, err := xmongo.Buckets(start, end, size)
			if err != nil {
				return newUsageError(err.Error())
			}
			w := output(cmd)
			for _, b := range buckets {
				fmt.Fprintln(w, b.String())
			}
			return nil
		},
	}
}

// parseTime 支持日期与 RFC3339 两种格式，日期按 UTC 解析。
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
