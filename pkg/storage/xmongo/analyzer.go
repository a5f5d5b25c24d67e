package xmongo

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/omeyang/xmongoopt/pkg/observability/xlog"
)

// =============================================================================
// 报告类型
// =============================================================================

// ExecutionReport 查询执行报告，由 AnalyzeQuery 生成，返回后不再修改。
type ExecutionReport struct {
	Collection    string
	Filter        bson.M
	Sort          bson.D
	ExecutionTime time.Duration

	DocsExamined int64
	KeysExamined int64
	DocsReturned int64

	// UsedIndex 计划树中无 COLLSCAN 且至少使用了一个索引。
	UsedIndex   bool
	IndexesUsed []string

	// SuggestedIndexes 建议创建的索引定义，可直接传给 CreateIndex。
	SuggestedIndexes []bson.D

	// Efficiency 返回文档数/扫描文档数，扫描数为 0 时为 1。
	Efficiency  float64
	Suggestions []string
}

// ReportOptions 报告生成的启发式参数。
type ReportOptions struct {
	LowEfficiencyThreshold float64
	SuggestFilterIndexes   bool
}

// AnalyzeQuery 以 executionStats 模式 explain 查询并生成报告。
func (w *mongoWrapper) AnalyzeQuery(ctx context.Context, q Query) (*ExecutionReport, error) {
	if err := w.checkUsable(ctx); err != nil {
		return nil, err
	}
	if q == nil {
		return nil, ErrNilQuery
	}

	raw, err := q.Explain(ctx, VerbosityExecutionStats)
	if err != nil {
		return nil, err
	}

	report := BuildReport(q.Collection(), q.Filter(), q.SortSpec(), raw, ReportOptions{
		LowEfficiencyThreshold: w.options.LowEfficiencyThreshold,
		SuggestFilterIndexes:   w.options.SuggestFilterIndexes,
	})

	level := slog.LevelDebug
	if len(report.Suggestions) > 0 {
		level = slog.LevelInfo
	}
	attrs := []slog.Attr{
		xlog.Collection(report.Collection),
		xlog.Duration(report.ExecutionTime),
		slog.Int64("docs_examined", report.DocsExamined),
		slog.Int64("docs_returned", report.DocsReturned),
		slog.Float64("efficiency", report.Efficiency),
		slog.Bool("used_index", report.UsedIndex),
		slog.Any("suggestions", report.Suggestions),
	}
	if level == slog.LevelInfo {
		w.logger.Info(ctx, "query analyzed", attrs...)
	} else {
		w.logger.Debug(ctx, "query analyzed", attrs...)
	}
	return report, nil
}

// =============================================================================
// 启发式规则
// =============================================================================

// BuildReport 根据 explain(executionStats) 输出生成报告。
//
// 计划树遍历覆盖 queryPlanner.winningPlan、SBE 的 winningPlan.queryPlan
// 以及分片集群的 winningPlan.shards[].winningPlan。
func BuildReport(collection string, filter bson.M, sort bson.D, explain bson.M, opts ReportOptions) *ExecutionReport {
	r := &ExecutionReport{
		Collection: collection,
		Filter:     filter,
		Sort:       sort,
	}

	if stats, ok := asDoc(explain["executionStats"]); ok {
		r.ExecutionTime = time.Duration(toInt64(stats["executionTimeMillis"])) * time.Millisecond
		r.DocsExamined = toInt64(stats["totalDocsExamined"])
		r.KeysExamined = toInt64(stats["totalKeysExamined"])
		r.DocsReturned = toInt64(stats["nReturned"])
	}

	var plan planSummary
	if planner, ok := asDoc(explain["queryPlanner"]); ok {
		plan.walk(planner["winningPlan"])
	}
	r.IndexesUsed = plan.indexes
	r.UsedIndex = !plan.collScan && len(plan.indexes) > 0

	r.Efficiency = efficiency(r.DocsReturned, r.DocsExamined)

	s := suggester{report: r}
	if plan.collScan {
		s.add("full collection scan on %s: add an index matching the filter", collection)
	}
	if r.Efficiency < opts.LowEfficiencyThreshold {
		s.add("low efficiency %.1f%% (%d returned / %d examined): index is not selective for this filter",
			r.Efficiency*100, r.DocsReturned, r.DocsExamined)
	}
	if len(sort) > 0 && !r.UsedIndex {
		keys := slices.Clone(sort)
		s.index(keys, "sort without index: consider compound index %s", IndexName(keys))
	}
	if opts.SuggestFilterIndexes {
		for _, field := range filterFields(filter) {
			if _, covered := plan.fields[field]; covered {
				continue
			}
			s.index(bson.D{{Key: field, Value: 1}}, "filter field %q not covered by an index: consider index %s_1", field, field)
		}
	}
	return r
}

func efficiency(returned, examined int64) float64 {
	if examined <= 0 {
		return 1
	}
	return float64(returned) / float64(examined)
}

// filterFields 返回顶层非操作符字段，排序后输出以保证建议顺序稳定。_id 始终有索引，跳过。
func filterFields(filter bson.M) []string {
	fields := make([]string, 0, len(filter))
	for k := range filter {
		if k == "" || k == "_id" || strings.HasPrefix(k, "$") {
			continue
		}
		fields = append(fields, k)
	}
	slices.Sort(fields)
	return fields
}

type suggester struct {
	report *ExecutionReport
}

func (s suggester) add(format string, args ...any) {
	s.report.Suggestions = append(s.report.Suggestions, fmt.Sprintf(format, args...))
}

// index 追加索引建议，同名索引只建议一次。
func (s suggester) index(keys bson.D, format string, args ...any) {
	name := IndexName(keys)
	for _, existing := range s.report.SuggestedIndexes {
		if IndexName(existing) == name {
			return
		}
	}
	s.report.SuggestedIndexes = append(s.report.SuggestedIndexes, keys)
	s.add(format, args...)
}

// =============================================================================
// 计划树遍历
// =============================================================================

// planSummary 计划树遍历结果。
type planSummary struct {
	collScan bool
	indexes  []string
	// fields 已使用索引的 keyPattern 字段
	fields map[string]struct{}
}

func (p *planSummary) walk(node any) {
	stage, ok := asDoc(node)
	if !ok {
		return
	}

	if name, _ := stage["stage"].(string); name == "COLLSCAN" {
		p.collScan = true
	}
	if name, _ := stage["indexName"].(string); name != "" {
		if !slices.Contains(p.indexes, name) {
			p.indexes = append(p.indexes, name)
		}
		for _, key := range docKeys(stage["keyPattern"]) {
			if p.fields == nil {
				p.fields = make(map[string]struct{})
			}
			p.fields[key] = struct{}{}
		}
	}

	p.walk(stage["queryPlan"])
	p.walk(stage["winningPlan"])
	p.walk(stage["inputStage"])
	for _, child := range asArray(stage["inputStages"]) {
		p.walk(child)
	}
	for _, shard := range asArray(stage["shards"]) {
		p.walk(shard)
	}
}

// =============================================================================
// BSON 形态辅助
// =============================================================================

// asDoc 统一 bson.M 与 bson.D 两种解码形态。
func asDoc(v any) (bson.M, bool) {
	switch d := v.(type) {
	case bson.M:
		return d, true
	case map[string]any:
		return bson.M(d), true
	case bson.D:
		m := make(bson.M, len(d))
		for _, e := range d {
			m[e.Key] = e.Value
		}
		return m, true
	default:
		return nil, false
	}
}

func asArray(v any) []any {
	switch a := v.(type) {
	case bson.A:
		return a
	case []any:
		return a
	default:
		return nil
	}
}

// docKeys 返回文档的键，bson.D 保持原顺序。
func docKeys(v any) []string {
	switch d := v.(type) {
	case bson.D:
		keys := make([]string, 0, len(d))
		for _, e := range d {
			keys = append(keys, e.Key)
		}
		return keys
	default:
		m, ok := asDoc(v)
		if !ok {
			return nil
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		return keys
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int32:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
