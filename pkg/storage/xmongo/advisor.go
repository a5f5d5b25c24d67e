package xmongo

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/omeyang/xmongoopt/pkg/observability/xlog"
	"github.com/omeyang/xmongoopt/pkg/util/xlru"
)

// Advisor 默认值。
const (
	DefaultAdvisorWindow   = time.Hour
	DefaultAdvisorCapacity = 1024
)

// IndexSuggestion 聚合后的索引建议。
type IndexSuggestion struct {
	Collection string
	Keys       bson.D
	FirstSeen  time.Time
	// Hits 窗口内被多少份报告建议过。
	Hits int
}

// Name 建议索引的默认名称。
func (s IndexSuggestion) Name() string {
	return IndexName(s.Keys)
}

// Advisor 跨多次分析聚合索引建议。
//
// 同一集合的同一索引定义在窗口期内只产生一条建议；Flush 取走建议后，
// 窗口期内再次出现仍被抑制，避免重复告警。并发安全。
type Advisor struct {
	seen   *xlru.Cache[uint64, time.Time]
	logger xlog.Logger
	now    func() time.Time

	mu      sync.Mutex
	pending map[uint64]*IndexSuggestion
	order   []uint64
}

// =============================================================================
// 配置
// =============================================================================

type advisorOptions struct {
	window   time.Duration
	capacity int
	logger   xlog.Logger
}

// AdvisorOption Advisor 配置函数。
type AdvisorOption func(*advisorOptions)

// WithAdvisorWindow 设置去重窗口，非正值被忽略。
func WithAdvisorWindow(d time.Duration) AdvisorOption {
	return func(o *advisorOptions) {
		if d > 0 {
			o.window = d
		}
	}
}

// WithAdvisorCapacity 设置去重表容量，非正值被忽略。
func WithAdvisorCapacity(n int) AdvisorOption {
	return func(o *advisorOptions) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithAdvisorLogger 注入日志记录器。
func WithAdvisorLogger(logger xlog.Logger) AdvisorOption {
	return func(o *advisorOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewAdvisor 创建 Advisor。使用完毕需调用 Close。
func NewAdvisor(opts ...AdvisorOption) (*Advisor, error) {
	o := &advisorOptions{
		window:   DefaultAdvisorWindow,
		capacity: DefaultAdvisorCapacity,
		logger:   xlog.Discard(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	seen, err := xlru.New[uint64, time.Time](xlru.Config{Size: o.capacity, TTL: o.window}, nil)
	if err != nil {
		return nil, fmt.Errorf("xmongo advisor: %w", err)
	}
	return &Advisor{
		seen:    seen,
		logger:  o.logger.With(xlog.Component("xmongo.advisor")),
		now:     time.Now,
		pending: make(map[uint64]*IndexSuggestion),
	}, nil
}

// =============================================================================
// 建议聚合
// =============================================================================

func suggestionKey(collection string, keys bson.D) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(collection)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(IndexName(keys))
	return d.Sum64()
}

// Observe 吸收一份报告的索引建议，返回新增建议数。
func (a *Advisor) Observe(ctx context.Context, report *ExecutionReport) int {
	if report == nil {
		return 0
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	added := 0
	for _, keys := range report.SuggestedIndexes {
		if len(keys) == 0 {
			continue
		}
		key := suggestionKey(report.Collection, keys)
		if p, ok := a.pending[key]; ok {
			p.Hits++
			continue
		}
		if a.seen.Contains(key) {
			continue
		}

		now := a.now()
		a.seen.Set(key, now)
		a.pending[key] = &IndexSuggestion{
			Collection: report.Collection,
			Keys:       slices.Clone(keys),
			FirstSeen:  now,
			Hits:       1,
		}
		a.order = append(a.order, key)
		added++

		a.logger.Info(ctx, "index suggested",
			xlog.Collection(report.Collection),
			slog.String("index", IndexName(keys)),
		)
	}
	return added
}

// Pending 返回尚未取走的建议，按首次出现顺序排列。
func (a *Advisor) Pending() []IndexSuggestion {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot()
}

// Flush 取走所有建议。
//
// ⚠️ 已见窗口不随 Flush 清空，窗口期内重复出现的索引定义不会再次产生建议。
func (a *Advisor) Flush() []IndexSuggestion {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.snapshot()
	clear(a.pending)
	a.order = a.order[:0]
	return out
}

func (a *Advisor) snapshot() []IndexSuggestion {
	out := make([]IndexSuggestion, 0, len(a.order))
	for _, key := range a.order {
		out = append(out, *a.pending[key])
	}
	return out
}

// Close 释放去重表。
func (a *Advisor) Close() {
	a.seen.Close()
}
