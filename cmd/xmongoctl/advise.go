package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v3"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/omeyang/xmongoopt/pkg/config/xconf"
	"github.com/omeyang/xmongoopt/pkg/lifecycle/xrun"
	"github.com/omeyang/xmongoopt/pkg/observability/xlog"
	"github.com/omeyang/xmongoopt/pkg/storage/xmongo"
	"github.com/omeyang/xmongoopt/pkg/util/xjson"
)

// defaultAdviseInterval --watch 模式下未配置 advise.interval 时的分析间隔。
const defaultAdviseInterval = 5 * time.Minute

// createAdviseCommand 创建 advise 子命令。
func createAdviseCommand() *cli.Command {
	return &cli.Command{
		Name:  "advise",
		Usage: "批量分析配置文件 advise.queries 中的查询并汇总索引建议",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "周期运行，配置文件变更时重新加载查询清单"},
			&cli.DurationFlag{Name: "interval", Usage: "周期运行间隔，覆盖 advise.interval"},
			&cli.DurationFlag{Name: "window", Usage: "相同建议的去重窗口", Value: xmongo.DefaultAdvisorWindow},
			outputFlag(),
		},
		Action: runAdvise,
	}
}

func runAdvise(ctx context.Context, cmd *cli.Command) (err error) {
	if cmd.String("config") == "" {
		return newUsageError("advise 需要通过 --config 指定包含 advise.queries 的配置文件")
	}
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, e.Close()) }()

	specs, err := parseAdviseQueries(e.file.Advise.Queries)
	if err != nil {
		return err
	}
	advisor, err := xmongo.NewAdvisor(
		xmongo.WithAdvisorWindow(cmd.Duration("window")),
		xmongo.WithAdvisorLogger(e.logger),
	)
	if err != nil {
		return err
	}
	defer advisor.Close()

	var current atomic.Pointer[[]querySpec]
	current.Store(&specs)

	r := &adviseRunner{
		env:     e,
		advisor: advisor,
		timeout: cmd.Duration("timeout"),
		out:     output(cmd),
		format:  cmd.String("output"),
	}

	if !cmd.Bool("watch") {
		return r.round(ctx, *current.Load())
	}

	interval := cmd.Duration("interval")
	if interval <= 0 {
		interval = e.file.Advise.Interval
	}
	if interval <= 0 {
		interval = defaultAdviseInterval
	}

	watcher, err := xconf.Watch(e.cfg, func(cfg xconf.Config, werr error) {
		if werr != nil {
			e.logger.Warn(context.Background(), "reload advise config failed", xlog.Err(werr))
			return
		}
		var fc fileConfig
		if uerr := cfg.Unmarshal("", &fc); uerr != nil {
			e.logger.Warn(context.Background(), "decode advise config failed", xlog.Err(uerr))
			return
		}
		next, perr := parseAdviseQueries(fc.Advise.Queries)
		if perr != nil {
			e.logger.Warn(context.Background(), "invalid advise queries, keep previous", xlog.Err(perr))
			return
		}
		current.Store(&next)
		e.logger.Info(context.Background(), "advise queries reloaded", xlog.Count(int64(len(next))))
	})
	if err != nil {
		return err
	}

	err = xrun.Run(ctx,
		[]xrun.Option{xrun.WithLogger(e.logger), xrun.WithName("xmongoctl-advise")},
		xrun.Ticker(interval, true, func(ctx context.Context) error {
			// 单轮失败只记日志，不终止周期运行
			if err := r.round(ctx, *current.Load()); err != nil && ctx.Err() == nil {
				e.logger.Warn(ctx, "advise round failed", xlog.Err(err))
			}
			return nil
		}),
		watcher.Run,
	)
	if errors.Is(err, xrun.ErrSignal) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// parseAdviseQueries 解析配置中的查询清单。
func parseAdviseQueries(queries []adviseQuery) ([]querySpec, error) {
	if len(queries) == 0 {
		return nil, newUsageError("配置文件 advise.queries 为空")
	}
	specs := make([]querySpec, 0, len(queries))
	for i, q := range queries {
		spec, err := parseQuery(q.Collection, q.Filter, q.Sort, q.Limit)
		if err != nil {
			return nil, newUsageError(fmt.Sprintf("advise.queries[%d]: %v", i, err))
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// adviseRunner 执行一轮分析并输出本轮新增建议。
type adviseRunner struct {
	env     *env
	advisor *xmongo.Advisor
	timeout time.Duration
	out     io.Writer
	format  string
}

// round 逐条分析查询。单条失败记录后继续，返回所有失败的合并错误。
func (r *adviseRunner) round(ctx context.Context, specs []querySpec) error {
	var errs []error
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.analyze(ctx, spec); err != nil {
			r.env.logger.Warn(ctx, "analyze query failed", xlog.Collection(spec.collection), xlog.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", spec.collection, err))
		}
	}
	writeSuggestions(r.out, r.advisor.Flush(), r.format)
	return errors.Join(errs...)
}

func (r *adviseRunner) analyze(ctx context.Context, spec querySpec) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	q, err := spec.build(r.env.mongo, r.env.db)
	if err != nil {
		return err
	}
	report, err := r.env.mongo.AnalyzeQuery(ctx, q)
	if err != nil {
		return err
	}
	r.advisor.Observe(ctx, report)
	return nil
}

// suggestionView 索引建议的输出结构。
type suggestionView struct {
	Collection string    `bson:"collection"`
	Name       string    `bson:"name"`
	Keys       bson.D    `bson:"keys"`
	Hits       int       `bson:"hits"`
	FirstSeen  time.Time `bson:"firstSeen"`
}

func writeSuggestions(w io.Writer, suggestions []xmongo.IndexSuggestion, format string) {
	if format == "json" {
		views := make([]suggestionView, 0, len(suggestions))
		for _, s := range suggestions {
			views = append(views, suggestionView{
				Collection: s.Collection,
				Name:       s.Name(),
				Keys:       s.Keys,
				Hits:       s.Hits,
				FirstSeen:  s.FirstSeen,
			})
		}
		fmt.Fprintln(w, xjson.Pretty(bson.M{"suggestions": views}))
		return
	}
	if len(suggestions) == 0 {
		fmt.Fprintln(w, "无新的索引建议")
		return
	}
	for _, s := range suggestions {
		fmt.Fprintf(w, "%s\t%s\t%s\thits=%d\n", s.Collection, s.Name(), compactJSON(s.Keys), s.Hits)
	}
}
