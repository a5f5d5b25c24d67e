// xmongoctl 是 xmongo 的维护命令行工具。
//
// 用法:
//
//	xmongoctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config      配置文件路径（yaml/json，读取 mongo 与 advise 段）
//	    --uri         连接串，覆盖配置文件
//	-d, --database    数据库名，覆盖配置文件
//	-t, --timeout     单条命令超时时间 (默认: 30s)
//	    --log-level   日志级别 (默认: info)
//	    --log-format  日志格式 text/json (默认: text)
//	    --log-file    日志文件路径，启用按大小轮转
//	    --otel        通过 OpenTelemetry 全局 provider 上报观测数据
//
// 命令:
//
//	explain       分析查询执行计划，输出效率与索引建议
//	index         创建复合索引
//	text-index    创建文本索引
//	tune-pool     计算连接池建议，--apply 时下发 maxConnecting
//	buckets       打印时间桶切分结果（不连接数据库）
//	advise        批量分析配置中的查询并汇总索引建议，--watch 时周期运行
//
// 退出码:
//
//	0: 成功
//	1: 执行失败
//	2: 参数错误
//
// 示例:
//
//	xmongoctl --uri mongodb://localhost:27017 -d shop explain -C orders --filter '{"status":"paid"}' --sort '{"createdAt":-1}'
//	xmongoctl -c xmongo.yaml index -C orders --keys '{"status":1,"createdAt":-1}'
//	xmongoctl -c xmongo.yaml text-index -C products --weights '{"title":10,"body":2}'
//	xmongoctl buckets --start 2023-01-01 --end 2023-01-10 --size day
//	xmongoctl -c xmongo.yaml advise --watch
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"
)

// defaultTimeout 默认单条命令超时时间。
const defaultTimeout = 30 * time.Second

// 版本信息，可通过 -ldflags "-X main.Version=..." 注入。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(context.Background(), os.Args))
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:    "xmongoctl",
		Usage:   "MongoDB 查询诊断与维护工具",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径（yaml/json）",
			},
			&cli.StringFlag{
				Name:    "uri",
				Usage:   "MongoDB 连接串，覆盖配置文件",
				Sources: cli.EnvVars("XMONGOCTL_URI"),
			},
			&cli.StringFlag{
				Name:    "database",
				Aliases: []string{"d"},
				Usage:   "数据库名，覆盖配置文件",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "单条命令超时时间",
				Value:   defaultTimeout,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "日志级别 (debug/info/warn/error)",
				Value: "info",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "日志格式 (text/json)",
				Value: "text",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "日志文件路径，为空时输出到 stderr",
			},
			&cli.BoolFlag{
				Name:  "otel",
				Usage: "通过 OpenTelemetry 全局 provider 上报观测数据",
			},
		},
		Commands: []*cli.Command{
			createExplainCommand(),
			createIndexCommand(),
			createTextIndexCommand(),
			createTunePoolCommand(),
			createBucketsCommand(),
			createAdviseCommand(),
		},
		// 设计决策: 禁止 urfave/cli 直接调用 os.Exit，由 run() 统一映射退出码。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run(ctx context.Context, args []string) int {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := createApp().Run(ctx, args); err != nil {
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "参数错误: %v\n", usageErr)
			return 2
		}
		// flag 解析器已向 stderr 输出错误详情，此处仅设置退出码
		if isCLIUsageError(err) {
			return 2
		}
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		return 1
	}
	return 0
}
