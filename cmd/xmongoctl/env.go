package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v3"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/omeyang/xmongoopt/pkg/config/xconf"
	"github.com/omeyang/xmongoopt/pkg/observability/xlog"
	"github.com/omeyang/xmongoopt/pkg/observability/xmetrics"
	"github.com/omeyang/xmongoopt/pkg/observability/xrotate"
	"github.com/omeyang/xmongoopt/pkg/storage/xmongo"
)

// fileConfig 配置文件结构。
type fileConfig struct {
	Mongo  xmongo.Config `koanf:"mongo"`
	Advise adviseConfig  `koanf:"advise"`
}

// adviseConfig advise 命令的查询清单。
type adviseConfig struct {
	Interval time.Duration `koanf:"interval"`
	Queries  []adviseQuery `koanf:"queries"`
}

// adviseQuery 单条待分析查询，filter 与 sort 为 Extended JSON 文本。
type adviseQuery struct {
	Collection string `koanf:"collection"`
	Filter     string `koanf:"filter"`
	Sort       string `koanf:"sort"`
	Limit      int64  `koanf:"limit"`
}

// loadFileConfig 加载 --config 指定的配置文件，未指定时返回零值。
func loadFileConfig(cmd *cli.Command) (xconf.Config, fileConfig, error) {
	var fc fileConfig
	path := cmd.String("config")
	if path == "" {
		return nil, fc, nil
	}
	cfg, err := xconf.New(path)
	if err != nil {
		return nil, fc, fmt.Errorf("加载配置 %s: %w", path, err)
	}
	if err := cfg.Unmarshal("", &fc); err != nil {
		return nil, fc, fmt.Errorf("解析配置 %s: %w", path, err)
	}
	return cfg, fc, nil
}

// mongoConfig 合并配置文件与命令行覆盖项。
func mongoConfig(cmd *cli.Command, fc fileConfig) (xmongo.Config, error) {
	mc := fc.Mongo
	if uri := cmd.String("uri"); uri != "" {
		mc.URI = uri
	}
	if db := cmd.String("database"); db != "" {
		mc.Database = db
	}
	if mc.URI == "" {
		return mc, newUsageError("需要通过 --uri 或配置文件 mongo.uri 指定连接串")
	}
	if mc.Database == "" {
		return mc, newUsageError("需要通过 --database 或配置文件 mongo.database 指定数据库")
	}
	return mc, nil
}

// newLogger 按全局日志选项构建 logger。
func newLogger(cmd *cli.Command) (xlog.Logger, func() error, error) {
	b := xlog.New().
		SetOutput(os.Stderr).
		SetLevelString(cmd.String("log-level")).
		SetFormat(cmd.String("log-format"))
	if file := cmd.String("log-file"); file != "" {
		b.SetRotation(file, xrotate.WithMaxSize(50), xrotate.WithMaxBackups(3), xrotate.WithCompress(true))
	}
	logger, cleanup, err := b.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志: %w", err)
	}
	return logger, cleanup, nil
}

// env 单次命令执行所需的连接与依赖。
type env struct {
	mongo   xmongo.Mongo
	db      *mongo.Database
	logger  xlog.Logger
	file    fileConfig
	cfg     xconf.Config
	cleanup func() error
}

// openEnv 加载配置、构建 logger 并连接 MongoDB。
func openEnv(cmd *cli.Command) (*env, error) {
	cfg, fc, err := loadFileConfig(cmd)
	if err != nil {
		return nil, err
	}
	mc, err := mongoConfig(cmd, fc)
	if err != nil {
		return nil, err
	}
	logger, cleanup, err := newLogger(cmd)
	if err != nil {
		return nil, err
	}

	opts := []xmongo.Option{xmongo.WithLogger(logger)}
	if cmd.Bool("otel") {
		observer, err := xmetrics.NewOTelObserver(xmetrics.WithInstrumentationName("xmongoctl"))
		if err != nil {
			return nil, errors.Join(err, cleanup())
		}
		opts = append(opts, xmongo.WithObserver(observer))
	}

	m, err := xmongo.Open(mc, opts...)
	if err != nil {
		return nil, errors.Join(err, cleanup())
	}
	return &env{
		mongo:   m,
		db:      m.Client().Database(mc.Database),
		logger:  logger,
		file:    fc,
		cfg:     cfg,
		cleanup: cleanup,
	}, nil
}

// Close 断开连接并刷新日志。
func (e *env) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(e.mongo.Close(ctx), e.cleanup())
}

// withEnv 打开 env 后执行 fn，并为 fn 设置 --timeout 超时。
func withEnv(ctx context.Context, cmd *cli.Command, fn func(ctx context.Context, e *env) error) (err error) {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, e.Close()) }()

	if timeout := cmd.Duration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx, e)
}

// output 返回命令输出目标。
func output(cmd *cli.Command) io.Writer {
	if root := cmd.Root(); root != nil && root.Writer != nil {
		return root.Writer
	}
	return os.Stdout
}
