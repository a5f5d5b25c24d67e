package xmongo

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

//go:generate mockgen -source=runner.go -destination=mock_runner_test.go -package=xmongo

// commandRunner 数据库命令执行，*mongo.Database 实现此接口。
// explain 与 setParameter 都通过它下发。
type commandRunner interface {
	RunCommand(ctx context.Context, runCommand any, opts ...options.Lister[options.RunCmdOptions]) *mongo.SingleResult
}
