// seckilld 秒杀服务进程与运维命令。
//
// 用法:
//
//	seckilld [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config   配置文件路径，也可通过 SECKILL_CONFIG 指定；为空时只用默认值与环境变量
//
// 命令:
//
//	serve          运行履约 worker、定时任务与配置热重载，直到收到信号
//	publish        发布秒杀券：落库、写入 Redis 库存与时间窗口、预热缓存
//	admit          执行一次准入，用于冒烟测试
//	version        打印版本
//
// 退出码:
//
//	0: 成功
//	1: 执行失败，或 admit 被拒绝
//	2: 参数错误
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

// 版本信息，通过 -ldflags "-X main.Version=..." 注入。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(os.Args))
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:    "seckilld",
		Usage:   "秒杀准入与订单履约服务",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径（.yaml/.yml/.json）",
				Sources: cli.EnvVars("SECKILL_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			publishCommand(),
			admitCommand(),
			versionCommand(),
		},
		// 退出码由 run 统一映射，不让 urfave/cli 直接 os.Exit
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := createApp().Run(ctx, args); err != nil {
		return exitCode(err)
	}
	return 0
}

func exitCode(err error) int {
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		fmt.Fprintf(os.Stderr, "参数错误: %v\n", usageErr)
		return 2
	}
	fmt.Fprintf(os.Stderr, "错误: %v\n", err)
	return 1
}
