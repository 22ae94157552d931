// xguardctl 是分类重试引擎的命令行探测工具。
//
// 用法:
//
//	xguardctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-p, --policy    重试策略文件路径 (YAML/JSON)
//	-n, --attempts  最大尝试次数（覆盖策略文件）
//	-v, --verbose   输出重试过程的 debug 日志
//
// 命令:
//
//	http <url>              HTTP GET 探测（429/5xx 退避重试，超时立即重试）
//	exec <command> [args]   命令探测（非零退出码退避重试）
//	help                    显示帮助信息
//
// 退出码:
//
//	0: 探测成功
//	1: 探测失败（重试预算耗尽或不可重试的失败）
//	2: 参数错误（缺少参数、策略文件不可用、未知命令等）
//
// 示例:
//
//	xguardctl http https://example.com/healthz
//	xguardctl -n 5 http https://example.com/healthz
//	xguardctl -p policy.yaml exec pg_isready -h db
//	xguardctl exec --retry-exits 75,111 myscript.sh
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

// 版本信息（可通过 -ldflags 注入）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

// createApp 创建 CLI 应用。
func createApp() *cli.Command {
	return &cli.Command{
		Name:    "xguardctl",
		Usage:   "分类重试探测命令行工具",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "policy",
				Aliases: []string{"p"},
				Usage:   "重试策略文件路径 (YAML/JSON)",
			},
			&cli.IntFlag{
				Name:    "attempts",
				Aliases: []string{"n"},
				Usage:   "最大尝试次数（覆盖策略文件）",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "输出重试过程的 debug 日志",
			},
		},
		Commands:       createCommands(),
		DefaultCommand: "help",
		// 设计决策: 禁止 urfave/cli 直接调用 os.Exit，
		// 由 run() 统一处理退出码映射，确保与文档退出码契约一致。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run() int {
	app := createApp()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "参数错误: %v\n", usageErr)
			return 2
		}
		// CLI 框架产生的参数错误（未知 flag、未知命令）同样映射到退出码 2，
		// ExitErrHandler 已输出错误详情。
		if _, ok := err.(cli.ExitCoder); ok {
			return 2
		}
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		return 1
	}

	return 0
}
