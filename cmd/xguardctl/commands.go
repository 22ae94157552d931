package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xguard/internal/probe"
	"github.com/omeyang/xguard/pkg/resilience/xattempt"
)

// exitError 表示需要非零退出码但已完成输出的场景。
// 命令内部已完成所有输出，main 只需设置退出码。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return "" }

// usageError 表示参数错误，统一映射到退出码 2。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

// 创建所有子命令。
func createCommands() []*cli.Command {
	return []*cli.Command{
		createHTTPCommand(),
		createExecCommand(),
	}
}

// createHTTPCommand 创建 http 子命令（HTTP GET 探测）。
func createHTTPCommand() *cli.Command {
	return &cli.Command{
		Name:      "http",
		Usage:     "HTTP GET 探测",
		ArgsUsage: "<url>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			url := cmd.Args().First()
			if url == "" {
				return &usageError{msg: "http 命令需要指定目标 URL"}
			}

			runner, err := buildRunner(cmd)
			if err != nil {
				return err
			}
			return runProbe(ctx, runner, probe.NewHTTPProbe(url))
		},
	}
}

// createExecCommand 创建 exec 子命令（命令探测）。
func createExecCommand() *cli.Command {
	return &cli.Command{
		Name:      "exec",
		Usage:     "命令探测（以退出码判定成败）",
		ArgsUsage: "<command> [args...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "retry-exits",
				Usage: "可重试的退出码（逗号分隔，默认所有非零退出码）",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args().Slice()
			if len(args) == 0 {
				return &usageError{msg: "exec 命令需要指定要执行的命令"}
			}

			retryExits, err := parseExitCodes(cmd.String("retry-exits"))
			if err != nil {
				return err
			}

			runner, err := buildRunner(cmd)
			if err != nil {
				return err
			}

			var opts []probe.ExecOption
			if len(retryExits) > 0 {
				opts = append(opts, probe.WithRetryableExits(retryExits...))
			}
			return runProbe(ctx, runner, probe.NewExecProbe(args[0], args[1:], opts...))
		},
	}
}

// buildRunner 按全局选项构建重试执行器：
// 策略文件提供基础参数，--attempts 覆盖尝试次数，--verbose 附加 debug 日志。
func buildRunner(cmd *cli.Command) (*xattempt.Runner, error) {
	settings := xattempt.DefaultSettings()

	if path := cmd.String("policy"); path != "" {
		loaded, err := xattempt.LoadSettings(path)
		if err != nil {
			return nil, &usageError{msg: fmt.Sprintf("策略文件不可用: %v", err)}
		}
		settings = loaded
	}

	var extra []xattempt.RunnerOption
	if n := cmd.Int("attempts"); n > 0 {
		extra = append(extra, xattempt.WithMaxAttempts(n))
	}
	if cmd.Bool("verbose") {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		extra = append(extra, xattempt.WithLogger(logger))
	}

	return settings.Runner(extra...), nil
}

// parseExitCodes 解析逗号分隔的退出码列表。
func parseExitCodes(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	codes := make([]int, 0, len(parts))
	for _, part := range parts {
		code, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, &usageError{msg: fmt.Sprintf("无效的退出码 %q", part)}
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// runProbe 执行探测并输出结果。探测失败映射到退出码 1。
func runProbe(ctx context.Context, runner *xattempt.Runner, p probe.Probe) error {
	if err := probe.Run(ctx, runner, p); err != nil {
		fmt.Fprintf(os.Stderr, "探测失败: %s: %v\n", p.Name(), err)
		return &exitError{code: 1}
	}

	fmt.Printf("探测成功: %s\n", p.Name())
	return nil
}
