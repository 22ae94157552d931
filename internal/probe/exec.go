package probe

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"slices"
	"strings"

	"github.com/omeyang/xguard/pkg/resilience/xattempt"
)

// ExitError 表示被探测命令以非零退出码结束。
// 退出码即故障码，可直接被 xattempt.MatchCode 系列谓词分类。
type ExitError struct {
	ExitCode int
}

var _ xattempt.Classifiable = (*ExitError)(nil)

func (e *ExitError) Error() string {
	return fmt.Sprintf("probe: command exited with code %d", e.ExitCode)
}

// FaultCode 返回命令退出码。
func (e *ExitError) FaultCode() int {
	return e.ExitCode
}

// ExecProbe 执行本地命令作为探测，以退出码判定成败。
type ExecProbe struct {
	name string
	args []string

	// retryableExits 为空表示所有非零退出码都可重试。
	retryableExits []int
}

// ExecOption 配置 ExecProbe。
type ExecOption func(*ExecProbe)

// WithRetryableExits 限定可重试的退出码集合。
// 不设置时所有非零退出码都按暂时性故障处理。
func WithRetryableExits(codes ...int) ExecOption {
	return func(p *ExecProbe) {
		p.retryableExits = slices.Clone(codes)
	}
}

// NewExecProbe 创建命令探测。
func NewExecProbe(name string, args []string, opts ...ExecOption) *ExecProbe {
	p := &ExecProbe{
		name: name,
		args: slices.Clone(args),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name 实现 Probe。
func (p *ExecProbe) Name() string {
	if len(p.args) == 0 {
		return "exec " + p.name
	}
	return "exec " + p.name + " " + strings.Join(p.args, " ")
}

// Attempt 执行一次命令。非零退出码转换为 *ExitError，
// 启动失败（命令不存在、权限不足）原样上抛，不参与退出码分类。
func (p *ExecProbe) Attempt(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, p.name, p.args...)
	err := cmd.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{ExitCode: exitErr.ExitCode()}
	}
	return fmt.Errorf("probe: %w", err)
}

// Handlers 返回命令探测的分类链：可重试退出码退避后重试，其余上抛。
func (p *ExecProbe) Handlers() []xattempt.Handler {
	retryable := slices.Clone(p.retryableExits)
	return []xattempt.Handler{
		xattempt.DelayedRetry(xattempt.MatchCodeFunc(func(code int) bool {
			if len(retryable) == 0 {
				return code != 0
			}
			return slices.Contains(retryable, code)
		})),
	}
}
