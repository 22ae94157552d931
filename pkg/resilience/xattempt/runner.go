package xattempt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// attemptState 一次调用的尝试状态。
//
// 设计决策: 尝试计数、当前退避延迟这类循环局部量全部收拢进显式的
// 状态结构，由单次 Do 调用独占持有，调用返回即丢弃。状态绝不挂在
// Runner 上，杜绝跨调用泄漏——同一个 Runner 可被任意多的调用并发
// 复用而无需加锁。
type attemptState struct {
	// attempt 1-based 尝试计数，上界为 maxAttempts。
	attempt int

	// delay 当前退避延迟，按调用初始化一次，单调放大。
	delay time.Duration

	// maxAttempts 本次调用的尝试次数上限。
	maxAttempts int
}

// Runner 分类重试执行器。
//
// Runner 只持有不可变配置，零值之外请通过 NewRunner 构造。
// 同一个 Runner 可被多个 goroutine 并发使用。
type Runner struct {
	maxAttempts int
	backoff     backoffConfig
	onRetry     func(attempt int, err error)
	logger      *slog.Logger
	recorder    Recorder
	sleep       func(ctx context.Context, d time.Duration) error
}

// RunnerOption 执行器配置选项。
type RunnerOption func(*Runner)

// WithMaxAttempts 设置最大尝试次数（包含首次尝试）。
//
// 设计决策: 非法值（<= 0）原样记录，由 Do 在任何一次尝试执行之前
// 以 ErrInvalidMaxAttempts 报告，而不是静默修正——尝试次数上限是
// 调用方的显式契约，悄悄改掉比报错更危险。
func WithMaxAttempts(n int) RunnerOption {
	return func(r *Runner) {
		r.maxAttempts = n
	}
}

// WithBaseDelay 设置首次延迟重试前的基础延迟。
// d <= 0 时静默忽略（保持默认值）。
func WithBaseDelay(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.backoff.baseDelay = d
		}
	}
}

// WithMultiplier 设置退避增长乘数（>= 1.0）。
// 小于 1.0 的值会被忽略（保持默认值 10.0）。
func WithMultiplier(m float64) RunnerOption {
	return func(r *Runner) {
		if m >= 1 {
			r.backoff.multiplier = m
		}
	}
}

// WithJitterRange 设置抖动区间 [low, high)。
// 要求 0 <= low < high，非法区间被静默忽略。
// 传入 WithJitterRange(1, 1+ε) 以外的等宽区间可近似关闭抖动。
func WithJitterRange(low, high float64) RunnerOption {
	return func(r *Runner) {
		if low >= 0 && high > low {
			r.backoff.jitterLow = low
			r.backoff.jitterHigh = high
		}
	}
}

// WithOnRetry 设置重试回调，在每次决定继续循环时被调用。
// attempt 为刚刚失败的尝试序号（1-based）。传入 nil 会被静默忽略。
func WithOnRetry(f func(attempt int, err error)) RunnerOption {
	return func(r *Runner) {
		if f != nil {
			r.onRetry = f
		}
	}
}

// WithLogger 设置尝试级调试日志的 logger。
// 默认不输出任何日志（成功的分类是静默的）。
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRecorder 设置指标记录器，参见 NewOTelRecorder。
func WithRecorder(rec Recorder) RunnerOption {
	return func(r *Runner) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithSleep 替换退避等待的实现（主要用于测试，消除真实等待）。
// 替换实现应在 ctx 取消时返回非 nil 错误。
func WithSleep(f func(ctx context.Context, d time.Duration) error) RunnerOption {
	return func(r *Runner) {
		if f != nil {
			r.sleep = f
		}
	}
}

// NewRunner 创建分类重试执行器。
// 默认配置：最大尝试 3 次，基础延迟 50ms，乘数 10，抖动 [0.8, 1.2)。
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		maxAttempts: 3,
		backoff:     defaultBackoffConfig(),
		recorder:    noopRecorder{},
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do 在分类器链的监督下重复执行操作。
//
// 每次迭代运行一次操作：成功立即返回其结果，不再求值分类器链；
// 失败则按声明顺序求值分类器链，由首个匹配的规则决定处置：
//   - PolicyIgnore 匹配：停止循环，返回 nil（"无结果"）
//   - PolicyRetry / PolicyDelayedRetry 匹配且还有剩余次数：继续循环
//   - 无规则匹配，或重试次数耗尽：停止循环，原样返回该失败
//
// 未被显式接受或重试的失败与直接调用操作返回的错误值完全一致——
// 不包装、不改写。动作执行失败时其错误替代上述流程向上传播。
func (r *Runner) Do(ctx context.Context, op func(ctx context.Context) error, handlers ...Handler) error {
	if r == nil {
		return ErrNilRunner
	}
	if ctx == nil {
		return ErrNilContext
	}
	if op == nil {
		return ErrNilFunc
	}
	if err := validateChain(handlers, false); err != nil {
		return err
	}
	if r.maxAttempts <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxAttempts, r.maxAttempts)
	}

	st := &attemptState{
		attempt:     1,
		delay:       r.backoff.baseDelay,
		maxAttempts: r.maxAttempts,
	}

	var log *slog.Logger
	if r.logger != nil {
		log = r.logger.With(
			slog.String("component", "xattempt"),
			slog.String("invocation_id", uuid.NewString()),
		)
	}

	for {
		err := op(ctx)
		r.recorder.Attempt(ctx, st.attempt, err == nil)
		if err == nil {
			return nil
		}

		d, aerr := r.evaluateChain(ctx, st, err, handlers)
		if aerr != nil {
			if log != nil {
				log.Debug("action failed", slog.Int("attempt", st.attempt), slog.Any("error", aerr))
			}
			return aerr
		}

		switch d {
		case dispositionSuppress:
			if log != nil {
				log.Debug("failure suppressed", slog.Int("attempt", st.attempt), slog.Any("error", err))
			}
			return nil
		case dispositionContinue:
			if log != nil {
				log.Debug("retrying", slog.Int("attempt", st.attempt), slog.Any("error", err))
			}
			if r.onRetry != nil {
				r.onRetry(st.attempt, err)
			}
			st.attempt++
		default:
			if log != nil {
				log.Debug("failure propagated", slog.Int("attempt", st.attempt), slog.Any("error", err))
			}
			return err
		}
	}
}

// DoProtected 单次执行变体：运行一次操作，只接受 PolicyIgnore 的规则，
// 未匹配的失败总是原样返回。等价于 maxAttempts = 1 的受限特化。
func (r *Runner) DoProtected(ctx context.Context, op func(ctx context.Context) error, handlers ...Handler) error {
	if r == nil {
		return ErrNilRunner
	}
	if err := validateChain(handlers, true); err != nil {
		return err
	}
	single := *r
	single.maxAttempts = 1
	return single.Do(ctx, op, handlers...)
}

// DoWithResult 执行带返回值的分类重试（泛型版本，必须作为包级函数使用）。
//
// 设计决策: 被 PolicyIgnore 规则接受时返回 T 的零值和 nil 错误。
// 需要区分"成功的零值"与"被接受的失败"的调用方，应改用 Do 配合
// 自己的输出变量，或在动作中记录现场。
func DoWithResult[T any](ctx context.Context, r *Runner, fn func(ctx context.Context) (T, error), handlers ...Handler) (T, error) {
	var zero T
	if r == nil {
		return zero, ErrNilRunner
	}
	if fn == nil {
		return zero, ErrNilFunc
	}

	var out T
	err := r.Do(ctx, func(ctx context.Context) error {
		v, ferr := fn(ctx)
		if ferr != nil {
			return ferr
		}
		out = v
		return nil
	}, handlers...)
	if err != nil {
		return zero, err
	}
	// 被接受的失败走到这里时 out 保持零值
	return out, nil
}

// MaxAttempts 返回配置的最大尝试次数。nil 接收者返回 0。
func (r *Runner) MaxAttempts() int {
	if r == nil {
		return 0
	}
	return r.maxAttempts
}

// BaseDelay 返回配置的基础延迟。nil 接收者返回 0。
func (r *Runner) BaseDelay() time.Duration {
	if r == nil {
		return 0
	}
	return r.backoff.baseDelay
}

// Multiplier 返回配置的退避乘数。nil 接收者返回 0。
func (r *Runner) Multiplier() float64 {
	if r == nil {
		return 0
	}
	return r.backoff.multiplier
}

// JitterRange 返回配置的抖动区间 [low, high)。nil 接收者返回 (0, 0)。
func (r *Runner) JitterRange() (low, high float64) {
	if r == nil {
		return 0, 0
	}
	return r.backoff.jitterLow, r.backoff.jitterHigh
}
