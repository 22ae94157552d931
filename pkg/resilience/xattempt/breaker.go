package xattempt

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerRunner 熔断器+分类重试组合执行器。
//
// 每次尝试都经过熔断器检查和统计：
//   - 熔断器关闭/半开时正常执行操作
//   - 连续失败触发熔断后，后续尝试被熔断器直接拦截
//   - 熔断器错误（ErrOpenState / ErrTooManyRequests）对分类器链
//     不可见——任何规则都不会匹配它们，按默认传播立即返回
//
// 设计决策: 熔断器错误通过守卫谓词屏蔽而不是注入一条前置规则，
// 因为引擎的默认处置就是传播；屏蔽保证即使调用方声明了
// Retry(MatchAny()) 这类宽谓词，熔断打开时也能快速失败。
type BreakerRunner struct {
	runner *Runner
	cb     *gobreaker.CircuitBreaker[any]
}

// BreakerOption 熔断器配置选项。
type BreakerOption func(*gobreaker.Settings)

// WithBreakerMaxRequests 设置半开状态允许通过的请求数。
func WithBreakerMaxRequests(n uint32) BreakerOption {
	return func(st *gobreaker.Settings) {
		st.MaxRequests = n
	}
}

// WithBreakerTimeout 设置熔断打开后进入半开状态的等待时间。
func WithBreakerTimeout(d time.Duration) BreakerOption {
	return func(st *gobreaker.Settings) {
		if d > 0 {
			st.Timeout = d
		}
	}
}

// WithBreakerReadyToTrip 设置熔断判定函数。
// 默认策略：连续失败 5 次触发熔断。
func WithBreakerReadyToTrip(f func(counts gobreaker.Counts) bool) BreakerOption {
	return func(st *gobreaker.Settings) {
		if f != nil {
			st.ReadyToTrip = f
		}
	}
}

// NewBreakerRunner 创建熔断器+分类重试组合执行器。
// runner 为 nil 时返回 ErrNilRunner。
func NewBreakerRunner(name string, runner *Runner, opts ...BreakerOption) (*BreakerRunner, error) {
	if runner == nil {
		return nil, ErrNilRunner
	}

	st := gobreaker.Settings{
		Name: name,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	for _, opt := range opts {
		opt(&st)
	}

	return &BreakerRunner{
		runner: runner,
		cb:     gobreaker.NewCircuitBreaker[any](st),
	}, nil
}

// Do 执行带熔断和分类重试的操作。
//
// 执行流程：
//  1. 每次尝试先经过熔断器
//  2. 熔断器打开时尝试立即失败，且该失败不被任何规则匹配，原样返回
//  3. 每次尝试的结果（成功/失败）都被熔断器统计
func (b *BreakerRunner) Do(ctx context.Context, op func(ctx context.Context) error, handlers ...Handler) error {
	if b == nil {
		return ErrNilBreaker
	}
	if ctx == nil {
		return ErrNilContext
	}
	if op == nil {
		return ErrNilFunc
	}
	// 守卫谓词会替换原谓词，nil 谓词的配置失误必须在替换前检出
	if err := validateChain(handlers, false); err != nil {
		return err
	}

	guarded := make([]Handler, len(handlers))
	for i := range handlers {
		guarded[i] = handlers[i]
		match := handlers[i].match
		guarded[i].match = func(err error) bool {
			if IsBreakerOpen(err) {
				return false
			}
			return match != nil && match(err)
		}
	}

	return b.runner.Do(ctx, func(ctx context.Context) error {
		_, err := b.cb.Execute(func() (any, error) {
			return nil, op(ctx)
		})
		return err
	}, guarded...)
}

// Runner 返回底层的分类重试执行器。
func (b *BreakerRunner) Runner() *Runner {
	if b == nil {
		return nil
	}
	return b.runner
}

// State 返回熔断器当前状态。
func (b *BreakerRunner) State() gobreaker.State {
	if b == nil {
		return gobreaker.StateClosed
	}
	return b.cb.State()
}

// IsBreakerOpen 检查错误是否为熔断器拦截错误
// （ErrOpenState 或半开状态下的 ErrTooManyRequests）。
func IsBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
