package xattempt

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var errBoom = errors.New("boom")

// noSleep 消除测试中的真实退避等待。
func noSleep(_ context.Context, _ time.Duration) error {
	return nil
}

// codeError 带分类码的测试失败类型。
type codeError struct {
	code int
}

func (e *codeError) Error() string {
	return "code error"
}

func (e *codeError) FaultCode() int {
	return e.code
}

func TestRunner_Do(t *testing.T) {
	t.Run("SuccessOnFirstAttempt", func(t *testing.T) {
		r := NewRunner()
		var attempts int

		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return nil
		}, Retry(MatchAny()))

		assert.NoError(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("RetryExhaustsAllAttempts", func(t *testing.T) {
		// 总是失败且被 Retry 规则匹配：恰好执行 maxAttempts 次后原样返回失败
		r := NewRunner(WithMaxAttempts(5), WithSleep(noSleep))
		var attempts int

		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return errBoom
		}, Retry(MatchAny()))

		assert.Equal(t, 5, attempts)
		require.Error(t, err)
		// 身份传播：返回的就是原始错误值，未被包装
		assert.Equal(t, errBoom, err)
		assert.ErrorIs(t, err, errBoom)
	})

	t.Run("UnmatchedFailurePropagatesImmediately", func(t *testing.T) {
		// 无规则匹配：只执行一次，不浪费重试
		r := NewRunner(WithMaxAttempts(10))
		var attempts int

		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return errBoom
		}, Retry(MatchErrorIs(errors.New("other"))))

		assert.Equal(t, 1, attempts)
		assert.Equal(t, errBoom, err)
	})

	t.Run("NoHandlersPropagates", func(t *testing.T) {
		r := NewRunner(WithMaxAttempts(10))
		var attempts int

		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return errBoom
		})

		assert.Equal(t, 1, attempts)
		assert.Equal(t, errBoom, err)
	})

	t.Run("IgnoreSuppressesOnFirstAttempt", func(t *testing.T) {
		r := NewRunner(WithMaxAttempts(10))
		var attempts int

		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return errBoom
		}, Ignore(MatchAny()))

		assert.NoError(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("FinalAttemptDegradesToPropagate", func(t *testing.T) {
		// 最后一次尝试上即使重试规则匹配也不再循环
		var attempts int
		var slept int

		r := NewRunner(WithMaxAttempts(2), WithSleep(func(ctx context.Context, d time.Duration) error {
			slept++
			return nil
		}))
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return errBoom
		}, DelayedRetry(MatchAny()))

		assert.Equal(t, 2, attempts)
		assert.Equal(t, errBoom, err)
		// 降级为传播时不做退避等待
		assert.Equal(t, 1, slept)
	})

	t.Run("ClassificationChangesAcrossAttempts", func(t *testing.T) {
		// 第 k 次尝试携带分类码 k：码 < 3 时重试，码 == 3 时接受。
		// 无论 maxAttempts 是 3 还是 10，都应停在第 3 次尝试。
		for _, maxAttempts := range []int{3, 10} {
			r := NewRunner(WithMaxAttempts(maxAttempts), WithSleep(noSleep))
			var attempts int

			err := r.Do(context.Background(), func(ctx context.Context) error {
				attempts++
				return &codeError{code: attempts}
			},
				Retry(MatchCodeFunc(func(code int) bool { return code < 3 })),
				Ignore(MatchCode(3)),
			)

			assert.NoError(t, err, "maxAttempts=%d", maxAttempts)
			assert.Equal(t, 3, attempts, "maxAttempts=%d", maxAttempts)
		}
	})

	t.Run("InvalidMaxAttempts", func(t *testing.T) {
		var attempts int
		for _, n := range []int{0, -1} {
			err := RunWithRetry(context.Background(), n, func(ctx context.Context) error {
				attempts++
				return nil
			})
			assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
		}
		// 配置错误在任何一次尝试执行之前报告
		assert.Equal(t, 0, attempts)
	})

	t.Run("NilGuards", func(t *testing.T) {
		var nilRunner *Runner
		err := nilRunner.Do(context.Background(), func(ctx context.Context) error { return nil })
		assert.ErrorIs(t, err, ErrNilRunner)

		r := NewRunner()
		err = r.Do(nil, func(ctx context.Context) error { return nil }) //nolint:staticcheck // 校验 nil ctx 守卫
		assert.ErrorIs(t, err, ErrNilContext)

		err = r.Do(context.Background(), nil)
		assert.ErrorIs(t, err, ErrNilFunc)
	})

	t.Run("NilPredicateIsConfigError", func(t *testing.T) {
		r := NewRunner()
		var attempts int
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return errBoom
		}, Retry(nil))

		assert.ErrorIs(t, err, ErrNilPredicate)
		assert.Equal(t, 0, attempts)
	})

	t.Run("OnRetryCallback", func(t *testing.T) {
		type call struct {
			attempt int
			err     error
		}
		var calls []call
		r := NewRunner(
			WithMaxAttempts(3),
			WithSleep(noSleep),
			WithOnRetry(func(attempt int, err error) {
				calls = append(calls, call{attempt, err})
			}),
		)

		_ = r.Do(context.Background(), func(ctx context.Context) error {
			return errBoom
		}, Retry(MatchAny()))

		require.Len(t, calls, 2)
		assert.Equal(t, call{1, errBoom}, calls[0])
		assert.Equal(t, call{2, errBoom}, calls[1])
	})

	t.Run("CanceledContextStopsBackoff", func(t *testing.T) {
		// ctx 已取消时退避等待立即返回，循环停止并传播原始失败
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		r := NewRunner(WithMaxAttempts(5))
		var attempts int
		err := r.Do(ctx, func(ctx context.Context) error {
			attempts++
			return errBoom
		}, DelayedRetry(MatchAny()))

		assert.Equal(t, 1, attempts)
		assert.Equal(t, errBoom, err)
	})

	t.Run("LoggerEmitsAttemptDebug", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

		r := NewRunner(WithMaxAttempts(2), WithSleep(noSleep), WithLogger(logger))
		_ = r.Do(context.Background(), func(ctx context.Context) error {
			return errBoom
		}, Retry(MatchAny()))

		out := buf.String()
		assert.Contains(t, out, "invocation_id")
		assert.Contains(t, out, "retrying")
		assert.Contains(t, out, "failure propagated")
	})
}

func TestRunner_DoWithResult(t *testing.T) {
	t.Run("SuccessReturnsValue", func(t *testing.T) {
		r := NewRunner(WithMaxAttempts(3), WithSleep(noSleep))
		var attempts int

		got, err := DoWithResult(context.Background(), r, func(ctx context.Context) (string, error) {
			attempts++
			if attempts < 2 {
				return "", errBoom
			}
			return "hello", nil
		}, Retry(MatchAny()))

		assert.NoError(t, err)
		assert.Equal(t, "hello", got)
		assert.Equal(t, 2, attempts)
	})

	t.Run("SuppressedReturnsZeroValue", func(t *testing.T) {
		r := NewRunner()
		got, err := DoWithResult(context.Background(), r, func(ctx context.Context) (int, error) {
			return 42, errBoom
		}, Ignore(MatchAny()))

		assert.NoError(t, err)
		assert.Zero(t, got)
	})

	t.Run("PropagateReturnsZeroAndError", func(t *testing.T) {
		r := NewRunner()
		got, err := DoWithResult(context.Background(), r, func(ctx context.Context) (int, error) {
			return 42, errBoom
		})

		assert.Equal(t, errBoom, err)
		assert.Zero(t, got)
	})

	t.Run("NilGuards", func(t *testing.T) {
		_, err := DoWithResult[int](context.Background(), nil, func(ctx context.Context) (int, error) {
			return 0, nil
		})
		assert.ErrorIs(t, err, ErrNilRunner)

		_, err = DoWithResult[int](context.Background(), NewRunner(), nil)
		assert.ErrorIs(t, err, ErrNilFunc)
	})
}

func TestRunner_StateIsolation(t *testing.T) {
	t.Run("SequentialInvocationsStartFresh", func(t *testing.T) {
		// 同一个 Runner 的两次调用各自从基础延迟起步：
		// 若状态泄漏，第二次调用的首个等待会 >= 8×基础延迟
		base := 50 * time.Millisecond
		var delays []time.Duration
		r := NewRunner(
			WithMaxAttempts(3),
			WithBaseDelay(base),
			WithSleep(func(ctx context.Context, d time.Duration) error {
				delays = append(delays, d)
				return nil
			}),
		)

		for i := 0; i < 2; i++ {
			delays = delays[:0]
			err := r.Do(context.Background(), func(ctx context.Context) error {
				return errBoom
			}, DelayedRetry(MatchAny()))
			assert.Equal(t, errBoom, err)

			require.Len(t, delays, 2)
			assert.Less(t, delays[0], 2*base, "invocation %d leaked backoff state", i)
		}
	})

	t.Run("ConcurrentInvocationsShareRunner", func(t *testing.T) {
		r := NewRunner(WithMaxAttempts(4), WithSleep(noSleep))

		var g errgroup.Group
		for i := 0; i < 8; i++ {
			g.Go(func() error {
				var attempts int
				err := r.Do(context.Background(), func(ctx context.Context) error {
					attempts++
					return errBoom
				}, DelayedRetry(MatchAny()))
				if attempts != 4 {
					return errors.New("unexpected attempt count")
				}
				if !errors.Is(err, errBoom) {
					return errors.New("unexpected error")
				}
				return nil
			})
		}
		assert.NoError(t, g.Wait())
	})
}

func TestRunner_BackoffGrowth(t *testing.T) {
	// 三次强制延迟重试：相邻等待的比值落在
	// [multiplier × jitterLow / jitterHigh, multiplier × jitterHigh / jitterLow]
	// = [10 × 0.8 / 1.2, 10 × 1.2 / 0.8] ≈ [6.67, 15]
	var delays []time.Duration
	r := NewRunner(
		WithMaxAttempts(4),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		}),
	)

	err := r.Do(context.Background(), func(ctx context.Context) error {
		return errBoom
	}, DelayedRetry(MatchAny()))
	assert.Equal(t, errBoom, err)
	require.Len(t, delays, 3)

	for i := 0; i < len(delays)-1; i++ {
		ratio := float64(delays[i+1]) / float64(delays[i])
		assert.GreaterOrEqual(t, ratio, 6.0, "delay %d -> %d", i, i+1)
		assert.LessOrEqual(t, ratio, 15.5, "delay %d -> %d", i, i+1)
	}

	// 首个等待在基础延迟的抖动区间内
	assert.GreaterOrEqual(t, delays[0], time.Duration(float64(DefaultBaseDelay)*DefaultJitterLow))
	assert.Less(t, delays[0], time.Duration(float64(DefaultBaseDelay)*DefaultJitterHigh))
}

func TestRunner_Getters(t *testing.T) {
	r := NewRunner(
		WithMaxAttempts(7),
		WithBaseDelay(80*time.Millisecond),
		WithMultiplier(4),
		WithJitterRange(0.5, 1.5),
	)

	assert.Equal(t, 7, r.MaxAttempts())
	assert.Equal(t, 80*time.Millisecond, r.BaseDelay())
	assert.InDelta(t, 4.0, r.Multiplier(), 0.0001)
	low, high := r.JitterRange()
	assert.InDelta(t, 0.5, low, 0.0001)
	assert.InDelta(t, 1.5, high, 0.0001)

	var nilRunner *Runner
	assert.Equal(t, 0, nilRunner.MaxAttempts())
	assert.Zero(t, nilRunner.BaseDelay())
	assert.Zero(t, nilRunner.Multiplier())
	low, high = nilRunner.JitterRange()
	assert.Zero(t, low)
	assert.Zero(t, high)
}

func TestRunner_OptionValidation(t *testing.T) {
	t.Run("InvalidBackoffOptionsKeepDefaults", func(t *testing.T) {
		r := NewRunner(
			WithBaseDelay(-time.Second),
			WithMultiplier(0.5),
			WithJitterRange(1.2, 0.8),
		)
		assert.Equal(t, DefaultBaseDelay, r.BaseDelay())
		assert.InDelta(t, DefaultMultiplier, r.Multiplier(), 0.0001)
		low, high := r.JitterRange()
		assert.InDelta(t, DefaultJitterLow, low, 0.0001)
		assert.InDelta(t, DefaultJitterHigh, high, 0.0001)
	})

	t.Run("NilCallbacksIgnored", func(t *testing.T) {
		r := NewRunner(
			WithOnRetry(nil),
			WithLogger(nil),
			WithRecorder(nil),
			WithSleep(nil),
		)
		assert.NotNil(t, r.recorder)
		assert.NotNil(t, r.sleep)
	})
}
