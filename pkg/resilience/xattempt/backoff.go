package xattempt

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"math"
	"time"
)

// 退避常量默认值。
// 等待时长 = delay × jitter，jitter 在 [jitterLow, jitterHigh) 内均匀分布；
// 每次延迟重试后 delay 乘以 multiplier 指数增长（与期间发生过多少次
// 非延迟重试无关）。三者均可通过 RunnerOption 覆盖。
const (
	// DefaultBaseDelay 首次延迟重试前的基础延迟。
	DefaultBaseDelay = 50 * time.Millisecond

	// DefaultMultiplier 每次延迟重试后的延迟增长乘数。
	DefaultMultiplier = 10.0

	// DefaultJitterLow 抖动区间下界。
	DefaultJitterLow = 0.8

	// DefaultJitterHigh 抖动区间上界（不含）。
	DefaultJitterHigh = 1.2
)

// backoffConfig 退避计算器的不可变配置，归属 Runner。
// 可变状态（当前 delay）在 attemptState 中按调用隔离。
type backoffConfig struct {
	baseDelay  time.Duration
	multiplier float64
	jitterLow  float64
	jitterHigh float64
}

func defaultBackoffConfig() backoffConfig {
	return backoffConfig{
		baseDelay:  DefaultBaseDelay,
		multiplier: DefaultMultiplier,
		jitterLow:  DefaultJitterLow,
		jitterHigh: DefaultJitterHigh,
	}
}

// backoffWait 执行一次退避等待并推进退避状态。
// 返回 false 表示等待被 ctx 取消打断。
//
// 等待完成后才放大 delay：下一次延迟重试使用放大后的值，
// 与两次延迟重试之间发生的立即重试次数无关。
func (r *Runner) backoffWait(ctx context.Context, st *attemptState) bool {
	wait := jitterDelay(st.delay, r.backoff.jitterLow, r.backoff.jitterHigh)

	r.recorder.Backoff(ctx, wait)
	if err := r.sleep(ctx, wait); err != nil {
		return false
	}

	st.delay = scaleDelay(st.delay, r.backoff.multiplier)
	return true
}

// jitterDelay 计算加抖动后的等待时长。
func jitterDelay(delay time.Duration, low, high float64) time.Duration {
	jitter := low + randomFloat64()*(high-low)
	d := float64(delay) * jitter
	// NaN/负数/溢出守卫：退避时长永远非负且不回绕。
	if math.IsNaN(d) || d < 0 {
		return 0
	}
	if d >= float64(math.MaxInt64) {
		return math.MaxInt64
	}
	return time.Duration(d)
}

// scaleDelay 按乘数放大延迟，溢出时钳制到 MaxInt64。
func scaleDelay(delay time.Duration, multiplier float64) time.Duration {
	d := float64(delay) * multiplier
	if math.IsNaN(d) || d < 0 {
		return 0
	}
	if d >= float64(math.MaxInt64) {
		return math.MaxInt64
	}
	return time.Duration(d)
}

// sleepContext 可被 ctx 打断的等待，Runner 的默认 sleep 实现。
// WithSleep 可在测试中替换此实现以消除真实等待。
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-t.C:
		return nil
	}
}

const (
	floatBits  = 53
	floatScale = 1.0 / (1 << floatBits)
)

// randomFloat64 返回 [0, 1) 内均匀分布的随机数，使用 crypto/rand。
func randomFloat64() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand 失败时返回 0，等待时长取抖动区间下界（安全默认值）
		return 0
	}
	return float64(binary.LittleEndian.Uint64(buf[:])>>11) * floatScale
}
