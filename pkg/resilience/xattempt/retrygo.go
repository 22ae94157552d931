package xattempt

import (
	"time"

	retry "github.com/avast/retry-go/v5"
)

// 本文件提供到 avast/retry-go/v5 的适配，供已经标准化在 retry-go 上的
// 代码复用分类器链与退避常量，渐进迁移到 xattempt。
//
// 语义差异（适配的固有损耗，而非缺陷）：
//   - retry-go 没有"接受失败"的处置通道，PolicyIgnore 的规则在
//     ToRetryIf 中映射为"停止重试"，错误仍会返回给调用方；
//   - retry-go 的延迟按尝试序号无状态计算，ToDelayType 产出的序列
//     与引擎逐次放大的序列同分布但抖动样本独立。
// 需要完整语义时请直接使用 Runner.Do。

// ToRetryIf 将分类器链适配为 retry-go 的 RetryIf 函数。
// 返回 true 当且仅当首个匹配规则的策略为 PolicyRetry 或
// PolicyDelayedRetry。谓词求值保持失败安全。规则的动作不会被执行。
func ToRetryIf(handlers ...Handler) retry.RetryIfFunc {
	chain := make([]Handler, len(handlers))
	copy(chain, handlers)
	return func(err error) bool {
		for i := range chain {
			h := &chain[i]
			if h.match == nil || !safeMatch(h.match, err) {
				continue
			}
			return h.policy == PolicyRetry || h.policy == PolicyDelayedRetry
		}
		return false
	}
}

// ToDelayType 将退避常量适配为 retry-go 的 DelayType 函数。
// n 为 1-based 尝试序号：delay = base × multiplier^(n-1) × jitter。
func ToDelayType(opts ...RunnerOption) retry.DelayTypeFunc {
	cfg := NewRunner(opts...).backoff
	return func(n uint, _ error, _ retry.DelayContext) time.Duration {
		delay := cfg.baseDelay
		for i := uint(1); i < n; i++ {
			delay = scaleDelay(delay, cfg.multiplier)
		}
		return jitterDelay(delay, cfg.jitterLow, cfg.jitterHigh)
	}
}

// ToRetryOptions 将执行器配置与分类器链整体适配为 retry-go 选项。
// 产出 Attempts、RetryIf、DelayType、LastErrorOnly 四项。
//
// 示例:
//
//	err := retry.New(xattempt.ToRetryOptions(r, handlers...)...).Do(fn)
func ToRetryOptions(r *Runner, handlers ...Handler) []retry.Option {
	if r == nil {
		r = NewRunner()
	}
	attempts := r.maxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return []retry.Option{
		retry.Attempts(uint(attempts)),
		retry.RetryIf(ToRetryIf(handlers...)),
		retry.DelayType(ToDelayType(
			WithBaseDelay(r.backoff.baseDelay),
			WithMultiplier(r.backoff.multiplier),
			WithJitterRange(r.backoff.jitterLow, r.backoff.jitterHigh),
		)),
		// 只返回最后一个错误，与引擎的身份传播约定对齐
		retry.LastErrorOnly(true),
	}
}
