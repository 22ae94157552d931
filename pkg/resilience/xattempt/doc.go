// Package xattempt 提供基于分类器链的重试执行引擎。
//
// # 设计理念
//
// 与"一刀切"的重试库不同，xattempt 要求调用方显式声明哪些失败可以被
// 忽略、哪些失败值得重试：
//   - Handler：一条分类规则（谓词 + 策略 + 可选动作）
//   - 分类器链按声明顺序求值，首个匹配的规则生效
//   - 未被任何规则匹配的失败原样向上传播（不包装、不改写）
//
// 默认传播是本包的核心正确性保证：疏忽遗漏的失败不会被静默吞掉，
// 调用方在引擎外看到的错误值与直接调用操作完全一致。
//
// # 三种策略
//
//   - PolicyIgnore：接受失败，调用返回"无结果"（error 视为 nil）
//   - PolicyRetry：立即重试，直到尝试次数耗尽
//   - PolicyDelayedRetry：按指数退避延迟后重试
//
// # 失败安全的谓词求值
//
// 谓词经常需要探查形状未知的错误值（类型断言、解引用嵌套字段）。
// 谓词执行期间的 panic 会被恢复并视为"不匹配"，继续求值下一条规则，
// 确保谓词自身的问题不会掩盖原始失败。动作（Action）不享受此保护：
// 动作返回的错误会替代正常流程向上传播——此时调用方已显式接管局面。
//
// # 使用方式
//
// 方式一：使用 Runner（推荐，可复用配置）
//
//	r := xattempt.NewRunner(
//	    xattempt.WithMaxAttempts(4),
//	    xattempt.WithBaseDelay(50*time.Millisecond),
//	)
//	err := r.Do(ctx, op,
//	    xattempt.DelayedRetry(xattempt.MatchCode(503)),
//	    xattempt.Ignore(xattempt.MatchCode(404)),
//	)
//
// 方式二：包级便捷函数
//
//	err := xattempt.RunWithRetry(ctx, 4, op,
//	    xattempt.Retry(xattempt.MatchTimeout()),
//	)
//
// 单次执行变体 RunProtected 只接受 PolicyIgnore 的规则，
// 等价于 maxAttempts = 1 的受限特化。
//
// # 退避策略
//
// 延迟重试的等待时长为 delay × jitter，jitter 在 [0.8, 1.2) 内均匀分布，
// 每次延迟重试后 delay 按固定乘数（默认 10）指数增长。基础延迟、乘数、
// 抖动区间均可通过 RunnerOption 覆盖。抖动随机数使用 crypto/rand 生成。
//
// # 互操作
//
//   - ToRetryIf / ToDelayType / ToRetryOptions：将分类器链适配为
//     [avast/retry-go/v5] 的选项，供已使用 retry-go 的代码渐进迁移
//   - BreakerRunner：与 [sony/gobreaker/v2] 组合，熔断打开时快速失败
//   - NewOTelRecorder：基于 OpenTelemetry 的尝试/退避指标
//   - ParseSettings / LoadSettings：从 YAML/JSON 加载引擎配置（koanf）
//
// [avast/retry-go/v5]: https://github.com/avast/retry-go
// [sony/gobreaker/v2]: https://github.com/sony/gobreaker
package xattempt
