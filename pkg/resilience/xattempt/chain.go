package xattempt

import "context"

// disposition 一次失败经分类器链求值后的处置结果。
//
// 设计决策: 用显式的三态枚举取代 continue/return/rethrow 的隐式控制流，
// 让尝试循环中的所有状态转移都可穷举检查。成功路径在循环内直接
// 短路返回，不进入分类器链。
type disposition int

const (
	// dispositionPropagate 致命：无规则匹配，或重试次数已耗尽。
	dispositionPropagate disposition = iota

	// dispositionSuppress PolicyIgnore 规则匹配，停止执行并返回无结果。
	dispositionSuppress

	// dispositionContinue 重试类规则匹配且还有剩余次数，继续循环。
	dispositionContinue
)

// evaluateChain 对当前失败按声明顺序求值分类器链。
//
// 返回值:
//   - disposition: 处置结果
//   - error: 动作执行失败时的错误，非 nil 时替代正常流程向上传播
//
// 首个匹配的规则生效。匹配后先执行动作（如有）；动作出错立即返回，
// 不再产生处置结果。重试类规则在最后一次尝试（st.attempt == max）
// 上即使匹配也降级为传播，保证最坏情况下的尝试次数和总延迟有确定上界。
func (r *Runner) evaluateChain(ctx context.Context, st *attemptState, failure error, handlers []Handler) (disposition, error) {
	for i := range handlers {
		h := &handlers[i]
		if !safeMatch(h.match, failure) {
			continue
		}
		if h.onMatch != nil {
			if aerr := h.onMatch(ctx, failure); aerr != nil {
				return dispositionPropagate, aerr
			}
		}
		switch h.policy {
		case PolicyIgnore:
			return dispositionSuppress, nil
		case PolicyRetry, PolicyDelayedRetry:
			if st.attempt >= st.maxAttempts {
				return dispositionPropagate, nil
			}
			if h.policy == PolicyDelayedRetry {
				if !r.backoffWait(ctx, st) {
					// ctx 在退避等待中被取消：停止循环并传播原始失败，
					// 保持错误身份不变。取消原因可由调用方从 ctx 获取。
					return dispositionPropagate, nil
				}
			}
			return dispositionContinue, nil
		default:
			return dispositionPropagate, nil
		}
	}
	return dispositionPropagate, nil
}

// safeMatch 失败安全地求值谓词。
//
// 谓词经常对形状未知的错误值做类型断言和字段解引用，
// 求值期间的 panic 被恢复并视为不匹配，继续下一条规则——
// 谓词自身的问题绝不允许掩盖原始失败。
func safeMatch(p Predicate, failure error) (matched bool) {
	defer func() {
		if recover() != nil {
			matched = false
		}
	}()
	return p(failure)
}
