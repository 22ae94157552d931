package xattempt

import (
	"context"
	"fmt"
	"strconv"
)

// Policy 定义分类规则匹配后的处置策略。
type Policy int

const (
	// PolicyIgnore 接受失败并停止执行，调用返回"无结果"。
	PolicyIgnore Policy = iota

	// PolicyRetry 立即重试，直到尝试次数耗尽后降级为传播。
	PolicyRetry

	// PolicyDelayedRetry 按退避延迟后重试，次数耗尽后降级为传播。
	PolicyDelayedRetry
)

// String 返回 Policy 的可读字符串表示，用于调试和日志输出。
func (p Policy) String() string {
	switch p {
	case PolicyIgnore:
		return "Ignore"
	case PolicyRetry:
		return "Retry"
	case PolicyDelayedRetry:
		return "DelayedRetry"
	default:
		return "Policy(" + strconv.Itoa(int(p)) + ")"
	}
}

// Predicate 分类谓词。
// 输入为当前失败（永远非 nil），返回是否匹配。
//
// 谓词在失败安全模式下求值：执行期间的 panic 被恢复并视为不匹配。
// 这允许谓词放心地做类型断言和字段解引用，而不必防御所有错误形状。
type Predicate func(err error) bool

// Action 匹配后执行的动作（清理资源、记录现场等）。
// 动作不是失败安全的：返回的非 nil 错误会替代正常流程向上传播。
type Action func(ctx context.Context, err error) error

// Handler 一条分类规则。
//
// 规则按声明顺序组成分类器链，逐条对当前失败求值，
// 首个匹配的规则生效，其后的规则不再求值。
// 通过 Ignore / Retry / DelayedRetry 构造。
type Handler struct {
	match   Predicate
	onMatch Action
	policy  Policy
}

// HandlerOption 分类规则的配置选项。
type HandlerOption func(*Handler)

// WithAction 设置匹配后执行的动作。
// 传入 nil 会被静默忽略。
func WithAction(a Action) HandlerOption {
	return func(h *Handler) {
		if a != nil {
			h.onMatch = a
		}
	}
}

// Ignore 构造"接受失败"规则：匹配后停止执行并返回无结果。
func Ignore(match Predicate, opts ...HandlerOption) Handler {
	return newHandler(PolicyIgnore, match, opts)
}

// Retry 构造"立即重试"规则。
func Retry(match Predicate, opts ...HandlerOption) Handler {
	return newHandler(PolicyRetry, match, opts)
}

// DelayedRetry 构造"退避后重试"规则。
func DelayedRetry(match Predicate, opts ...HandlerOption) Handler {
	return newHandler(PolicyDelayedRetry, match, opts)
}

// Policy 返回规则的处置策略。
func (h Handler) Policy() Policy {
	return h.policy
}

func newHandler(policy Policy, match Predicate, opts []HandlerOption) Handler {
	h := Handler{
		match:  match,
		policy: policy,
	}
	for _, opt := range opts {
		opt(&h)
	}
	return h
}

// validateChain 校验分类器链的配置。
// ignoreOnly 为 true 时（单次执行变体）只接受 PolicyIgnore 的规则。
// 配置失误在任何一次尝试执行之前报告。
func validateChain(handlers []Handler, ignoreOnly bool) error {
	for i := range handlers {
		if handlers[i].match == nil {
			return fmt.Errorf("%w: handler %d", ErrNilPredicate, i)
		}
		if ignoreOnly && handlers[i].policy != PolicyIgnore {
			return fmt.Errorf("%w: handler %d has policy %s", ErrPolicyNotAllowed, i, handlers[i].policy)
		}
	}
	return nil
}
