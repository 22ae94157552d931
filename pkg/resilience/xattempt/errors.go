package xattempt

import "errors"

// 参数校验错误
var (
	// ErrNilRunner 传入的 Runner 为 nil
	ErrNilRunner = errors.New("xattempt: runner cannot be nil")

	// ErrNilContext 传入的 context 为 nil
	ErrNilContext = errors.New("xattempt: context cannot be nil")

	// ErrNilFunc 传入的操作函数为 nil
	ErrNilFunc = errors.New("xattempt: function cannot be nil")

	// ErrNilPredicate 分类规则的谓词为 nil
	ErrNilPredicate = errors.New("xattempt: handler predicate cannot be nil")

	// ErrInvalidMaxAttempts 最大尝试次数必须为正整数
	ErrInvalidMaxAttempts = errors.New("xattempt: max attempts must be positive")

	// ErrPolicyNotAllowed 单次执行变体只接受 PolicyIgnore 的规则
	ErrPolicyNotAllowed = errors.New("xattempt: policy not allowed in protected execution")

	// ErrNilBreaker 传入的 BreakerRunner 为 nil
	ErrNilBreaker = errors.New("xattempt: breaker runner cannot be nil")
)

// 设计决策: 以上错误只覆盖引擎自身的配置失误（在任何一次尝试执行之前
// 即可检出并返回）。操作产生的失败永远不会被本包包装或改写——
// 调用方依赖 errors.Is/errors.As 对原始错误值做上游匹配。
