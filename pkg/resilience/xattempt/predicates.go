package xattempt

import (
	"context"
	"errors"
	"net"
)

// Classifiable 可选的失败分类能力。
//
// 引擎自身对失败的结构保持无知，分类永远由调用方的谓词完成。
// 实现此接口的错误类型可以用统一的 Code 访问器和 MatchCode 谓词分类，
// 免去每个谓词手写 errors.As。
type Classifiable interface {
	error

	// FaultCode 返回失败的分类码（HTTP 状态码、后端错误码等）。
	FaultCode() int
}

// Code 提取错误的分类码。
// 沿错误链查找首个 Classifiable 实现；找不到时返回 (0, false)。
// 提取过程是失败安全的：FaultCode 实现中的 panic 被视为不可分类。
func Code(err error) (code int, ok bool) {
	defer func() {
		if recover() != nil {
			code, ok = 0, false
		}
	}()
	var c Classifiable
	if errors.As(err, &c) {
		return c.FaultCode(), true
	}
	return 0, false
}

// MatchAny 构造匹配一切失败的谓词。
// 配合 Retry 使用即退化为无分类的盲目重试，慎用。
func MatchAny() Predicate {
	return func(error) bool {
		return true
	}
}

// MatchErrorIs 构造基于 errors.Is 的谓词。
func MatchErrorIs(target error) Predicate {
	return func(err error) bool {
		return errors.Is(err, target)
	}
}

// MatchErrorAs 构造基于 errors.As 的谓词，匹配错误链中的指定类型。
func MatchErrorAs[T error]() Predicate {
	return func(err error) bool {
		var t T
		return errors.As(err, &t)
	}
}

// MatchCode 构造按分类码匹配的谓词，参见 Classifiable。
func MatchCode(want int) Predicate {
	return func(err error) bool {
		code, ok := Code(err)
		return ok && code == want
	}
}

// MatchCodeFunc 构造按分类码谓词函数匹配的谓词。
// 适用于"码在某个区间内"之类的条件：
//
//	xattempt.DelayedRetry(xattempt.MatchCodeFunc(func(code int) bool {
//	    return code >= 500
//	}))
func MatchCodeFunc(f func(code int) bool) Predicate {
	return func(err error) bool {
		if f == nil {
			return false
		}
		code, ok := Code(err)
		return ok && f(code)
	}
}

// MatchTimeout 构造匹配超时类失败的谓词：
// net.Error 且 Timeout() 为真，或 context.DeadlineExceeded。
func MatchTimeout() Predicate {
	return func(err error) bool {
		if errors.Is(err, context.DeadlineExceeded) {
			return true
		}
		var ne net.Error
		return errors.As(err, &ne) && ne.Timeout()
	}
}
