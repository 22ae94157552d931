package xattempt

import "context"

// RunProtected 运行一次操作，失败时按序求值只含 PolicyIgnore 的分类器链。
// 首个匹配的规则生效：执行动作（如有）后返回 nil。
// 无规则匹配时原样返回该失败。链中出现非 Ignore 策略视为配置错误。
//
// 空链的 RunProtected 等价于直接调用操作。
func RunProtected(ctx context.Context, op func(ctx context.Context) error, handlers ...Handler) error {
	return NewRunner(WithMaxAttempts(1)).DoProtected(ctx, op, handlers...)
}

// RunProtectedWithResult 带返回值的单次执行变体。
// 被接受的失败返回 T 的零值和 nil 错误（与 DoWithResult 的约定一致）。
func RunProtectedWithResult[T any](ctx context.Context, fn func(ctx context.Context) (T, error), handlers ...Handler) (T, error) {
	var zero T
	if fn == nil {
		return zero, ErrNilFunc
	}
	if err := validateChain(handlers, true); err != nil {
		return zero, err
	}
	return DoWithResult(ctx, NewRunner(WithMaxAttempts(1)), fn, handlers...)
}

// RunWithRetry 以 maxAttempts 为上限在分类器链的监督下重复执行操作。
// 其余配置取默认值，需要定制退避或日志时请使用 NewRunner。
//
// maxAttempts 必须为正整数，否则在任何一次尝试执行之前返回
// ErrInvalidMaxAttempts。
func RunWithRetry(ctx context.Context, maxAttempts int, op func(ctx context.Context) error, handlers ...Handler) error {
	return NewRunner(WithMaxAttempts(maxAttempts)).Do(ctx, op, handlers...)
}

// RunWithRetryResult 带返回值的重复执行变体。
func RunWithRetryResult[T any](ctx context.Context, maxAttempts int, fn func(ctx context.Context) (T, error), handlers ...Handler) (T, error) {
	return DoWithResult(ctx, NewRunner(WithMaxAttempts(maxAttempts)), fn, handlers...)
}
