package retry

import (
	"errors"
	"fmt"
)

// ErrExhausted 达到最大尝试次数仍未成功
var ErrExhausted = errors.New("retry attempts exhausted")

// Do 执行 fn 直到成功、返回不可重试的错误或达到 maxAttempts。
//
// attempt 从 1 开始计数。retryable 为 nil 时所有错误都可重试。
// 次数耗尽时返回的错误同时包装 ErrExhausted 和最后一次的错误。
func Do(maxAttempts int, retryable func(error) bool, fn func(attempt int) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var last error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		last = err
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, maxAttempts, last)
}
