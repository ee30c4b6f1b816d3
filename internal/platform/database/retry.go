package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	retryMaxAttempts     = 3
	retryInitialInterval = 50 * time.Millisecond
	retryMaxInterval     = 500 * time.Millisecond
	retryMaxElapsedTime  = 3 * time.Second
)

// Retry 对一次存储操作进行有界的指数退避重试。
// 只有 IsRetryableError 认可的错误才会重试，其余错误立即返回。
func Retry[T any](ctx context.Context, op func(context.Context) (T, error)) (T, error) {
	var result T
	var lastErr error

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(retryInitialInterval),
		backoff.WithMaxInterval(retryMaxInterval),
		backoff.WithMaxElapsedTime(retryMaxElapsedTime),
	), retryMaxAttempts)

	err := backoff.Retry(func() error {
		var err error
		result, err = op(ctx)
		if err != nil {
			if !IsRetryableError(err) {
				return backoff.Permanent(err)
			}
			lastErr = err
			return err
		}
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		if lastErr != nil && errors.Is(err, lastErr) {
			return result, fmt.Errorf("存储操作重试后仍失败: %w", err)
		}
		return result, err
	}
	return result, nil
}
