package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// retryBase задаёт первую задержку между попытками.
var retryBase = time.Second

// withRetry повторяет операцию с экспоненциальной задержкой, пока classify считает ошибку временной.
func withRetry(ctx context.Context, classify func(error) bool, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.WithCappedDuration(5*time.Second, retry.NewFibonacci(retryBase)))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		// Ошибка контекста: выходим сразу
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if classify(err) || isConnectionError(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func isConnectionError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer")
}
