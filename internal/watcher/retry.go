package watcher

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	defaultRetryBackoff = 100 * time.Millisecond
	maxRetryBackoff     = 30 * time.Second
)

// retryPolicy retries an RPC with exponential backoff.
type retryPolicy struct {
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
}

func (p retryPolicy) do(ctx context.Context, op string, fn func(context.Context) error, fields ...zap.Field) error {
	retries := p.maxRetries
	if retries < 0 {
		retries = 0
	}
	delay := p.backoff
	if delay <= 0 {
		delay = defaultRetryBackoff
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if p.logger != nil {
			p.logger.Warn(op+" failed", append(fields, zap.Int("attempt", attempt+1), zap.Error(err))...)
		}
		if attempt >= retries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if delay < maxRetryBackoff {
			delay *= 2
		}
	}
}
