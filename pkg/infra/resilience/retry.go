package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/logger"
)

// RetryConfig 重试配置。
type RetryConfig struct {
	// MaxAttempts 最大尝试次数（包括首次调用）。
	MaxAttempts int
	// InitialDelay 首次重试前的等待。
	InitialDelay time.Duration
	// MaxDelay 单次等待上限。
	MaxDelay time.Duration
	// Multiplier 指数退避因子。
	Multiplier float64
	// Retryable 判断错误是否值得重试，nil 表示全部重试。
	Retryable func(error) bool
}

// DefaultRetryConfig 返回默认重试配置。
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// nextDelay 计算下一次等待时间。
func nextDelay(cur time.Duration, multiplier float64, limit time.Duration) time.Duration {
	if multiplier < 1 {
		multiplier = 1
	}
	next := time.Duration(float64(cur) * multiplier)
	if limit > 0 && next > limit {
		next = limit
	}
	return next
}

// RetryWithBackoff 以指数退避执行 fn，直到成功、错误不可重试、次数耗尽或 ctx 结束。
func RetryWithBackoff(ctx context.Context, cfg *RetryConfig, fn func(ctx context.Context) error) error {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := cfg.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if cfg.Retryable != nil && !cfg.Retryable(lastErr) {
			logger.Debugw("error is not retryable", "error", lastErr.Error())
			return lastErr
		}
		if attempt == attempts {
			break
		}

		logger.Debugw("retrying after delay",
			"attempt", attempt,
			"delay", delay.String(),
			"error", lastErr.Error(),
		)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
		delay = nextDelay(delay, cfg.Multiplier, cfg.MaxDelay)
	}

	logger.Warnw("max retry attempts reached", "attempts", attempts, "error", lastErr.Error())
	return fmt.Errorf("max retry attempts (%d) reached: %w", attempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
