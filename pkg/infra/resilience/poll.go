package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/kart-io/logger"
)

// ErrPollTimeout 轮询在期限内未观察到完成条件。
var ErrPollTimeout = errors.New("poll deadline exceeded")

// PollConfig 轮询配置。
type PollConfig struct {
	// Timeout 总等待上限，<=0 表示只受 ctx 约束。
	Timeout time.Duration
	// InitialInterval 首次检查失败后的等待。
	InitialInterval time.Duration
	// MaxInterval 检查间隔上限。
	MaxInterval time.Duration
	// Multiplier 间隔增长因子。
	Multiplier float64
}

// DefaultPollConfig 返回默认轮询配置。
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Timeout:         10 * time.Minute,
		InitialInterval: 2 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      1.5,
	}
}

// PollUntil 反复调用 cond 直到返回 true。cond 返回错误时立即停止并透传该错误；
// 超过 Timeout 返回 ErrPollTimeout；外层 ctx 取消时返回 ctx.Err()。
func PollUntil(ctx context.Context, cfg PollConfig, cond func(ctx context.Context) (bool, error)) error {
	pollCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	interval := cfg.InitialInterval
	if interval <= 0 {
		interval = time.Second
	}

	for checks := 1; ; checks++ {
		done, err := cond(pollCtx)
		if err != nil {
			if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) && pollCtx.Err() != nil {
				return ErrPollTimeout
			}
			return err
		}
		if done {
			logger.Debugw("poll condition satisfied", "checks", checks)
			return nil
		}

		if err := sleep(pollCtx, interval); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warnw("poll timed out", "checks", checks, "timeout", cfg.Timeout.String())
			return ErrPollTimeout
		}
		interval = nextDelay(interval, cfg.Multiplier, cfg.MaxInterval)
	}
}
