// Package retry 提供了一个统一的重试策略，用于 embedding 与生成服务的瞬时故障。
// 策略覆盖：有限次尝试、指数退避、抖动、以及可重试错误判定。
package retry

import (
	"context"
	"math/rand"
	"time"

	"courseqa-go/pkg/log"
)

// Policy 描述一次重试策略：最大尝试次数、基础间隔与间隔上限。
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Default 返回管线默认策略：3 次尝试，500ms 起步指数退避。
func Default() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second}
}

// Do 执行 fn，失败且 retryable 判定为可重试时按指数退避 + 抖动重试。
// 校验类错误应当让 retryable 返回 false，立即失败不再尝试。
// 返回最后一次的错误；ctx 取消时立即返回 ctx.Err()。
func (p Policy) Do(ctx context.Context, op string, retryable func(error) bool, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		delay := p.backoff(attempt)
		log.Warnf("[Retry] %s 第 %d/%d 次尝试失败, %s 后重试: %v", op, attempt, attempts, delay, lastErr)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

// backoff 计算第 attempt 次失败后的等待间隔：base * 2^(attempt-1) 加最多 50% 的抖动。
func (p Policy) backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	delay := base << uint(attempt-1)
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 8 * time.Second
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	return delay + jitter
}
