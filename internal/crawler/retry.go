package crawler

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"net"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls the exponential backoff schedule.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

// DefaultRetryConfig mirrors the crawl pipeline defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// RetryStats records what one Run did, for result bookkeeping and tests.
type RetryStats struct {
	Attempts int
	Delays   []time.Duration
}

// RetryablePredicate classifies an error as transient (retry) or not.
type RetryablePredicate func(error) bool

// RetryExecutor wraps fallible operations in a predicate-gated exponential
// backoff loop. It holds no shared state beyond its configuration, so one
// executor may serve many goroutines.
type RetryExecutor struct {
	cfg    RetryConfig
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetryExecutor builds an executor. Zero or negative config fields fall
// back to defaults.
func NewRetryExecutor(cfg RetryConfig, logger *zap.Logger) *RetryExecutor {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryExecutor{
		cfg:    cfg,
		logger: logger,
		sleep:  timerSleep,
	}
}

// Run executes op until it succeeds, fails non-transiently, or the attempt
// cap is reached. The returned stats always reflect every attempt made and
// the backoff delays that were scheduled between them.
func (e *RetryExecutor) Run(
	ctx context.Context,
	op func(context.Context) error,
	retryable RetryablePredicate,
) (RetryStats, error) {
	if retryable == nil {
		retryable = IsTransient
	}
	stats := RetryStats{}
	var lastErr error

	for attempt := 0; attempt < e.cfg.MaxAttempts; attempt++ {
		stats.Attempts++
		lastErr = op(ctx)
		if lastErr == nil {
			return stats, nil
		}
		if ctx.Err() != nil {
			// The request itself is done; backing off would only hold
			// resources past the deadline.
			return stats, lastErr
		}
		if !retryable(lastErr) || attempt == e.cfg.MaxAttempts-1 {
			return stats, lastErr
		}

		delay := e.backoff(attempt)
		stats.Delays = append(stats.Delays, delay)
		e.logger.Debug("retrying after transient error",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(lastErr),
		)
		if err := e.sleep(ctx, delay); err != nil {
			return stats, lastErr
		}
	}
	return stats, lastErr
}

func (e *RetryExecutor) backoff(attempt int) time.Duration {
	delay := e.cfg.BaseDelay << uint(attempt)
	if delay > e.cfg.MaxDelay || delay <= 0 {
		delay = e.cfg.MaxDelay
	}
	if e.cfg.Jitter {
		delay = delay/2 + randomJitter(delay/2)
	}
	return delay
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// IsTransient reports whether an error looks like a recoverable network
// condition: a timeout or a reset/broken connection. Cancellation of the
// surrounding request is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		// A per-attempt deadline, as opposed to request cancellation,
		// which Run checks separately.
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return false
}

func timerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
