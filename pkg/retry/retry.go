// Package retry repeats calls that fail with transient errors, backing off
// exponentially between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// SleepFunc waits for d or until ctx is done, returning a non-nil error in
// the latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config defines retry behavior with exponential backoff.
type Config struct {
	MaxRetries       int // Retries after the first call; 0 calls once
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	Multiplier       float64
	JitterFactor     float64 // 0.0-1.0, e.g. 0.1 for +/-10%
	MaxSameErrorType int     // Stop after N consecutive failures in one category; 0 disables

	// Sleep replaces the timer between attempts.
	Sleep SleepFunc
	// OnRetry is called before each wait with the failed attempt number (1-based).
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns defaults for calls to the model endpoint:
// 3 retries starting at 100ms, doubling, capped at 5s, with 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:       3,
		InitialDelay:     100 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.1,
		MaxSameErrorType: 5,
	}
}

// Delay returns the un-jittered wait after the given failed attempt (1-based).
func (c *Config) Delay(attempt int) time.Duration {
	d := float64(c.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= c.Multiplier
		if c.MaxDelay > 0 && d >= float64(c.MaxDelay) {
			return c.MaxDelay
		}
	}
	if c.MaxDelay > 0 && d > float64(c.MaxDelay) {
		return c.MaxDelay
	}
	return time.Duration(d)
}

func jitter(d time.Duration, factor float64) time.Duration {
	if factor <= 0 || d <= 0 {
		return d
	}
	return time.Duration(float64(d) * (1 + factor*(rand.Float64()*2-1)))
}

func timerSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do calls fn until it succeeds, fails with a non-retryable error, fails
// MaxSameErrorType times in a row with the same category, or the retries
// run out. The last result and error are returned.
func Do[T any](ctx context.Context, cfg *Config, fn func(ctx context.Context) (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = timerSleep
	}

	var (
		result    T
		err       error
		lastClass string
		sameCount int
	)

	for attempt := 1; ; attempt++ {
		result, err = fn(ctx)
		if err == nil || !IsRetryable(err) {
			return result, err
		}

		class := Classify(err)
		if class == lastClass {
			sameCount++
		} else {
			lastClass, sameCount = class, 1
		}
		if cfg.MaxSameErrorType > 0 && sameCount >= cfg.MaxSameErrorType {
			return result, fmt.Errorf("repeated error (%d times, type=%s): %w", sameCount, class, err)
		}

		if attempt > cfg.MaxRetries {
			return result, err
		}

		delay := jitter(cfg.Delay(attempt), cfg.JitterFactor)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return result, serr
		}
	}
}

// RetryableError is implemented by errors that know whether repeating the
// call could succeed. It takes precedence over message matching.
type RetryableError interface {
	error
	IsRetryable() bool
}

// transientFailures maps lower-case message fragments to a failure category.
// Order matters: the first match wins.
var transientFailures = []struct {
	fragment string
	class    string
}{
	{"429", "429"},
	{"rate limit", "rate_limit"},
	{"too many requests", "rate_limit"},
	{"500", "500"},
	{"502", "502"},
	{"503", "503"},
	{"504", "504"},
	{"service unavailable", "503"},
	{"service busy", "503"},
	{"connection refused", "connection"},
	{"connection reset", "connection"},
	{"network is unreachable", "connection"},
	{"no such host", "dns"},
	{"temporary failure", "dns"},
	{"broken pipe", "broken_pipe"},
	{"unexpected eof", "broken_pipe"},
	{"timeout", "timeout"},
	{"timed out", "timeout"},
	{"cuda error", "gpu"},
	{"gpu error", "gpu"},
	{"out of memory", "oom"},
}

// IsRetryable reports whether err is transient. Cancellation never is. An
// error in the chain implementing RetryableError decides; otherwise the
// message is matched against known transient failures.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	return Classify(err) != "unknown"
}

// Classify names the failure category of err, e.g. "503", "timeout" or
// "connection". Unrecognised errors are "unknown".
func Classify(err error) string {
	if err == nil {
		return "nil"
	}
	msg := strings.ToLower(err.Error())
	for _, f := range transientFailures {
		if strings.Contains(msg, f.fragment) {
			return f.class
		}
	}
	return "unknown"
}
