package audit

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

const (
	maxWriteAttempts    = 3
	initialWriteBackoff = 100 * time.Millisecond
	maxWriteBackoff     = time.Second
)

var (
	authErrorMarkers = []string{
		"authentication failed",
		"invalid credentials",
		"wrong password",
		"unknown user",
		"unauthorized",
		"access denied",
		"code: 193",
		"code: 194",
		"code: 497",
		"code: 516",
	}
	transientErrorMarkers = []string{
		"timeout",
		"eof",
		"broken pipe",
		"connection reset",
		"connection refused",
		"connection closed",
		"use of closed network connection",
		"no route to host",
		"no such host",
	}
)

type retryPolicy struct {
	attempts int
	backoff  time.Duration
	max      time.Duration
	sleep    func(context.Context, time.Duration) error
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		attempts: maxWriteAttempts,
		backoff:  initialWriteBackoff,
		max:      maxWriteBackoff,
		sleep:    sleepContext,
	}
}

// withRetry runs fn until it succeeds, fails permanently, or runs out of
// attempts. Auth errors are never retried.
func withRetry(ctx context.Context, p retryPolicy, fn func() error) error {
	if p.attempts <= 0 {
		p.attempts = 1
	}
	if p.sleep == nil {
		p.sleep = sleepContext
	}
	backoff := p.backoff

	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if isAuthError(err) || !isTransient(err) || attempt == p.attempts {
			return err
		}
		if err := p.sleep(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
		if p.max > 0 && backoff > p.max {
			backoff = p.max
		}
	}
	return lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

func isAuthError(err error) bool {
	var chErr *clickhouse.Exception
	if errors.As(err, &chErr) {
		switch chErr.Code {
		case 193, 194, 497, 516:
			return true
		}
	}
	return containsAny(err, authErrorMarkers)
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return containsAny(err, transientErrorMarkers)
}

func containsAny(err error, markers []string) bool {
	text := strings.ToLower(err.Error())
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}
