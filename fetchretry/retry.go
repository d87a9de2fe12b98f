// Package fetchretry wraps a single fetch or render attempt with bounded
// retries. Attempt outcomes are explicit values, not raised-and-caught
// errors: an attempt either succeeds, fails transiently (worth retrying),
// or fails fatally (retrying cannot help).
package fetchretry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Class partitions attempt failures.
type Class int

const (
	Success Class = iota
	Retryable
	Fatal
)

// Result is one attempt's outcome.
type Result struct {
	Class Class
	Err   error
}

// Succeed reports a successful attempt.
func Succeed() Result { return Result{Class: Success} }

// Retry reports a transient failure.
func Retry(err error) Result { return Result{Class: Retryable, Err: err} }

// Abort reports a failure that retrying cannot fix.
func Abort(err error) Result { return Result{Class: Fatal, Err: err} }

// FetchFailedError is returned once retries are exhausted. Callers convert
// it into a failed page outcome; it never aborts a run.
type FetchFailedError struct {
	Attempts int
	Err      error
}

func (e *FetchFailedError) Error() string {
	return fmt.Sprintf("fetch failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *FetchFailedError) Unwrap() error { return e.Err }

// Policy bounds the retry loop.
type Policy struct {
	MaxRetries int
	Delay      time.Duration // base delay between attempts
	MaxDelay   time.Duration
}

// Do invokes fn up to MaxRetries+1 times. Retryable failures sleep an
// exponentially growing delay between attempts; fatal failures return
// immediately. Exhausting retries yields a FetchFailedError.
func (p Policy) Do(ctx context.Context, fn func(attempt int) Result) error {
	var last error
	attempts := 0
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return &FetchFailedError{Attempts: attempts, Err: err}
		}
		attempts++
		res := fn(attempt)
		switch res.Class {
		case Success:
			return nil
		case Fatal:
			return &FetchFailedError{Attempts: attempts, Err: res.Err}
		}
		last = res.Err
		if attempt < p.MaxRetries {
			delay := p.backoff(attempt + 1)
			slog.Debug("retrying fetch",
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
				slog.Any("error", res.Err),
			)
			if !sleep(ctx, delay) {
				return &FetchFailedError{Attempts: attempts, Err: ctx.Err()}
			}
		}
	}
	return &FetchFailedError{Attempts: attempts, Err: last}
}

func (p Policy) backoff(attempt int) time.Duration {
	base := p.Delay
	if base <= 0 {
		base = time.Second
	}
	delay := base * time.Duration(1<<(attempt-1))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Classify maps a transport error and HTTP status to an attempt result.
// Timeouts, connection failures, 429 and 5xx responses are transient;
// other 4xx responses and malformed requests are fatal.
func Classify(err error, statusCode int) Result {
	if err == nil && (statusCode == 0 || statusCode < http.StatusBadRequest) {
		return Succeed()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Retry(ErrTimeout{Err: err})
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Retry(ErrTimeout{Err: err})
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return Retry(ErrConnection{Err: err})
	}

	if statusCode >= http.StatusBadRequest {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		herr := ErrHTTPStatus{Status: statusCode, Err: wrapped}
		if statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError {
			return Retry(herr)
		}
		return Abort(herr)
	}

	if err != nil {
		return Retry(err)
	}
	return Succeed()
}
