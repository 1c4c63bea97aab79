package chain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"

	"github.com/stampchain-io/vault-plugin-stamps/electrum"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = time.Second
)

// RetryPolicy retries transient failures with a constant delay.
type RetryPolicy struct {
	// MaxAttempts counts the first try. Defaults to DefaultMaxAttempts.
	MaxAttempts int
	Delay       time.Duration

	// OnRetry is called before each new attempt.
	OnRetry func(op string, attempt int, err error)

	Logger hclog.Logger
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Delay <= 0 {
		p.Delay = DefaultRetryDelay
	}
	if p.Logger == nil {
		p.Logger = hclog.NewNullLogger()
	}
	return p
}

// Do runs fn until it succeeds, returns a non-transient error, or the
// attempts are used up. Exhaustion returns ErrTransientIO wrapping the
// last error.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	p = p.withDefaults()

	var (
		attempt int
		lastErr error
	)
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(p.MaxAttempts-1)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		p.Logger.Warn("transient provider error, retrying", "op", op, "attempt", attempt, "wait", wait, "error", err)
		if p.OnRetry != nil {
			p.OnRetry(op, attempt, err)
		}
	}

	err := backoff.RetryNotify(func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, notify)
	if err == nil {
		return nil
	}

	if lastErr != nil && IsTransient(lastErr) && ctx.Err() == nil {
		return fmt.Errorf("%w: %s failed after %d attempts: %w", ErrTransientIO, op, attempt, lastErr)
	}
	return err
}

// statusCoder is implemented by HTTP status errors.
type statusCoder interface {
	StatusCode() int
}

// IsTransient reports whether err is worth retrying: dropped or refused
// connections, timeouts, and HTTP 429 or 5xx responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		return code == 429 || code >= 500
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, electrum.ErrClosed) || errors.Is(err, electrum.ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Errors that crossed a process or library boundary as text.
	errStr := err.Error()
	return strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "i/o timeout")
}
