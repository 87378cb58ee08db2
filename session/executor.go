// Package session runs browser-dependent actions against a live session,
// transparently renewing expired or wedged sessions and retrying failures
// with exponential backoff.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/stickermatch/browser"
)

// ErrNoAttempts is returned when Execute is called with a retry bound of
// zero or less.
var ErrNoAttempts = errors.New("session: max retries must be positive")

// Opener creates a fresh, ready-to-use driver session. Implementations
// typically open a new page on the browser manager and perform login.
type Opener interface {
	OpenSession(ctx context.Context) (browser.Driver, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context) (browser.Driver, error)

func (f OpenerFunc) OpenSession(ctx context.Context) (browser.Driver, error) { return f(ctx) }

// Action is a browser-dependent operation run under the executor.
type Action func(ctx context.Context, d browser.Driver) error

// Config configures the executor.
type Config struct {
	// MaxAge is the maximum session age before forced renewal.
	// Default: 30m.
	MaxAge time.Duration

	// MaxRetries bounds attempts per Execute call. Default: 3.
	MaxRetries int

	// BackoffUnit scales the 2^attempt sleep between retries.
	// Default: 1s. Tests shrink it.
	BackoffUnit time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxAge <= 0 {
		c.MaxAge = 30 * time.Minute
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffUnit <= 0 {
		c.BackoffUnit = time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Executor owns one logical session and serializes actions against it.
// Session validity is checked before every action: age beyond MaxAge or a
// failed liveness probe each independently force renewal through the
// Opener.
type Executor struct {
	cfg    Config
	opener Opener

	mu        sync.Mutex
	drv       browser.Driver
	createdAt time.Time
}

// New creates an Executor over the given session opener.
func New(opener Opener, cfg Config) *Executor {
	cfg.defaults()
	return &Executor{cfg: cfg, opener: opener}
}

// Execute runs the action with the configured retry bound.
func (e *Executor) Execute(ctx context.Context, action Action) error {
	return e.ExecuteN(ctx, action, e.cfg.MaxRetries)
}

// ExecuteN runs the action, ensuring a valid session before each attempt
// and retrying on failure with 2^attempt backoff, up to maxRetries
// attempts. The final error wraps the last observed failure and names the
// attempt count.
func (e *Executor) ExecuteN(ctx context.Context, action Action, maxRetries int) error {
	if maxRetries <= 0 {
		return ErrNoAttempts
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		drv, err := e.ensureSessionLocked(ctx)
		if err != nil {
			lastErr = err
		} else if err := action(ctx, drv); err != nil {
			lastErr = err
			// A failed action may mean a wedged session; the liveness
			// probe on the next attempt decides.
		} else {
			return nil
		}

		e.cfg.Logger.Warn("session: action failed",
			"attempt", attempt, "max_retries", maxRetries, "error", lastErr)

		if attempt == maxRetries {
			break
		}
		backoff := e.cfg.BackoffUnit * (1 << attempt)
		if err := sleepCtx(ctx, backoff); err != nil {
			return fmt.Errorf("session: cancelled during backoff: %w", err)
		}
	}

	return fmt.Errorf("session: action failed after %d attempts: %w", maxRetries, lastErr)
}

// Run executes a result-bearing action under the executor.
func Run[T any](ctx context.Context, e *Executor, fn func(ctx context.Context, d browser.Driver) (T, error)) (T, error) {
	var out T
	err := e.Execute(ctx, func(ctx context.Context, d browser.Driver) error {
		v, err := fn(ctx, d)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// ensureSessionLocked returns a valid driver, renewing first when the
// session is missing, past MaxAge, or fails the liveness probe.
func (e *Executor) ensureSessionLocked(ctx context.Context) (browser.Driver, error) {
	renew := false
	switch {
	case e.drv == nil:
		renew = true
	case time.Since(e.createdAt) > e.cfg.MaxAge:
		e.cfg.Logger.Info("session: expired, renewing", "age", time.Since(e.createdAt))
		renew = true
	case !e.drv.Alive(ctx):
		e.cfg.Logger.Warn("session: unresponsive, renewing")
		renew = true
	}
	if !renew {
		return e.drv, nil
	}

	if e.drv != nil {
		if err := e.drv.Close(); err != nil {
			e.cfg.Logger.Warn("session: close stale session", "error", err)
		}
		e.drv = nil
	}

	drv, err := e.opener.OpenSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: open: %w", err)
	}
	e.drv = drv
	e.createdAt = time.Now()
	return drv, nil
}

// Release closes the current session, if any. Always safe to call; the
// next Execute opens a fresh session.
func (e *Executor) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.drv != nil {
		if err := e.drv.Close(); err != nil {
			e.cfg.Logger.Warn("session: release", "error", err)
		}
		e.drv = nil
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
