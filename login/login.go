// Package login authenticates a browser session against the dealer
// inventory portal: credential form, optional one-time code, and
// logged-in detection.
package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/stickermatch/browser"
)

// ErrAuthFailed marks a login failure. Fatal to the current dealership
// run: the workflow alerts and moves on, it does not retry through the
// session executor.
var ErrAuthFailed = errors.New("login: authentication failed")

// Portal selectors. The portal is a single known application, so these
// are fixed rather than configurable.
const (
	selUsername  = "input[name='username'], #username"
	selPassword  = "input[name='password'], #password"
	selSubmit    = "button[type='submit']"
	selOTP       = "input[autocomplete='one-time-code'], input[name='otp'], #verification-code"
	selDashboard = ".dashboard, #dashboard, [data-testid='provision-logo']"
	selError     = ".error-message, .alert-danger, [role='alert']"
)

// Credentials holds one dealership's portal credentials.
type Credentials struct {
	Username string
	Password string
}

// OTPSource retrieves a one-time verification code when the portal asks
// for one. The retrieval mechanism (mailbox polling, TOTP, operator
// prompt) lives outside this package.
type OTPSource interface {
	Code(ctx context.Context) (string, error)
}

// OTPFunc adapts a function to OTPSource.
type OTPFunc func(ctx context.Context) (string, error)

func (f OTPFunc) Code(ctx context.Context) (string, error) { return f(ctx) }

// Config configures the authenticator.
type Config struct {
	// LoginURL is the portal login page.
	LoginURL string

	// StepTimeout bounds each element wait during the flow. Default: 20s.
	StepTimeout time.Duration

	// OTP supplies verification codes. nil means the portal is expected
	// not to prompt; a prompt then fails authentication.
	OTP OTPSource

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.LoginURL == "" {
		c.LoginURL = "https://app.vauto.com/login"
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = 20 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Authenticator drives the portal login flow over a browser session.
type Authenticator struct {
	cfg Config
}

// New creates an Authenticator.
func New(cfg Config) *Authenticator {
	cfg.defaults()
	return &Authenticator{cfg: cfg}
}

// EnsureLoggedIn returns nil when the session is authenticated for the
// dealership, performing the full login flow if needed. Any failure wraps
// ErrAuthFailed.
func (a *Authenticator) EnsureLoggedIn(ctx context.Context, d browser.Driver, creds Credentials) error {
	log := a.cfg.Logger

	if a.loggedIn(ctx, d) {
		return nil
	}

	log.Info("login: starting authentication")
	if err := d.Navigate(ctx, a.cfg.LoginURL); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	// Username step. Some portal versions split username/password over
	// two screens with a Next button; filling then submitting covers both.
	if err := d.Fill(ctx, selUsername, creds.Username); err != nil {
		return fmt.Errorf("%w: username field: %v", ErrAuthFailed, err)
	}
	if err := d.Click(ctx, selSubmit); err != nil {
		return fmt.Errorf("%w: submit username: %v", ErrAuthFailed, err)
	}

	if err := d.WaitVisible(ctx, selPassword, a.cfg.StepTimeout); err != nil {
		return fmt.Errorf("%w: password field: %v", ErrAuthFailed, err)
	}
	if err := d.Fill(ctx, selPassword, creds.Password); err != nil {
		return fmt.Errorf("%w: password field: %v", ErrAuthFailed, err)
	}
	if err := d.Click(ctx, selSubmit); err != nil {
		return fmt.Errorf("%w: submit password: %v", ErrAuthFailed, err)
	}

	if err := a.maybeHandleOTP(ctx, d); err != nil {
		return err
	}

	if err := d.WaitVisible(ctx, selDashboard, a.cfg.StepTimeout); err != nil {
		// Surface the portal's own error text when present.
		if el, ferr := d.Find(ctx, selError, 2*time.Second); ferr == nil {
			if msg, terr := el.Text(ctx); terr == nil && msg != "" {
				return fmt.Errorf("%w: %s", ErrAuthFailed, msg)
			}
		}
		return fmt.Errorf("%w: dashboard did not load: %v", ErrAuthFailed, err)
	}

	log.Info("login: authenticated")
	return nil
}

// maybeHandleOTP fills a verification code if the portal prompts for one.
func (a *Authenticator) maybeHandleOTP(ctx context.Context, d browser.Driver) error {
	el, err := d.Find(ctx, selOTP, 5*time.Second)
	if err != nil {
		return nil // no OTP prompt
	}

	if a.cfg.OTP == nil {
		return fmt.Errorf("%w: portal requested a verification code but no OTP source is configured", ErrAuthFailed)
	}

	code, err := a.cfg.OTP.Code(ctx)
	if err != nil {
		return fmt.Errorf("%w: retrieve verification code: %v", ErrAuthFailed, err)
	}
	if err := el.Fill(ctx, code); err != nil {
		return fmt.Errorf("%w: verification code field: %v", ErrAuthFailed, err)
	}
	if err := d.Click(ctx, selSubmit); err != nil {
		return fmt.Errorf("%w: submit verification code: %v", ErrAuthFailed, err)
	}
	return nil
}

// loggedIn probes for the dashboard marker with a short wait.
func (a *Authenticator) loggedIn(ctx context.Context, d browser.Driver) bool {
	_, err := d.Find(ctx, selDashboard, 3*time.Second)
	return err == nil
}
