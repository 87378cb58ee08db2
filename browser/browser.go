// Package browser provides the automation contract the verification core
// depends on, plus the Chrome/Rod implementation behind it.
//
// The core never touches Rod types directly: discovery, login, and
// checkbox management are written against Driver and Element, so any
// driver meeting this contract can stand in (the tests use in-memory
// fakes).
package browser

import (
	"context"
	"time"
)

// Driver is one logical automation session against a single page/tab.
type Driver interface {
	// Navigate loads url and waits for the page load event.
	Navigate(ctx context.Context, url string) error

	// Find returns the first element matching the CSS selector, waiting
	// up to timeout for it to appear.
	Find(ctx context.Context, selector string, timeout time.Duration) (Element, error)

	// FindAll returns all elements currently matching the CSS selector.
	FindAll(ctx context.Context, selector string) ([]Element, error)

	// Click finds the selector and clicks it.
	Click(ctx context.Context, selector string) error

	// Fill finds the selector, clears it, and types text into it.
	Fill(ctx context.Context, selector, text string) error

	// WaitVisible blocks until the selector is present and visible.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	// WaitGone blocks until the selector is absent or invisible. A
	// selector that never appears satisfies WaitGone immediately.
	WaitGone(ctx context.Context, selector string, timeout time.Duration) error

	// CurrentURL returns the page's current location.
	CurrentURL(ctx context.Context) (string, error)

	// Screenshot captures the page to a PNG file at path.
	Screenshot(ctx context.Context, path string) error

	// Alive probes whether the page still responds. Used by the session
	// executor to decide on renewal; must be cheap.
	Alive(ctx context.Context) bool

	// Close releases the page.
	Close() error
}

// Element is a handle to a located page element.
type Element interface {
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, error)
	Click(ctx context.Context) error
	Fill(ctx context.Context, text string) error
	// Find searches within this element's subtree.
	Find(ctx context.Context, selector string) (Element, error)
	FindAll(ctx context.Context, selector string) ([]Element, error)
}
