// Package browser manages a rotating headless-browser session and a
// fixed-capacity pool of pages over it.
package browser

import (
	"context"
	"time"
)

// WaitMode selects the navigation wait condition.
type WaitMode int

const (
	// WaitDOMContentLoaded resolves once the DOM is parsed.
	WaitDOMContentLoaded WaitMode = iota
	// WaitNetworkIdle additionally waits for the network to settle; used
	// as the relaxed retry condition after a navigation timeout.
	WaitNetworkIdle
)

// Page is one browser tab. Pages are exclusive to one task between
// acquire and release.
type Page interface {
	Navigate(ctx context.Context, url string, wait WaitMode, timeout time.Duration) error
	Evaluate(ctx context.Context, expression string, out interface{}) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	Click(ctx context.Context, selector string) error
	IsClosed() bool
	Close() error
}

// Browser is one underlying browser instance capable of opening pages.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Factory creates browser instances. The chromedp implementation is the
// production factory; tests inject fakes.
type Factory interface {
	NewBrowser(ctx context.Context) (Browser, error)
}
