package browser

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// fakePage is an in-memory Page for pool and session tests.
type fakePage struct {
	mu         sync.Mutex
	closed     bool
	closeCount int
	navErr     error
}

func (p *fakePage) Navigate(ctx context.Context, url string, wait WaitMode, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.navErr
}

func (p *fakePage) Evaluate(ctx context.Context, expr string, out interface{}) error { return nil }

func (p *fakePage) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	return nil
}

func (p *fakePage) Click(ctx context.Context, sel string) error { return nil }

func (p *fakePage) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		p.closeCount++
	}
	return nil
}

func (p *fakePage) closes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeCount
}

// fakeBrowser hands out fakePages and records how many it opened.
type fakeBrowser struct {
	mu      sync.Mutex
	pages   []*fakePage
	closed  bool
	pageErr error
}

func (b *fakeBrowser) NewPage(ctx context.Context) (Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pageErr != nil {
		return nil, b.pageErr
	}
	p := &fakePage{}
	b.pages = append(b.pages, p)
	return p, nil
}

func (b *fakeBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for _, p := range b.pages {
		_ = p.Close()
	}
	return nil
}

func (b *fakeBrowser) pageCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pages)
}

// fakeFactory counts how many browser sessions were launched.
type fakeFactory struct {
	launches int64
	mu       sync.Mutex
	browsers []*fakeBrowser
}

func (f *fakeFactory) NewBrowser(ctx context.Context) (Browser, error) {
	atomic.AddInt64(&f.launches, 1)
	b := &fakeBrowser{}
	f.mu.Lock()
	f.browsers = append(f.browsers, b)
	f.mu.Unlock()
	return b, nil
}

func (f *fakeFactory) launchCount() int64 {
	return atomic.LoadInt64(&f.launches)
}
