package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
)

// ErrPoolClosed is returned to acquirers and rejected waiters after the
// pool has been closed.
var ErrPoolClosed = errors.New("page pool closed")

// PagePool is a fixed-capacity pool of pages over a single browser
// instance. Idle pages are reused LIFO; acquirers beyond capacity queue
// FIFO and receive pages directly from releasers.
type PagePool struct {
	mu        sync.Mutex
	browser   Browser
	capacity  int
	available []Page
	created   int
	pending   []chan pageResult
	closed    bool
	logger    arbor.ILogger
}

type pageResult struct {
	page Page
	err  error
}

// NewPagePool creates a pool over an already-launched browser.
func NewPagePool(b Browser, capacity int, logger arbor.ILogger) *PagePool {
	if capacity < 1 {
		capacity = 1
	}
	return &PagePool{
		browser:  b,
		capacity: capacity,
		logger:   logger,
	}
}

// Acquire returns an idle page, opens a new one while under capacity, or
// queues until a page is released.
func (p *PagePool) Acquire(ctx context.Context) (Page, error) {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}

	// Reuse an idle page, discarding any that died while parked.
	for len(p.available) > 0 {
		page := p.available[len(p.available)-1]
		p.available = p.available[:len(p.available)-1]
		if page.IsClosed() {
			p.created--
			continue
		}
		p.mu.Unlock()
		return page, nil
	}

	if p.created < p.capacity {
		p.created++
		p.mu.Unlock()

		page, err := p.browser.NewPage(ctx)
		if err != nil {
			p.mu.Lock()
			p.created--
			p.mu.Unlock()
			return nil, fmt.Errorf("failed to create page: %w", err)
		}
		return page, nil
	}

	waiter := make(chan pageResult, 1)
	p.pending = append(p.pending, waiter)
	p.mu.Unlock()

	select {
	case res := <-waiter:
		return res.page, res.err
	case <-ctx.Done():
		p.mu.Lock()
		for i, w := range p.pending {
			if w == waiter {
				p.pending = append(p.pending[:i], p.pending[i+1:]...)
				p.mu.Unlock()
				return nil, ctx.Err()
			}
		}
		p.mu.Unlock()
		// A page was handed over concurrently; put it back.
		if res := <-waiter; res.err == nil {
			p.Release(res.page)
		}
		return nil, ctx.Err()
	}
}

// Release returns a page to the pool, handing it directly to the oldest
// waiter when one is queued. Dead pages free their capacity slot instead.
func (p *PagePool) Release(page Page) {
	if page == nil {
		return
	}

	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		_ = page.Close()
		return
	}

	if page.IsClosed() {
		p.created--
		// The freed slot may unblock a waiter with a fresh page.
		if len(p.pending) > 0 && p.created < p.capacity {
			waiter := p.pending[0]
			p.pending = p.pending[1:]
			p.created++
			p.mu.Unlock()

			fresh, err := p.browser.NewPage(context.Background())
			if err != nil {
				p.mu.Lock()
				p.created--
				p.mu.Unlock()
				waiter <- pageResult{err: fmt.Errorf("failed to create page: %w", err)}
				return
			}
			waiter <- pageResult{page: fresh}
			return
		}
		p.mu.Unlock()
		return
	}

	if len(p.pending) > 0 {
		waiter := p.pending[0]
		p.pending = p.pending[1:]
		p.mu.Unlock()
		waiter <- pageResult{page: page}
		return
	}

	p.available = append(p.available, page)
	p.mu.Unlock()
}

// Close rejects all waiters, closes every page and the underlying
// browser. Safe to call more than once.
func (p *PagePool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true

	pending := p.pending
	p.pending = nil
	available := p.available
	p.available = nil
	p.created = 0
	p.mu.Unlock()

	for _, waiter := range pending {
		waiter <- pageResult{err: ErrPoolClosed}
	}
	for _, page := range available {
		if err := page.Close(); err != nil && p.logger != nil {
			p.logger.Debug().Err(err).Msg("Failed to close pooled page")
		}
	}

	return p.browser.Close()
}

// Closed reports whether Close has been called.
func (p *PagePool) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Stats returns pool occupancy for logging.
func (p *PagePool) Stats() (created, idle, waiting int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created, len(p.available), len(p.pending)
}
