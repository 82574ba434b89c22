package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospector/internal/common"
)

// sessionErrorMarkers identify errors that mean the browser session is no
// longer usable and must be rotated.
var sessionErrorMarkers = []string{
	"408",
	"websocket",
	"target closed",
	"session closed",
	"browser disconnected",
	"execution context destroyed",
	"cannot find context with specified id",
	"protocol error",
	"browser has been closed",
}

// IsSessionError reports whether err indicates the browser session died.
func IsSessionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPoolClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range sessionErrorMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Session owns the current page pool and rotates it when the session TTL
// expires or a session-class error is seen. Pages are tagged with the
// pool they came from so a page obtained before a rotation is always
// released to its originating pool.
type Session struct {
	factory Factory
	config  *common.BrowserConfig
	logger  arbor.ILogger

	mu           sync.Mutex
	pool         *PagePool
	sessionStart time.Time
	holders      map[*PagePool]int
	origins      map[Page]*PagePool
	rotation     chan struct{}
	stopped      func() bool
}

// NewSession launches the first browser session.
func NewSession(ctx context.Context, factory Factory, config *common.BrowserConfig, logger arbor.ILogger) (*Session, error) {
	b, err := factory.NewBrowser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}

	return &Session{
		factory:      factory,
		config:       config,
		logger:       logger,
		pool:         NewPagePool(b, config.MaxPages, logger),
		sessionStart: time.Now(),
		holders:      make(map[*PagePool]int),
		origins:      make(map[Page]*PagePool),
	}, nil
}

// SetStopCheck installs the run's shared stop flag. When it reports true,
// WithPage skips its callback and returns nil.
func (s *Session) SetStopCheck(fn func() bool) {
	s.mu.Lock()
	s.stopped = fn
	s.mu.Unlock()
}

// Acquire returns a page from the current pool, rotating first when the
// session TTL has expired. A concurrent rotation closing the pool under
// us is retried up to twice against the new pool.
func (s *Session) Acquire(ctx context.Context) (Page, error) {
	if err := s.ensureActiveSession(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		s.mu.Lock()
		pool := s.pool
		s.mu.Unlock()

		page, err := pool.Acquire(ctx)
		if err == nil {
			s.mu.Lock()
			// The pool may have rotated while we acquired; tag the page
			// with the pool it actually came from.
			s.holders[pool]++
			s.origins[page] = pool
			s.mu.Unlock()
			return page, nil
		}

		lastErr = err
		if !errors.Is(err, ErrPoolClosed) {
			return nil, err
		}

		s.mu.Lock()
		changed := s.pool != pool
		s.mu.Unlock()
		if !changed {
			// Closed without a replacement; nothing to retry against.
			return nil, err
		}
		s.logger.Debug().Int("attempt", attempt+1).Msg("Pool rotated during acquire, retrying against new pool")
	}
	return nil, lastErr
}

// Release returns a page to the pool it was drawn from.
func (s *Session) Release(page Page) {
	if page == nil {
		return
	}

	s.mu.Lock()
	origin := s.origins[page]
	delete(s.origins, page)
	if origin != nil {
		s.holders[origin]--
		if s.holders[origin] <= 0 {
			delete(s.holders, origin)
		}
	}
	s.mu.Unlock()

	if origin != nil {
		origin.Release(page)
	} else {
		_ = page.Close()
	}
}

// ActivePages returns the number of pages currently held by callers.
func (s *Session) ActivePages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.holders {
		total += n
	}
	return total
}

// ensureActiveSession rotates when the session has outlived its TTL.
func (s *Session) ensureActiveSession(ctx context.Context) error {
	s.mu.Lock()
	expired := time.Since(s.sessionStart) >= s.config.SessionMaxAge
	s.mu.Unlock()

	if expired {
		return s.Rotate(ctx, "session ttl expired")
	}
	return nil
}

// Rotate swaps in a freshly-initialized pool, waits for holders of the
// previous pool to drain, then closes it. Concurrent rotation triggers
// share a single in-flight rotation.
func (s *Session) Rotate(ctx context.Context, reason string) error {
	s.mu.Lock()
	if s.rotation != nil {
		inflight := s.rotation
		s.mu.Unlock()
		select {
		case <-inflight:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	inflight := make(chan struct{})
	s.rotation = inflight
	oldPool := s.pool
	s.mu.Unlock()

	s.logger.Info().Str("reason", reason).Msg("Rotating browser session")

	finish := func() {
		s.mu.Lock()
		s.rotation = nil
		s.mu.Unlock()
		close(inflight)
	}

	b, err := s.factory.NewBrowser(ctx)
	if err != nil {
		finish()
		return fmt.Errorf("failed to start replacement browser session: %w", err)
	}

	newPool := NewPagePool(b, s.config.MaxPages, s.logger)

	s.mu.Lock()
	s.pool = newPool
	s.sessionStart = time.Now()
	s.mu.Unlock()

	// Drain holders of the old pool before closing it.
	deadline := time.Now().Add(s.config.SessionDrainTimeout)
	for {
		s.mu.Lock()
		held := s.holders[oldPool]
		s.mu.Unlock()
		if held == 0 {
			break
		}
		if time.Now().After(deadline) {
			s.logger.Warn().
				Int("held_pages", held).
				Str("reason", reason).
				Msg("Session drain timed out, force-closing previous pool")
			break
		}
		time.Sleep(25 * time.Millisecond)
	}

	if err := oldPool.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("Error closing previous pool")
	}

	finish()
	return nil
}

// Close shuts down the current pool and browser.
func (s *Session) Close() error {
	s.mu.Lock()
	pool := s.pool
	s.mu.Unlock()
	return pool.Close()
}

// WithPage acquires a page, runs fn, and releases the page on all paths.
// Session-class errors rotate the session and retry up to the configured
// retry limit; other errors propagate immediately. When the run's stop
// flag is set, fn is skipped.
func (s *Session) WithPage(ctx context.Context, fn func(Page) error) error {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped != nil && stopped() {
		return nil
	}

	attempts := 1 + s.config.SessionRetryLimit
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := s.Rotate(ctx, "session error"); err != nil {
				return err
			}
			if stopped != nil && stopped() {
				return nil
			}
		}

		page, err := s.Acquire(ctx)
		if err != nil {
			lastErr = err
			if IsSessionError(err) {
				continue
			}
			return err
		}

		err = fn(page)
		s.Release(page)

		if err == nil {
			return nil
		}
		lastErr = err
		if !IsSessionError(err) {
			return err
		}
		s.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("Session-class error, will rotate and retry")
	}

	return lastErr
}
