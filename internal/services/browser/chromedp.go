package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospector/internal/common"
)

// ChromeFactory creates chromedp-backed browsers from config.
type ChromeFactory struct {
	config *common.BrowserConfig
	logger arbor.ILogger
}

// NewChromeFactory creates the production browser factory.
func NewChromeFactory(config *common.BrowserConfig, logger arbor.ILogger) *ChromeFactory {
	return &ChromeFactory{config: config, logger: logger}
}

// NewBrowser launches a fresh Chrome instance and verifies it responds.
func (f *ChromeFactory) NewBrowser(ctx context.Context) (Browser, error) {
	startTime := time.Now()

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.UserAgent(f.config.UserAgent),
		chromedp.Flag("headless", f.config.Headless),
		chromedp.Flag("no-sandbox", f.config.NoSandbox),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.WindowSize(1920, 1080),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	// Startup test so a broken Chrome install fails fast.
	testCtx, testCancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer testCancel()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("browser failed startup test: %w", err)
	}

	f.logger.Debug().
		Dur("startup_time", time.Since(startTime)).
		Bool("headless", f.config.Headless).
		Msg("Browser instance created")

	return &chromeBrowser{
		factoryCfg:      f.config,
		logger:          f.logger,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		allocatorCancel: allocatorCancel,
	}, nil
}

type chromeBrowser struct {
	factoryCfg      *common.BrowserConfig
	logger          arbor.ILogger
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc
}

// NewPage opens a new tab, applies the navigation user agent and resource
// blocking, and returns it.
func (b *chromeBrowser) NewPage(ctx context.Context) (Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx)

	if b.factoryCfg.BlockHeavyResources {
		blocked := map[network.ResourceType]bool{
			network.ResourceTypeImage: true,
			network.ResourceTypeFont:  true,
			network.ResourceTypeMedia: true,
		}
		if b.factoryCfg.BlockStylesheets {
			blocked[network.ResourceTypeStylesheet] = true
		}

		chromedp.ListenTarget(tabCtx, func(ev interface{}) {
			if e, ok := ev.(*fetch.EventRequestPaused); ok {
				go func() {
					exec := chromedp.FromContext(tabCtx)
					cdpCtx := cdpContext(tabCtx, exec)
					if blocked[e.ResourceType] {
						_ = fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient).Do(cdpCtx)
					} else {
						_ = fetch.ContinueRequest(e.RequestID).Do(cdpCtx)
					}
				}()
			}
		})

		if err := chromedp.Run(tabCtx, fetch.Enable()); err != nil {
			tabCancel()
			return nil, fmt.Errorf("failed to enable request interception: %w", err)
		}
	} else if err := chromedp.Run(tabCtx, chromedp.Navigate("about:blank")); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	return &chromePage{
		tabCtx:    tabCtx,
		tabCancel: tabCancel,
	}, nil
}

func (b *chromeBrowser) Close() error {
	b.browserCancel()
	b.allocatorCancel()
	return nil
}

// cdpContext builds the executor context chromedp handlers need for raw
// CDP commands issued outside chromedp.Run.
func cdpContext(ctx context.Context, c *chromedp.Context) context.Context {
	return cdp.WithExecutor(ctx, c.Target)
}

type chromePage struct {
	tabCtx    context.Context
	tabCancel context.CancelFunc
	mu        sync.Mutex
	closed    bool
}

func (p *chromePage) Navigate(ctx context.Context, url string, wait WaitMode, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(p.tabCtx, timeout)
	defer cancel()
	navCtx = mergeCancel(navCtx, ctx)

	actions := []chromedp.Action{chromedp.Navigate(url)}
	if wait == WaitNetworkIdle {
		// chromedp's Navigate waits for the load event; give straggling
		// XHRs a settle window on the relaxed retry path.
		actions = append(actions, chromedp.Sleep(2*time.Second))
	}
	return chromedp.Run(navCtx, actions...)
}

func (p *chromePage) Evaluate(ctx context.Context, expression string, out interface{}) error {
	evalCtx := mergeCancel(p.tabCtx, ctx)
	return chromedp.Run(evalCtx, chromedp.Evaluate(expression, out))
}

func (p *chromePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(p.tabCtx, timeout)
	defer cancel()
	waitCtx = mergeCancel(waitCtx, ctx)
	return chromedp.Run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	clickCtx := mergeCancel(p.tabCtx, ctx)
	return chromedp.Run(clickCtx, chromedp.Click(selector, chromedp.ByQuery))
}

func (p *chromePage) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return true
	}
	select {
	case <-p.tabCtx.Done():
		return true
	default:
		return false
	}
}

func (p *chromePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.tabCancel()
	return nil
}

// mergeCancel derives a context from tab that is also cancelled when the
// caller's context is cancelled.
func mergeCancel(tab context.Context, caller context.Context) context.Context {
	if caller == nil || caller == context.Background() {
		return tab
	}
	merged, cancel := context.WithCancel(tab)
	go func() {
		select {
		case <-caller.Done():
			cancel()
		case <-merged.Done():
		}
	}()
	return merged
}
