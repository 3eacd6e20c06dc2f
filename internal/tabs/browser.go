package tabs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/majorcontext/tabclose/internal/kv"
	"github.com/majorcontext/tabclose/internal/log"
)

// Options configures how the browser is reached.
type Options struct {
	// CDPEndpoint attaches to an existing Chromium (e.g. http://127.0.0.1:9222).
	// Empty launches a dedicated Chromium instead.
	CDPEndpoint string
	// Headless applies to launched browsers only.
	Headless bool
	// Store persists tab ids across daemon restarts. Nil keeps them in memory.
	Store kv.Store
}

// Browser is the playwright-backed tab host.
type Browser struct {
	mu      sync.Mutex
	opts    Options
	pw      *playwright.Playwright
	browser playwright.Browser
	ids     *registry
}

// NewBrowser creates a tab host. Nothing is started until first use.
func NewBrowser(opts Options) *Browser {
	return &Browser{opts: opts, ids: newRegistry(opts.Store, cdpTarget)}
}

// Connect starts playwright and attaches to or launches the browser.
// It is a no-op while a connected browser is held.
func (b *Browser) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connectLocked(ctx)
}

func (b *Browser) connectLocked(_ context.Context) error {
	if b.browser != nil && b.browser.IsConnected() {
		return nil
	}

	if b.pw == nil {
		// Keep playwright's installer quiet; the daemon's stdout is a log file.
		runOpts := &playwright.RunOptions{
			Verbose:             false,
			Stdout:              io.Discard,
			Stderr:              io.Discard,
			Browsers:            []string{"chromium"},
			SkipInstallBrowsers: b.opts.CDPEndpoint != "",
		}
		if err := playwright.Install(runOpts); err != nil {
			return fmt.Errorf("installing playwright: %w", err)
		}
		pw, err := playwright.Run(runOpts)
		if err != nil {
			return fmt.Errorf("starting playwright: %w", err)
		}
		b.pw = pw
	}

	var (
		br  playwright.Browser
		err error
	)
	if b.opts.CDPEndpoint != "" {
		br, err = b.pw.Chromium.ConnectOverCDP(b.opts.CDPEndpoint)
		if err != nil {
			return fmt.Errorf("connecting to %s: %w", b.opts.CDPEndpoint, err)
		}
	} else {
		headless := b.opts.Headless
		br, err = b.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{Headless: &headless})
		if err != nil {
			return fmt.Errorf("launching browser: %w", err)
		}
		bctx, err := br.NewContext()
		if err != nil {
			br.Close()
			return fmt.Errorf("creating browser context: %w", err)
		}
		if _, err := bctx.NewPage(); err != nil {
			br.Close()
			return fmt.Errorf("creating page: %w", err)
		}
	}
	b.browser = br
	log.Info("browser connected", "cdp_endpoint", b.opts.CDPEndpoint, "headless", b.opts.Headless)
	return nil
}

// Close detaches from (or shuts down) the browser and stops playwright.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, err)
		}
		b.browser = nil
	}
	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stopping playwright: %w", err))
		}
		b.pw = nil
	}
	return errors.Join(errs...)
}

// pagesLocked lists every page across all browser contexts.
func (b *Browser) pagesLocked(ctx context.Context) ([]page, error) {
	if err := b.connectLocked(ctx); err != nil {
		return nil, err
	}
	var out []page
	for _, bctx := range b.browser.Contexts() {
		for _, p := range bctx.Pages() {
			out = append(out, p)
		}
	}
	if err := b.ids.prune(ctx, out); err != nil {
		log.Warn("failed to prune tab ids", "error", err)
	}
	return out, nil
}

// ActiveTab returns the tab the user is looking at.
func (b *Browser) ActiveTab(ctx context.Context) (Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pages, err := b.pagesLocked(ctx)
	if err != nil {
		return Tab{}, err
	}
	p, err := pickActive(pages)
	if err != nil {
		return Tab{}, err
	}
	return b.ids.describe(ctx, p)
}

// CloseTab closes the page with the given id.
func (b *Browser) CloseTab(ctx context.Context, id int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	pages, err := b.pagesLocked(ctx)
	if err != nil {
		return err
	}
	p, ok, err := b.ids.find(ctx, id, pages)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %d", ErrTabNotFound, id)
	}
	if err := p.Close(); err != nil {
		return fmt.Errorf("closing tab %d: %w", id, err)
	}
	return nil
}

// List returns every open tab.
func (b *Browser) List(ctx context.Context) ([]Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pages, err := b.pagesLocked(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Tab, 0, len(pages))
	for _, p := range pages {
		tab, err := b.ids.describe(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, tab)
	}
	return out, nil
}

// Open navigates a new page to url and brings it to the front.
func (b *Browser) Open(ctx context.Context, url string) (Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.connectLocked(ctx); err != nil {
		return Tab{}, err
	}
	var bctx playwright.BrowserContext
	if contexts := b.browser.Contexts(); len(contexts) > 0 {
		bctx = contexts[0]
	} else {
		var err error
		if bctx, err = b.browser.NewContext(); err != nil {
			return Tab{}, fmt.Errorf("creating browser context: %w", err)
		}
	}
	p, err := bctx.NewPage()
	if err != nil {
		return Tab{}, fmt.Errorf("creating page: %w", err)
	}
	if _, err := p.Goto(url); err != nil {
		return Tab{}, fmt.Errorf("navigation failed: %w", err)
	}
	_ = p.BringToFront()
	return b.ids.describe(ctx, p)
}
