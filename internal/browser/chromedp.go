package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// runActions is chromedp.Run; tests replace it to observe the contexts Start
// uses.
var runActions = chromedp.Run

// Chromedp drives Chrome through the DevTools protocol with one long-lived
// tab.
type Chromedp struct {
	cfg    Config
	logger *zap.Logger

	mu          sync.Mutex
	allocCancel context.CancelFunc
	tab         context.Context
	tabCancel   context.CancelFunc
}

// NewChromedp validates cfg and returns an unstarted session.
func NewChromedp(cfg Config, logger *zap.Logger) (*Chromedp, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chromedp{cfg: cfg, logger: logger.Named("chromedp")}, nil
}

// Start launches (or attaches to) the browser and opens the tab. The browser
// outlives ctx; only Close releases it.
func (c *Chromedp) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tab != nil {
		return nil
	}

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if c.cfg.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), c.cfg.RemoteURL)
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), c.execOptions()...)
	}
	tab, tabCancel := chromedp.NewContext(allocCtx)

	// The first Run on a fresh context allocates the browser, and the process
	// lives only as long as that context. It must be the tab itself, never a
	// context with a deadline.
	if err := ctx.Err(); err != nil {
		tabCancel()
		allocCancel()
		return fmt.Errorf("start chromedp session: %w", err)
	}
	if err := runActions(tab); err != nil {
		tabCancel()
		allocCancel()
		return fmt.Errorf("start chromedp session: %w", err)
	}

	setupCtx, cancel := context.WithTimeout(tab, navTimeout(c.cfg))
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := runActions(setupCtx, c.setupAction()); err != nil {
		_ = chromedp.Cancel(tab)
		tabCancel()
		allocCancel()
		return fmt.Errorf("configure chromedp session: %w", err)
	}

	c.allocCancel = allocCancel
	c.tab = tab
	c.tabCancel = tabCancel
	c.logger.Info("browser session started", zap.Bool("remote", c.cfg.RemoteURL != ""))
	return nil
}

// Close shuts the tab and the browser process.
func (c *Chromedp) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tab == nil {
		return nil
	}
	err := chromedp.Cancel(c.tab)
	c.tabCancel()
	c.allocCancel()
	c.tab, c.tabCancel, c.allocCancel = nil, nil, nil
	if err != nil {
		return fmt.Errorf("close chromedp session: %w", err)
	}
	c.logger.Info("browser session closed")
	return nil
}

// Navigate loads url and waits for the body to be ready.
func (c *Chromedp) Navigate(ctx context.Context, url string) error {
	return c.run(ctx, "navigate",
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Title returns the document title.
func (c *Chromedp) Title(ctx context.Context) (string, error) {
	var title string
	if err := c.run(ctx, "title", chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

// BodyText returns the visible text of the body element.
func (c *Chromedp) BodyText(ctx context.Context) (string, error) {
	var text string
	if err := c.run(ctx, "body text", chromedp.Text("body", &text, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return text, nil
}

// Screenshot captures the body element as PNG.
func (c *Chromedp) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := c.run(ctx, "screenshot", chromedp.Screenshot("body", &buf, chromedp.ByQuery)); err != nil {
		return nil, err
	}
	return buf, nil
}

// run executes actions on the tab, bounded by the navigation timeout and the
// caller's ctx. Canceling the derived context leaves the tab open.
func (c *Chromedp) run(ctx context.Context, op string, actions ...chromedp.Action) error {
	c.mu.Lock()
	tab := c.tab
	c.mu.Unlock()
	if tab == nil {
		return ErrNotStarted
	}

	runCtx, cancel := context.WithTimeout(tab, navTimeout(c.cfg))
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := runActions(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("chromedp %s: %w", op, ctx.Err())
		}
		return fmt.Errorf("chromedp %s: %w", op, err)
	}
	return nil
}

func (c *Chromedp) execOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if c.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if c.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.cfg.ExecPath))
	}
	if c.cfg.WindowWidth > 0 && c.cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(c.cfg.WindowWidth, c.cfg.WindowHeight))
	}
	return opts
}

func (c *Chromedp) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if c.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(c.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}
