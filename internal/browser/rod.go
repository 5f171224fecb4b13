package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Rod drives Chrome through go-rod with one long-lived page.
type Rod struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

// NewRod validates cfg and returns an unstarted session.
func NewRod(cfg Config, logger *zap.Logger) (*Rod, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rod{cfg: cfg, logger: logger.Named("rod")}, nil
}

// Start launches Chrome (unless a remote control URL is configured), connects
// and opens a blank page.
func (r *Rod) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.page != nil {
		return nil
	}

	controlURL := r.cfg.RemoteURL
	var l *launcher.Launcher
	if controlURL == "" {
		l = launcher.New().Headless(r.cfg.Headless)
		if r.cfg.ExecPath != "" {
			l = l.Bin(r.cfg.ExecPath)
		} else if path, ok := launcher.LookPath(); ok {
			l = l.Bin(path)
		}
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
	}

	// Pages inherit the browser context, so ctx is only checked here and
	// never attached.
	if err := ctx.Err(); err != nil {
		killLauncher(l)
		return fmt.Errorf("start rod session: %w", err)
	}
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		killLauncher(l)
		return fmt.Errorf("connect to browser: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = b.Close()
		killLauncher(l)
		return fmt.Errorf("open page: %w", err)
	}
	if r.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: r.cfg.UserAgent}); err != nil {
			_ = b.Close()
			killLauncher(l)
			return fmt.Errorf("set user-agent: %w", err)
		}
	}
	if r.cfg.WindowWidth > 0 && r.cfg.WindowHeight > 0 {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             r.cfg.WindowWidth,
			Height:            r.cfg.WindowHeight,
			DeviceScaleFactor: 1,
		}); err != nil {
			_ = b.Close()
			killLauncher(l)
			return fmt.Errorf("set viewport: %w", err)
		}
	}

	r.launcher, r.browser, r.page = l, b, page
	r.logger.Info("browser session started", zap.Bool("remote", r.cfg.RemoteURL != ""))
	return nil
}

// Close disconnects and, when this session launched it, kills the browser.
func (r *Rod) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	killLauncher(r.launcher)
	r.launcher, r.browser, r.page = nil, nil, nil
	if err != nil {
		return fmt.Errorf("close rod session: %w", err)
	}
	r.logger.Info("browser session closed")
	return nil
}

// Navigate loads url and waits for the load event.
func (r *Rod) Navigate(ctx context.Context, url string) error {
	return r.with(ctx, "navigate", func(p *rod.Page) error {
		if err := p.Navigate(url); err != nil {
			return err
		}
		return p.WaitLoad()
	})
}

// Title returns the document title.
func (r *Rod) Title(ctx context.Context) (string, error) {
	var title string
	err := r.with(ctx, "title", func(p *rod.Page) error {
		info, err := p.Info()
		if err != nil {
			return err
		}
		title = info.Title
		return nil
	})
	return title, err
}

// BodyText returns the visible text of the body element.
func (r *Rod) BodyText(ctx context.Context) (string, error) {
	var text string
	err := r.with(ctx, "body text", func(p *rod.Page) error {
		el, err := p.Element("body")
		if err != nil {
			return err
		}
		text, err = el.Text()
		return err
	})
	return text, err
}

// Screenshot captures the body element as PNG.
func (r *Rod) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := r.with(ctx, "screenshot", func(p *rod.Page) error {
		el, err := p.Element("body")
		if err != nil {
			return err
		}
		buf, err = el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
		return err
	})
	return buf, err
}

func (r *Rod) with(ctx context.Context, op string, fn func(*rod.Page) error) error {
	r.mu.Lock()
	page := r.page
	r.mu.Unlock()
	if page == nil {
		return ErrNotStarted
	}

	callCtx, cancel := context.WithTimeout(ctx, navTimeout(r.cfg))
	defer cancel()
	if err := fn(page.Context(callCtx)); err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("rod %s timed out: %w", op, callCtx.Err())
		}
		return fmt.Errorf("rod %s: %w", op, err)
	}
	return nil
}

func killLauncher(l *launcher.Launcher) {
	if l != nil {
		l.Kill()
	}
}
