// Package browser provides the headless browser sessions used by the
// enrichment worker. A session holds one tab for the life of the process and
// is not safe for concurrent use.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/notes-service/internal/links"
)

// Supported drivers.
const (
	DriverChromedp = "chromedp"
	DriverRod      = "rod"
	DriverNone     = "none"
)

const defaultNavigationTimeout = 45 * time.Second

// ErrNotStarted is returned by page calls made before Start or after Close.
var ErrNotStarted = errors.New("browser session not started")

// Session is a browser the caller must start before use and close once the
// worker has stopped.
type Session interface {
	links.Browser
	Start(ctx context.Context) error
	Close() error
}

// Config controls browser sessions.
type Config struct {
	Driver            string
	ExecPath          string
	RemoteURL         string
	UserAgent         string
	NavigationTimeout time.Duration
	Headless          bool
	WindowWidth       int
	WindowHeight      int
}

// New returns the session for cfg.Driver. Nothing is launched until Start.
func New(cfg Config, logger *zap.Logger) (Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverChromedp:
		return NewChromedp(cfg, logger)
	case DriverRod:
		return NewRod(cfg, logger)
	case DriverNone:
		return NewNoop(), nil
	default:
		return nil, fmt.Errorf("unknown browser driver %q", cfg.Driver)
	}
}

func validate(cfg Config) error {
	if cfg.NavigationTimeout < 0 {
		return fmt.Errorf("navigation timeout must be >= 0")
	}
	if cfg.WindowWidth < 0 || cfg.WindowHeight < 0 {
		return fmt.Errorf("window size must be >= 0")
	}
	return nil
}

func navTimeout(cfg Config) time.Duration {
	if cfg.NavigationTimeout > 0 {
		return cfg.NavigationTimeout
	}
	return defaultNavigationTimeout
}
