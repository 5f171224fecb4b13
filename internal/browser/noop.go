package browser

import (
	"context"
	"errors"
)

// errNoBrowser is returned by every Noop page call.
var errNoBrowser = errors.New("browser driver disabled")

// Noop is the session for the "none" driver. It starts and closes cleanly
// but every page call fails, so links are left pending.
type Noop struct{}

// NewNoop creates a new Noop session.
func NewNoop() *Noop {
	return &Noop{}
}

// Start always succeeds.
func (Noop) Start(context.Context) error { return nil }

// Close always succeeds.
func (Noop) Close() error { return nil }

// Navigate fails.
func (Noop) Navigate(context.Context, string) error { return errNoBrowser }

// Title fails.
func (Noop) Title(context.Context) (string, error) { return "", errNoBrowser }

// BodyText fails.
func (Noop) BodyText(context.Context) (string, error) { return "", errNoBrowser }

// Screenshot fails.
func (Noop) Screenshot(context.Context) ([]byte, error) { return nil, errNoBrowser }
