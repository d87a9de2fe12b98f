package strategy

import (
	"context"
	"time"
)

// Renderer is the render-and-control capability the rendered variant
// drives. The browser lifecycle behind it is owned by the adapter; the
// strategy only issues commands. Implementations are released via Close on
// every exit path of a run.
type Renderer interface {
	// Load navigates to url and blocks until the document has loaded.
	Load(ctx context.Context, url string) error
	// WaitVisible blocks until selector is visible or the timeout elapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// Sleep pauses for a fixed settle delay, honoring ctx cancellation.
	Sleep(ctx context.Context, d time.Duration)
	// Fill replaces the content of the input located by selector.
	Fill(ctx context.Context, selector, value string) error
	// Click activates the element located by selector.
	Click(ctx context.Context, selector string) error
	// HTML returns the current rendered document markup.
	HTML(ctx context.Context) (string, error)
	// CurrentURL returns the page's current location.
	CurrentURL(ctx context.Context) (string, error)
	Close() error
}
