package headless

import (
	"context"

	"github.com/JakeFAU/taxcrawl/internal/crawler"
	"github.com/JakeFAU/taxcrawl/internal/session"
)

// Disabled is a Launcher for cache-only runs. Every launch fails with
// crawler.ErrBrowserDisabled, so only cached pages can be served.
type Disabled struct{}

// Launch always fails.
func (Disabled) Launch(context.Context) (session.Browser, error) {
	return nil, crawler.ErrBrowserDisabled
}
