// Package headless drives the property tax site with headless Chrome.
package headless

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/taxcrawl/internal/crawler"
	"github.com/JakeFAU/taxcrawl/internal/parcel"
	"github.com/JakeFAU/taxcrawl/internal/policy/ratelimit"
	"github.com/JakeFAU/taxcrawl/internal/session"
)

// DefaultSearchURL is the parcel search form.
const DefaultSearchURL = "https://a836-pts-access.nyc.gov/care/search/commonsearch.aspx?mode=persprop"

const (
	agreeButton     = `[name="btAgree"]`
	boroughInput    = `#inpParid`
	blockInput      = `#inpTag`
	lotInput        = `#inpStat`
	searchButton    = `#btSearch`
	searchResults   = `.SearchResults`
	searchSuccess   = `#datalet_header_row`
	errorText       = `p[style^="color: red"]`
	sidebarLinks    = `#sidemenu li a`
	defaultNavDelay = 45 * time.Second
)

var noRecords = regexp.MustCompile(`(?i)your search did not find any records`)

// Config controls the browser.
type Config struct {
	Headless          bool          `mapstructure:"headless"`
	UserAgent         string        `mapstructure:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"nav_timeout"`
	SearchURL         string        `mapstructure:"search_url"`
}

// Launcher starts Chrome processes. Searches from every browser it launches
// share one rate limiter.
type Launcher struct {
	cfg     Config
	limiter *ratelimit.Limiter
	logger  *zap.Logger
}

var (
	_ session.Launcher = (*Launcher)(nil)
	_ session.Browser  = (*Browser)(nil)
	_ session.Page     = (*Page)(nil)
)

// NewLauncher creates a Launcher. limiter may be nil.
func NewLauncher(cfg Config, limiter *ratelimit.Limiter, logger *zap.Logger) *Launcher {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavDelay
	}
	if cfg.SearchURL == "" {
		cfg.SearchURL = DefaultSearchURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{cfg: cfg, limiter: limiter, logger: logger}
}

// Launch starts a browser process.
func (l *Launcher) Launch(ctx context.Context) (session.Browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if l.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	// The browser outlives the call that launched it.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	l.logger.Info("browser launched", zap.Bool("headless", l.cfg.Headless))
	return &Browser{
		launcher:      l,
		ctx:           browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

// Browser is one Chrome process.
type Browser struct {
	launcher      *Launcher
	ctx           context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

// NewPage opens a tab.
func (b *Browser) NewPage(_ context.Context) (session.Page, error) {
	tabCtx, cancel := chromedp.NewContext(b.ctx)
	if err := chromedp.Run(tabCtx, b.userAgentAction()); err != nil {
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return &Page{cfg: b.launcher.cfg, limiter: b.launcher.limiter, logger: b.launcher.logger, ctx: tabCtx, cancel: cancel}, nil
}

func (b *Browser) userAgentAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if b.launcher.cfg.UserAgent == "" {
			return nil
		}
		if err := emulation.SetUserAgentOverride(b.launcher.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		return nil
	})
}

// Close kills the browser process.
func (b *Browser) Close() error {
	b.browserCancel()
	b.allocCancel()
	return nil
}

// Page is one tab.
type Page struct {
	cfg     Config
	limiter *ratelimit.Limiter
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// run executes actions on the tab, bounded by the navigation timeout and the caller's ctx.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.ctx, p.cfg.NavigationTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Search fills out the parcel search form. If several results come back the
// first is used.
func (p *Page) Search(ctx context.Context, key parcel.Key) (bool, error) {
	if err := p.limiter.Wait(ctx, p.cfg.SearchURL); err != nil {
		return false, fmt.Errorf("wait for search slot: %w", err)
	}

	p.logger.Debug("visiting search form", zap.Stringer("parcel", key))
	if err := p.run(ctx, chromedp.Navigate(p.cfg.SearchURL)); err != nil {
		return false, fmt.Errorf("open search form: %w", err)
	}
	if ok, err := p.exists(ctx, agreeButton); err != nil {
		return false, err
	} else if ok {
		p.logger.Debug("agreeing to disclaimer")
		if err := p.clickAndWaitForNavigation(ctx, agreeButton); err != nil {
			return false, fmt.Errorf("accept disclaimer: %w", err)
		}
	}

	err := p.run(ctx,
		chromedp.SetValue(boroughInput, strconv.Itoa(int(key.Jurisdiction)), chromedp.ByQuery),
		chromedp.Evaluate(fmt.Sprintf(
			`document.querySelector(%q).dispatchEvent(new Event("change", {bubbles: true}))`, boroughInput,
		), nil),
		chromedp.SendKeys(blockInput, strconv.FormatUint(uint64(key.Block), 10), chromedp.ByQuery),
		chromedp.SendKeys(lotInput, strconv.FormatUint(uint64(key.Lot), 10), chromedp.ByQuery),
	)
	if err != nil {
		return false, fmt.Errorf("fill search form: %w", err)
	}
	if err := p.clickAndWaitForNavigation(ctx, searchButton); err != nil {
		return false, fmt.Errorf("submit search: %w", err)
	}

	if ok, err := p.exists(ctx, searchResults); err != nil {
		return false, err
	} else if ok {
		if err := p.clickAndWaitForNavigation(ctx, searchResults); err != nil {
			return false, fmt.Errorf("open first search result: %w", err)
		}
	}

	var outcome struct {
		Success   bool   `json:"success"`
		ErrorText string `json:"errorText"`
	}
	script := fmt.Sprintf(`(() => {
		const err = document.querySelector(%q);
		return {success: document.querySelector(%q) !== null, errorText: err ? err.textContent : ""};
	})()`, errorText, searchSuccess)
	if err := p.run(ctx, chromedp.Evaluate(script, &outcome)); err != nil {
		return false, fmt.Errorf("read search outcome: %w", err)
	}
	return classifySearchOutcome(outcome.Success, outcome.ErrorText)
}

// classifySearchOutcome maps the search landing page to found, not found, or an error.
func classifySearchOutcome(success bool, errText string) (bool, error) {
	if success {
		return true, nil
	}
	if noRecords.MatchString(errText) {
		return false, nil
	}
	if msg := strings.TrimSpace(errText); msg != "" {
		return false, fmt.Errorf("%w: %q", crawler.ErrUnexpectedSearchFailure, msg)
	}
	return false, crawler.ErrUnexpectedSearchFailure
}

func (p *Page) exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	script := fmt.Sprintf(`document.querySelector(%q) !== null`, selector)
	if err := p.run(ctx, chromedp.Evaluate(script, &found)); err != nil {
		return false, fmt.Errorf("query %s: %w", selector, err)
	}
	return found, nil
}

// clickAndWaitForNavigation clicks the first element matching selector and
// waits for the resulting page load.
func (p *Page) clickAndWaitForNavigation(ctx context.Context, selector string) error {
	loaded := make(chan struct{}, 1)
	listenCtx, stopListening := context.WithCancel(p.ctx)
	defer stopListening()
	chromedp.ListenTarget(listenCtx, func(ev any) {
		if _, ok := ev.(*page.EventLoadEventFired); ok {
			select {
			case loaded <- struct{}{}:
			default:
			}
		}
	})
	if err := p.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}

	timer := time.NewTimer(p.cfg.NavigationTimeout)
	defer timer.Stop()
	select {
	case <-loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("navigation after clicking %s timed out after %s", selector, p.cfg.NavigationTimeout)
	}
}

type sidebarLink struct {
	Name string `json:"name"`
	Href string `json:"href"`
}

// GotoSection follows the sidebar link whose text is linkText.
func (p *Page) GotoSection(ctx context.Context, linkText string) error {
	var links []sidebarLink
	script := fmt.Sprintf(`Array.from(document.querySelectorAll(%q)).map(el => ({
		name: (el.textContent || "").trim(),
		href: el.href
	}))`, sidebarLinks)
	if err := p.run(ctx, chromedp.Evaluate(script, &links)); err != nil {
		return fmt.Errorf("list sidebar links: %w", err)
	}
	href, err := findSidebarLink(links, linkText)
	if err != nil {
		return err
	}
	if err := p.run(ctx, chromedp.Navigate(href)); err != nil {
		return fmt.Errorf("open %q: %w", linkText, err)
	}
	return nil
}

func findSidebarLink(links []sidebarLink, name string) (string, error) {
	for _, l := range links {
		if l.Name == name && l.Href != "" {
			return l.Href, nil
		}
	}
	return "", fmt.Errorf("%w: %q", crawler.ErrSectionNotFound, name)
}

// HTML returns the current document.
func (p *Page) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return html, nil
}

// Close closes the tab.
func (p *Page) Close() error {
	p.cancel()
	if err := p.ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
