// Package session drives one browser tab through the property tax site and
// memoizes every page, download and conversion in the cache.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/taxcrawl/internal/cache"
	"github.com/JakeFAU/taxcrawl/internal/crawler"
	"github.com/JakeFAU/taxcrawl/internal/dof"
	"github.com/JakeFAU/taxcrawl/internal/metrics"
	"github.com/JakeFAU/taxcrawl/internal/parcel"
	"github.com/JakeFAU/taxcrawl/internal/pdftotext"
)

// DefaultRestartAfter is how many pages a browser serves before it is recycled.
// Site sessions degrade under heavy use.
const DefaultRestartAfter = 1000

// Launcher starts browsers.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// Browser is a running browser process.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single tab on the property tax site.
type Page interface {
	// Search submits the parcel search form. It reports false when the site
	// says no records exist, and crawler.ErrUnexpectedSearchFailure when the
	// outcome is neither a detail page nor that message.
	Search(ctx context.Context, key parcel.Key) (bool, error)
	// GotoSection follows the sidebar link with the given text.
	GotoSection(ctx context.Context, linkText string) error
	HTML(ctx context.Context) (string, error)
	Close() error
}

// Downloader fetches PDFs.
type Downloader interface {
	DownloadPDF(ctx context.Context, url string) ([]byte, error)
}

// TextConverter turns PDF bytes into text.
type TextConverter interface {
	Convert(ctx context.Context, pdf []byte, flags ...pdftotext.Flag) (string, error)
}

// Config tunes a Session.
type Config struct {
	// RestartAfter recycles the browser after this many section fetches.
	RestartAfter int `mapstructure:"restart_after"`
	// HTMLPrefix is the first key segment of cached section pages.
	HTMLPrefix string `mapstructure:"html_prefix"`
}

// Session implements crawler.PageGetter. A Session serves one task at a time.
type Session struct {
	launcher   Launcher
	downloader Downloader
	converter  TextConverter
	bytes      cache.Cache[[]byte]
	text       cache.Cache[string]
	cfg        Config
	logger     *zap.Logger

	mu         sync.Mutex
	browser    Browser
	page       Page
	current    parcel.Key
	fetchCount int
}

var _ crawler.PageGetter = (*Session)(nil)

// New creates a Session. The browser is launched on first use.
func New(
	launcher Launcher,
	downloader Downloader,
	converter TextConverter,
	store cache.Cache[[]byte],
	cfg Config,
	logger *zap.Logger,
) *Session {
	if cfg.RestartAfter <= 0 {
		cfg.RestartAfter = DefaultRestartAfter
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		launcher:   launcher,
		downloader: downloader,
		converter:  converter,
		bytes:      store,
		text:       cache.AsText(store),
		cfg:        cfg,
		logger:     logger,
	}
}

// SectionHTML returns the cached HTML of a section, driving the browser on a miss.
func (s *Session) SectionHTML(ctx context.Context, key parcel.Key, section dof.Section) (string, error) {
	return s.text.LazyGet(ctx, crawler.HTMLKey(s.cfg.HTMLPrefix, key, section.Slug), func(ctx context.Context) (string, error) {
		return s.fetchSection(ctx, key, section)
	})
}

func (s *Session) fetchSection(ctx context.Context, key parcel.Key, section dof.Section) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fetchCount >= s.cfg.RestartAfter {
		s.logger.Info("recycling browser", zap.Int("pages", s.fetchCount))
		metrics.ObserveBrowserRestart()
		if err := s.shutdownLocked(); err != nil {
			s.logger.Warn("browser shutdown failed", zap.Error(err))
		}
	}
	if err := s.ensurePageLocked(ctx); err != nil {
		return "", err
	}

	html, err := s.navigateLocked(ctx, key, section)
	if err != nil {
		// The tab is somewhere unknown; search again next time.
		s.current = parcel.Key{}
		return "", err
	}
	return html, nil
}

func (s *Session) navigateLocked(ctx context.Context, key parcel.Key, section dof.Section) (string, error) {
	if s.current != key {
		s.logger.Debug("searching for parcel", zap.Stringer("parcel", key))
		found, err := s.page.Search(ctx, key)
		if err != nil {
			return "", fmt.Errorf("search for parcel %s: %w", key, err)
		}
		if !found {
			return "", fmt.Errorf("parcel %s: %w", key, crawler.ErrParcelNotFound)
		}
		s.current = key
	}
	if err := s.page.GotoSection(ctx, section.LinkText); err != nil {
		return "", fmt.Errorf("go to %q for parcel %s: %w", section.LinkText, key, err)
	}
	s.fetchCount++
	html, err := s.page.HTML(ctx)
	if err != nil {
		return "", fmt.Errorf("read %s html for parcel %s: %w", section.Slug, key, err)
	}
	return html, nil
}

func (s *Session) ensurePageLocked(ctx context.Context) error {
	if s.browser == nil {
		browser, err := s.launcher.Launch(ctx)
		if err != nil {
			return fmt.Errorf("launch browser: %w", err)
		}
		s.browser = browser
	}
	if s.page == nil {
		page, err := s.browser.NewPage(ctx)
		if err != nil {
			return fmt.Errorf("open page: %w", err)
		}
		s.page = page
	}
	return nil
}

// DownloadPDF returns the cached PDF bytes for subkey, downloading on a miss.
func (s *Session) DownloadPDF(ctx context.Context, key parcel.Key, url, subkey string) ([]byte, error) {
	return s.bytes.LazyGet(ctx, crawler.PDFKey(key, subkey), func(ctx context.Context) ([]byte, error) {
		s.logger.Info("downloading pdf", zap.Stringer("parcel", key), zap.String("subkey", subkey), zap.String("url", url))
		return s.downloader.DownloadPDF(ctx, url)
	})
}

// DownloadAndConvert returns the cached text of a document, downloading and
// converting on a miss.
func (s *Session) DownloadAndConvert(
	ctx context.Context,
	key parcel.Key,
	url, subkey string,
	flags ...pdftotext.Flag,
) (string, error) {
	return s.text.LazyGet(ctx, crawler.TextKey(key, subkey, flags...), func(ctx context.Context) (string, error) {
		pdf, err := s.DownloadPDF(ctx, key, url, subkey)
		if err != nil {
			return "", err
		}
		s.logger.Debug("converting pdf", zap.Stringer("parcel", key), zap.String("subkey", subkey))
		text, err := s.converter.Convert(ctx, pdf, flags...)
		if err != nil {
			// The cached bytes may be what broke the converter; drop them so
			// a retry downloads again.
			if derr := s.bytes.Delete(context.WithoutCancel(ctx), crawler.PDFKey(key, subkey)); derr != nil {
				return "", errors.Join(err, derr)
			}
			return "", err
		}
		return text, nil
	})
}

// Purge removes the cached PDF and text of a document.
func (s *Session) Purge(ctx context.Context, key parcel.Key, subkey string, flags ...pdftotext.Flag) error {
	return errors.Join(
		s.bytes.Delete(ctx, crawler.PDFKey(key, subkey)),
		s.text.Delete(ctx, crawler.TextKey(key, subkey, flags...)),
	)
}

// Shutdown closes the page and browser and resets all state. It is idempotent.
func (s *Session) Shutdown(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdownLocked()
}

func (s *Session) shutdownLocked() error {
	var errs []error
	if s.page != nil {
		if err := s.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close page: %w", err))
		}
		s.page = nil
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
		s.browser = nil
	}
	s.current = parcel.Key{}
	s.fetchCount = 0
	return errors.Join(errs...)
}
