// Package collyfetcher downloads documents and API responses using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/taxcrawl/internal/crawler"
	"github.com/JakeFAU/taxcrawl/internal/metrics"
	"github.com/JakeFAU/taxcrawl/internal/policy/ratelimit"
)

const pdfMIME = "application/pdf"

// Config controls collector behavior.
type Config struct {
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// Response is the outcome of a successful GET.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Fetcher performs single GET requests through a shared colly collector.
type Fetcher struct {
	cfg           Config
	limiter       *ratelimit.Limiter
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. limiter may be nil.
func New(cfg Config, limiter *ratelimit.Limiter) *Fetcher {
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(0),
	)
	c.WithTransport(newHTTPTransport())
	return &Fetcher{cfg: cfg, limiter: limiter, baseCollector: c}
}

// Get fetches url. Non-2xx responses are returned as *crawler.DownloadError.
func (f *Fetcher) Get(ctx context.Context, url string, headers http.Header) (Response, error) {
	if err := f.limiter.Wait(ctx, url); err != nil {
		return Response{}, err
	}
	var (
		result   Response
		fetchErr error
	)
	collector := f.buildCollector()
	f.configureCollectorHooks(collector, url, headers, &result, &fetchErr)
	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		return Response{}, err
	}
	return result, nil
}

// DownloadPDF fetches url and verifies the body is a PDF.
func (f *Fetcher) DownloadPDF(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.Get(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	if mt := mimetype.Detect(resp.Body); !mt.Is(pdfMIME) {
		return nil, &crawler.DownloadError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Reason:     fmt.Sprintf("expected %s, got %s", pdfMIME, mt.String()),
		}
	}
	return resp.Body, nil
}

func (f *Fetcher) buildCollector() *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	url string,
	headers http.Header,
	result *Response,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		metrics.ObserveDownload(url, r.StatusCode, len(r.Body))
		*result = Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			metrics.ObserveDownload(url, r.StatusCode, 0)
			*fetchErr = &crawler.DownloadError{URL: url, StatusCode: r.StatusCode}
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		var dlErr *crawler.DownloadError
		if errors.As(*fetchErr, &dlErr) {
			return dlErr
		}
		if err != nil {
			return fmt.Errorf("colly visit %s: %w", url, err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response %s: %w", url, *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
