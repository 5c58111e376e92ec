// Package geo resolves free-text NYC addresses to parcel keys using the
// NYC Planning Labs GeoSearch autocomplete endpoint.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/taxcrawl/internal/cache"
	collyfetcher "github.com/JakeFAU/taxcrawl/internal/fetcher/colly"
	"github.com/JakeFAU/taxcrawl/internal/parcel"
)

// DefaultURL is the GeoSearch autocomplete endpoint.
const DefaultURL = "https://geosearch.planninglabs.nyc/v2/autocomplete"

// Result is the first match for a search.
type Result struct {
	// Name is the normalized address, e.g. "150 COURT STREET".
	Name    string `json:"name"`
	Borough string `json:"borough"`
	BBL     string `json:"bbl"`
}

// Key parses the result's padded parcel identifier.
func (r Result) Key() (parcel.Key, error) {
	return parcel.Parse(r.BBL)
}

// Resolver finds the parcel for an address. A nil result means no match.
type Resolver interface {
	Resolve(ctx context.Context, text string) (*Result, error)
}

// Getter performs HTTP GETs. The colly fetcher satisfies it.
type Getter interface {
	Get(ctx context.Context, url string, headers http.Header) (collyfetcher.Response, error)
}

type response struct {
	Features []struct {
		Properties struct {
			Name     string `json:"name"`
			Borough  string `json:"borough"`
			PadBBL   string `json:"pad_bbl"`
			Addendum struct {
				Pad struct {
					BBL string `json:"bbl"`
				} `json:"pad"`
			} `json:"addendum"`
		} `json:"properties"`
	} `json:"features"`
}

// Client queries GeoSearch.
type Client struct {
	getter  Getter
	baseURL string
}

var _ Resolver = (*Client)(nil)

// NewClient returns a Client. An empty baseURL uses DefaultURL.
func NewClient(getter Getter, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{getter: getter, baseURL: baseURL}
}

// Resolve returns the first feature for text.
func (c *Client) Resolve(ctx context.Context, text string) (*Result, error) {
	u := c.baseURL + "?text=" + url.QueryEscape(text)
	resp, err := c.getter.Get(ctx, u, http.Header{"Accept": {"application/json"}})
	if err != nil {
		return nil, fmt.Errorf("geosearch %q: %w", text, err)
	}
	var body response
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("decode geosearch response: %w", err)
	}
	if len(body.Features) == 0 {
		return nil, nil
	}
	p := body.Features[0].Properties
	bbl := p.Addendum.Pad.BBL
	if bbl == "" {
		bbl = p.PadBBL
	}
	return &Result{Name: p.Name, Borough: p.Borough, BBL: bbl}, nil
}

var unsafeChars = regexp.MustCompile(`[^a-z0-9\- ]`)

// SimplifyText lowercases text and drops everything but letters, digits,
// hyphens and spaces.
func SimplifyText(text string) string {
	return unsafeChars.ReplaceAllString(strings.ToLower(text), "")
}

// CacheKey is where the result for text is memoized.
func CacheKey(text string) string {
	return "geosearch/" + strings.ReplaceAll(SimplifyText(text), " ", "_") + ".json"
}

// Cached memoizes another Resolver, including misses.
type Cached struct {
	inner  Resolver
	store  cache.Cache[*Result]
	logger *zap.Logger
}

var _ Resolver = (*Cached)(nil)

// NewCached wraps inner with a JSON view of store.
func NewCached(inner Resolver, store cache.Cache[[]byte], logger *zap.Logger) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{inner: inner, store: cache.AsJSON[*Result](store), logger: logger}
}

// Resolve searches for the simplified text, consulting the cache first.
func (c *Cached) Resolve(ctx context.Context, text string) (*Result, error) {
	simple := SimplifyText(text)
	return c.store.LazyGet(ctx, CacheKey(text), func(ctx context.Context) (*Result, error) {
		c.logger.Info("geocoding", zap.String("text", simple))
		return c.inner.Resolve(ctx, simple)
	})
}
