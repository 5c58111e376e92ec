package crawler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/taxcrawl/internal/dof"
	"github.com/JakeFAU/taxcrawl/internal/parcel"
	"github.com/JakeFAU/taxcrawl/internal/pdftotext"
)

// Scraper builds PropertyInfo for one parcel at a time using a PageGetter.
type Scraper struct {
	pages  PageGetter
	filter LinkFilter
	logger *zap.Logger
}

// NewScraper returns a Scraper. A nil filter fetches every document.
func NewScraper(pages PageGetter, filter LinkFilter, logger *zap.Logger) *Scraper {
	if filter == nil {
		filter = AllowAll
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{pages: pages, filter: filter, logger: logger}
}

// PropertyInfo fetches both listing sections, the filtered documents, and
// extracts their facts. Any error aborts the parcel.
func (s *Scraper) PropertyInfo(ctx context.Context, key parcel.Key) (PropertyInfo, error) {
	soa, err := s.soaInfo(ctx, key)
	if err != nil {
		return PropertyInfo{}, err
	}
	nopv, err := s.nopvInfo(ctx, key)
	if err != nil {
		return PropertyInfo{}, err
	}
	return PropertyInfo{Key: key, NOPV: nopv, SOA: soa}, nil
}

func (s *Scraper) nopvInfo(ctx context.Context, key parcel.Key) ([]NOPVInfo, error) {
	links, err := s.links(ctx, key, dof.NoticesOfPropertyValue, dof.ParseNOPVLinks)
	if err != nil {
		return nil, err
	}
	results := make([]NOPVInfo, 0, len(links))
	for _, link := range links {
		text, err := s.documentText(ctx, key, link, pdftotext.Layout)
		if err != nil {
			return nil, err
		}
		info := NOPVInfo{DocumentLink: link}
		if noi, ok := dof.ExtractNetOperatingIncome(text); ok {
			info.NOI = &noi
		}
		results = append(results, info)
	}
	return results, nil
}

func (s *Scraper) soaInfo(ctx context.Context, key parcel.Key) ([]SOAInfo, error) {
	links, err := s.links(ctx, key, dof.PropertyTaxBills, dof.ParseSOALinks)
	if err != nil {
		return nil, err
	}
	results := make([]SOAInfo, 0, len(links))
	for _, link := range links {
		text, err := s.documentText(ctx, key, link, pdftotext.Table)
		if err != nil {
			return nil, err
		}
		results = append(results, SOAInfo{
			DocumentLink:        link,
			RentStabilizedUnits: dof.ExtractRentStabilizedUnits(text),
			StarEnrolled:        dof.ExtractStarEnrolled(text),
		})
	}
	return results, nil
}

func (s *Scraper) links(
	ctx context.Context,
	key parcel.Key,
	section dof.Section,
	parse func(string) ([]dof.DocumentLink, error),
) ([]dof.DocumentLink, error) {
	html, err := s.pages.SectionHTML(ctx, key, section)
	if err != nil {
		return nil, fmt.Errorf("get %s page: %w", section.Slug, err)
	}
	all, err := parse(html)
	if err != nil {
		return nil, err
	}
	var kept []dof.DocumentLink
	for _, link := range all {
		if s.filter(link) {
			kept = append(kept, link)
		}
	}
	s.logger.Debug("parsed document links",
		zap.Stringer("parcel", key),
		zap.String("section", section.Slug),
		zap.Int("found", len(all)),
		zap.Int("kept", len(kept)),
	)
	return kept, nil
}

// documentText downloads and converts a document. Empty text means the cached
// PDF is corrupt: both cache entries are purged so a retry fetches it again.
func (s *Scraper) documentText(ctx context.Context, key parcel.Key, link dof.DocumentLink, flag pdftotext.Flag) (string, error) {
	subkey := Subkey(string(link.Kind), link.Date)
	text, err := s.pages.DownloadAndConvert(ctx, key, link.URL, subkey, flag)
	if err != nil {
		return "", fmt.Errorf("get %s text: %w", subkey, err)
	}
	if text != "" {
		return text, nil
	}
	s.logger.Warn("purging corrupted download",
		zap.Stringer("parcel", key),
		zap.String("subkey", subkey),
		zap.String("url", link.URL),
	)
	if err := s.pages.Purge(ctx, key, subkey, flag); err != nil {
		return "", fmt.Errorf("purge %s: %w", subkey, err)
	}
	return "", fmt.Errorf("%s for parcel %s: %w", subkey, key, ErrCorruptedDownload)
}

// Shutdown releases the underlying PageGetter's browser.
func (s *Scraper) Shutdown(ctx context.Context) error {
	return s.pages.Shutdown(ctx)
}
