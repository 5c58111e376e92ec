package crawler

import (
	"context"

	"github.com/JakeFAU/taxcrawl/internal/dof"
	"github.com/JakeFAU/taxcrawl/internal/parcel"
	"github.com/JakeFAU/taxcrawl/internal/pdftotext"
)

// PageGetter fetches a parcel's pages and documents, memoized by the cache.
type PageGetter interface {
	// SectionHTML returns the HTML of a sidebar section of the parcel's detail page.
	SectionHTML(ctx context.Context, key parcel.Key, section dof.Section) (string, error)
	// DownloadAndConvert returns the text of the PDF at url.
	DownloadAndConvert(ctx context.Context, key parcel.Key, url, subkey string, flags ...pdftotext.Flag) (string, error)
	// Purge drops the cached PDF and text for a document.
	Purge(ctx context.Context, key parcel.Key, subkey string, flags ...pdftotext.Flag) error
	// Shutdown releases the browser; the getter stays usable.
	Shutdown(ctx context.Context) error
}
