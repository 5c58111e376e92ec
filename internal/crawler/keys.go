package crawler

import (
	"fmt"

	"github.com/JakeFAU/taxcrawl/internal/parcel"
	"github.com/JakeFAU/taxcrawl/internal/pdftotext"
)

// DefaultHTMLPrefix is the first key segment of cached section pages.
const DefaultHTMLPrefix = "html"

// HTMLKey is the cache key of a parcel's section page.
func HTMLKey(prefix string, key parcel.Key, slug string) string {
	if prefix == "" {
		prefix = DefaultHTMLPrefix
	}
	return fmt.Sprintf("%s/%s/%s.html", prefix, key.Path(), slug)
}

// PDFKey is the cache key of a downloaded document.
func PDFKey(key parcel.Key, subkey string) string {
	return fmt.Sprintf("pdf/%s/%s.pdf", key.Path(), subkey)
}

// TextKey is the cache key of a document's converted text. It embeds the
// converter version and flags.
func TextKey(key parcel.Key, subkey string, flags ...pdftotext.Flag) string {
	return fmt.Sprintf("txt/%s/%s_%s.txt", key.Path(), subkey, pdftotext.CacheKeyTag(flags...))
}

// Subkey names a document within a parcel's cache directory, e.g. "soa-2019-06-05".
func Subkey(kind, isoDate string) string {
	return kind + "-" + isoDate
}

// SOAPDFKey is the cache key of the statement PDF dated isoDate.
func SOAPDFKey(key parcel.Key, isoDate string) string {
	return PDFKey(key, Subkey("soa", isoDate))
}
