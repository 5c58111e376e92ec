// Package export writes a crawl queue as CSV.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/JakeFAU/taxcrawl/internal/crawler"
	"github.com/JakeFAU/taxcrawl/internal/queue"
)

// Header is the first CSV record.
var Header = []string{"bbl", "success", "rent_stabilized_units", "soa_pdf_url"}

// Locator resolves cache keys to URLs. cache.Cache satisfies it.
type Locator interface {
	URLForKey(key string) (string, bool)
}

// CSV streams every row of table to w. Unprocessed rows have an empty success
// cell. Rent stabilization comes from the most recent statement; its PDF
// locator is included when pdfs can produce one.
func CSV(ctx context.Context, w io.Writer, store queue.Store, table string, pdfs Locator) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	n := 0
	err := store.Iterate(ctx, table, func(row queue.Row) error {
		if err := cw.Write(record(row, pdfs)); err != nil {
			return fmt.Errorf("write %s: %w", row.Key, err)
		}
		n++
		return nil
	})
	if err != nil {
		return n, err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return n, fmt.Errorf("flush csv: %w", err)
	}
	return n, nil
}

func record(row queue.Row, pdfs Locator) []string {
	rec := []string{row.Key.String(), "", "", ""}
	switch row.Status {
	case queue.Succeeded:
		rec[1] = "true"
	case queue.Failed:
		rec[1] = "false"
	}
	if row.Info == nil {
		return rec
	}
	latest, ok := row.Info.LatestSOA()
	if !ok {
		return rec
	}
	if latest.RentStabilizedUnits != nil {
		rec[2] = strconv.Itoa(*latest.RentStabilizedUnits)
	}
	if pdfs != nil {
		if url, ok := pdfs.URLForKey(crawler.SOAPDFKey(row.Key, latest.Date)); ok {
			rec[3] = url
		}
	}
	return rec
}
