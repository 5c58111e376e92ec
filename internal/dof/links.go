package dof

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
)

// Kind identifies a document type.
type Kind string

const (
	// KindNOPV is a Notice of Property Value.
	KindNOPV Kind = "nopv"
	// KindSOA is a quarterly Statement of Account.
	KindSOA Kind = "soa"
)

// DocumentLink points at one PDF listed on a section page.
type DocumentLink struct {
	Kind   Kind   `json:"kind"`
	Period string `json:"period"`
	// Quarter is set for statements only.
	Quarter int    `json:"quarter,omitempty"`
	Date    string `json:"date"`
	URL     string `json:"url"`
}

// Year returns the four digit year of the link's date.
func (l DocumentLink) Year() int {
	if len(l.Date) < 4 {
		return 0
	}
	y, _ := strconv.Atoi(l.Date[:4])
	return y
}

const (
	nopvRows = `table[id="Notices of Property Value"] tr`
	soaRows  = `table[id="Property Tax Bills"] tr`
	isoDate  = "2006-01-02"
)

var (
	soaAnchorRE = regexp.MustCompile(`^Q([1-4]):\s*(.+)$`)
	spaceRE     = regexp.MustCompile(`\s+`)
)

// ParseDate accepts natural-language dates such as "January     3, 2015" and
// returns them as YYYY-MM-DD.
func ParseDate(text string) (string, bool) {
	text = strings.TrimSpace(spaceRE.ReplaceAllString(text, " "))
	if text == "" {
		return "", false
	}
	t, err := dateparse.ParseIn(text, time.UTC)
	if err != nil {
		return "", false
	}
	return t.Format(isoDate), true
}

// ParseNOPVLinks extracts the valuation notices from the NOPV section HTML.
// Rows without a period, an anchor, a parseable date, or an href are skipped.
func ParseNOPVLinks(html string) ([]DocumentLink, error) {
	return parseRows(html, nopvRows, func(period string, anchor *goquery.Selection) (DocumentLink, bool) {
		date, ok := ParseDate(anchor.Text())
		if !ok {
			return DocumentLink{}, false
		}
		return DocumentLink{Kind: KindNOPV, Period: period, Date: date}, true
	})
}

// ParseSOALinks extracts statements of account. Anchor text has the form
// "Q<n>: <date>"; rows that don't match are skipped.
func ParseSOALinks(html string) ([]DocumentLink, error) {
	return parseRows(html, soaRows, func(period string, anchor *goquery.Selection) (DocumentLink, bool) {
		m := soaAnchorRE.FindStringSubmatch(strings.TrimSpace(anchor.Text()))
		if m == nil {
			return DocumentLink{}, false
		}
		date, ok := ParseDate(m[2])
		if !ok {
			return DocumentLink{}, false
		}
		quarter, _ := strconv.Atoi(m[1])
		return DocumentLink{Kind: KindSOA, Period: period, Quarter: quarter, Date: date}, true
	})
}

type rowFunc func(period string, anchor *goquery.Selection) (DocumentLink, bool)

func parseRows(html, selector string, fn rowFunc) ([]DocumentLink, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse section html: %w", err)
	}
	var links []DocumentLink
	doc.Find(selector).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		period := strings.TrimSpace(cells.Eq(0).Text())
		if period == "" {
			return
		}
		anchor := cells.Eq(1).Find("a").First()
		if anchor.Length() == 0 {
			return
		}
		href, ok := anchor.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		link, ok := fn(period, anchor)
		if !ok {
			return
		}
		link.URL = strings.TrimSpace(href)
		links = append(links, link)
	})
	return links, nil
}
