package crawler

import (
	"slices"
	"strconv"
	"strings"

	"github.com/JakeFAU/taxcrawl/internal/dof"
)

// LinkFilter decides whether a document is fetched.
type LinkFilter func(dof.DocumentLink) bool

// FilterOptions restricts which documents a crawl fetches.
type FilterOptions struct {
	// OnlyYear keeps documents dated in that year when non-zero.
	OnlyYear int  `mapstructure:"only_year"`
	OnlyNOPV bool `mapstructure:"only_nopv"`
	OnlySOA  bool `mapstructure:"only_soa"`
	// SOAQuarters lists the statement quarters to fetch. Empty means the first
	// quarter only, whose statement carries the annual rent stabilization charges.
	SOAQuarters []int `mapstructure:"soa_quarters"`
}

// DefaultSOAQuarters is used when FilterOptions.SOAQuarters is empty.
var DefaultSOAQuarters = []int{1}

// AllowAll accepts every document.
func AllowAll(dof.DocumentLink) bool { return true }

// MakeLinkFilter builds a LinkFilter from opts.
func MakeLinkFilter(opts FilterOptions) LinkFilter {
	quarters := opts.SOAQuarters
	if len(quarters) == 0 {
		quarters = DefaultSOAQuarters
	}
	year := ""
	if opts.OnlyYear != 0 {
		year = strconv.Itoa(opts.OnlyYear)
	}
	return func(link dof.DocumentLink) bool {
		if year != "" && !strings.HasPrefix(link.Date, year) {
			return false
		}
		if opts.OnlySOA && link.Kind != dof.KindSOA {
			return false
		}
		if opts.OnlyNOPV && link.Kind != dof.KindNOPV {
			return false
		}
		if link.Kind == dof.KindSOA && !slices.Contains(quarters, link.Quarter) {
			return false
		}
		return true
	}
}
