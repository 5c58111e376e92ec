package crawler

import (
	"github.com/JakeFAU/taxcrawl/internal/dof"
	"github.com/JakeFAU/taxcrawl/internal/parcel"
)

// NOPVInfo is a notice of property value with the facts read from it.
type NOPVInfo struct {
	dof.DocumentLink
	// NOI is the net operating income, e.g. "$1,234.00", when the notice states one.
	NOI *string `json:"noi"`
}

// SOAInfo is a statement of account with the facts read from it.
type SOAInfo struct {
	dof.DocumentLink
	RentStabilizedUnits *int `json:"rentStabilizedUnits"`
	StarEnrolled        bool `json:"starEnrolled"`
}

// PropertyInfo is everything a crawl learns about one parcel.
type PropertyInfo struct {
	Key     parcel.Key `json:"bbl"`
	Name    string     `json:"name,omitempty"`
	Borough string     `json:"borough,omitempty"`
	NOPV    []NOPVInfo `json:"nopv"`
	SOA     []SOAInfo  `json:"soa"`
}

// LatestSOA returns the statement with the most recent date, if any.
func (p PropertyInfo) LatestSOA() (SOAInfo, bool) {
	var (
		best  SOAInfo
		found bool
	)
	for _, s := range p.SOA {
		if !found || s.Date > best.Date {
			best, found = s, true
		}
	}
	return best, found
}
