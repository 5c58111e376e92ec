package dof

import "fmt"

// Section is a sidebar page on a parcel's detail view.
type Section struct {
	// LinkText is the exact sidebar anchor text.
	LinkText string
	// Slug names the section in cache keys.
	Slug string
}

var (
	// NoticesOfPropertyValue lists the parcel's NOPV PDFs.
	NoticesOfPropertyValue = Section{LinkText: "Notices of Property Value", Slug: "nopv"}
	// PropertyTaxBills lists the parcel's quarterly statements of account.
	PropertyTaxBills = Section{LinkText: "Property Tax Bills", Slug: "soa"}
)

// Sections lists every section the crawler visits.
var Sections = []Section{NoticesOfPropertyValue, PropertyTaxBills}

// SectionBySlug looks a section up by its cache slug.
func SectionBySlug(slug string) (Section, error) {
	for _, s := range Sections {
		if s.Slug == slug {
			return s, nil
		}
	}
	return Section{}, fmt.Errorf("unknown section %q", slug)
}

func (s Section) String() string { return s.LinkText }
