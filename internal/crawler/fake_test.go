package crawler_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/taxcrawl/internal/crawler"
	"github.com/JakeFAU/taxcrawl/internal/dof"
	"github.com/JakeFAU/taxcrawl/internal/parcel"
	"github.com/JakeFAU/taxcrawl/internal/pdftotext"
)

// fakePages serves section HTML and document text from maps keyed by slug and URL.
type fakePages struct {
	mu       sync.Mutex
	sections map[string]string
	texts    map[string]string
	errs     map[string]error
	purged   []string
	fetched  []string
}

func (f *fakePages) SectionHTML(_ context.Context, _ parcel.Key, section dof.Section) (string, error) {
	if err := f.errs[section.Slug]; err != nil {
		return "", err
	}
	return f.sections[section.Slug], nil
}

func (f *fakePages) DownloadAndConvert(
	_ context.Context,
	key parcel.Key,
	url, subkey string,
	flags ...pdftotext.Flag,
) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[url]; err != nil {
		return "", err
	}
	f.fetched = append(f.fetched, crawler.TextKey(key, subkey, flags...))
	text, ok := f.texts[url]
	if !ok {
		return "", fmt.Errorf("unexpected url %s", url)
	}
	return text, nil
}

func (f *fakePages) Purge(_ context.Context, key parcel.Key, subkey string, flags ...pdftotext.Flag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purged = append(f.purged, crawler.PDFKey(key, subkey), crawler.TextKey(key, subkey, flags...))
	return nil
}

func (f *fakePages) Shutdown(context.Context) error { return nil }

const nopvHTML = `<table id="Notices of Property Value">
<tr><td>2019 - 2020</td><td><a href="https://dof.test/nopv-2019.pdf">January 15, 2019</a></td></tr>
<tr><td>2018 - 2019</td><td><a href="https://dof.test/nopv-2018.pdf">January 15, 2018</a></td></tr>
</table>`

const soaHTML = `<table id="Property Tax Bills">
<tr><td>2019 - 2020</td><td><a href="https://dof.test/soa-2019-q1.pdf">Q1: June 5, 2019</a></td></tr>
<tr><td>2018 - 2019</td><td><a href="https://dof.test/soa-2019-q3.pdf">Q3: February 15, 2019</a></td></tr>
<tr><td>2018 - 2019</td><td><a href="https://dof.test/soa-2018-q1.pdf">Q1: June 1, 2018</a></td></tr>
</table>`

func newFakePages() *fakePages {
	return &fakePages{
		sections: map[string]string{"nopv": nopvHTML, "soa": soaHTML},
		texts: map[string]string{
			"https://dof.test/nopv-2019.pdf":   "estimated net operating income of $5,000.00.",
			"https://dof.test/nopv-2018.pdf":   "no income stated",
			"https://dof.test/soa-2019-q1.pdf": "Rent Stabilization Fee- Chg 12  01/01/2020  50350000  $120.00\nBasic Star - School Tax Relief",
			"https://dof.test/soa-2019-q3.pdf": "third quarter",
			"https://dof.test/soa-2018-q1.pdf": "nothing here",
		},
		errs: map[string]error{},
	}
}
