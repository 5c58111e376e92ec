package headless

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/taxcrawl/internal/crawler"
)

func TestNewLauncherDefaults(t *testing.T) {
	t.Parallel()

	l := NewLauncher(Config{}, nil, nil)
	assert.Equal(t, 45*time.Second, l.cfg.NavigationTimeout)
	assert.Equal(t, DefaultSearchURL, l.cfg.SearchURL)

	l = NewLauncher(Config{NavigationTimeout: time.Second, SearchURL: "http://localhost/search"}, nil, nil)
	assert.Equal(t, time.Second, l.cfg.NavigationTimeout)
	assert.Equal(t, "http://localhost/search", l.cfg.SearchURL)
}

func TestClassifySearchOutcome(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		success bool
		errText string
		found   bool
		wantErr bool
	}{
		{name: "detail page", success: true, found: true},
		{name: "no records", errText: "  Your search did not find any records.  ", found: false},
		{name: "other message", errText: "Service unavailable", wantErr: true},
		{name: "blank page", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			found, err := classifySearchOutcome(tc.success, tc.errText)
			if tc.wantErr {
				require.ErrorIs(t, err, crawler.ErrUnexpectedSearchFailure)
				assert.NotContains(t, err.Error(), crawler.PermanentFailurePattern)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.found, found)
		})
	}
}

func TestFindSidebarLink(t *testing.T) {
	t.Parallel()

	links := []sidebarLink{
		{Name: "Property Tax Bills", Href: "https://dof.test/soa"},
		{Name: "Notices of Property Value", Href: "https://dof.test/nopv"},
	}
	href, err := findSidebarLink(links, "Notices of Property Value")
	require.NoError(t, err)
	assert.Equal(t, "https://dof.test/nopv", href)

	_, err = findSidebarLink(links, "Property Details")
	assert.ErrorIs(t, err, crawler.ErrSectionNotFound)
}

func TestDisabledLauncher(t *testing.T) {
	t.Parallel()

	_, err := Disabled{}.Launch(context.Background())
	assert.ErrorIs(t, err, crawler.ErrBrowserDisabled)
}
