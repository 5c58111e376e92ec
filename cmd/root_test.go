package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	dir        string
	configPath string
}

func newHarness(t *testing.T, extra string) harness {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`
logging:
  development: false
  level: error
cache:
  backend: filesystem
  dir: %s
db:
  driver: sqlite
  dsn: %s
crawl:
  table: bbls
pdftotext:
  path: %s
%s`, filepath.Join(dir, "cache"), filepath.Join(dir, "queue.db"), filepath.Join(dir, "no-pdftotext"), extra)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return harness{dir: dir, configPath: path}
}

func (h harness) run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append([]string{"--config", h.configPath}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (h harness) writeKeys(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(h.dir, "keys.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o600))
	return path
}

func TestBuildQueueStatusAndExport(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "")

	keys := h.writeKeys(t, "# first batch", "1013730001", "", "3000010001", "1013730001")
	code, out, errOut := h.run(t, "build-queue", keys)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "queued 2 parcels in bbls")

	code, out, errOut = h.run(t, "status")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "bbls")
	assert.Contains(t, out, "Remaining")

	code, out, errOut = h.run(t, "clear-errors")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "reset 0 rows in bbls")

	exportPath := filepath.Join(h.dir, "out.csv")
	code, _, errOut = h.run(t, "export", "-o", exportPath)
	require.Equal(t, 0, code, errOut)
	data, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	assert.Equal(t, "bbl,success,rent_stabilized_units,soa_pdf_url\n1013730001,,,\n3000010001,,,\n", string(data))
}

func TestBuildQueueRejectsBadKeys(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "")

	code, _, errOut := h.run(t, "build-queue", h.writeKeys(t, "1013730001", "not-a-key"))
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "line 2")
}

func TestStatusUnknownTable(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "")

	code, _, _ := h.run(t, "status", "--table", "missing")
	assert.Equal(t, 1, code)
}

func TestCrawlFailsWithoutConverter(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "")

	code, _, _ := h.run(t, "build-queue", h.writeKeys(t, "1013730001"))
	require.Equal(t, 0, code)

	code, _, _ = h.run(t, "crawl", "--no-browser")
	assert.Equal(t, 1, code)
}

func TestCrawlRejectsConflictingFilters(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "")

	code, _, _ := h.run(t, "crawl", "--only-nopv", "--only-soa")
	assert.Equal(t, 1, code)
}

func TestScrapeUnknownAddressIsGraceful(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"features":[]}`))
	}))
	t.Cleanup(srv.Close)

	h := newHarness(t, "geosearch:\n  url: "+srv.URL+"\n")
	code, _, errOut := h.run(t, "scrape", "nowhere", "at", "all")
	assert.Equal(t, 1, code)
	assert.Equal(t, invalidSearchText+"\n", errOut)
}

func TestUnknownConfigFile(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--config", filepath.Join(t.TempDir(), "nope.yaml"), "status"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "load config")
}
