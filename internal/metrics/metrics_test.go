package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSanitizeHost(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard https", "https://A836-Edms.nyc.gov/doc.pdf", "a836-edms.nyc.gov"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, SanitizeHost(tc.input))
		})
	}
}

func TestKeyPrefix(t *testing.T) {
	assert.Equal(t, "pdf", KeyPrefix("pdf/1/01373/0001/soa-2019-06-05.pdf"))
	assert.Equal(t, "root", KeyPrefix("status-queue.json"))
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	ObserveParcel("metrics_test", "success")
	assert.Equal(t, float64(1), testutil.ToFloat64(parcelsTotal.WithLabelValues("metrics_test", "success")))

	before := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("mtest", "hit"))
	ObserveCacheLookup("mtest/a.txt", true)
	assert.Equal(t, before+1, testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("mtest", "hit")))
}

func TestSetQueueRows(t *testing.T) {
	SetQueueRows("metrics_rows", 3, 1, 6)
	assert.Equal(t, float64(3), testutil.ToFloat64(queueRows.WithLabelValues("metrics_rows", "successful")))
	assert.Equal(t, float64(1), testutil.ToFloat64(queueRows.WithLabelValues("metrics_rows", "unsuccessful")))
	assert.Equal(t, float64(6), testutil.ToFloat64(queueRows.WithLabelValues("metrics_rows", "remaining")))
}

func TestObserveDownload(t *testing.T) {
	ObserveDownload("https://dl.metrics.test/a.pdf", 200, 10)
	ObserveDownload("https://dl.metrics.test/b.pdf", 200, 5)
	assert.Equal(t, float64(2), testutil.ToFloat64(downloadsTotal.WithLabelValues("dl.metrics.test", "200")))
	assert.Equal(t, float64(15), testutil.ToFloat64(downloadBytesTotal.WithLabelValues("dl.metrics.test")))

	ObserveThrottle("dl.metrics.test", 10*time.Millisecond)
	assert.Positive(t, testutil.CollectAndCount(throttleSeconds))
}

func FuzzSanitizeHost(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://nyc.gov", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeHost(orig) == "" {
			t.Errorf("SanitizeHost(%q) returned an empty string", orig)
		}
	})
}
