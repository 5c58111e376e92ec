package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/taxcrawl/internal/crawler"
)

const minimalPDF = "%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/doc.pdf", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte(minimalPDF))
	})
	mux.HandleFunc("/page.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>" + r.Header.Get("X-Trace") + "</html>"))
	})
	mux.HandleFunc("/gone.pdf", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestDownloadPDF(t *testing.T) {
	t.Parallel()

	server := newServer(t)
	f := New(Config{UserAgent: "taxcrawl-test", Timeout: 5 * time.Second}, nil)

	body, err := f.DownloadPDF(context.Background(), server.URL+"/doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, minimalPDF, string(body))

	// A second visit of the same URL must not be rejected as already visited.
	_, err = f.DownloadPDF(context.Background(), server.URL+"/doc.pdf")
	require.NoError(t, err)
}

func TestDownloadPDFRejectsNonPDF(t *testing.T) {
	t.Parallel()

	server := newServer(t)
	f := New(Config{}, nil)

	_, err := f.DownloadPDF(context.Background(), server.URL+"/page.html")
	require.Error(t, err)
	assert.ErrorIs(t, err, crawler.ErrDownloadFailure)
}

func TestDownloadStatusError(t *testing.T) {
	t.Parallel()

	server := newServer(t)
	f := New(Config{}, nil)

	_, err := f.DownloadPDF(context.Background(), server.URL+"/gone.pdf")
	require.Error(t, err)
	var dlErr *crawler.DownloadError
	require.True(t, errors.As(err, &dlErr))
	assert.Equal(t, http.StatusNotFound, dlErr.StatusCode)
	assert.ErrorIs(t, err, crawler.ErrDownloadFailure)
}

func TestGetSendsHeaders(t *testing.T) {
	t.Parallel()

	server := newServer(t)
	f := New(Config{}, nil)

	resp, err := f.Get(context.Background(), server.URL+"/page.html", http.Header{"X-Trace": {"yes"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html>yes</html>", string(resp.Body))
}

func TestGetCanceledContext(t *testing.T) {
	t.Parallel()

	blocked := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-blocked
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(func() {
		close(blocked)
		server.Close()
	})

	f := New(Config{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.Get(ctx, server.URL, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil)
	var (
		result   Response
		fetchErr error
	)
	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, "https://dof.test/a.pdf", http.Header{"X-Trace": {"yes"}}, &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	assert.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://dof.test/a.pdf")},
	})
	assert.Equal(t, "body", string(result.Body))
	assert.Equal(t, "ok", result.Headers.Get("X-Resp"))

	hooks.onError(&colly.Response{StatusCode: http.StatusBadGateway}, errors.New("Bad Gateway"))
	var dlErr *crawler.DownloadError
	require.True(t, errors.As(fetchErr, &dlErr))
	assert.Equal(t, http.StatusBadGateway, dlErr.StatusCode)

	hooks.onError(nil, errors.New("boom"))
	assert.EqualError(t, fetchErr, "boom")
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback)   { s.onRequest = cb }
func (s *stubHooks) OnResponse(cb colly.ResponseCallback) { s.onResponse = cb }
func (s *stubHooks) OnError(cb colly.ErrorCallback)       { s.onError = cb }
