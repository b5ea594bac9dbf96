package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/newsqa/internal/types"
)

const articlePage = `
<html>
	<head><title>Markets Rally</title><script>var x = 1;</script></head>
	<body>
		<nav><a href="/">Home</a></nav>
		<article>
			<h1>Markets   rally on rate cut</h1>
			<p>Stocks rose sharply on Tuesday.</p>
			<p>Analysts expect <b>further</b> gains.</p>
			<blockquote><p>It was a good day.</p></blockquote>
		</article>
		<footer>Privacy Policy</footer>
	</body>
</html>`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(articlePage))
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("First   paragraph.\n\nSecond paragraph."))
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>   </body></html>"))
	})
	mux.HandleFunc("/ua", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(r.UserAgent()))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestScraper(skipFailed bool) *Scraper {
	return NewWithConfig(ScraperConfig{
		RateLimit:  100,
		Timeout:    5 * time.Second,
		UserAgent:  "newsqa-test",
		SkipFailed: skipFailed,
	})
}

func TestFilterURLs(t *testing.T) {
	assert.Nil(t, FilterURLs(nil))
	assert.Nil(t, FilterURLs([]string{"", "  ", "\t\n"}))
	assert.Equal(t,
		[]string{"http://example.com/a", "http://example.com/b", "http://example.com/a"},
		FilterURLs([]string{" http://example.com/a ", "", "http://example.com/b", "  ", "http://example.com/a"}),
	)
}

func TestLoadNothingToProcess(t *testing.T) {
	var calls int
	s := NewWithConfig(ScraperConfig{OnProgress: func(string) { calls++ }})

	docs, err := s.Load(context.Background(), []string{"", "  "})
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Zero(t, calls)
}

func TestLoadFiltersEmptyEntries(t *testing.T) {
	server := newTestServer(t)
	s := newTestScraper(false)

	docs, err := s.Load(context.Background(), []string{server.URL + "/a", "", "  "})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	doc := docs[0]
	assert.Equal(t, server.URL+"/a", doc.URL)
	assert.Equal(t, "Markets Rally", doc.Title)
	assert.Equal(t,
		"Markets rally on rate cut\n\nStocks rose sharply on Tuesday.\n\nAnalysts expect further gains.\n\nIt was a good day.",
		doc.Content)
	assert.NotContains(t, doc.Content, "Home")
	assert.NotNil(t, doc.Metadata)
}

func TestFetchPlainText(t *testing.T) {
	server := newTestServer(t)
	s := newTestScraper(false)

	doc, err := s.Fetch(context.Background(), server.URL+"/plain")
	require.NoError(t, err)
	assert.Equal(t, "First paragraph.\n\nSecond paragraph.", doc.Content)

	doc, err = s.Fetch(context.Background(), server.URL+"/ua")
	require.NoError(t, err)
	assert.Equal(t, "newsqa-test", doc.Content)
}

func TestFetchErrorsNameTheURL(t *testing.T) {
	server := newTestServer(t)
	s := newTestScraper(false)

	tests := []struct {
		name string
		url  string
		msg  string
	}{
		{"not found", server.URL + "/missing", "status code 404"},
		{"no text", server.URL + "/empty", "no readable text"},
		{"relative", "/a", "not an absolute http(s) URL"},
		{"bad scheme", "ftp://example.com/a", "not an absolute http(s) URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Fetch(context.Background(), tt.url)
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrDataFetch)

			var fetchErr *types.FetchError
			require.True(t, errors.As(err, &fetchErr))
			assert.Equal(t, tt.url, fetchErr.URL)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestFetchRejectsOversizedBody(t *testing.T) {
	server := newTestServer(t)
	s := NewWithConfig(ScraperConfig{RateLimit: 100, Timeout: 5 * time.Second, MaxBody: 16})

	_, err := s.Fetch(context.Background(), server.URL+"/plain")
	assert.ErrorIs(t, err, types.ErrDataFetch)
	assert.Contains(t, err.Error(), "larger than 16 bytes")

	s = NewWithConfig(ScraperConfig{RateLimit: 100, Timeout: 5 * time.Second, MaxBody: 37})
	doc, err := s.Fetch(context.Background(), server.URL+"/plain")
	require.NoError(t, err)
	assert.Equal(t, "First paragraph.\n\nSecond paragraph.", doc.Content)
}

func TestLoadAbortsOnFailure(t *testing.T) {
	server := newTestServer(t)
	s := newTestScraper(false)

	docs, err := s.Load(context.Background(), []string{server.URL + "/a", server.URL + "/missing"})
	require.Error(t, err)
	assert.Nil(t, docs)
	assert.Contains(t, err.Error(), server.URL+"/missing")
}

func TestLoadSkipFailed(t *testing.T) {
	server := newTestServer(t)
	s := newTestScraper(true)

	docs, err := s.Load(context.Background(), []string{server.URL + "/missing", server.URL + "/a"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, server.URL+"/a", docs[0].URL)

	_, err = s.Load(context.Background(), []string{server.URL + "/missing"})
	assert.ErrorIs(t, err, types.ErrDataFetch)
}

func TestExtractMainContentFallsBackToBody(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<html><body><div>Just   some text</div><script>ignored()</script></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, "Just some text", extractMainContent(doc))
}

func TestKind(t *testing.T) {
	assert.Equal(t, "pdf", kind("application/pdf", "/report"))
	assert.Equal(t, "pdf", kind("", "/files/Report.PDF"))
	assert.Equal(t, "text", kind("text/plain; charset=utf-8", "/a"))
	assert.Equal(t, "html", kind("text/html", "/a"))
}
