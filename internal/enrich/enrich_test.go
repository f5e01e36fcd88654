package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstanton/curator/internal/collection"
)

func TestPageFetcherExtractsOpenGraph(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head>
  <title>Fallback Title</title>
  <meta property="og:title" content="OG Title">
  <meta property="og:description" content="OG description">
  <meta property="og:image" content="https://cdn.example.com/hero.png">
  <meta property="og:site_name" content="Example Site">
  <meta property="og:url" content="https://example.com/canonical">
  <link rel="icon" href="/static/icon.png">
  <script>ignored()</script>
</head>
<body><p>Visible   body    text.</p></body>
</html>`)
	}))
	defer srv.Close()

	f := NewPageFetcher("test-agent", 5*time.Second, 0)
	page, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "OG Title", page.Title)
	assert.Equal(t, "OG description", page.Description)
	assert.Equal(t, "https://cdn.example.com/hero.png", page.ImageURL)
	assert.Equal(t, "Example Site", page.SiteName)
	assert.Equal(t, "https://example.com/canonical", page.CanonicalURL)
	assert.Equal(t, srv.URL+"/static/icon.png", page.FaviconURL)
	assert.Contains(t, page.CleanedText, "Visible body text.")
	assert.NotContains(t, page.CleanedText, "ignored()")
}

func TestPageFetcherFallsBackToDocumentTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head>
  <title>Plain Title</title>
  <meta name="description" content="plain description">
  <link rel="canonical" href="https://example.com/page">
</head><body>hello</body></html>`)
	}))
	defer srv.Close()

	f := NewPageFetcher("test-agent", 5*time.Second, 0)
	page, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "Plain Title", page.Title)
	assert.Equal(t, "plain description", page.Description)
	assert.Equal(t, "https://example.com/page", page.CanonicalURL)
}

func TestPageFetcherReportsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	f := NewPageFetcher("test-agent", 2*time.Second, 0)
	_, err := f.Fetch(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestFaviconFinderPicksFirstServedCandidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/favicon.png":
			w.Header().Set("Content-Type", "image/png")
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	f := NewFaviconFinder(2*time.Second, "test-agent")
	got, err := f.Find(context.Background(), srv.URL+"/some/deep/page")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/favicon.png", got)
}

func TestFaviconFinderReturnsEmptyWhenNoneServed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFaviconFinder(2*time.Second, "test-agent")
	got, err := f.Find(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFaviconFinderRejectsNonImageContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := NewFaviconFinder(2*time.Second, "test-agent")
	got, err := f.Find(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSuggestClientParsesStructuredOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret-key", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))

		var req apiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.OutputFormat)
		assert.Equal(t, "json_schema", req.OutputFormat.Type)
		assert.Contains(t, req.Messages[0].Content, "Available categories: Dev, Reading")

		payload := `{"title":"Go Blog","summary":"The official Go blog.","category":"Dev","tags":["go","blog"],"iconSymbol":"text.book.closed"}`
		resp := apiResponse{Content: []contentBlock{{Type: "text", Text: payload}}}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := NewSuggestClientWith(srv.URL, "secret-key")
	s, err := c.Suggest(context.Background(), pageFixture(), []string{"Dev", "Reading"}, []string{"go"})
	require.NoError(t, err)

	assert.Equal(t, "Go Blog", s.RefinedTitle)
	assert.Equal(t, "The official Go blog.", s.Summary)
	assert.Equal(t, "Dev", s.CategoryName)
	assert.Equal(t, []string{"go", "blog"}, s.TagNames)
	assert.Equal(t, "text.book.closed", s.IconSymbol)
}

func TestSuggestClientRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewSuggestClientWith(srv.URL, "secret-key")
	_, err := c.Suggest(context.Background(), pageFixture(), nil, nil)
	assert.ErrorIs(t, err, ErrAPIRequest)
}

func TestSuggestClientRejectsEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"content":[],"stop_reason":"end_turn"}`)
	}))
	defer srv.Close()

	c := NewSuggestClientWith(srv.URL, "secret-key")
	_, err := c.Suggest(context.Background(), pageFixture(), nil, nil)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestTruncateOnRuneKeepsValidUTF8(t *testing.T) {
	t.Parallel()

	short := "plain ascii"
	assert.Equal(t, short, truncateOnRune(short, 100))

	// "é" is two bytes; a cap of 5 lands mid-rune and must back off.
	mixed := "abcdé"
	got := truncateOnRune(mixed, 5)
	assert.Equal(t, "abcd", got)
	assert.True(t, utf8.ValidString(got))

	// A cap on the rune boundary keeps the whole rune.
	assert.Equal(t, "abcdé", truncateOnRune(mixed, 6))

	long := strings.Repeat("日", 2000)
	got = truncateOnRune(long, maxPromptText)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), maxPromptText)
}

func pageFixture() collection.PageContent {
	return collection.PageContent{
		Title:       "The Go Blog",
		Description: "News from the Go project",
		SiteName:    "go.dev",
		CleanedText: "Go is an open source programming language.",
	}
}
