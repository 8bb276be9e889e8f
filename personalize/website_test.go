package personalize

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func newTestFetcher() *Fetcher {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewFetcher(nil, logger)
}

func TestFetchWebsiteContentExtractsPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><head>
			<title>Acme   Widgets</title>
			<meta name="description" content="We make widgets.">
		</head><body>
			<nav>ignore me maybe</nav>
			<main><p>Handmade   widgets since
			1999.</p><script>var x = "noise";</script></main>
		</body></html>`)
	}))
	defer srv.Close()

	got := newTestFetcher().FetchWebsiteContent(context.Background(), srv.URL)

	if !strings.Contains(got, "Title: Acme Widgets") {
		t.Fatalf("title missing or not collapsed: %q", got)
	}
	if !strings.Contains(got, "Description: We make widgets.") {
		t.Fatalf("description missing: %q", got)
	}
	if !strings.Contains(got, "Handmade widgets since 1999.") {
		t.Fatalf("main content missing or not collapsed: %q", got)
	}
	if strings.Contains(got, "noise") {
		t.Fatalf("script content leaked: %q", got)
	}
}

func TestFetchWebsiteContentFallsBackToBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><body><div>Plain body text only.</div></body></html>`)
	}))
	defer srv.Close()

	got := newTestFetcher().FetchWebsiteContent(context.Background(), srv.URL)
	if !strings.Contains(got, "Plain body text only.") {
		t.Fatalf("body fallback missing: %q", got)
	}
}

func TestFetchWebsiteContentFailuresReturnEmpty(t *testing.T) {
	f := newTestFetcher()
	ctx := context.Background()

	if got := f.FetchWebsiteContent(ctx, ""); got != "" {
		t.Fatalf("empty url: got %q", got)
	}
	// Closed server: connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()
	if got := f.FetchWebsiteContent(ctx, url); got != "" {
		t.Fatalf("unreachable host: got %q", got)
	}
}

func TestFetchWebsiteContentNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if got := newTestFetcher().FetchWebsiteContent(context.Background(), srv.URL); got != "" {
		t.Fatalf("404 page: got %q", got)
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct{ in, want string }{
		{"example.com", "https://example.com"},
		{"http://example.com", "http://example.com"},
		{"https://example.com", "https://example.com"},
		{"  example.com", "https://example.com"},
	}
	for _, tt := range tests {
		if got := normalizeURL(tt.in); got != tt.want {
			t.Errorf("normalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFetchWebsiteContentCapsLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html><body><main>")
		for i := 0; i < 5000; i++ {
			io.WriteString(w, "word ")
		}
		io.WriteString(w, "</main></body></html>")
	}))
	defer srv.Close()

	got := newTestFetcher().FetchWebsiteContent(context.Background(), srv.URL)
	if len(got) > maxContentLen {
		t.Fatalf("content length %d exceeds cap %d", len(got), maxContentLen)
	}
}
