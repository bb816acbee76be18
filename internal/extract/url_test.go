package extract

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"autoblogger/internal/domain"
)

func articlePage() string {
	paragraphs := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		paragraphs = append(paragraphs,
			fmt.Sprintf("<p>Paragraph %d with enough words about growing vegetables in raised beds to pass the minimum content threshold comfortably.</p>", i+1))
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><title>10 Tips for Gardening</title></head>
<body>
<nav><a href="/">home</a><a href="/about">about</a></nav>
<article>
<h1>10 Tips for Gardening</h1>
%s
</article>
<footer>copyright</footer>
</body></html>`, strings.Join(paragraphs, "\n"))
}

func newTestStrategy(serverURL string) (*URLStrategy, domain.SourceRef) {
	pool := NewSessionPool(1, 5*time.Second)
	return NewURLStrategy(pool, 300, nil), domain.SourceRef{URL: serverURL}
}

func TestURLStrategyExtractsArticle(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(articlePage()))
	}))
	defer server.Close()

	strategy, source := newTestStrategy(server.URL)
	draft, err := strategy.Extract(context.Background(), source)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}

	if draft.Title != "10 Tips for Gardening" {
		t.Fatalf("unexpected title: %q", draft.Title)
	}
	if len(draft.Blocks) < 5 {
		t.Fatalf("expected paragraph blocks, got %d", len(draft.Blocks))
	}
	for _, block := range draft.Blocks {
		if strings.Contains(block, "copyright") || strings.Contains(block, "about") {
			t.Fatalf("page noise leaked into blocks: %q", block)
		}
	}
	if draft.SourceURL != source.URL {
		t.Fatalf("source url not recorded: %q", draft.SourceURL)
	}
}

func TestURLStrategyNotFoundIsPermanent(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	strategy, source := newTestStrategy(server.URL)
	_, err := strategy.Extract(context.Background(), source)
	if err == nil {
		t.Fatal("expected FetchError")
	}
	if kind := domain.KindOf(err); kind != domain.KindFetch {
		t.Fatalf("error kind = %q, want FetchError", kind)
	}
	if domain.IsRetryable(err) {
		t.Fatal("404 must be classified permanent")
	}
}

func TestURLStrategyServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	strategy, source := newTestStrategy(server.URL)
	_, err := strategy.Extract(context.Background(), source)
	if err == nil {
		t.Fatal("expected FetchError")
	}
	if !domain.IsRetryable(err) {
		t.Fatal("5xx must be classified transient")
	}
}

func TestURLStrategyRejectsMalformedURL(t *testing.T) {
	t.Parallel()

	strategy := NewURLStrategy(NewSessionPool(1, time.Second), 300, nil)
	_, err := strategy.Extract(context.Background(), domain.SourceRef{URL: "not a url"})
	if err == nil {
		t.Fatal("expected FetchError")
	}
	if domain.IsRetryable(err) {
		t.Fatal("malformed URL must be permanent")
	}
}

func TestURLStrategyShortContentIsParseError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>Thin</title></head><body><nav>menu</nav><p>too short</p></body></html>`))
	}))
	defer server.Close()

	strategy, source := newTestStrategy(server.URL)
	_, err := strategy.Extract(context.Background(), source)
	if err == nil {
		t.Fatal("expected ParseError")
	}
	if kind := domain.KindOf(err); kind != domain.KindParse {
		t.Fatalf("error kind = %q, want ParseError", kind)
	}
}

func TestRawTextStrategy(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("A reasonably long paragraph about compost, mulch and watering schedules for the summer months.\n\n", 5)
	strategy := NewRawTextStrategy(300)

	draft, err := strategy.Extract(context.Background(), domain.SourceRef{Title: "Compost Basics", RawText: body})
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if draft.Title != "Compost Basics" {
		t.Fatalf("unexpected title: %q", draft.Title)
	}
	if len(draft.Blocks) != 5 {
		t.Fatalf("expected 5 blocks, got %d", len(draft.Blocks))
	}
}

func TestSessionPoolAlwaysReleases(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	pool := NewSessionPool(1, time.Second)
	strategy := NewURLStrategy(pool, 300, nil)

	// With a single pooled session, a leak on the failure path would
	// deadlock the second call.
	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := strategy.Extract(ctx, domain.SourceRef{URL: server.URL})
		cancel()
		if err == nil {
			t.Fatal("expected error from failing server")
		}
	}
}
