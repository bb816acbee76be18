package images

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"autoblogger/internal/domain"
)

type providerFixture struct {
	results map[string][]candidate
}

// newProvider serves /search from the fixture map (filled in by the
// test once the server URL is known) and /download/ with fixed bytes.
func newProvider(t *testing.T) (*httptest.Server, *providerFixture) {
	t.Helper()

	fixture := &providerFixture{results: map[string][]candidate{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		keyword := r.URL.Query().Get("query")
		_ = json.NewEncoder(w).Encode(searchResult{Results: fixture.results[keyword]})
	})
	mux.HandleFunc("/download/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg-bytes"))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, fixture
}

func TestSourceReturnsFirstLicensedMatch(t *testing.T) {
	t.Parallel()

	server, fixture := newProvider(t)
	fixture.results["gardening"] = []candidate{
		{ID: "img-1", DownloadURL: server.URL + "/download/img-1", Attribution: "Photo by Alex", Licensed: true},
	}

	client := NewClient(Config{Endpoint: server.URL})
	asset, err := client.Source(context.Background(), []string{"gardening", "soil"})
	if err != nil {
		t.Fatalf("Source returned error: %v", err)
	}
	if string(asset.Data) != "jpeg-bytes" {
		t.Fatalf("unexpected image bytes: %q", asset.Data)
	}
	if asset.Attribution != "Image: Photo by Alex" {
		t.Fatalf("unexpected attribution: %q", asset.Attribution)
	}
	if asset.Keyword != "gardening" {
		t.Fatalf("unexpected keyword: %q", asset.Keyword)
	}
}

func TestSourceFallsThroughKeywords(t *testing.T) {
	t.Parallel()

	server, fixture := newProvider(t)
	fixture.results["soil"] = []candidate{
		{ID: "img-2", DownloadURL: server.URL + "/download/img-2", Attribution: "Photo by Sam", Licensed: true},
	}

	client := NewClient(Config{Endpoint: server.URL})
	asset, err := client.Source(context.Background(), []string{"gardening", "soil"})
	if err != nil {
		t.Fatalf("Source returned error: %v", err)
	}
	if asset.Keyword != "soil" {
		t.Fatalf("expected fallback to second keyword, got %q", asset.Keyword)
	}
}

func TestSourceExhaustedKeywordsIsNotFound(t *testing.T) {
	t.Parallel()

	server, _ := newProvider(t)

	client := NewClient(Config{Endpoint: server.URL})
	_, err := client.Source(context.Background(), []string{"gardening", "soil"})
	if err == nil {
		t.Fatal("expected ImageNotFoundError")
	}
	if kind := domain.KindOf(err); kind != domain.KindImageNotFound {
		t.Fatalf("error kind = %q, want ImageNotFoundError", kind)
	}
	if domain.IsRetryable(err) {
		t.Fatal("exhausted keywords is permanent")
	}
}

func TestSourceUnlicensedOnlyIsLicenseError(t *testing.T) {
	t.Parallel()

	server, fixture := newProvider(t)
	fixture.results["gardening"] = []candidate{
		{ID: "img-3", DownloadURL: server.URL + "/download/img-3", Licensed: false},
		{ID: "img-4", DownloadURL: server.URL + "/download/img-4", Attribution: "", Licensed: true},
	}

	client := NewClient(Config{Endpoint: server.URL})
	_, err := client.Source(context.Background(), []string{"gardening"})
	if err == nil {
		t.Fatal("expected LicenseError")
	}
	if kind := domain.KindOf(err); kind != domain.KindLicense {
		t.Fatalf("error kind = %q, want LicenseError", kind)
	}
	if domain.IsRetryable(err) {
		t.Fatal("license exhaustion is permanent")
	}
}

func TestSourceProviderOutageIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL})
	_, err := client.Source(context.Background(), []string{"gardening"})
	if err == nil {
		t.Fatal("expected error from failing provider")
	}
	if !domain.IsRetryable(err) {
		t.Fatal("provider 5xx must be transient")
	}
}
