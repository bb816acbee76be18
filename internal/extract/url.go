package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"autoblogger/internal/domain"
)

const maxPageBytes = 4 << 20

// URLStrategy fetches a page and isolates the article core from page
// noise, via readability with a goquery fallback for pages the
// readability pass cannot handle.
type URLStrategy struct {
	pool       *SessionPool
	minContent int
	userAgent  string
	logger     *slog.Logger
}

var _ Strategy = (*URLStrategy)(nil)

// NewURLStrategy wires the session pool; minContent guards against
// extracting navigation chrome instead of the article body.
func NewURLStrategy(pool *SessionPool, minContent int, logger *slog.Logger) *URLStrategy {
	if minContent <= 0 {
		minContent = 300
	}
	return &URLStrategy{
		pool:       pool,
		minContent: minContent,
		userAgent:  "autoblogger/1.0",
		logger:     logger,
	}
}

// Name identifies the strategy inside the registry.
func (s *URLStrategy) Name() string {
	return "url"
}

// Extract fetches the source URL and produces a normalized draft.
func (s *URLStrategy) Extract(ctx context.Context, source domain.SourceRef) (domain.Draft, error) {
	pageURL, err := url.Parse(source.URL)
	if err != nil || pageURL.Scheme == "" || pageURL.Host == "" {
		return domain.Draft{}, domain.Errorf(domain.KindFetch, false, "malformed source url %q", source.URL)
	}

	client, err := s.pool.Acquire(ctx)
	if err != nil {
		return domain.Draft{}, domain.NewError(domain.KindFetch, true, "acquire session", err)
	}
	defer s.pool.Release(client)

	body, err := s.fetch(ctx, client, pageURL.String())
	if err != nil {
		return domain.Draft{}, err
	}

	draft, err := s.parse(body, pageURL)
	if err != nil {
		return domain.Draft{}, err
	}

	if source.Title != "" {
		draft.Title = source.Title
	}
	if s.logger != nil {
		s.logger.Debug("extracted article", "url", source.URL, "title", draft.Title, "blocks", len(draft.Blocks))
	}
	return draft, nil
}

func (s *URLStrategy) fetch(ctx context.Context, client *http.Client, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, domain.NewError(domain.KindFetch, false, "build request", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := client.Do(req)
	if err != nil {
		// Network failures and timeouts are transient; context
		// cancellation is surfaced as-is.
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, domain.NewError(domain.KindFetch, true, "request page", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, domain.Errorf(domain.KindFetch, true, "source returned %s", resp.Status)
	default:
		return nil, domain.Errorf(domain.KindFetch, false, "source returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, domain.NewError(domain.KindFetch, true, "read page", err)
	}
	return body, nil
}

func (s *URLStrategy) parse(body []byte, pageURL *url.URL) (domain.Draft, error) {
	draft := domain.Draft{
		SourceURL:   pageURL.String(),
		Attribution: fmt.Sprintf("Source: %s", pageURL.Host),
	}

	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil {
		draft.Title = strings.TrimSpace(article.Title)
		draft.Blocks = blocksFromHTML(article.Content)
		if article.Byline != "" {
			draft.Attribution = fmt.Sprintf("Source: %s (%s)", pageURL.Host, article.Byline)
		}
	}

	if contentLength(draft.Blocks) < s.minContent {
		fallback, fbErr := s.fallbackParse(body)
		if fbErr == nil {
			if draft.Title == "" {
				draft.Title = fallback.Title
			}
			if contentLength(fallback.Blocks) > contentLength(draft.Blocks) {
				draft.Blocks = fallback.Blocks
			}
		}
	}

	if contentLength(draft.Blocks) < s.minContent {
		return domain.Draft{}, domain.Errorf(domain.KindParse, false,
			"extracted content below minimum viable length (%d < %d)", contentLength(draft.Blocks), s.minContent)
	}
	if draft.Title == "" {
		return domain.Draft{}, domain.Errorf(domain.KindParse, false, "no title found at %s", pageURL)
	}
	return draft, nil
}

// fallbackParse pulls paragraph text straight from the page for
// markup readability refuses.
func (s *URLStrategy) fallbackParse(body []byte) (domain.Draft, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return domain.Draft{}, fmt.Errorf("parse document: %w", err)
	}

	var draft domain.Draft
	draft.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	if draft.Title == "" {
		draft.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	scope := doc.Find("article")
	if scope.Length() == 0 {
		scope = doc.Find("main")
	}
	if scope.Length() == 0 {
		scope = doc.Selection
	}

	scope.Find("p").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text != "" {
			draft.Blocks = append(draft.Blocks, text)
		}
	})
	return draft, nil
}

func blocksFromHTML(content string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil
	}

	var blocks []string
	doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text != "" {
			blocks = append(blocks, text)
		}
	})
	if len(blocks) == 0 {
		if text := strings.TrimSpace(doc.Text()); text != "" {
			blocks = splitParagraphs(text)
		}
	}
	return blocks
}

func splitParagraphs(text string) []string {
	var blocks []string
	for _, part := range strings.Split(text, "\n\n") {
		if part = strings.TrimSpace(part); part != "" {
			blocks = append(blocks, part)
		}
	}
	return blocks
}

func contentLength(blocks []string) int {
	total := 0
	for _, b := range blocks {
		total += len(b)
	}
	return total
}
