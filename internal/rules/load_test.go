package rules

import (
	"os"
	"path/filepath"
	"testing"

	"autoblogger/internal/domain"
)

func writeTables(t *testing.T, overrides map[string]string) string {
	t.Helper()

	tables := map[string]string{
		"category_keywords.json":   `{"gardening": ["tips", "plant", "soil"], "cooking": ["recipe", "kitchen"]}`,
		"tag_synonyms.json":        `{"plant": "gardening", "recipes": "recipe"}`,
		"stop_words.json":          `["the", "a", "for", "and", "of"]`,
		"internal_links.json":      `{"gardening": [{"anchor": "gardening guide", "url": "https://blog.example.com/gardening-guide"}]}`,
		"external_links.json":      `{"soil": [{"anchor": "soil science", "url": "https://soil.example.org/basics"}]}`,
		"do_follow_urls.json":      `{"allow": ["blog.example.com"], "deny": ["spam.example.net"]}`,
		"banned_phrases.json":      `["as an ai language model"]`,
		"style_prompt.json":        `{"default": "Rewrite the article in a lively tone."}`,
		"custom_seo_keywords.json": `["gardening"]`,
		"default.json":             `{"fallbackCategory": "general"}`,
	}
	for name, body := range overrides {
		tables[name] = body
	}

	dir := t.TempDir()
	for name, body := range tables {
		if body == "" {
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestLoadValidRuleSet(t *testing.T) {
	t.Parallel()

	rs, err := Load(writeTables(t, nil))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if got := rs.CanonicalTag("Plant"); got != "gardening" {
		t.Fatalf("CanonicalTag(Plant) = %q, want gardening", got)
	}
	if !rs.IsStopWord("The") {
		t.Fatal("expected 'the' to be a stop word")
	}
	if !rs.IsDoFollow("blog.example.com") {
		t.Fatal("expected blog.example.com to be do-follow")
	}
	if rs.IsDoFollow("spam.example.net") {
		t.Fatal("deny-listed domain must not be do-follow")
	}
	if links := rs.CandidateLinksFor("gardening"); len(links) != 1 || links[0].Anchor != "gardening guide" {
		t.Fatalf("unexpected links for gardening: %+v", links)
	}
	if got := rs.FallbackCategory(); got != "general" {
		t.Fatalf("fallback category = %q", got)
	}
}

func TestCanonicalTagIdempotent(t *testing.T) {
	t.Parallel()

	rs, err := Load(writeTables(t, nil))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	for _, term := range []string{"plant", "gardening", "soil", "unknown-term"} {
		once := rs.CanonicalTag(term)
		twice := rs.CanonicalTag(once)
		if once != twice {
			t.Fatalf("folding %q not idempotent: %q then %q", term, once, twice)
		}
	}
}

func TestLoadRejectsSynonymChain(t *testing.T) {
	t.Parallel()

	dir := writeTables(t, map[string]string{
		"tag_synonyms.json": `{"plant": "flora", "flora": "gardening"}`,
	})

	_, err := Load(dir)
	if err == nil {
		t.Fatal("expected ConfigError for synonym chain")
	}
	if kind := domain.KindOf(err); kind != domain.KindConfig {
		t.Fatalf("error kind = %q, want ConfigError", kind)
	}
}

func TestLoadRejectsUnknownCanonicalTag(t *testing.T) {
	t.Parallel()

	dir := writeTables(t, map[string]string{
		"tag_synonyms.json": `{"plant": "astronomy"}`,
	})

	if _, err := Load(dir); err == nil {
		t.Fatal("expected ConfigError for unknown canonical tag")
	}
}

func TestLoadRejectsAllowDenyOverlap(t *testing.T) {
	t.Parallel()

	dir := writeTables(t, map[string]string{
		"do_follow_urls.json": `{"allow": ["both.example.com"], "deny": ["both.example.com"]}`,
	})

	if _, err := Load(dir); err == nil {
		t.Fatal("expected ConfigError for allow/deny overlap")
	}
}

func TestLoadFailsOnMissingTable(t *testing.T) {
	t.Parallel()

	dir := writeTables(t, nil)
	if err := os.Remove(filepath.Join(dir, "stop_words.json")); err != nil {
		t.Fatalf("remove table: %v", err)
	}

	_, err := Load(dir)
	if err == nil {
		t.Fatal("expected ConfigError for missing table")
	}
	if kind := domain.KindOf(err); kind != domain.KindConfig {
		t.Fatalf("error kind = %q, want ConfigError", kind)
	}
}

func TestSynonymFirstMatchWins(t *testing.T) {
	t.Parallel()

	dir := writeTables(t, map[string]string{
		"tag_synonyms.json": `{"plant": "gardening", "plant": "cooking"}`,
	})

	rs, err := Load(dir)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got := rs.CanonicalTag("plant"); got != "gardening" {
		t.Fatalf("first-match-wins violated: got %q", got)
	}
}
