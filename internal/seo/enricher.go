// Package seo derives categories, tags, links, and meta descriptions
// from a draft using the loaded rule tables. Everything here is a
// pure function of (Draft, RuleSet, Options): identical inputs always
// yield identical metadata.
package seo

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"autoblogger/internal/domain"
	"autoblogger/internal/rules"
)

// Options are the tunable policy parameters of the enrichment pass.
type Options struct {
	TopTags              int
	TitleWeight          float64
	LeadWeight           float64
	MaxLinks             int
	MetaDescriptionLimit int
}

// DefaultOptions returns the shipped tuning.
func DefaultOptions() Options {
	return Options{
		TopTags:              5,
		TitleWeight:          3.0,
		LeadWeight:           2.0,
		MaxLinks:             5,
		MetaDescriptionLimit: 155,
	}
}

// Enricher applies the rule tables to a rewritten draft.
type Enricher struct {
	opts Options
}

// New builds an Enricher, filling zero options from defaults.
func New(opts Options) *Enricher {
	def := DefaultOptions()
	if opts.TopTags <= 0 {
		opts.TopTags = def.TopTags
	}
	if opts.TitleWeight <= 0 {
		opts.TitleWeight = def.TitleWeight
	}
	if opts.LeadWeight <= 0 {
		opts.LeadWeight = def.LeadWeight
	}
	if opts.MaxLinks <= 0 {
		opts.MaxLinks = def.MaxLinks
	}
	if opts.MetaDescriptionLimit <= 0 {
		opts.MetaDescriptionLimit = def.MetaDescriptionLimit
	}
	return &Enricher{opts: opts}
}

// Enrich produces a link-annotated draft plus its SeoMetadata. It
// fails with EnrichmentError only when stop-word stripping leaves no
// keyword candidates at all.
func (e *Enricher) Enrich(draft domain.Draft, rs *rules.RuleSet) (domain.Draft, domain.SeoMetadata, error) {
	scores := e.scoreTerms(draft, rs)
	if len(scores) == 0 {
		return domain.Draft{}, domain.SeoMetadata{}, domain.Errorf(domain.KindEnrichment, false,
			"draft %q has no keyword candidates after stop-word stripping", draft.Title)
	}

	tags := topTags(scores, e.opts.TopTags)

	category := rs.FallbackCategory()
	for _, tag := range tags {
		if cat, ok := rs.CategoryFor(tag); ok {
			category = cat
			break
		}
	}

	out := draft.Clone()
	links := e.insertLinks(&out, tags, rs)

	meta := domain.SeoMetadata{
		Category:        category,
		Tags:            tags,
		MetaDescription: truncateAtWord(draft.Lead(), e.opts.MetaDescriptionLimit),
		Links:           links,
	}
	out.Keywords = append([]string(nil), tags...)
	return out, meta, nil
}

// scoreTerms tokenizes the draft, strips stop words, scores terms by
// frequency weighted by position, and folds them to canonical tags.
func (e *Enricher) scoreTerms(draft domain.Draft, rs *rules.RuleSet) map[string]float64 {
	raw := map[string]float64{}
	add := func(text string, weight float64) {
		for _, term := range tokenize(text) {
			if rs.IsStopWord(term) {
				continue
			}
			raw[term] += weight
		}
	}

	add(draft.Title, e.opts.TitleWeight)
	add(draft.Lead(), e.opts.LeadWeight)
	for _, block := range draft.Blocks[min(1, len(draft.Blocks)):] {
		add(block, 1.0)
	}

	// Multi-word custom SEO keywords never survive tokenization, so
	// they are counted as substrings; single words are already in.
	full := strings.ToLower(draft.Title + " " + draft.Body())
	for _, phrase := range rs.CustomKeywords() {
		if !strings.Contains(phrase, " ") {
			continue
		}
		if n := strings.Count(full, phrase); n > 0 {
			raw[phrase] += float64(n)
		}
	}

	folded := map[string]float64{}
	for term, score := range raw {
		folded[rs.CanonicalTag(term)] += score
	}
	return folded
}

func topTags(scores map[string]float64, limit int) []string {
	terms := make([]string, 0, len(scores))
	for term := range scores {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if scores[terms[i]] != scores[terms[j]] {
			return scores[terms[i]] > scores[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > limit {
		terms = terms[:limit]
	}
	return terms
}

// insertLinks places at most one link per paragraph block, skipping
// denied domains and flagging do-follow per the allowlist.
func (e *Enricher) insertLinks(draft *domain.Draft, tags []string, rs *rules.RuleSet) []domain.InsertedLink {
	var inserted []domain.InsertedLink
	usedBlocks := map[int]bool{}

	for _, tag := range tags {
		if len(inserted) >= e.opts.MaxLinks {
			break
		}
		for _, candidate := range rs.CandidateLinksFor(tag) {
			host := hostOf(candidate.URL)
			if host == "" || rs.IsDenied(host) {
				continue
			}

			needle := candidate.Anchor
			if needle == "" {
				needle = tag
			}
			idx, start, matched := findAnchor(draft.Blocks, usedBlocks, needle)
			if idx < 0 {
				idx, start, matched = findAnchor(draft.Blocks, usedBlocks, tag)
			}
			if idx < 0 {
				continue
			}

			doFollow := rs.IsDoFollow(host)
			draft.Blocks[idx] = wrapAnchor(draft.Blocks[idx], start, matched, candidate.URL, doFollow)
			usedBlocks[idx] = true
			inserted = append(inserted, domain.InsertedLink{
				AnchorText: matched,
				TargetURL:  candidate.URL,
				DoFollow:   doFollow,
				BlockIndex: idx,
			})
			break // one link per tag
		}
	}
	return inserted
}

// findAnchor locates the first unused block containing the needle,
// case-insensitively, preserving the original casing of the match.
func findAnchor(blocks []string, used map[int]bool, needle string) (blockIdx, start int, matched string) {
	for i, block := range blocks {
		if used[i] {
			continue
		}
		if at, end := foldIndex(block, needle); at >= 0 {
			return i, at, block[at:end]
		}
	}
	return -1, 0, ""
}

// foldIndex finds needle in s under case folding and returns byte
// offsets into s. Folding can change a rune's byte length, so the
// match is located by comparing rune windows of s directly instead of
// indexing into a lowercased copy.
func foldIndex(s, needle string) (start, end int) {
	needleRunes := utf8.RuneCountInString(needle)
	if needleRunes == 0 {
		return -1, -1
	}
	for at := range s {
		stop := at
		runes := 0
		for stop < len(s) && runes < needleRunes {
			_, size := utf8.DecodeRuneInString(s[stop:])
			stop += size
			runes++
		}
		if runes < needleRunes {
			break
		}
		if strings.EqualFold(s[at:stop], needle) {
			return at, stop
		}
	}
	return -1, -1
}

func wrapAnchor(block string, start int, matched, target string, doFollow bool) string {
	rel := ` rel="nofollow"`
	if doFollow {
		rel = ""
	}
	anchor := fmt.Sprintf(`<a href="%s"%s>%s</a>`, target, rel, matched)
	return block[:start] + anchor + block[start+len(matched):]
}

// truncateAtWord cuts text down to at most limit characters, backing
// up to the last word boundary when one exists. The budget counts
// runes and cuts only on rune boundaries, so space-free scripts
// truncate to valid UTF-8 instead of a sliced trailing rune.
func truncateAtWord(text string, limit int) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= limit {
		return text
	}

	byteLimit := len(text)
	runes := 0
	for i := range text {
		if runes == limit {
			byteLimit = i
			break
		}
		runes++
	}

	cut := strings.LastIndex(text[:byteLimit], " ")
	if cut <= 0 || strings.HasPrefix(text[byteLimit:], " ") {
		cut = byteLimit
	}
	return strings.TrimRight(text[:cut], " ,;:.")
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}
