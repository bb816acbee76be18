package rules

import (
	"sort"
	"strings"
)

// Link is one catalog entry from the internal/external link tables.
type Link struct {
	Anchor string `json:"anchor"`
	URL    string `json:"url"`
}

// RuleSet is the immutable aggregate of all declarative content-policy
// tables. It is loaded once, shared read-only across concurrent jobs,
// and replaced wholesale on reload. All lookups are pure.
type RuleSet struct {
	categories    map[string][]string
	categoryOrder []string
	synonyms      map[string]string
	synonymOrder  []string
	stopWords     map[string]struct{}
	internalLinks map[string][]Link
	externalLinks map[string][]Link
	doFollow      map[string]struct{}
	denied        map[string]struct{}
	bannedPhrases []string
	stylePrompts  map[string]string
	customKeys    []string
	fallback      string
}

// CanonicalTag folds a term through the synonym table. Folding is
// idempotent: load validation rejects chains deeper than one step.
func (r *RuleSet) CanonicalTag(term string) string {
	term = normalize(term)
	if canonical, ok := r.synonyms[term]; ok {
		return canonical
	}
	return term
}

// IsStopWord reports whether the term is filtered from keyword scoring.
func (r *RuleSet) IsStopWord(term string) bool {
	_, ok := r.stopWords[normalize(term)]
	return ok
}

// CandidateLinksFor returns internal links first, then external, for
// the given topic. The returned slice is a copy.
func (r *RuleSet) CandidateLinksFor(topic string) []Link {
	topic = normalize(topic)
	var out []Link
	out = append(out, r.internalLinks[topic]...)
	out = append(out, r.externalLinks[topic]...)
	return out
}

// IsDoFollow reports whether links to the domain pass ranking credit.
func (r *RuleSet) IsDoFollow(domain string) bool {
	_, ok := r.doFollow[normalize(domain)]
	return ok
}

// IsDenied reports whether the domain must not be linked at all.
func (r *RuleSet) IsDenied(domain string) bool {
	_, ok := r.denied[normalize(domain)]
	return ok
}

// BannedPhraseIn returns the first banned phrase found in the text,
// or "" when the text is clean.
func (r *RuleSet) BannedPhraseIn(text string) string {
	lower := strings.ToLower(text)
	for _, phrase := range r.bannedPhrases {
		if strings.Contains(lower, phrase) {
			return phrase
		}
	}
	return ""
}

// StyleTemplate resolves a named prompt template; falls back to the
// "default" entry when name is empty or unknown.
func (r *RuleSet) StyleTemplate(name string) string {
	if name != "" {
		if tpl, ok := r.stylePrompts[name]; ok {
			return tpl
		}
	}
	return r.stylePrompts["default"]
}

// CategoryKeywords returns the keyword list for a category name.
func (r *RuleSet) CategoryKeywords(category string) []string {
	return r.categories[normalize(category)]
}

// Categories lists category names in table insertion order.
func (r *RuleSet) Categories() []string {
	return append([]string(nil), r.categoryOrder...)
}

// CategoryFor returns the first category (by table insertion order,
// alphabetical among ties is guaranteed by the stable order slice)
// whose name or keyword list contains the tag.
func (r *RuleSet) CategoryFor(tag string) (string, bool) {
	tag = normalize(tag)
	for _, cat := range r.categoryOrder {
		if cat == tag {
			return cat, true
		}
		for _, kw := range r.categories[cat] {
			if kw == tag {
				return cat, true
			}
		}
	}
	return "", false
}

// CustomKeywords returns the always-considered SEO keyword list.
func (r *RuleSet) CustomKeywords() []string {
	return append([]string(nil), r.customKeys...)
}

// FallbackCategory is assigned when no scored tag maps to a category.
func (r *RuleSet) FallbackCategory() string {
	return r.fallback
}

// IsCanonicalTag reports whether the term is a valid fold target.
func (r *RuleSet) IsCanonicalTag(term string) bool {
	term = normalize(term)
	if _, ok := r.categories[term]; ok {
		return true
	}
	for _, cat := range r.categoryOrder {
		for _, kw := range r.categories[cat] {
			if kw == term {
				return true
			}
		}
	}
	for _, k := range r.customKeys {
		if k == term {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
