package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"autoblogger/internal/domain"
)

// Table file names, fixed by contract with the config directory.
const (
	fileCategories     = "category_keywords.json"
	fileSynonyms       = "tag_synonyms.json"
	fileStopWords      = "stop_words.json"
	fileInternalLinks  = "internal_links.json"
	fileExternalLinks  = "external_links.json"
	fileDoFollow       = "do_follow_urls.json"
	fileBannedPhrases  = "banned_phrases.json"
	fileStylePrompts   = "style_prompt.json"
	fileCustomKeywords = "custom_seo_keywords.json"
	fileDefaults       = "default.json"
)

// Load reads and validates every table under dir. Any missing,
// malformed, or internally inconsistent table fails the whole load
// with a ConfigError; a successful load replaces the aggregate
// atomically, never partially.
func Load(dir string) (*RuleSet, error) {
	rs := &RuleSet{
		categories:    map[string][]string{},
		synonyms:      map[string]string{},
		stopWords:     map[string]struct{}{},
		internalLinks: map[string][]Link{},
		externalLinks: map[string][]Link{},
		doFollow:      map[string]struct{}{},
		denied:        map[string]struct{}{},
		stylePrompts:  map[string]string{},
	}

	if err := loadOrderedMap(filepath.Join(dir, fileCategories), func(key string, raw json.RawMessage) error {
		var keywords []string
		if err := json.Unmarshal(raw, &keywords); err != nil {
			return fmt.Errorf("category %q: %w", key, err)
		}
		key = normalize(key)
		if _, dup := rs.categories[key]; dup {
			return nil
		}
		for i := range keywords {
			keywords[i] = normalize(keywords[i])
		}
		rs.categories[key] = keywords
		rs.categoryOrder = append(rs.categoryOrder, key)
		return nil
	}); err != nil {
		return nil, configErr(fileCategories, err)
	}

	if err := loadOrderedMap(filepath.Join(dir, fileSynonyms), func(key string, raw json.RawMessage) error {
		var target string
		if err := json.Unmarshal(raw, &target); err != nil {
			return fmt.Errorf("synonym %q: %w", key, err)
		}
		key = normalize(key)
		if _, dup := rs.synonyms[key]; dup {
			// First match wins by table insertion order.
			return nil
		}
		rs.synonyms[key] = normalize(target)
		rs.synonymOrder = append(rs.synonymOrder, key)
		return nil
	}); err != nil {
		return nil, configErr(fileSynonyms, err)
	}

	var stopWords []string
	if err := loadJSON(filepath.Join(dir, fileStopWords), &stopWords); err != nil {
		return nil, configErr(fileStopWords, err)
	}
	for _, w := range stopWords {
		rs.stopWords[normalize(w)] = struct{}{}
	}

	if err := loadLinkTable(filepath.Join(dir, fileInternalLinks), rs.internalLinks); err != nil {
		return nil, configErr(fileInternalLinks, err)
	}
	if err := loadLinkTable(filepath.Join(dir, fileExternalLinks), rs.externalLinks); err != nil {
		return nil, configErr(fileExternalLinks, err)
	}

	var follow struct {
		Allow []string `json:"allow"`
		Deny  []string `json:"deny"`
	}
	if err := loadJSON(filepath.Join(dir, fileDoFollow), &follow); err != nil {
		return nil, configErr(fileDoFollow, err)
	}
	for _, d := range follow.Allow {
		rs.doFollow[normalize(d)] = struct{}{}
	}
	for _, d := range follow.Deny {
		rs.denied[normalize(d)] = struct{}{}
	}

	var banned []string
	if err := loadJSON(filepath.Join(dir, fileBannedPhrases), &banned); err != nil {
		return nil, configErr(fileBannedPhrases, err)
	}
	for _, p := range banned {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			rs.bannedPhrases = append(rs.bannedPhrases, p)
		}
	}

	if err := loadJSON(filepath.Join(dir, fileStylePrompts), &rs.stylePrompts); err != nil {
		return nil, configErr(fileStylePrompts, err)
	}

	var customKeys []string
	if err := loadJSON(filepath.Join(dir, fileCustomKeywords), &customKeys); err != nil {
		return nil, configErr(fileCustomKeywords, err)
	}
	for _, k := range customKeys {
		rs.customKeys = append(rs.customKeys, normalize(k))
	}

	var defaults struct {
		FallbackCategory string `json:"fallbackCategory"`
	}
	if err := loadJSON(filepath.Join(dir, fileDefaults), &defaults); err != nil {
		return nil, configErr(fileDefaults, err)
	}
	rs.fallback = normalize(defaults.FallbackCategory)

	if err := rs.validate(); err != nil {
		return nil, err
	}
	return rs, nil
}

func (rs *RuleSet) validate() error {
	for _, term := range rs.synonymOrder {
		target := rs.synonyms[term]
		if _, chained := rs.synonyms[target]; chained {
			return domain.Errorf(domain.KindConfig, false,
				"synonym chain: %q -> %q is itself a synonym source", term, target)
		}
		if !rs.IsCanonicalTag(target) {
			return domain.Errorf(domain.KindConfig, false,
				"synonym %q maps to unknown canonical tag %q", term, target)
		}
	}

	var overlap []string
	for d := range rs.doFollow {
		if _, ok := rs.denied[d]; ok {
			overlap = append(overlap, d)
		}
	}
	if len(overlap) > 0 {
		set := map[string]struct{}{}
		for _, d := range overlap {
			set[d] = struct{}{}
		}
		return domain.Errorf(domain.KindConfig, false,
			"domains present in both allow and deny lists: %s", strings.Join(sortedKeys(set), ", "))
	}

	if _, ok := rs.stylePrompts["default"]; !ok {
		return domain.Errorf(domain.KindConfig, false, "style_prompt table has no %q entry", "default")
	}
	if rs.fallback == "" {
		return domain.Errorf(domain.KindConfig, false, "default table has no fallbackCategory")
	}
	return nil
}

func loadJSON(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	return nil
}

// loadOrderedMap streams a JSON object's keys in document order so
// first-match-wins semantics survive the load.
func loadOrderedMap(path string, visit func(key string, raw json.RawMessage) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("parse: expected object, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("parse: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("parse: expected string key, got %v", keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("parse value of %q: %w", key, err)
		}
		if err := visit(key, raw); err != nil {
			return err
		}
	}
	return nil
}

func loadLinkTable(path string, into map[string][]Link) error {
	var table map[string][]Link
	if err := loadJSON(path, &table); err != nil {
		return err
	}
	for topic, links := range table {
		for _, l := range links {
			if l.URL == "" {
				return fmt.Errorf("topic %q has a link without a url", topic)
			}
		}
		into[normalize(topic)] = links
	}
	return nil
}

func configErr(table string, err error) error {
	return domain.NewError(domain.KindConfig, false, fmt.Sprintf("table %s", table), err)
}
