package domain

import "strings"

// Draft is an immutable snapshot of article content at one pipeline
// stage. Stages never mutate a Draft in place; each produces a new one.
type Draft struct {
	Title       string   `json:"title"`
	Blocks      []string `json:"blocks"`
	SourceURL   string   `json:"sourceUrl,omitempty"`
	Attribution string   `json:"attribution,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
}

// Clone returns a deep copy so a stage can derive its output without
// touching the input draft.
func (d Draft) Clone() Draft {
	out := d
	out.Blocks = append([]string(nil), d.Blocks...)
	out.Keywords = append([]string(nil), d.Keywords...)
	return out
}

// Body joins the blocks into a single text body.
func (d Draft) Body() string {
	return strings.Join(d.Blocks, "\n\n")
}

// Lead returns the first paragraph block, or "" for an empty draft.
func (d Draft) Lead() string {
	if len(d.Blocks) == 0 {
		return ""
	}
	return d.Blocks[0]
}

// InsertedLink is one link placed into the body during enrichment.
type InsertedLink struct {
	AnchorText string `json:"anchorText"`
	TargetURL  string `json:"targetUrl"`
	DoFollow   bool   `json:"doFollow"`
	BlockIndex int    `json:"blockIndex"`
}

// SeoMetadata is derived during enrichment and never mutated after.
type SeoMetadata struct {
	Category        string         `json:"category"`
	Tags            []string       `json:"tags"`
	MetaDescription string         `json:"metaDescription"`
	Links           []InsertedLink `json:"links,omitempty"`
}

// ImageAsset is a downloaded, license-compliant featured image with
// its attribution string.
type ImageAsset struct {
	Data        []byte `json:"data"`
	ContentType string `json:"contentType"`
	SourceURL   string `json:"sourceUrl"`
	Attribution string `json:"attribution"`
	Keyword     string `json:"keyword,omitempty"`
}
