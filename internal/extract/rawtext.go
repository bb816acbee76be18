package extract

import (
	"context"
	"strings"

	"autoblogger/internal/domain"
)

// RawTextStrategy builds a draft from operator-supplied text, skipping
// the network entirely.
type RawTextStrategy struct {
	minContent int
}

var _ Strategy = (*RawTextStrategy)(nil)

// NewRawTextStrategy applies the same minimum-content guard as the
// URL strategy.
func NewRawTextStrategy(minContent int) *RawTextStrategy {
	if minContent <= 0 {
		minContent = 300
	}
	return &RawTextStrategy{minContent: minContent}
}

// Name identifies the strategy inside the registry.
func (s *RawTextStrategy) Name() string {
	return "rawtext"
}

// Extract splits the supplied text into paragraph blocks.
func (s *RawTextStrategy) Extract(_ context.Context, source domain.SourceRef) (domain.Draft, error) {
	blocks := splitParagraphs(source.RawText)
	if contentLength(blocks) < s.minContent {
		return domain.Draft{}, domain.Errorf(domain.KindParse, false,
			"supplied text below minimum viable length (%d < %d)", contentLength(blocks), s.minContent)
	}

	title := strings.TrimSpace(source.Title)
	if title == "" {
		// First block doubles as the title when none was supplied.
		title = blocks[0]
		blocks = blocks[1:]
	}
	if len(blocks) == 0 {
		return domain.Draft{}, domain.Errorf(domain.KindParse, false, "supplied text has a title but no body")
	}

	return domain.Draft{
		Title:       title,
		Blocks:      blocks,
		Attribution: "Source: supplied text",
	}, nil
}
