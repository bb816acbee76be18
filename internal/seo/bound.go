package seo

import (
	"autoblogger/internal/domain"
	"autoblogger/internal/rules"
)

// Bound pairs an Enricher with the rule set loaded at startup so the
// pipeline can call it without carrying the tables around.
type Bound struct {
	enricher *Enricher
	rs       *rules.RuleSet
}

// Bind fixes the rule set an Enricher runs against.
func Bind(enricher *Enricher, rs *rules.RuleSet) *Bound {
	return &Bound{enricher: enricher, rs: rs}
}

func (b *Bound) Enrich(draft domain.Draft) (domain.Draft, domain.SeoMetadata, error) {
	return b.enricher.Enrich(draft, b.rs)
}
