package ports

import (
	"context"

	"autoblogger/internal/domain"
)

// Extractor turns a source reference into a normalized draft.
type Extractor interface {
	Extract(ctx context.Context, source domain.SourceRef) (domain.Draft, error)
}

// Rewriter sends a draft through the generative-language service.
type Rewriter interface {
	Rewrite(ctx context.Context, draft domain.Draft, template string) (domain.Draft, error)
}

// Enricher applies the rule tables to produce SEO metadata.
type Enricher interface {
	Enrich(draft domain.Draft) (domain.Draft, domain.SeoMetadata, error)
}

// ImageSourcer finds a license-compliant featured image.
type ImageSourcer interface {
	Source(ctx context.Context, keywords []string) (domain.ImageAsset, error)
}

// Publisher submits the assembled post to the CMS.
type Publisher interface {
	Publish(ctx context.Context, jobID string, draft domain.Draft, meta domain.SeoMetadata, image domain.ImageAsset) (domain.PublishReceipt, error)
}

// JobStore persists ArticleJob state after every transition so jobs
// resume from their last completed stage after a restart.
type JobStore interface {
	Save(ctx context.Context, job *domain.ArticleJob) error
	Get(ctx context.Context, id string) (*domain.ArticleJob, error)
	ListResumable(ctx context.Context) ([]*domain.ArticleJob, error)
	ReceiptStore
}

// ReceiptStore is the Publisher's local receipt check for idempotent
// resubmission.
type ReceiptStore interface {
	ReceiptFor(ctx context.Context, jobID string) (*domain.PublishReceipt, error)
	SaveReceipt(ctx context.Context, jobID string, receipt domain.PublishReceipt) error
}
