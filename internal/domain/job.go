package domain

import "time"

// Stage identifies one unit of pipeline work inside a job.
type Stage string

const (
	StageExtracting    Stage = "extracting"
	StageRewriting     Stage = "rewriting"
	StageEnriching     Stage = "enriching"
	StageImageSourcing Stage = "image_sourcing"
	StagePublishing    Stage = "publishing"
)

// PipelineStages lists the stages in execution order.
var PipelineStages = []Stage{
	StageExtracting,
	StageRewriting,
	StageEnriching,
	StageImageSourcing,
	StagePublishing,
}

// JobState is the orchestrator-level state of an ArticleJob.
type JobState string

const (
	StateCreated       JobState = "created"
	StateExtracting    JobState = "extracting"
	StateRewriting     JobState = "rewriting"
	StateEnriching     JobState = "enriching"
	StateImageSourcing JobState = "image_sourcing"
	StatePublishing    JobState = "publishing"
	StateSucceeded     JobState = "succeeded"
	StateFailed        JobState = "failed"
	StateAbandoned     JobState = "abandoned"
)

// Terminal reports whether no further transitions are possible.
func (s JobState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateAbandoned
}

// StateFor maps a stage to the job state that runs it.
func StateFor(stage Stage) JobState {
	switch stage {
	case StageExtracting:
		return StateExtracting
	case StageRewriting:
		return StateRewriting
	case StageEnriching:
		return StateEnriching
	case StageImageSourcing:
		return StateImageSourcing
	case StagePublishing:
		return StatePublishing
	}
	return StateCreated
}

// StageRun tracks progress of a single stage.
type StageRun string

const (
	RunPending   StageRun = "pending"
	RunRunning   StageRun = "running"
	RunSucceeded StageRun = "succeeded"
	RunFailed    StageRun = "failed"
)

// StageStatus records per-stage progress and retry accounting.
type StageStatus struct {
	Status     StageRun  `json:"status"`
	Retries    int       `json:"retries"`
	StartedAt  time.Time `json:"startedAt,omitzero"`
	FinishedAt time.Time `json:"finishedAt,omitzero"`
}

// SourceRef points at the raw material for a job: either a URL to
// extract from or supplied text.
type SourceRef struct {
	URL           string `json:"url,omitempty"`
	RawText       string `json:"rawText,omitempty"`
	Title         string `json:"title,omitempty"`
	StyleTemplate string `json:"styleTemplate,omitempty"`
}

// FailureRecord is one entry of a job's ordered error history.
type FailureRecord struct {
	Stage   Stage     `json:"stage"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Artifacts holds the per-stage outputs, preserving the audit trail
// of drafts between stages.
type Artifacts struct {
	Extracted *Draft       `json:"extracted,omitempty"`
	Rewritten *Draft       `json:"rewritten,omitempty"`
	Enriched  *Draft       `json:"enriched,omitempty"`
	Seo       *SeoMetadata `json:"seo,omitempty"`
	Image     *ImageAsset  `json:"image,omitempty"`
}

// ArticleJob is the unit of work tracked end-to-end by the orchestrator.
// The job identifier is stable across retries and process restarts.
type ArticleJob struct {
	ID              string                 `json:"id"`
	Source          SourceRef              `json:"source"`
	State           JobState               `json:"state"`
	Stages          map[Stage]*StageStatus `json:"stages"`
	Artifacts       Artifacts              `json:"artifacts"`
	Errors          []FailureRecord        `json:"errors,omitempty"`
	Receipt         *PublishReceipt        `json:"receipt,omitempty"`
	CancelRequested bool                   `json:"cancelRequested,omitempty"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

// NewArticleJob initializes a job in its Created state with all
// stages pending.
func NewArticleJob(id string, source SourceRef, now time.Time) *ArticleJob {
	stages := make(map[Stage]*StageStatus, len(PipelineStages))
	for _, st := range PipelineStages {
		stages[st] = &StageStatus{Status: RunPending}
	}
	return &ArticleJob{
		ID:        id,
		Source:    source,
		State:     StateCreated,
		Stages:    stages,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NextStage returns the first stage that has not yet succeeded, so a
// reloaded job resumes from its last completed stage. The second
// result is false when every stage already succeeded.
func (j *ArticleJob) NextStage() (Stage, bool) {
	for _, st := range PipelineStages {
		status, ok := j.Stages[st]
		if !ok || status.Status != RunSucceeded {
			return st, true
		}
	}
	return "", false
}

// RecordFailure appends to the error history.
func (j *ArticleJob) RecordFailure(stage Stage, kind ErrorKind, message string, at time.Time) {
	j.Errors = append(j.Errors, FailureRecord{Stage: stage, Kind: kind, Message: message, At: at})
}

// PublishReceipt is the proof of a successful publish. Absence means
// the job has not reached terminal success.
type PublishReceipt struct {
	PostID      string    `json:"postId"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"publishedAt"`
}
