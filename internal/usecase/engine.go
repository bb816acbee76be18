package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"autoblogger/internal/domain"
	"autoblogger/internal/ports"
	"autoblogger/internal/retry"
)

// Deps wires all driven adapters into the orchestration engine.
type Deps struct {
	Extractor ports.Extractor
	Rewriter  ports.Rewriter
	Enricher  ports.Enricher
	Images    ports.ImageSourcer
	Publisher ports.Publisher
	Store     ports.JobStore
	Logger    *slog.Logger
	Workers   int
	QueueSize int
	Budgets   map[domain.Stage]retry.Config
	Now       func() time.Time
}

// Engine runs ArticleJobs through the pipeline. Jobs are independent
// and processed concurrently by a worker pool; within a job, stages
// run strictly sequentially. State is persisted after every
// transition so a restart resumes from the last completed stage.
type Engine struct {
	extractor ports.Extractor
	rewriter  ports.Rewriter
	enricher  ports.Enricher
	images    ports.ImageSourcer
	publisher ports.Publisher
	store     ports.JobStore
	logger    *slog.Logger
	budgets   map[domain.Stage]retry.Config
	now       func() time.Time

	queue   chan *domain.ArticleJob
	updates chan *domain.ArticleJob
	workers int

	mu        sync.Mutex
	cancelled map[string]bool

	wg sync.WaitGroup
}

// NewEngine constructs the orchestration engine.
func NewEngine(deps Deps) *Engine {
	workers := deps.Workers
	if workers < 1 {
		workers = 2
	}
	queueSize := deps.QueueSize
	if queueSize < 1 {
		queueSize = 64
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		extractor: deps.Extractor,
		rewriter:  deps.Rewriter,
		enricher:  deps.Enricher,
		images:    deps.Images,
		publisher: deps.Publisher,
		store:     deps.Store,
		logger:    logger,
		budgets:   deps.Budgets,
		now:       now,
		queue:     make(chan *domain.ArticleJob, queueSize),
		updates:   make(chan *domain.ArticleJob, 64),
		workers:   workers,
		cancelled: map[string]bool{},
	}
}

// Start loads resumable jobs from the store and launches the worker
// pool. It returns once workers are running; Wait blocks until the
// context is cancelled and workers drain.
func (e *Engine) Start(ctx context.Context) error {
	resumable, err := e.store.ListResumable(ctx)
	if err != nil {
		return fmt.Errorf("load resumable jobs: %w", err)
	}
	for _, job := range resumable {
		select {
		case e.queue <- job:
			e.logger.Info("resuming job", "job_id", job.ID, "state", job.State)
		default:
			e.logger.Warn("queue full, job left for next restart", "job_id", job.ID)
		}
	}

	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.workerLoop(ctx)
	}
	return nil
}

// Wait blocks until all workers have exited.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Submit registers a new job and enqueues it.
func (e *Engine) Submit(ctx context.Context, source domain.SourceRef) (string, error) {
	if source.URL == "" && source.RawText == "" {
		return "", fmt.Errorf("source reference needs a url or raw text")
	}

	job := domain.NewArticleJob(uuid.NewString(), source, e.now())
	if err := e.store.Save(ctx, job); err != nil {
		return "", fmt.Errorf("persist new job: %w", err)
	}

	select {
	case e.queue <- job:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	e.logger.Info("job submitted", "job_id", job.ID, "url", source.URL)
	return job.ID, nil
}

// Status returns the persisted job snapshot.
func (e *Engine) Status(ctx context.Context, jobID string) (*domain.ArticleJob, error) {
	return e.store.Get(ctx, jobID)
}

// Cancel requests cooperative cancellation. A stage in flight
// completes or times out first; the job is abandoned at the next
// stage boundary. The request is persisted so a queued job stays
// cancelled across a restart.
func (e *Engine) Cancel(ctx context.Context, jobID string) error {
	job, err := e.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.State.Terminal() {
		return fmt.Errorf("job %s is already %s", jobID, job.State)
	}

	e.mu.Lock()
	e.cancelled[jobID] = true
	e.mu.Unlock()

	job.CancelRequested = true
	job.UpdatedAt = e.now()
	if err := e.store.Save(ctx, job); err != nil {
		return fmt.Errorf("persist cancel request: %w", err)
	}

	e.logger.Info("cancellation requested", "job_id", jobID)
	return nil
}

// Updates exposes a buffered subscription channel of job snapshots.
// Slow consumers miss updates rather than blocking the pipeline.
func (e *Engine) Updates() <-chan *domain.ArticleJob {
	return e.updates
}

func (e *Engine) workerLoop(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-e.queue:
			e.run(ctx, job)
		}
	}
}

// run drives one job through its remaining stages.
func (e *Engine) run(ctx context.Context, job *domain.ArticleJob) {
	for {
		if ctx.Err() != nil {
			return
		}

		stage, remaining := job.NextStage()
		if !remaining {
			e.finish(ctx, job, domain.StateSucceeded)
			return
		}

		if e.cancelRequested(job.ID) {
			job.CancelRequested = true
		}
		if job.CancelRequested {
			e.finish(ctx, job, domain.StateAbandoned)
			return
		}

		status := job.Stages[stage]
		status.Status = domain.RunRunning
		status.StartedAt = e.now()
		job.State = domain.StateFor(stage)
		e.persist(ctx, job)

		retrier := retry.New(e.budgetFor(stage), domain.IsRetryable, e.logger.With("job_id", job.ID, "stage", stage))
		attempts, err := retrier.Do(ctx, func() error {
			stageErr := e.execStage(ctx, job, stage)
			if stageErr != nil {
				// Every failed attempt lands in the error history,
				// not just the one that exhausted the budget.
				job.RecordFailure(stage, domain.KindOf(stageErr), stageErr.Error(), e.now())
				e.persist(ctx, job)
			}
			return stageErr
		})

		status.FinishedAt = e.now()
		if err != nil {
			status.Status = domain.RunFailed
			status.Retries = attempts
			e.logger.Error("stage failed", "job_id", job.ID, "stage", stage, "attempts", attempts, "error", err)
			e.finish(ctx, job, domain.StateFailed)
			return
		}

		status.Status = domain.RunSucceeded
		status.Retries = attempts - 1
		e.persist(ctx, job)
		e.logger.Info("stage succeeded", "job_id", job.ID, "stage", stage, "attempts", attempts)
	}
}

// execStage performs one attempt of one stage. A stage either writes
// a complete artifact or the job does not advance.
func (e *Engine) execStage(ctx context.Context, job *domain.ArticleJob, stage domain.Stage) error {
	switch stage {
	case domain.StageExtracting:
		draft, err := e.extractor.Extract(ctx, job.Source)
		if err != nil {
			return err
		}
		job.Artifacts.Extracted = &draft
	case domain.StageRewriting:
		if job.Artifacts.Extracted == nil {
			return fmt.Errorf("rewriting without an extracted draft")
		}
		draft, err := e.rewriter.Rewrite(ctx, *job.Artifacts.Extracted, job.Source.StyleTemplate)
		if err != nil {
			return err
		}
		job.Artifacts.Rewritten = &draft
	case domain.StageEnriching:
		if job.Artifacts.Rewritten == nil {
			return fmt.Errorf("enriching without a rewritten draft")
		}
		draft, meta, err := e.enricher.Enrich(*job.Artifacts.Rewritten)
		if err != nil {
			return err
		}
		job.Artifacts.Enriched = &draft
		job.Artifacts.Seo = &meta
	case domain.StageImageSourcing:
		if job.Artifacts.Seo == nil {
			return fmt.Errorf("image sourcing without seo metadata")
		}
		image, err := e.images.Source(ctx, job.Artifacts.Seo.Tags)
		if err != nil {
			return err
		}
		job.Artifacts.Image = &image
	case domain.StagePublishing:
		if job.Artifacts.Enriched == nil || job.Artifacts.Seo == nil || job.Artifacts.Image == nil {
			return fmt.Errorf("publishing with incomplete artifacts")
		}
		receipt, err := e.publisher.Publish(ctx, job.ID, *job.Artifacts.Enriched, *job.Artifacts.Seo, *job.Artifacts.Image)
		if err != nil {
			return err
		}
		job.Receipt = &receipt
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}
	return nil
}

func (e *Engine) finish(ctx context.Context, job *domain.ArticleJob, state domain.JobState) {
	job.State = state
	e.persist(ctx, job)
	e.clearCancel(job.ID)
	e.logger.Info("job finished", "job_id", job.ID, "state", state)
}

// persist saves and broadcasts the current snapshot. Persistence
// failures are logged, not fatal: the in-memory run continues and the
// next transition retries the write.
func (e *Engine) persist(ctx context.Context, job *domain.ArticleJob) {
	job.UpdatedAt = e.now()
	if err := e.store.Save(ctx, job); err != nil {
		e.logger.Error("persist job state", "job_id", job.ID, "error", err)
	}
	select {
	case e.updates <- snapshot(job):
	default:
	}
}

func (e *Engine) budgetFor(stage domain.Stage) retry.Config {
	if cfg, ok := e.budgets[stage]; ok {
		return cfg
	}
	return retry.DefaultConfig()
}

func (e *Engine) cancelRequested(jobID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled[jobID]
}

func (e *Engine) clearCancel(jobID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cancelled, jobID)
}

// snapshot deep-copies the mutable parts so update subscribers never
// observe a job mid-mutation.
func snapshot(job *domain.ArticleJob) *domain.ArticleJob {
	copied := *job
	copied.Stages = make(map[domain.Stage]*domain.StageStatus, len(job.Stages))
	for stage, status := range job.Stages {
		s := *status
		copied.Stages[stage] = &s
	}
	copied.Errors = append([]domain.FailureRecord(nil), job.Errors...)
	return &copied
}
