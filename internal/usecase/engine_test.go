package usecase

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"autoblogger/internal/domain"
	"autoblogger/internal/retry"
)

// memStore is an in-memory ports.JobStore.
type memStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.ArticleJob
}

func newMemStore() *memStore {
	return &memStore{jobs: map[string]*domain.ArticleJob{}}
}

func (m *memStore) Save(_ context.Context, job *domain.ArticleJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = snapshot(job)
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*domain.ArticleJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.Errorf(domain.KindSubmit, false, "job %s not found", id)
	}
	return snapshot(job), nil
}

func (m *memStore) ListResumable(_ context.Context) ([]*domain.ArticleJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ArticleJob
	for _, job := range m.jobs {
		if !job.State.Terminal() {
			out = append(out, snapshot(job))
		}
	}
	return out, nil
}

func (m *memStore) ReceiptFor(_ context.Context, jobID string) (*domain.PublishReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[jobID]; ok && job.Receipt != nil {
		r := *job.Receipt
		return &r, nil
	}
	return nil, nil
}

func (m *memStore) SaveReceipt(_ context.Context, jobID string, receipt domain.PublishReceipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[jobID]; ok {
		job.Receipt = &receipt
	}
	return nil
}

// stubStages implements every stage port with configurable behavior.
type stubStages struct {
	mu           sync.Mutex
	extractCalls int
	rewriteCalls int
	publishCalls int
	rewriteErr   error
}

func (s *stubStages) Extract(context.Context, domain.SourceRef) (domain.Draft, error) {
	s.mu.Lock()
	s.extractCalls++
	s.mu.Unlock()
	return domain.Draft{Title: "extracted", Blocks: []string{"a block about plants"}}, nil
}

func (s *stubStages) Rewrite(_ context.Context, draft domain.Draft, _ string) (domain.Draft, error) {
	s.mu.Lock()
	s.rewriteCalls++
	err := s.rewriteErr
	s.mu.Unlock()
	if err != nil {
		return domain.Draft{}, err
	}
	out := draft.Clone()
	out.Title = "rewritten"
	return out, nil
}

func (s *stubStages) Enrich(draft domain.Draft) (domain.Draft, domain.SeoMetadata, error) {
	return draft.Clone(), domain.SeoMetadata{Category: "gardening", Tags: []string{"gardening"}}, nil
}

func (s *stubStages) Source(context.Context, []string) (domain.ImageAsset, error) {
	return domain.ImageAsset{Data: []byte("img"), Attribution: "Image: test"}, nil
}

func (s *stubStages) Publish(_ context.Context, jobID string, _ domain.Draft, _ domain.SeoMetadata, _ domain.ImageAsset) (domain.PublishReceipt, error) {
	s.mu.Lock()
	s.publishCalls++
	s.mu.Unlock()
	return domain.PublishReceipt{PostID: "post-" + jobID, URL: "https://cms.example.com/" + jobID}, nil
}

func fastBudgets() map[domain.Stage]retry.Config {
	cfg := retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2}
	budgets := map[domain.Stage]retry.Config{}
	for _, stage := range domain.PipelineStages {
		budgets[stage] = cfg
	}
	return budgets
}

func newTestEngine(store *memStore, stubs *stubStages) *Engine {
	return NewEngine(Deps{
		Extractor: stubs,
		Rewriter:  stubs,
		Enricher:  stubs,
		Images:    stubs,
		Publisher: stubs,
		Store:     store,
		Logger:    slog.New(slog.DiscardHandler),
		Workers:   1,
		Budgets:   fastBudgets(),
	})
}

func waitForTerminal(t *testing.T, store *memStore, jobID string) *domain.ArticleJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.Get(context.Background(), jobID)
		if err == nil && job.State.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", jobID)
	return nil
}

func TestEngineRunsJobToSuccess(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newMemStore()
	stubs := &stubStages{}
	engine := newTestEngine(store, stubs)
	require.NoError(t, engine.Start(ctx))

	jobID, err := engine.Submit(ctx, domain.SourceRef{URL: "https://example.com/a"})
	require.NoError(t, err)

	job := waitForTerminal(t, store, jobID)
	require.Equal(t, domain.StateSucceeded, job.State)
	require.NotNil(t, job.Receipt)
	require.Equal(t, "post-"+jobID, job.Receipt.PostID)

	for _, stage := range domain.PipelineStages {
		require.Equal(t, domain.RunSucceeded, job.Stages[stage].Status, "stage %s", stage)
		require.Zero(t, job.Stages[stage].Retries, "stage %s", stage)
	}
	require.NotNil(t, job.Artifacts.Extracted)
	require.NotNil(t, job.Artifacts.Rewritten)
	require.NotNil(t, job.Artifacts.Seo)
	require.NotNil(t, job.Artifacts.Image)
}

func TestEngineFailsAfterRetryExhaustion(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newMemStore()
	stubs := &stubStages{
		rewriteErr: domain.Errorf(domain.KindModel, true, "model call timed out"),
	}
	engine := newTestEngine(store, stubs)
	require.NoError(t, engine.Start(ctx))

	jobID, err := engine.Submit(ctx, domain.SourceRef{URL: "https://example.com/a"})
	require.NoError(t, err)

	job := waitForTerminal(t, store, jobID)
	require.Equal(t, domain.StateFailed, job.State)
	require.Equal(t, 3, stubs.rewriteCalls, "retry budget of 3 means 3 attempts")
	require.Equal(t, domain.RunFailed, job.Stages[domain.StageRewriting].Status)
	require.Equal(t, 3, job.Stages[domain.StageRewriting].Retries, "persisted state reflects exhausted retries")

	require.Len(t, job.Errors, 3, "every failed attempt gets a record")
	for _, failure := range job.Errors {
		require.Equal(t, domain.StageRewriting, failure.Stage)
		require.Equal(t, domain.KindModel, failure.Kind)
	}
}

func TestEnginePermanentErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newMemStore()
	stubs := &stubStages{
		rewriteErr: domain.Errorf(domain.KindContentPolicy, false, "banned phrase in output"),
	}
	engine := newTestEngine(store, stubs)
	require.NoError(t, engine.Start(ctx))

	jobID, err := engine.Submit(ctx, domain.SourceRef{URL: "https://example.com/a"})
	require.NoError(t, err)

	job := waitForTerminal(t, store, jobID)
	require.Equal(t, domain.StateFailed, job.State)
	require.Equal(t, 1, stubs.rewriteCalls, "permanent errors must not be retried")
	require.Len(t, job.Errors, 1)
	require.Equal(t, domain.KindContentPolicy, job.Errors[0].Kind)
}

func TestEngineResumesFromLastCompletedStage(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	stubs := &stubStages{}

	// A prior process completed extraction and rewriting, then died.
	job := domain.NewArticleJob("job-resume", domain.SourceRef{URL: "https://example.com/a"}, time.Now().UTC())
	job.State = domain.StateEnriching
	job.Stages[domain.StageExtracting].Status = domain.RunSucceeded
	job.Stages[domain.StageRewriting].Status = domain.RunSucceeded
	job.Artifacts.Extracted = &domain.Draft{Title: "extracted", Blocks: []string{"block"}}
	job.Artifacts.Rewritten = &domain.Draft{Title: "rewritten", Blocks: []string{"block"}}
	require.NoError(t, store.Save(context.Background(), job))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := newTestEngine(store, stubs)
	require.NoError(t, engine.Start(ctx))

	loaded := waitForTerminal(t, store, "job-resume")
	require.Equal(t, domain.StateSucceeded, loaded.State)
	require.Zero(t, stubs.extractCalls, "completed stages must not re-run")
	require.Zero(t, stubs.rewriteCalls, "completed stages must not re-run")
	require.Equal(t, 1, stubs.publishCalls)
}

func TestEngineCancelBeforeProcessing(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	stubs := &stubStages{}
	engine := newTestEngine(store, stubs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Submit before starting workers so the cancel lands while the
	// job is still queued.
	jobID, err := engine.Submit(ctx, domain.SourceRef{URL: "https://example.com/a"})
	require.NoError(t, err)
	require.NoError(t, engine.Cancel(ctx, jobID))

	require.NoError(t, engine.Start(ctx))

	job := waitForTerminal(t, store, jobID)
	require.Equal(t, domain.StateAbandoned, job.State)
	require.True(t, job.CancelRequested)
	require.Zero(t, stubs.extractCalls)
}

func TestEngineHonorsPersistedCancelAfterRestart(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	stubs := &stubStages{}

	// A prior process recorded the cancel request, then died before
	// abandoning the job.
	job := domain.NewArticleJob("job-stale-cancel", domain.SourceRef{URL: "https://example.com/a"}, time.Now().UTC())
	job.CancelRequested = true
	require.NoError(t, store.Save(context.Background(), job))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := newTestEngine(store, stubs)
	require.NoError(t, engine.Start(ctx))

	loaded := waitForTerminal(t, store, "job-stale-cancel")
	require.Equal(t, domain.StateAbandoned, loaded.State)
	require.Zero(t, stubs.extractCalls)
}

func TestEngineRejectsEmptySource(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(newMemStore(), &stubStages{})
	_, err := engine.Submit(context.Background(), domain.SourceRef{})
	require.Error(t, err)
}

func TestEngineCancelTerminalJobFails(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newMemStore()
	engine := newTestEngine(store, &stubStages{})
	require.NoError(t, engine.Start(ctx))

	jobID, err := engine.Submit(ctx, domain.SourceRef{URL: "https://example.com/a"})
	require.NoError(t, err)
	waitForTerminal(t, store, jobID)

	require.Error(t, engine.Cancel(ctx, jobID))
}
