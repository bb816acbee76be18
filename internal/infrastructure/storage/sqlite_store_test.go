package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"autoblogger/internal/domain"
)

func openStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleJob(id string) *domain.ArticleJob {
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	job := domain.NewArticleJob(id, domain.SourceRef{URL: "https://example.com/article"}, now)
	job.State = domain.StateEnriching
	job.Stages[domain.StageExtracting] = &domain.StageStatus{
		Status: domain.RunSucceeded, Retries: 1,
		StartedAt: now, FinishedAt: now.Add(2 * time.Second),
	}
	job.Stages[domain.StageRewriting] = &domain.StageStatus{
		Status: domain.RunSucceeded, StartedAt: now.Add(3 * time.Second), FinishedAt: now.Add(9 * time.Second),
	}
	job.Artifacts.Extracted = &domain.Draft{Title: "T", Blocks: []string{"one", "two"}}
	job.Artifacts.Rewritten = &domain.Draft{Title: "T2", Blocks: []string{"uno", "dos"}}
	job.RecordFailure(domain.StageExtracting, domain.KindFetch, "timeout on first attempt", now.Add(time.Second))
	return job
}

func TestJobRoundTrip(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	ctx := context.Background()

	job := sampleJob("job-rt")
	require.NoError(t, store.Save(ctx, job))

	loaded, err := store.Get(ctx, "job-rt")
	require.NoError(t, err)

	require.Equal(t, job.ID, loaded.ID)
	require.Equal(t, job.State, loaded.State)
	require.Equal(t, job.Source, loaded.Source)
	require.Equal(t, job.Stages, loaded.Stages)
	require.Equal(t, job.Artifacts, loaded.Artifacts)
	require.Equal(t, job.Errors, loaded.Errors)
	require.True(t, job.CreatedAt.Equal(loaded.CreatedAt))
	require.True(t, job.UpdatedAt.Equal(loaded.UpdatedAt))
	require.Nil(t, loaded.Receipt)
	require.False(t, loaded.CancelRequested)
}

func TestCancelRequestSurvivesRoundTrip(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	ctx := context.Background()

	job := sampleJob("job-cancel")
	require.NoError(t, store.Save(ctx, job))

	job.CancelRequested = true
	require.NoError(t, store.Save(ctx, job))

	loaded, err := store.Get(ctx, "job-cancel")
	require.NoError(t, err)
	require.True(t, loaded.CancelRequested)

	jobs, err := store.ListResumable(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.True(t, jobs[0].CancelRequested)
}

func TestSaveIsUpsert(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	ctx := context.Background()

	job := sampleJob("job-up")
	require.NoError(t, store.Save(ctx, job))

	job.State = domain.StateFailed
	job.Stages[domain.StageRewriting].Retries = 3
	require.NoError(t, store.Save(ctx, job))

	loaded, err := store.Get(ctx, "job-up")
	require.NoError(t, err)
	require.Equal(t, domain.StateFailed, loaded.State)
	require.Equal(t, 3, loaded.Stages[domain.StageRewriting].Retries)
}

func TestGetMissingJob(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	_, err := store.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListResumableSkipsTerminalStates(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	ctx := context.Background()

	active := sampleJob("job-active")
	require.NoError(t, store.Save(ctx, active))

	done := sampleJob("job-done")
	done.State = domain.StateSucceeded
	require.NoError(t, store.Save(ctx, done))

	failed := sampleJob("job-failed")
	failed.State = domain.StateFailed
	require.NoError(t, store.Save(ctx, failed))

	jobs, err := store.ListResumable(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, "job-active", jobs[0].ID)
}

func TestReceiptLifecycle(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	ctx := context.Background()

	job := sampleJob("job-receipt")
	require.NoError(t, store.Save(ctx, job))

	got, err := store.ReceiptFor(ctx, "job-receipt")
	require.NoError(t, err)
	require.Nil(t, got, "no receipt before publish")

	receipt := domain.PublishReceipt{
		PostID:      "post-7",
		URL:         "https://cms.example.com/post-7",
		PublishedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveReceipt(ctx, "job-receipt", receipt))

	got, err = store.ReceiptFor(ctx, "job-receipt")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, receipt.PostID, got.PostID)
	require.True(t, receipt.PublishedAt.Equal(got.PublishedAt))

	err = store.SaveReceipt(ctx, "missing-job", receipt)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNotFound))
}
