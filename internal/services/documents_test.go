package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/georgescold/epsbot1/cmd/defines"
	"github.com/georgescold/epsbot1/internal/analyzer"
	"github.com/georgescold/epsbot1/internal/repositories"
	apperrors "github.com/georgescold/epsbot1/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSourceStore is an in-memory document registry
type fakeSourceStore struct {
	mu      sync.Mutex
	nextID  int64
	sources map[int64]*repositories.Source
	resets  []int64
}

func newFakeSourceStore() *fakeSourceStore {
	return &fakeSourceStore{sources: make(map[int64]*repositories.Source)}
}

func (f *fakeSourceStore) Create(ctx context.Context, source *repositories.Source) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	source.ID = f.nextID
	source.UploadedAt = time.Now()
	copied := *source
	f.sources[source.ID] = &copied
	return source.ID, nil
}

func (f *fakeSourceStore) GetByID(ctx context.Context, id int64) (*repositories.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	source, ok := f.sources[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *source
	return &copied, nil
}

func (f *fakeSourceStore) GetByFingerprint(ctx context.Context, fingerprint string) (*repositories.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, source := range f.sources {
		if source.Fingerprint == fingerprint {
			copied := *source
			return &copied, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (f *fakeSourceStore) List(ctx context.Context) ([]*repositories.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*repositories.Source, 0, len(f.sources))
	for id := int64(1); id <= f.nextID; id++ {
		if source, ok := f.sources[id]; ok {
			copied := *source
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeSourceStore) SetUnanalyzed(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	source, ok := f.sources[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	source.IsAnalyzed = false
	f.resets = append(f.resets, id)
	return nil
}

func (f *fakeSourceStore) Delete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sources[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(f.sources, id)
	return nil
}

func (f *fakeSourceStore) add(filename, fingerprint string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sources[f.nextID] = &repositories.Source{
		ID:          f.nextID,
		Filename:    filename,
		FilePath:    "/tmp/" + filename,
		Fingerprint: fingerprint,
		UploadedAt:  time.Now(),
	}
	return f.nextID
}

// fakeAnalysisReader serves no stored arguments
type fakeAnalysisReader struct{}

func (f *fakeAnalysisReader) ListBySource(ctx context.Context, sourceID int64) ([]*repositories.ArgumentRecord, error) {
	return nil, nil
}

func newTestDocumentService(t *testing.T, sources *fakeSourceStore, an analyzer.Analyzer) (*DocumentService, *JobStore, *memCommitter) {
	t.Helper()
	store := newTestStore(t)
	committer := newMemCommitter()
	pool := startTestPool(t, store, an, committer, 1)
	svc := NewDocumentService(sources, &fakeAnalysisReader{}, pool, store, nil, t.TempDir())
	return svc, store, committer
}

func TestUploadDocument(t *testing.T) {
	sources := newFakeSourceStore()
	an := &stubAnalyzer{fn: func(ctx context.Context, req analyzer.Request, onProgress analyzer.ProgressFunc, isCancelled func() bool) (*analyzer.Result, error) {
		return happyResult(), nil
	}}
	svc, store, committer := newTestDocumentService(t, sources, an)

	result, err := svc.UploadDocument(context.Background(), "lecture notes.pdf", []byte("pdf bytes"))
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.NotEmpty(t, result.JobID)
	assert.Equal(t, string(defines.JobStatusPending), result.Status)

	waitForStatus(t, store, result.JobID, defines.JobStatusCompleted)
	assert.True(t, committer.has(result.SourceID))
}

func TestUploadDocumentDuplicateContent(t *testing.T) {
	sources := newFakeSourceStore()
	an := &stubAnalyzer{fn: func(ctx context.Context, req analyzer.Request, onProgress analyzer.ProgressFunc, isCancelled func() bool) (*analyzer.Result, error) {
		return happyResult(), nil
	}}
	svc, store, _ := newTestDocumentService(t, sources, an)

	content := []byte("identical bytes")
	first, err := svc.UploadDocument(context.Background(), "a.pdf", content)
	require.NoError(t, err)
	waitForStatus(t, store, first.JobID, defines.JobStatusCompleted)

	// same content under a different name is a duplicate, not a new job
	second, err := svc.UploadDocument(context.Background(), "b.pdf", content)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.SourceID, second.SourceID)
	assert.Empty(t, second.JobID)
	assert.Equal(t, 1, store.Size())
}

func TestRetrySource(t *testing.T) {
	sources := newFakeSourceStore()
	release := make(chan struct{})
	an := &stubAnalyzer{fn: func(ctx context.Context, req analyzer.Request, onProgress analyzer.ProgressFunc, isCancelled func() bool) (*analyzer.Result, error) {
		<-release
		return happyResult(), nil
	}}
	svc, store, _ := newTestDocumentService(t, sources, an)
	defer close(release)

	id := sources.add("doc.pdf", "fp1")

	job, err := svc.RetrySource(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, defines.WorkUnitReanalyze, job.Kind)
	assert.Contains(t, sources.resets, id)

	// a second retry while the first is active is rejected
	_, err = svc.RetrySource(context.Background(), id)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyInProgress)
	assert.Equal(t, 1, store.Size())

	_, err = svc.RetrySource(context.Background(), 999)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDeleteSourceWithActiveJob(t *testing.T) {
	sources := newFakeSourceStore()
	release := make(chan struct{})
	an := &stubAnalyzer{fn: func(ctx context.Context, req analyzer.Request, onProgress analyzer.ProgressFunc, isCancelled func() bool) (*analyzer.Result, error) {
		<-release
		return happyResult(), nil
	}}
	svc, store, _ := newTestDocumentService(t, sources, an)

	id := sources.add("doc.pdf", "fp1")
	job, err := svc.RetrySource(context.Background(), id)
	require.NoError(t, err)

	// deletion is rejected while the job is active
	err = svc.DeleteSource(context.Background(), id)
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrConflict.Code, appErr.Code)

	close(release)
	waitForStatus(t, store, job.ID, defines.JobStatusCompleted)

	// once the job is terminal the delete goes through
	err = svc.DeleteSource(context.Background(), id)
	require.NoError(t, err)

	_, err = svc.GetSource(context.Background(), id)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte("content"))
	b := Fingerprint([]byte("content"))
	c := Fingerprint([]byte("different"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
