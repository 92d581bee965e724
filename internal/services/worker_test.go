package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/georgescold/epsbot1/cmd/defines"
	"github.com/georgescold/epsbot1/internal/analyzer"
	apperrors "github.com/georgescold/epsbot1/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAnalyzer runs a configurable function per request
type stubAnalyzer struct {
	fn func(ctx context.Context, req analyzer.Request, onProgress analyzer.ProgressFunc, isCancelled func() bool) (*analyzer.Result, error)
}

func (s *stubAnalyzer) Analyze(ctx context.Context, req analyzer.Request, onProgress analyzer.ProgressFunc, isCancelled func() bool) (*analyzer.Result, error) {
	return s.fn(ctx, req, onProgress, isCancelled)
}

// memCommitter records committed results per source
type memCommitter struct {
	mu        sync.Mutex
	committed map[int64]*analyzer.Result
}

func newMemCommitter() *memCommitter {
	return &memCommitter{committed: make(map[int64]*analyzer.Result)}
}

func (m *memCommitter) ReplaceForSource(ctx context.Context, sourceID int64, result *analyzer.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.committed[sourceID] = result
	return nil
}

func (m *memCommitter) has(sourceID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.committed[sourceID]
	return ok
}

func happyResult() *analyzer.Result {
	return &analyzer.Result{
		Arguments: []analyzer.Argument{{
			Theme:   "citizenship",
			Period:  "1850-1918",
			Content: "a general trend",
			Proofs:  []analyzer.Proof{{Content: "a fact", Year: "1880"}},
		}},
	}
}

func startTestPool(t *testing.T, store *JobStore, an analyzer.Analyzer, committer ResultCommitter, workers int) *AnalysisWorkerPool {
	t.Helper()
	pool := NewAnalysisWorkerPool(store, an, committer, &WorkerPoolConfig{WorkerCount: workers})
	pool.Start()
	t.Cleanup(pool.Stop)
	return pool
}

func waitForStatus(t *testing.T, store *JobStore, jobID string, want defines.JobStatus) Job {
	t.Helper()
	var got Job
	require.Eventually(t, func() bool {
		job, err := store.Get(jobID)
		if err != nil {
			return false
		}
		got = job
		return job.Status == want
	}, 2*time.Second, 5*time.Millisecond, "job %s never reached %s", jobID, want)
	return got
}

func TestWorkerPoolHappyPath(t *testing.T) {
	store := newTestStore(t)
	committer := newMemCommitter()
	an := &stubAnalyzer{fn: func(ctx context.Context, req analyzer.Request, onProgress analyzer.ProgressFunc, isCancelled func() bool) (*analyzer.Result, error) {
		onProgress(50, "halfway")
		return happyResult(), nil
	}}
	pool := startTestPool(t, store, an, committer, 2)

	// three independent submissions, three distinct pending jobs
	ids := make(map[string]bool)
	var jobs []Job
	for i := int64(1); i <= 3; i++ {
		job, err := pool.Submit(testUnit(i))
		require.NoError(t, err)
		assert.Equal(t, defines.JobStatusPending, job.Status)
		ids[job.ID] = true
		jobs = append(jobs, job)
	}
	assert.Len(t, ids, 3)

	for _, job := range jobs {
		done := waitForStatus(t, store, job.ID, defines.JobStatusCompleted)
		assert.Equal(t, 100, done.Progress)
		require.NotNil(t, done.FinishedAt)
		assert.True(t, committer.has(done.SourceID), "result committed for source %d", done.SourceID)
	}
}

func TestWorkerPoolRejectsDuplicateTarget(t *testing.T) {
	store := newTestStore(t)
	committer := newMemCommitter()
	release := make(chan struct{})
	an := &stubAnalyzer{fn: func(ctx context.Context, req analyzer.Request, onProgress analyzer.ProgressFunc, isCancelled func() bool) (*analyzer.Result, error) {
		<-release
		return happyResult(), nil
	}}
	pool := startTestPool(t, store, an, committer, 1)

	first, err := pool.Submit(testUnit(42))
	require.NoError(t, err)

	// second reanalysis for the same document while the first is in flight
	unit := testUnit(42)
	unit.Kind = defines.WorkUnitReanalyze
	_, err = pool.Submit(unit)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyInProgress)
	assert.Equal(t, 1, store.Size())

	close(release)
	// the first job proceeds unaffected
	waitForStatus(t, store, first.ID, defines.JobStatusCompleted)
}

func TestWorkerPoolFailureKeepsProgress(t *testing.T) {
	store := newTestStore(t)
	committer := newMemCommitter()
	an := &stubAnalyzer{fn: func(ctx context.Context, req analyzer.Request, onProgress analyzer.ProgressFunc, isCancelled func() bool) (*analyzer.Result, error) {
		onProgress(40, "Analyzing... 40%")
		return nil, errors.New("model returned garbage")
	}}
	pool := startTestPool(t, store, an, committer, 1)

	job, err := pool.Submit(testUnit(9))
	require.NoError(t, err)

	failed := waitForStatus(t, store, job.ID, defines.JobStatusFailed)
	assert.Equal(t, 40, failed.Progress, "progress stays where the failure happened")
	assert.Contains(t, failed.Message, "model returned garbage")
	assert.False(t, committer.has(9), "failed job commits nothing")

	// the document is eligible for retry: a new submission is admitted
	_, err = pool.Submit(testUnit(9))
	assert.NoError(t, err)
}

func TestWorkerPoolCancelBeforePickup(t *testing.T) {
	store := newTestStore(t)
	committer := newMemCommitter()
	release := make(chan struct{})
	an := &stubAnalyzer{fn: func(ctx context.Context, req analyzer.Request, onProgress analyzer.ProgressFunc, isCancelled func() bool) (*analyzer.Result, error) {
		<-release
		return happyResult(), nil
	}}
	// one worker: the second job waits in the queue
	pool := startTestPool(t, store, an, committer, 1)

	blocker, err := pool.Submit(testUnit(1))
	require.NoError(t, err)
	queued, err := pool.Submit(testUnit(2))
	require.NoError(t, err)

	_, err = store.RequestCancel(queued.ID)
	require.NoError(t, err)

	close(release)

	cancelled := waitForStatus(t, store, queued.ID, defines.JobStatusCancelled)
	assert.Nil(t, cancelled.StartedAt, "cancelled before pickup never entered processing")
	assert.False(t, committer.has(2), "document never marked analyzed")

	waitForStatus(t, store, blocker.ID, defines.JobStatusCompleted)
}

func TestWorkerPoolCancelMidRun(t *testing.T) {
	store := newTestStore(t)
	committer := newMemCommitter()
	started := make(chan struct{})
	an := &stubAnalyzer{fn: func(ctx context.Context, req analyzer.Request, onProgress analyzer.ProgressFunc, isCancelled func() bool) (*analyzer.Result, error) {
		close(started)
		for i := 0; i < 200; i++ {
			if isCancelled() {
				return nil, analyzer.ErrCancelled
			}
			onProgress(i/2, "Analyzing...")
			time.Sleep(5 * time.Millisecond)
		}
		return happyResult(), nil
	}}
	pool := startTestPool(t, store, an, committer, 1)

	job, err := pool.Submit(testUnit(3))
	require.NoError(t, err)

	<-started
	_, err = store.RequestCancel(job.ID)
	require.NoError(t, err)

	cancelled := waitForStatus(t, store, job.ID, defines.JobStatusCancelled)
	assert.NotNil(t, cancelled.StartedAt)
	assert.Less(t, cancelled.Progress, 100)
	assert.False(t, committer.has(3), "no partial output committed")
}

func TestWorkerPoolFIFO(t *testing.T) {
	store := newTestStore(t)
	committer := newMemCommitter()

	var mu sync.Mutex
	var order []int64
	an := &stubAnalyzer{fn: func(ctx context.Context, req analyzer.Request, onProgress analyzer.ProgressFunc, isCancelled func() bool) (*analyzer.Result, error) {
		mu.Lock()
		order = append(order, req.SourceID)
		mu.Unlock()
		return happyResult(), nil
	}}
	// a single worker makes dispatch order observable
	pool := startTestPool(t, store, an, committer, 1)

	var last Job
	for i := int64(1); i <= 5; i++ {
		job, err := pool.Submit(testUnit(i))
		require.NoError(t, err)
		last = job
	}

	waitForStatus(t, store, last.ID, defines.JobStatusCompleted)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, order)
}

func TestWorkerPoolCommitFailure(t *testing.T) {
	store := newTestStore(t)
	an := &stubAnalyzer{fn: func(ctx context.Context, req analyzer.Request, onProgress analyzer.ProgressFunc, isCancelled func() bool) (*analyzer.Result, error) {
		return happyResult(), nil
	}}
	committer := &failingCommitter{}
	pool := startTestPool(t, store, an, committer, 1)

	job, err := pool.Submit(testUnit(1))
	require.NoError(t, err)

	failed := waitForStatus(t, store, job.ID, defines.JobStatusFailed)
	assert.Contains(t, failed.Message, "failed to save analysis")
}

type failingCommitter struct{}

func (f *failingCommitter) ReplaceForSource(ctx context.Context, sourceID int64, result *analyzer.Result) error {
	return errors.New("database unavailable")
}
