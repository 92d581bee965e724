package services

import (
	"sync"
	"time"

	"github.com/georgescold/epsbot1/cmd/defines"
	apperrors "github.com/georgescold/epsbot1/pkg/errors"

	"github.com/google/uuid"
)

// WorkUnit is an immutable description of one deferred analysis task
type WorkUnit struct {
	Kind     defines.WorkUnitKind
	SourceID int64
	Filename string
	FilePath string
}

// Job is the queryable snapshot of a work unit's execution
type Job struct {
	ID         string               `json:"job_id"`
	Kind       defines.WorkUnitKind `json:"kind"`
	SourceID   int64                `json:"source_id"`
	Filename   string               `json:"filename"`
	Status     defines.JobStatus    `json:"status"`
	Progress   int                  `json:"progress"`
	Message    string               `json:"message"`
	CreatedAt  time.Time            `json:"created_at"`
	StartedAt  *time.Time           `json:"started_at,omitempty"`
	FinishedAt *time.Time           `json:"finished_at,omitempty"`
}

// jobRecord is the mutable runtime record; only ever touched under the
// store's lock. Snapshots handed out are value copies.
type jobRecord struct {
	job             Job
	unit            WorkUnit
	cancelRequested bool
}

const (
	// DefaultJobGrace is how long terminal jobs stay queryable before eviction
	DefaultJobGrace = 5 * time.Minute

	// sweepInterval is how often the eviction janitor runs
	sweepInterval = 30 * time.Second
)

// JobStore is the concurrency-safe registry of all non-terminal jobs plus
// terminal jobs still within their grace window. It enforces the one active
// job per source invariant at creation time.
type JobStore struct {
	mu           sync.RWMutex
	jobs         map[string]*jobRecord
	activeBySrc  map[int64]string
	grace        time.Duration
	sweepEvery   time.Duration
	done         chan struct{}
	janitorDone  sync.WaitGroup
	janitorOnce  sync.Once
	shutdownOnce sync.Once
}

// NewJobStore creates a job store with the default grace window
func NewJobStore() *JobStore {
	return NewJobStoreWithGrace(DefaultJobGrace, sweepInterval)
}

// NewJobStoreWithGrace creates a job store with an explicit grace window and
// janitor interval
func NewJobStoreWithGrace(grace, sweepEvery time.Duration) *JobStore {
	s := &JobStore{
		jobs:        make(map[string]*jobRecord),
		activeBySrc: make(map[int64]string),
		grace:       grace,
		sweepEvery:  sweepEvery,
		done:        make(chan struct{}),
	}
	s.janitorOnce.Do(func() {
		s.janitorDone.Add(1)
		go s.janitor()
	})
	return s
}

// Stop shuts down the eviction janitor
func (s *JobStore) Stop() {
	s.shutdownOnce.Do(func() {
		close(s.done)
	})
	s.janitorDone.Wait()
}

// Create registers a new pending job for the work unit. It fails with
// ErrAlreadyInProgress when the target source already has a pending or
// processing job; the lookup and the insert happen under one lock so two
// concurrent submissions for the same source can never both be admitted.
func (s *JobStore) Create(unit WorkUnit) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.activeBySrc[unit.SourceID]; exists {
		return Job{}, apperrors.ErrAlreadyInProgress
	}

	rec := &jobRecord{
		job: Job{
			ID:        uuid.New().String(),
			Kind:      unit.Kind,
			SourceID:  unit.SourceID,
			Filename:  unit.Filename,
			Status:    defines.JobStatusPending,
			Progress:  0,
			Message:   "Waiting...",
			CreatedAt: time.Now(),
		},
		unit: unit,
	}

	s.jobs[rec.job.ID] = rec
	s.activeBySrc[unit.SourceID] = rec.job.ID

	return rec.job, nil
}

// Get returns a consistent snapshot of one job
func (s *JobStore) Get(jobID string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.jobs[jobID]
	if !exists || s.expired(rec) {
		return Job{}, apperrors.ErrNotFound
	}
	return rec.job, nil
}

// ListActive returns snapshots of all non-terminal jobs plus terminal jobs
// still within the grace window, keyed by job id
func (s *JobStore) ListActive() map[string]Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Job, len(s.jobs))
	for id, rec := range s.jobs {
		if s.expired(rec) {
			continue
		}
		out[id] = rec.job
	}
	return out
}

// FindActiveByTarget returns the pending or processing job covering a source,
// if any
func (s *JobStore) FindActiveByTarget(sourceID int64) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.activeBySrc[sourceID]
	if !exists {
		return Job{}, false
	}
	return s.jobs[id].job, true
}

// Size returns the number of jobs currently held, expired ones included
func (s *JobStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// RequestCancel flips the cancellation flag. It never forces a status
// transition: the worker observes the flag and transitions the job itself.
// Requesting twice is a no-op, and a terminal job is returned unchanged so
// the caller can report "already finished".
func (s *JobStore) RequestCancel(jobID string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.jobs[jobID]
	if !exists || s.expired(rec) {
		return Job{}, apperrors.ErrNotFound
	}

	if rec.job.Status.IsTerminal() || rec.cancelRequested {
		return rec.job, nil
	}

	rec.cancelRequested = true
	rec.job.Message = "Cancelling..."
	return rec.job, nil
}

// cancelRequested reports whether cancellation was requested for a job
func (s *JobStore) cancelRequested(jobID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.jobs[jobID]
	return exists && rec.cancelRequested
}

// pickupState describes what a worker found when it dequeued a job id
type pickupState int

const (
	pickupRun pickupState = iota
	pickupCancelled
	pickupSkip
)

// beginProcessing is called by a worker when it dequeues a job. A pending job
// whose cancellation flag is already set transitions straight to cancelled
// without ever entering processing.
func (s *JobStore) beginProcessing(jobID string) (WorkUnit, pickupState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.jobs[jobID]
	if !exists || rec.job.Status != defines.JobStatusPending {
		return WorkUnit{}, pickupSkip
	}

	if rec.cancelRequested {
		s.finishLocked(rec, defines.JobStatusCancelled, "Cancelled by user")
		return WorkUnit{}, pickupCancelled
	}

	now := time.Now()
	rec.job.Status = defines.JobStatusProcessing
	rec.job.StartedAt = &now
	rec.job.Message = "Starting analysis..."
	return rec.unit, pickupRun
}

// updateProgress applies a progress increment. Progress is monotonically
// non-decreasing while processing; updates after a terminal transition are
// dropped.
func (s *JobStore) updateProgress(jobID string, percent int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.jobs[jobID]
	if !exists || rec.job.Status != defines.JobStatusProcessing {
		return
	}

	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if percent > rec.job.Progress {
		rec.job.Progress = percent
	}
	if message != "" {
		rec.job.Message = message
	}
}

// markCompleted transitions a processing job to completed with progress 100
func (s *JobStore) markCompleted(jobID string) {
	s.finish(jobID, defines.JobStatusCompleted, "Analysis complete")
}

// markFailed transitions a job to failed, preserving its last progress and
// recording an operator-facing error summary
func (s *JobStore) markFailed(jobID string, message string) {
	s.finish(jobID, defines.JobStatusFailed, message)
}

// markCancelled transitions a job to cancelled, preserving its last progress
func (s *JobStore) markCancelled(jobID string, message string) {
	s.finish(jobID, defines.JobStatusCancelled, message)
}

func (s *JobStore) finish(jobID string, status defines.JobStatus, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.jobs[jobID]
	if !exists || rec.job.Status.IsTerminal() {
		// no transition ever leaves a terminal state
		return
	}
	s.finishLocked(rec, status, message)
}

func (s *JobStore) finishLocked(rec *jobRecord, status defines.JobStatus, message string) {
	now := time.Now()
	rec.job.Status = status
	rec.job.FinishedAt = &now
	if message != "" {
		rec.job.Message = message
	}
	if status == defines.JobStatusCompleted {
		rec.job.Progress = 100
	}
	delete(s.activeBySrc, rec.job.SourceID)
}

// expired reports whether a terminal job has outlived its grace window.
// Callers must hold at least the read lock.
func (s *JobStore) expired(rec *jobRecord) bool {
	return rec.job.FinishedAt != nil && time.Since(*rec.job.FinishedAt) > s.grace
}

// janitor evicts terminal jobs once their grace window has elapsed
func (s *JobStore) janitor() {
	defer s.janitorDone.Done()

	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *JobStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, rec := range s.jobs {
		if s.expired(rec) {
			delete(s.jobs, id)
		}
	}
}
