package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/georgescold/epsbot1/internal/analyzer"

	fylogger "github.com/FyersDev/trading-logger-go"
)

// ResultCommitter persists a completed analysis for a source. The commit
// happens in one shot after the analyzer fully returns, so a reader of source
// state never observes a half-written analysis.
type ResultCommitter interface {
	ReplaceForSource(ctx context.Context, sourceID int64, result *analyzer.Result) error
}

// WorkerPoolConfig holds configuration for the worker pool
type WorkerPoolConfig struct {
	WorkerCount int
}

// DefaultWorkerPoolConfig returns sensible defaults
func DefaultWorkerPoolConfig() *WorkerPoolConfig {
	return &WorkerPoolConfig{
		WorkerCount: 3,
	}
}

// AnalysisWorkerPool accepts work units, creates their jobs and runs them on
// a fixed number of workers. Submission never blocks: accepted units wait in
// an unbounded FIFO queue, so pending is a legitimate, possibly long-lived
// state when the pool is saturated.
type AnalysisWorkerPool struct {
	store       *JobStore
	analyzer    analyzer.Analyzer
	committer   ResultCommitter
	workerCount int

	queueMu sync.Mutex
	queue   []string
	wake    chan struct{}

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewAnalysisWorkerPool creates a new worker pool over the given job store
func NewAnalysisWorkerPool(store *JobStore, an analyzer.Analyzer, committer ResultCommitter, config *WorkerPoolConfig) *AnalysisWorkerPool {
	if config == nil {
		config = DefaultWorkerPoolConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &AnalysisWorkerPool{
		store:       store,
		analyzer:    an,
		committer:   committer,
		workerCount: config.WorkerCount,
		wake:        make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start initializes and starts all workers
func (p *AnalysisWorkerPool) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	fylogger.InfoLog(p.ctx, fmt.Sprintf("Started %d analysis workers", p.workerCount), nil)
}

// Stop gracefully shuts down all workers
func (p *AnalysisWorkerPool) Stop() {
	p.cancel()
	p.wg.Wait()
	fylogger.InfoLog(context.Background(), "Analysis worker pool stopped", nil)
}

// Submit admits a work unit: exactly one job is created per accepted
// submission, none on rejection. Rejection happens only when the target
// source already has an active job.
func (p *AnalysisWorkerPool) Submit(unit WorkUnit) (Job, error) {
	job, err := p.store.Create(unit)
	if err != nil {
		return Job{}, err
	}

	p.queueMu.Lock()
	p.queue = append(p.queue, job.ID)
	p.queueMu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}

	fylogger.InfoLog(p.ctx, fmt.Sprintf("Job %s submitted for %s", job.ID, unit.Filename), nil)
	return job, nil
}

// next pops the oldest queued job id, blocking until one is available or the
// pool shuts down
func (p *AnalysisWorkerPool) next() (string, bool) {
	for {
		p.queueMu.Lock()
		if len(p.queue) > 0 {
			id := p.queue[0]
			p.queue = p.queue[1:]
			p.queueMu.Unlock()
			// keep draining: another id may already be waiting
			select {
			case p.wake <- struct{}{}:
			default:
			}
			return id, true
		}
		p.queueMu.Unlock()

		select {
		case <-p.ctx.Done():
			return "", false
		case <-p.wake:
		}
	}
}

// worker is the main worker loop
func (p *AnalysisWorkerPool) worker(id int) {
	defer p.wg.Done()

	for {
		jobID, ok := p.next()
		if !ok {
			return
		}
		p.process(jobID, id)
	}
}

// process runs one job to completion or interruption
func (p *AnalysisWorkerPool) process(jobID string, workerID int) {
	unit, state := p.store.beginProcessing(jobID)
	switch state {
	case pickupSkip:
		return
	case pickupCancelled:
		fylogger.InfoLog(p.ctx, fmt.Sprintf("Worker %d: job %s cancelled before pickup", workerID, jobID), nil)
		return
	}

	fylogger.InfoLog(p.ctx, fmt.Sprintf("Worker %d processing job %s (%s)", workerID, jobID, unit.Filename), nil)

	onProgress := func(percent int, message string) {
		p.store.updateProgress(jobID, percent, message)
	}
	isCancelled := func() bool {
		return p.store.cancelRequested(jobID) || p.ctx.Err() != nil
	}

	result, err := p.analyzer.Analyze(p.ctx, analyzer.Request{
		SourceID: unit.SourceID,
		Filename: unit.Filename,
		FilePath: unit.FilePath,
	}, onProgress, isCancelled)

	if err != nil {
		switch {
		case errors.Is(err, analyzer.ErrCancelled), p.store.cancelRequested(jobID):
			p.store.markCancelled(jobID, "Cancelled by user")
			fylogger.InfoLog(p.ctx, fmt.Sprintf("Worker %d: job %s cancelled", workerID, jobID), nil)
		case errors.Is(err, context.Canceled):
			p.store.markCancelled(jobID, "Server shutting down")
		default:
			p.store.markFailed(jobID, err.Error())
			fylogger.ErrorLog(p.ctx, fmt.Sprintf("Worker %d: job %s failed", workerID, jobID), err, map[string]interface{}{
				"filename": unit.Filename,
			})
		}
		return
	}

	// last checkpoint before touching source state: a cancellation observed
	// here means nothing gets committed
	if p.store.cancelRequested(jobID) {
		p.store.markCancelled(jobID, "Cancelled by user")
		return
	}

	p.store.updateProgress(jobID, 100, "Saving results...")

	if err := p.committer.ReplaceForSource(p.ctx, unit.SourceID, result); err != nil {
		p.store.markFailed(jobID, fmt.Sprintf("failed to save analysis: %v", err))
		fylogger.ErrorLog(p.ctx, fmt.Sprintf("Worker %d: job %s commit failed", workerID, jobID), err, nil)
		return
	}

	p.store.markCompleted(jobID)
	fylogger.InfoLog(p.ctx, fmt.Sprintf("Worker %d: job %s completed", workerID, jobID), nil)
}
