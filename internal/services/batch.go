package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgescold/epsbot1/cmd/defines"
	apperrors "github.com/georgescold/epsbot1/pkg/errors"

	fylogger "github.com/FyersDev/trading-logger-go"
)

// BatchCoordinator fans a "reprocess everything" request out into one
// reanalysis job per eligible source. It is not itself a job: partial
// submission is expected and correct, and each source's outcome is
// independent.
type BatchCoordinator struct {
	sources SourceStore
	pool    *AnalysisWorkerPool
}

// NewBatchCoordinator creates a new batch coordinator
func NewBatchCoordinator(sources SourceStore, pool *AnalysisWorkerPool) *BatchCoordinator {
	return &BatchCoordinator{
		sources: sources,
		pool:    pool,
	}
}

// ReprocessAll submits a reanalysis job for every known source, silently
// skipping sources that already have an active job. It returns the jobs
// actually created, in enumeration order.
func (b *BatchCoordinator) ReprocessAll(ctx context.Context) ([]Job, error) {
	sources, err := b.sources.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate sources: %w", err)
	}

	jobs := make([]Job, 0, len(sources))
	for _, source := range sources {
		job, err := b.pool.Submit(WorkUnit{
			Kind:     defines.WorkUnitReanalyze,
			SourceID: source.ID,
			Filename: source.Filename,
			FilePath: source.FilePath,
		})
		if err != nil {
			if errors.Is(err, apperrors.ErrAlreadyInProgress) {
				continue
			}
			fylogger.ErrorLog(ctx, fmt.Sprintf("Refresh: failed to submit source %d", source.ID), err, nil)
			continue
		}

		if err := b.sources.SetUnanalyzed(ctx, source.ID); err != nil {
			fylogger.ErrorLog(ctx, fmt.Sprintf("Refresh: failed to reset source %d", source.ID), err, nil)
		}

		jobs = append(jobs, job)
	}

	fylogger.InfoLog(ctx, fmt.Sprintf("Refresh started for %d source(s)", len(jobs)), nil)
	return jobs, nil
}
