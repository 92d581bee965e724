package services

import (
	"time"

	"github.com/georgescold/epsbot1/internal/analyzer"
	"github.com/georgescold/epsbot1/internal/repositories"
	"github.com/georgescold/epsbot1/pkg/memorydb"
	"github.com/georgescold/epsbot1/pkg/postgres"
)

// Services holds all service instances
type Services struct {
	Health   *HealthService
	Document *DocumentService
	Jobs     *JobService
	Batch    *BatchCoordinator

	store *JobStore
	pool  *AnalysisWorkerPool
}

// ServicesConfig holds the dependencies and tuning for the service layer
type ServicesConfig struct {
	WorkerCount int
	JobGrace    time.Duration
	StoragePath string
}

// NewServices wires the job engine and its collaborators, and starts the
// analysis workers
func NewServices(db *postgres.DB, redis *memorydb.RedisClient, repos *repositories.Repositories, an analyzer.Analyzer, cfg ServicesConfig) *Services {
	store := NewJobStoreWithGrace(cfg.JobGrace, sweepInterval)
	pool := NewAnalysisWorkerPool(store, an, repos.Extraction, &WorkerPoolConfig{
		WorkerCount: cfg.WorkerCount,
	})
	pool.Start()

	return &Services{
		Health:   NewHealthService(db, redis),
		Document: NewDocumentService(repos.Source, repos.Extraction, pool, store, redis, cfg.StoragePath),
		Jobs:     NewJobService(store),
		Batch:    NewBatchCoordinator(repos.Source, pool),
		store:    store,
		pool:     pool,
	}
}

// Close gracefully shuts down the worker pool and the job store janitor
func (s *Services) Close() {
	if s.pool != nil {
		s.pool.Stop()
	}
	if s.store != nil {
		s.store.Stop()
	}
}
