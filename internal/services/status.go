package services

// JobService is the read-only status surface consumed by polling clients,
// plus the explicit cancel operation. It never mutates job state directly:
// cancellation only flips a flag the worker observes. A caller seeing
// NotFound for a previously known job id must treat it as terminal and
// evicted.
type JobService struct {
	store *JobStore
}

// NewJobService creates a new job status service
func NewJobService(store *JobStore) *JobService {
	return &JobService{store: store}
}

// GetJob returns the current snapshot of one job
func (s *JobService) GetJob(jobID string) (Job, error) {
	return s.store.Get(jobID)
}

// ListActive returns all currently queryable jobs keyed by id
func (s *JobService) ListActive() map[string]Job {
	return s.store.ListActive()
}

// Cancel requests cooperative cancellation of a job. It returns the job's
// snapshot and whether it had already finished; the actual stop is
// asynchronous.
func (s *JobService) Cancel(jobID string) (Job, bool, error) {
	job, err := s.store.RequestCancel(jobID)
	if err != nil {
		return Job{}, false, err
	}
	return job, job.Status.IsTerminal(), nil
}
