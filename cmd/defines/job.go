package defines

// JobStatus represents the current state of an analysis job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether no further transitions can occur from this status
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// WorkUnitKind identifies what kind of processing a work unit requests
type WorkUnitKind string

const (
	WorkUnitIngest    WorkUnitKind = "ingest"
	WorkUnitReanalyze WorkUnitKind = "reanalyze"
)
