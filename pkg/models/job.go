package models

// JobKind distinguishes the two kinds of tracked backend work
type JobKind string

const (
	JobKindRender     JobKind = "render"
	JobKindConversion JobKind = "conversion"
)

// JobStatus is the backend-reported state of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions can happen
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Rank orders statuses along Pending -> Processing -> {Completed | Failed}.
// Unknown statuses rank below Pending.
func (s JobStatus) Rank() int {
	switch s {
	case JobStatusPending:
		return 1
	case JobStatusProcessing:
		return 2
	case JobStatusCompleted, JobStatusFailed:
		return 3
	default:
		return 0
	}
}

// Job is a session-local snapshot of one asynchronous unit of backend work
type Job struct {
	ID        string    `json:"task_id"`
	Kind      JobKind   `json:"-"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message,omitempty"`
	ResultRef string    `json:"download_url,omitempty"` // Only set once Completed
}

// ClampProgress keeps Progress inside 0..100
func (j *Job) ClampProgress() {
	if j.Progress < 0 {
		j.Progress = 0
	}
	if j.Progress > 100 {
		j.Progress = 100
	}
}
