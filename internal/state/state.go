// Package state defines keephive's on-disk job state: the status of each
// backup job (idle, running, failed) and the metadata of its most recent
// completed backup.
package state

import "time"

// JobStatusKind is the tag of JobStatus.
type JobStatusKind string

const (
	JobIdle    JobStatusKind = "idle"
	JobRunning JobStatusKind = "running"
	JobFailed  JobStatusKind = "failed"
)

// JobStatus is a tagged union over a job's current run state.
type JobStatus struct {
	Kind      JobStatusKind `json:"type" yaml:"type"`
	StartedAt time.Time     `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`
	FailedAt  time.Time     `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

// BackupMetadata describes a single backup run, either still in progress
// (ActiveBackup on a Running job) or finished (LastBackup). IsComplete is
// true exactly when CompletedAt is set; a caller populating one must
// populate the other.
type BackupMetadata struct {
	BackupName   string    `json:"backup_name" yaml:"backup_name"`
	BackupPath   string    `json:"backup_path" yaml:"backup_path"`
	StartedAt    time.Time `json:"started_at" yaml:"started_at"`
	CompletedAt  time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	IsComplete   bool      `json:"is_complete" yaml:"is_complete"`
	BytesCopied  uint64    `json:"bytes_copied" yaml:"bytes_copied"`
	FilesCopied  uint64    `json:"files_copied" yaml:"files_copied"`
	FilesSkipped uint64    `json:"files_skipped" yaml:"files_skipped"`
	Errors       []string  `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// JobState is the persisted per-job runtime state. ActiveBackup is set
// whenever Status.Kind is JobRunning and nil otherwise: it is the in-flight
// record that the executor's progress callback updates as the copy runs.
type JobState struct {
	ID           string          `json:"id" yaml:"id"`
	Source       string          `json:"source" yaml:"source"`
	Target       string          `json:"target" yaml:"target"`
	Status       JobStatus       `json:"status" yaml:"status"`
	LastRun      time.Time       `json:"last_run,omitempty" yaml:"last_run,omitempty"`
	NextRun      time.Time       `json:"next_run,omitempty" yaml:"next_run,omitempty"`
	LastBackup   *BackupMetadata `json:"last_backup,omitempty" yaml:"last_backup,omitempty"`
	ActiveBackup *BackupMetadata `json:"active_backup,omitempty" yaml:"active_backup,omitempty"`
}

// BackupState is the full document persisted to the state file: one
// JobState per configured job, keyed by job ID.
type BackupState struct {
	Jobs map[string]*JobState `json:"jobs" yaml:"jobs"`
}

// NewBackupState returns an empty, ready-to-use BackupState.
func NewBackupState() *BackupState {
	return &BackupState{Jobs: make(map[string]*JobState)}
}

// EnsureJob returns the JobState for id, creating an idle entry with the
// given source/target if one doesn't exist yet.
func (bs *BackupState) EnsureJob(id, source, target string) *JobState {
	if bs.Jobs == nil {
		bs.Jobs = make(map[string]*JobState)
	}
	js, ok := bs.Jobs[id]
	if !ok {
		js = &JobState{
			ID:     id,
			Source: source,
			Target: target,
			Status: JobStatus{Kind: JobIdle},
		}
		bs.Jobs[id] = js
	}
	return js
}
