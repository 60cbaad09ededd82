// Package executor runs a single backup job end to end: marking its state
// Running, invoking the backup orchestrator, recording the outcome, and
// enforcing retention on success.
package executor

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"oss.nandlabs.io/keephive/internal/backup"
	"oss.nandlabs.io/keephive/internal/config"
	"oss.nandlabs.io/keephive/internal/copyengine"
	"oss.nandlabs.io/keephive/internal/state"
	"oss.nandlabs.io/keephive/l3"
)

var logger = l3.Get()

// Executor runs backup jobs against a shared state.Manager and orchestrator.
// retention is an atomic so it can be updated by a concurrently
// running config-reload handler without a lock.
type Executor struct {
	states       *state.Manager
	orchestrator *backup.Orchestrator
	retention    atomic.Int64
}

// New returns an Executor with the given initial retention count.
func New(states *state.Manager, orchestrator *backup.Orchestrator, retentionCount int) *Executor {
	e := &Executor{states: states, orchestrator: orchestrator}
	e.retention.Store(int64(retentionCount))
	return e
}

// SetRetentionCount updates the retention count applied on future job
// completions. Safe to call concurrently with ExecuteJob.
func (e *Executor) SetRetentionCount(n int) {
	e.retention.Store(int64(n))
}

// RetentionCount returns the retention count currently in effect.
func (e *Executor) RetentionCount() int64 {
	return e.retention.Load()
}

// ExecuteJob runs one backup: marks the job Running with a freshly-named
// in-flight backup record, refreshes its source/target in state, invokes
// the orchestrator with a progress callback that keeps that record updated
// as the copy proceeds, then records the final outcome. On success it also
// prunes old backups beyond the retention count, but a cleanup failure only
// logs a warning; it does not fail the job. On error or cancellation, the
// job's status is set to Failed with the error recorded and the caller
// receives the same error back.
func (e *Executor) ExecuteJob(ctx context.Context, job config.BackupJob) error {
	startedAt := time.Now()
	backupName := backup.GenerateBackupName(job.Source)
	active := &state.BackupMetadata{
		BackupName: backupName,
		BackupPath: filepath.Join(job.Target, backupName),
		StartedAt:  startedAt,
	}

	if err := e.states.UpdateJob(job.ID, job.Source, job.Target, func(js *state.JobState) {
		js.Source = job.Source
		js.Target = job.Target
		js.Status = state.JobStatus{Kind: state.JobRunning, StartedAt: startedAt}
		js.ActiveBackup = active
	}); err != nil {
		logger.WarnF("executor: failed to persist running state for job %s: %v", job.ID, err)
	}

	onProgress := func(p copyengine.Progress) {
		if err := e.states.UpdateJob(job.ID, job.Source, job.Target, func(js *state.JobState) {
			if js.ActiveBackup == nil {
				return
			}
			js.ActiveBackup.BytesCopied = p.BytesCopied
			js.ActiveBackup.FilesCopied = p.FilesCopied
			js.ActiveBackup.FilesSkipped = p.FilesSkipped
			js.ActiveBackup.Errors = p.Errors
		}); err != nil {
			logger.WarnF("executor: failed to persist progress for job %s: %v", job.ID, err)
		}
	}

	result, err := e.orchestrator.ExecuteBackup(ctx, job.Source, job.Target, backupName, onProgress)
	if err != nil {
		if updateErr := e.states.UpdateJob(job.ID, job.Source, job.Target, func(js *state.JobState) {
			js.Status = state.JobStatus{Kind: state.JobFailed, Error: err.Error(), FailedAt: time.Now()}
			js.ActiveBackup = nil
		}); updateErr != nil {
			logger.WarnF("executor: failed to persist failed state for job %s: %v", job.ID, updateErr)
		}
		return err
	}

	completedAt := time.Now()
	if updateErr := e.states.UpdateJob(job.ID, job.Source, job.Target, func(js *state.JobState) {
		js.Status = state.JobStatus{Kind: state.JobIdle}
		js.LastRun = completedAt
		js.ActiveBackup = nil
		js.LastBackup = &state.BackupMetadata{
			BackupName:   backupName,
			BackupPath:   result.Path,
			StartedAt:    startedAt,
			CompletedAt:  completedAt,
			IsComplete:   true,
			BytesCopied:  result.BytesCopied,
			FilesCopied:  result.FilesCopied,
			FilesSkipped: result.FilesSkipped,
			Errors:       result.Errors,
		}
	}); updateErr != nil {
		logger.WarnF("executor: failed to persist completed state for job %s: %v", job.ID, updateErr)
	}

	retention := int(e.retention.Load())
	if cleanupErr := backup.CleanupOldBackups(job.Target, retention); cleanupErr != nil {
		logger.WarnF("executor: retention cleanup failed for job %s: %v", job.ID, cleanupErr)
	}

	return nil
}
