// Package scheduler decides which configured backup jobs are due to run and
// detects what changed between two configuration documents.
package scheduler

import (
	"time"

	"oss.nandlabs.io/keephive/internal/config"
	"oss.nandlabs.io/keephive/internal/state"
	"oss.nandlabs.io/keephive/l3"
)

var logger = l3.Get()

// Scheduler tracks the configured jobs and their computed next-run times in
// the state manager.
type Scheduler struct {
	states *state.Manager
}

// New returns a Scheduler backed by states.
func New(states *state.Manager) *Scheduler {
	return &Scheduler{states: states}
}

// InitializeJobs validates the document (duplicate-ID detection happens
// first, atomically — either the whole document is rejected or none of it
// is) then inserts state entries for any job ID not already known. Existing
// job state is left untouched so in-flight/failed/idle status survives a
// config reload.
func (s *Scheduler) InitializeJobs(doc config.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	for _, job := range doc.Jobs {
		if existing := s.states.GetJob(job.ID); existing == nil {
			if err := s.states.UpdateJob(job.ID, job.Source, job.Target, func(js *state.JobState) {}); err != nil {
				return err
			}
			logger.InfoF("scheduler: registered new job %s", job.ID)
		}
	}

	return nil
}

// CalculateNextRuns recomputes NextRun for every job in doc whose status is
// not Running. Running jobs are left alone so an in-flight backup's
// scheduled next-run isn't clobbered mid-execution.
func (s *Scheduler) CalculateNextRuns(doc config.Document, now time.Time) {
	for _, job := range doc.Jobs {
		js := s.states.GetJob(job.ID)
		if js != nil && js.Status.Kind == state.JobRunning {
			continue
		}
		s.calculateNextRun(job, now)
	}
}

// calculateNextRun recomputes and stores NextRun for a single job.
func (s *Scheduler) calculateNextRun(job config.BackupJob, now time.Time) {
	err := s.states.UpdateJob(job.ID, job.Source, job.Target, func(js *state.JobState) {
		wait := job.Schedule.NextRunDuration(js.LastRun, now)
		js.NextRun = now.Add(wait)
	})
	if err != nil {
		logger.WarnF("scheduler: failed to persist next-run time for job %s: %v", job.ID, err)
	}
}

// GetReadyJobs returns the jobs in doc that are due: status Idle with
// NextRun at-or-before now (or unset), or jobs not yet present in state at
// all (which are always immediately due on first sight).
func (s *Scheduler) GetReadyJobs(doc config.Document, now time.Time) []config.BackupJob {
	var ready []config.BackupJob
	for _, job := range doc.Jobs {
		js := s.states.GetJob(job.ID)
		if js == nil {
			ready = append(ready, job)
			continue
		}
		if js.Status.Kind != state.JobIdle {
			continue
		}
		if js.NextRun.IsZero() || !js.NextRun.After(now) {
			ready = append(ready, job)
		}
	}
	return ready
}
