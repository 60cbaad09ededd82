package scheduler

import (
	"path/filepath"
	"testing"
	"time"

	"oss.nandlabs.io/keephive/internal/config"
	"oss.nandlabs.io/keephive/internal/state"
	"oss.nandlabs.io/keephive/testing/assert"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	m, err := state.NewManager(filepath.Join(t.TempDir(), "state.json"))
	assert.NoError(t, err)
	return New(m)
}

func doc(jobs ...config.BackupJob) config.Document {
	return config.Document{Jobs: jobs, RetentionCount: 5}
}

func intervalJob(id string, seconds int64) config.BackupJob {
	return config.BackupJob{
		ID: id, Source: "/src/" + id, Target: "/dst/" + id,
		Schedule: config.Schedule{Kind: config.ScheduleInterval, Seconds: seconds},
	}
}

func TestInitializeJobsRejectsDuplicateIDs(t *testing.T) {
	s := newTestScheduler(t)
	d := doc(intervalJob("a", 60), intervalJob("a", 120))
	err := s.InitializeJobs(d)
	assert.Error(t, err)
}

func TestInitializeJobsOnlyInsertsNewJobs(t *testing.T) {
	s := newTestScheduler(t)
	d := doc(intervalJob("a", 60))
	assert.NoError(t, s.InitializeJobs(d))

	js := s.states.GetJob("a")
	assert.NotNil(t, js)

	s.states.UpdateJob("a", "/src/a", "/dst/a", func(js *state.JobState) {
		js.Status = state.JobStatus{Kind: state.JobFailed}
	})

	assert.NoError(t, s.InitializeJobs(d))
	assert.Equal(t, state.JobFailed, s.states.GetJob("a").Status.Kind)
}

func TestGetReadyJobsSkipsRunningAndNotYetDue(t *testing.T) {
	s := newTestScheduler(t)
	d := doc(intervalJob("a", 60), intervalJob("b", 60), intervalJob("c", 60))
	assert.NoError(t, s.InitializeJobs(d))

	now := time.Now()
	s.states.UpdateJob("a", "", "", func(js *state.JobState) {
		js.Status = state.JobStatus{Kind: state.JobRunning}
	})
	s.states.UpdateJob("b", "", "", func(js *state.JobState) {
		js.Status = state.JobStatus{Kind: state.JobIdle}
		js.NextRun = now.Add(time.Hour)
	})

	ready := s.GetReadyJobs(d, now)
	ids := map[string]bool{}
	for _, j := range ready {
		ids[j.ID] = true
	}
	assert.False(t, ids["a"])
	assert.False(t, ids["b"])
	assert.True(t, ids["c"])
}

func TestCalculateNextRunsSkipsRunningJobs(t *testing.T) {
	s := newTestScheduler(t)
	d := doc(intervalJob("a", 60))
	assert.NoError(t, s.InitializeJobs(d))

	now := time.Now()
	s.states.UpdateJob("a", "", "", func(js *state.JobState) {
		js.Status = state.JobStatus{Kind: state.JobRunning}
		js.NextRun = now.Add(-time.Hour)
	})

	s.CalculateNextRuns(d, now)

	assert.True(t, s.states.GetJob("a").NextRun.Before(now))
}
