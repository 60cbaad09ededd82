package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"oss.nandlabs.io/keephive/internal/state"
	"oss.nandlabs.io/keephive/testing/assert"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	assert.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

type testConfig struct {
	statePath      string
	logDir         string
	source         string
	target         string
	retentionCount int
}

func (c testConfig) render() string {
	return fmt.Sprintf(
		"jobs:\n"+
			"  - id: job1\n"+
			"    source: %s\n"+
			"    target: %s\n"+
			"    schedule:\n"+
			"      type: interval\n"+
			"      seconds: 60\n"+
			"retention_count: %d\n"+
			"log_level: info\n"+
			"log_directory: %s\n"+
			"state_path: %s\n",
		c.source, c.target, c.retentionCount, c.logDir, c.statePath,
	)
}

func newTestDaemon(t *testing.T) (d *Daemon, configPath, source, target string) {
	t.Helper()
	dir := t.TempDir()
	source = filepath.Join(dir, "src")
	target = filepath.Join(dir, "dst")
	assert.NoError(t, os.MkdirAll(source, 0o755))
	cfg := testConfig{
		statePath:      filepath.Join(dir, "state.json"),
		logDir:         filepath.Join(dir, "logs"),
		source:         source,
		target:         target,
		retentionCount: 3,
	}
	configPath = filepath.Join(dir, "config.yaml")
	writeConfig(t, configPath, cfg.render())

	d, err := New(configPath)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d, configPath, source, target
}

func TestNewLoadsConfigAndWiresComponents(t *testing.T) {
	d, _, _, _ := newTestDaemon(t)
	assert.Equal(t, 1, len(d.cfg.Jobs))
	assert.NotNil(t, d.states)
	assert.NotNil(t, d.scheduler)
	assert.NotNil(t, d.executor)
	assert.NotEqual(t, "", d.instanceID)
}

func TestNewSetsDefaultShutdownTimings(t *testing.T) {
	d, _, _, _ := newTestDaemon(t)
	assert.Equal(t, shutdownGracePeriod, d.gracePeriod)
	assert.Equal(t, shutdownPollInterval, d.pollInterval)
}

func TestHandleConfigChangeDetectsRetentionChange(t *testing.T) {
	d, configPath, source, target := newTestDaemon(t)

	cfg := testConfig{
		statePath:      d.cfg.StatePath,
		logDir:         d.cfg.LogDirectory,
		source:         source,
		target:         target,
		retentionCount: 7,
	}
	writeConfig(t, configPath, cfg.render())

	d.handleConfigChange()

	assert.Equal(t, 7, d.cfg.RetentionCount)
	assert.Equal(t, int64(7), d.executor.RetentionCount())
}

func TestHandleConfigChangeDetectsPathChangeOnRunningJob(t *testing.T) {
	d, configPath, source, target := newTestDaemon(t)

	newTarget := target + "_moved"
	assert.NoError(t, os.MkdirAll(newTarget, 0o755))

	d.mu.Lock()
	done := make(chan struct{})
	d.running["job1"] = &runningJob{cancel: func() {}, done: done}
	d.mu.Unlock()

	cfg := testConfig{
		statePath:      d.cfg.StatePath,
		logDir:         d.cfg.LogDirectory,
		source:         source,
		target:         newTarget,
		retentionCount: 3,
	}
	writeConfig(t, configPath, cfg.render())

	d.handleConfigChange()

	d.mu.Lock()
	_, stillRunning := d.running["job1"]
	d.mu.Unlock()
	assert.False(t, stillRunning)

	js := d.states.GetJob("job1")
	assert.NotNil(t, js)
	assert.Equal(t, state.JobFailed, js.Status.Kind)
	assert.Equal(t, newTarget, js.Target)
}

func TestHandleConfigChangeKeepsOldConfigOnReloadFailure(t *testing.T) {
	d, configPath, _, _ := newTestDaemon(t)
	writeConfig(t, configPath, "not: [valid yaml")

	before := d.cfg
	d.handleConfigChange()
	assert.Equal(t, before.RetentionCount, d.cfg.RetentionCount)
	assert.Equal(t, len(before.Jobs), len(d.cfg.Jobs))
}

func TestShutdownGracefullyForceCancelsStragglers(t *testing.T) {
	d, _, _, _ := newTestDaemon(t)
	d.gracePeriod = 30 * time.Millisecond
	d.pollInterval = 5 * time.Millisecond

	cancelled := make(chan struct{})
	done := make(chan struct{})
	d.mu.Lock()
	d.running["stuck"] = &runningJob{
		cancel: func() { close(cancelled) },
		done:   done,
	}
	d.mu.Unlock()

	shutdownDone := make(chan struct{})
	go func() {
		d.shutdownGracefully()
		close(shutdownDone)
	}()

	select {
	case <-cancelled:
	case <-done:
		t.Fatal("job should not have finished on its own")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for straggler to be force-cancelled")
	}

	<-shutdownDone
}

func TestProcessJobsSpawnsReadyJobAndReapsOnCompletion(t *testing.T) {
	d, _, _, target := newTestDaemon(t)

	d.processJobs(context.Background())

	d.mu.Lock()
	_, spawned := d.running["job1"]
	d.mu.Unlock()
	assert.True(t, spawned)

	deadline := time.Now().Add(5 * time.Second)
	for {
		// processJobs is what reaps a finished job from d.running.
		d.processJobs(context.Background())
		d.mu.Lock()
		_, stillRunning := d.running["job1"]
		d.mu.Unlock()
		if !stillRunning {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for job1 to finish")
		}
		time.Sleep(10 * time.Millisecond)
	}

	js := d.states.GetJob("job1")
	assert.NotNil(t, js)
	assert.Equal(t, state.JobIdle, js.Status.Kind)

	entries, err := os.ReadDir(target)
	assert.NoError(t, err)
	assert.True(t, len(entries) >= 1)
}

func TestShutdownGracefullyReapsFinishedJobsEarly(t *testing.T) {
	d, _, _, _ := newTestDaemon(t)
	d.gracePeriod = 2 * time.Second
	d.pollInterval = 5 * time.Millisecond

	done := make(chan struct{})
	close(done)
	d.mu.Lock()
	d.running["quick"] = &runningJob{cancel: func() {}, done: done}
	d.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		d.shutdownGracefully()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("shutdown should have returned quickly once the only job finished")
	}
}
