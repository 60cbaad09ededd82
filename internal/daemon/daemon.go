// Package daemon implements keephive's long-running service loop: it keeps
// the configured backup jobs scheduled, runs them when due, reacts to
// configuration file changes, and shuts down gracefully.
package daemon

import (
	"context"
	"sync"
	"time"

	"oss.nandlabs.io/keephive/internal/backup"
	"oss.nandlabs.io/keephive/internal/config"
	"oss.nandlabs.io/keephive/internal/configwatch"
	"oss.nandlabs.io/keephive/internal/copyengine"
	"oss.nandlabs.io/keephive/internal/executor"
	"oss.nandlabs.io/keephive/internal/logging"
	"oss.nandlabs.io/keephive/internal/scheduler"
	"oss.nandlabs.io/keephive/internal/state"
	"oss.nandlabs.io/keephive/l3"

	"github.com/google/uuid"
)

var logger = l3.Get()

// tickInterval is how often processJobs runs: reap finished jobs and spawn
// newly-ready ones.
const tickInterval = 5 * time.Second

// shutdownGracePeriod is how long shutdown waits for in-flight jobs to
// finish on their own before force-cancelling them.
const shutdownGracePeriod = 5 * time.Minute

// shutdownPollInterval is how often shutdown polls for in-flight jobs to
// finish during the grace period.
const shutdownPollInterval = 1 * time.Second

// runningJob tracks one in-flight backup goroutine.
type runningJob struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Daemon owns the full running service: the current configuration, job
// scheduling state, and the set of in-flight backup goroutines.
type Daemon struct {
	configPath string
	instanceID string

	mu        sync.Mutex
	cfg       config.Document
	running   map[string]*runningJob

	states    *state.Manager
	scheduler *scheduler.Scheduler
	executor  *executor.Executor
	watcher   *configwatch.Watcher

	rotateStop chan struct{}

	// gracePeriod and pollInterval mirror shutdownGracePeriod and
	// shutdownPollInterval respectively; New sets them to those defaults.
	// Tests shrink them to keep shutdown tests fast.
	gracePeriod  time.Duration
	pollInterval time.Duration
}

// New constructs a Daemon from the configuration file at configPath. It
// loads the document, opens the state file it references, and wires up the
// scheduler, executor, and config-file watcher.
func New(configPath string) (*Daemon, error) {
	doc, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logging.Configure(doc)

	states, err := state.NewManager(doc.StatePath)
	if err != nil {
		return nil, err
	}

	watcher, err := configwatch.New(configPath)
	if err != nil {
		return nil, err
	}

	sched := scheduler.New(states)
	orchestrator := backup.NewOrchestrator(copyengine.DefaultCopier{})
	exec := executor.New(states, orchestrator, doc.RetentionCount)

	return &Daemon{
		configPath: configPath,
		instanceID: uuid.New().String(),
		cfg:        doc,
		running:    make(map[string]*runningJob),
		states:     states,
		scheduler:  sched,
		executor:   exec,
		watcher:      watcher,
		rotateStop:   make(chan struct{}),
		gracePeriod:  shutdownGracePeriod,
		pollInterval: shutdownPollInterval,
	}, nil
}

// Run is the main service loop. It blocks until ctx is cancelled, then
// shuts down gracefully before returning.
func (d *Daemon) Run(ctx context.Context) error {
	d.mu.Lock()
	cfg := d.cfg
	d.mu.Unlock()

	logger.InfoF("daemon: starting instance %s with %d configured job(s)", d.instanceID, len(cfg.Jobs))

	if err := d.scheduler.InitializeJobs(cfg); err != nil {
		return err
	}
	d.states.ResetFailedJobs()

	for _, job := range cfg.Jobs {
		if partials, err := backup.DetectPartialBackups(job.Target); err != nil {
			logger.WarnF("daemon: failed to scan %s for partial backups: %v", job.Target, err)
		} else {
			for _, p := range partials {
				logger.WarnF("daemon: detected partial backup %s left over from a previous run", p)
			}
		}
	}

	d.scheduler.CalculateNextRuns(cfg, time.Now())

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go func() {
		if err := d.watcher.Watch(watchCtx); err != nil && err != context.Canceled {
			logger.ErrorF("daemon: config watcher stopped: %v", err)
		}
	}()

	go logging.RunRotationTicker(cfg.LogRotation, d.rotateStop)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.shutdownGracefully()
			return nil

		case <-d.watcher.Events():
			d.handleConfigChange()

		case <-ticker.C:
			d.processJobs(ctx)
		}
	}
}

// processJobs reaps finished goroutines, recalculates next_run for the jobs
// that just completed, then spawns goroutines for any job that is now due.
func (d *Daemon) processJobs(ctx context.Context) {
	d.mu.Lock()
	cfg := d.cfg

	var justFinished []config.BackupJob
	for id, rj := range d.running {
		select {
		case <-rj.done:
			delete(d.running, id)
			for _, j := range cfg.Jobs {
				if j.ID == id {
					justFinished = append(justFinished, j)
					break
				}
			}
		default:
		}
	}
	d.mu.Unlock()

	if len(justFinished) > 0 {
		now := time.Now()
		for _, job := range justFinished {
			d.scheduler.CalculateNextRuns(config.Document{Jobs: []config.BackupJob{job}}, now)
		}
	}

	ready := d.scheduler.GetReadyJobs(cfg, time.Now())

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, job := range ready {
		if _, already := d.running[job.ID]; already {
			continue
		}
		d.spawnJobLocked(ctx, job)
	}
}

// spawnJobLocked starts job's backup in its own goroutine. Callers must
// hold d.mu.
func (d *Daemon) spawnJobLocked(parent context.Context, job config.BackupJob) {
	jobCtx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	d.running[job.ID] = &runningJob{cancel: cancel, done: done}

	go func() {
		defer close(done)
		if err := d.executor.ExecuteJob(jobCtx, job); err != nil {
			logger.WarnF("daemon: job %s failed: %v", job.ID, err)
		}
	}()
}

// Close releases resources (the config watcher) held by the daemon. Call
// after Run returns.
func (d *Daemon) Close() error {
	close(d.rotateStop)
	return d.watcher.Close()
}
