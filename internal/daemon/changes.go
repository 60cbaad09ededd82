package daemon

import (
	"time"

	"oss.nandlabs.io/keephive/internal/config"
	"oss.nandlabs.io/keephive/internal/logging"
	"oss.nandlabs.io/keephive/internal/scheduler"
	"oss.nandlabs.io/keephive/internal/state"
)

// handleConfigChange reloads the configuration file and reacts to whatever
// changed: service-wide settings (retention, logging, state path) and
// per-job additions/removals/modifications.
func (d *Daemon) handleConfigChange() {
	newCfg, err := config.Load(d.configPath)
	if err != nil {
		logger.ErrorF("daemon: failed to reload configuration, keeping previous config: %v", err)
		return
	}

	d.mu.Lock()
	oldCfg := d.cfg
	d.mu.Unlock()

	if newCfg.StatePath != oldCfg.StatePath {
		logger.WarnF("daemon: statePath changed from %q to %q; this requires a restart to take effect", oldCfg.StatePath, newCfg.StatePath)
	}

	logSettingsChanged := newCfg.LogLevel != oldCfg.LogLevel ||
		newCfg.LogDirectory != oldCfg.LogDirectory ||
		newCfg.LogRotation != oldCfg.LogRotation
	if logSettingsChanged {
		logging.Configure(newCfg)
		close(d.rotateStop)
		d.rotateStop = make(chan struct{})
		go logging.RunRotationTicker(newCfg.LogRotation, d.rotateStop)
		logger.InfoF("daemon: logging configuration reloaded (level=%s directory=%s rotation=%s)", newCfg.LogLevel, newCfg.LogDirectory, newCfg.LogRotation)
	}

	if newCfg.RetentionCount != oldCfg.RetentionCount {
		d.executor.SetRetentionCount(newCfg.RetentionCount)
		logger.InfoF("daemon: retention count changed from %d to %d", oldCfg.RetentionCount, newCfg.RetentionCount)
	}

	changes := scheduler.DetectConfigChanges(oldCfg, newCfg)

	d.mu.Lock()
	for _, job := range changes.Removed {
		if rj, ok := d.running[job.ID]; ok {
			rj.cancel()
			delete(d.running, job.ID)
			logger.InfoF("daemon: cancelled running job %s, removed from configuration", job.ID)
		}
	}

	for _, mod := range changes.Modified {
		switch mod.Type {
		case scheduler.ScheduleOnly:
			logger.InfoF("daemon: job %s schedule changed, will take effect on next run", mod.New.ID)

		case scheduler.PathChanged, scheduler.PathAndSchedule:
			if rj, ok := d.running[mod.New.ID]; ok {
				rj.cancel()
				delete(d.running, mod.New.ID)
				reason := "Backup cancelled due to source/target path change"
				if mod.Type == scheduler.PathAndSchedule {
					reason = "Backup cancelled due to configuration change"
				}
				if err := d.states.UpdateJob(mod.New.ID, mod.New.Source, mod.New.Target, func(js *state.JobState) {
					js.Status = state.JobStatus{Kind: state.JobFailed, Error: reason, FailedAt: time.Now()}
					js.Source = mod.New.Source
					js.Target = mod.New.Target
					js.ActiveBackup = nil
				}); err != nil {
					logger.WarnF("daemon: failed to persist cancelled state for job %s: %v", mod.New.ID, err)
				}
				logger.WarnF("daemon: %s for job %s", reason, mod.New.ID)
			} else {
				if err := d.states.UpdateJob(mod.New.ID, mod.New.Source, mod.New.Target, func(js *state.JobState) {
					js.Source = mod.New.Source
					js.Target = mod.New.Target
				}); err != nil {
					logger.WarnF("daemon: failed to persist updated path for job %s: %v", mod.New.ID, err)
				}
			}
		}
	}
	d.mu.Unlock()

	d.mu.Lock()
	d.cfg = newCfg
	d.mu.Unlock()

	if err := d.scheduler.InitializeJobs(newCfg); err != nil {
		logger.ErrorF("daemon: failed to initialize jobs after config reload: %v", err)
		return
	}
	d.scheduler.CalculateNextRuns(newCfg, time.Now())
}

// shutdownGracefully polls in-flight jobs for up to shutdownGracePeriod,
// reaping each as it finishes. Anything still running after the grace
// period is force-cancelled. State is saved unconditionally before
// returning.
func (d *Daemon) shutdownGracefully() {
	deadline := time.Now().Add(d.gracePeriod)
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		d.mu.Lock()
		for id, rj := range d.running {
			select {
			case <-rj.done:
				delete(d.running, id)
				logger.InfoF("daemon: job %s finished during shutdown", id)
			default:
			}
		}
		remaining := len(d.running)
		d.mu.Unlock()

		if remaining == 0 {
			break
		}
		<-ticker.C
	}

	d.mu.Lock()
	for id, rj := range d.running {
		rj.cancel()
		logger.WarnF("daemon: force-cancelling job %s, did not finish within the shutdown grace period", id)
	}
	d.running = make(map[string]*runningJob)
	d.mu.Unlock()

	if err := d.states.Save(); err != nil {
		logger.ErrorF("daemon: failed to save state during shutdown: %v", err)
	}

	logger.Info("daemon: flushing logs before shutdown")
}
