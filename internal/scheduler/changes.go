package scheduler

import "oss.nandlabs.io/keephive/internal/config"

// ConfigChangeType classifies how a modified job changed between two
// configuration documents.
type ConfigChangeType string

const (
	// ScheduleOnly means the job's schedule changed but source/target did
	// not. Safe to apply in place; no running backup needs cancelling.
	ScheduleOnly ConfigChangeType = "scheduleOnly"
	// PathChanged means source and/or target changed but the schedule did
	// not. An in-flight backup for this job must be cancelled.
	PathChanged ConfigChangeType = "pathChanged"
	// PathAndSchedule means both changed.
	PathAndSchedule ConfigChangeType = "pathAndSchedule"
)

// ModifiedJob describes a job present in both the old and new document
// whose definition changed.
type ModifiedJob struct {
	Old  config.BackupJob
	New  config.BackupJob
	Type ConfigChangeType
}

// ConfigChanges is the result of diffing two configuration documents by job ID.
type ConfigChanges struct {
	Added    []config.BackupJob
	Removed  []config.BackupJob
	Modified []ModifiedJob
}

// HasChanges reports whether anything differs between the two documents.
func (c ConfigChanges) HasChanges() bool {
	return len(c.Added) > 0 || len(c.Removed) > 0 || len(c.Modified) > 0
}

// DetectConfigChanges diffs oldDoc against newDoc by job ID, classifying
// jobs present in both as ScheduleOnly, PathChanged, or PathAndSchedule.
func DetectConfigChanges(oldDoc, newDoc config.Document) ConfigChanges {
	oldByID := make(map[string]config.BackupJob, len(oldDoc.Jobs))
	for _, j := range oldDoc.Jobs {
		oldByID[j.ID] = j
	}
	newByID := make(map[string]config.BackupJob, len(newDoc.Jobs))
	for _, j := range newDoc.Jobs {
		newByID[j.ID] = j
	}

	var changes ConfigChanges

	for id, newJob := range newByID {
		oldJob, existed := oldByID[id]
		if !existed {
			changes.Added = append(changes.Added, newJob)
			continue
		}
		pathChanged := oldJob.Source != newJob.Source || oldJob.Target != newJob.Target
		scheduleChanged := oldJob.Schedule != newJob.Schedule

		if !pathChanged && !scheduleChanged {
			continue
		}

		var t ConfigChangeType
		switch {
		case pathChanged && scheduleChanged:
			t = PathAndSchedule
		case pathChanged:
			t = PathChanged
		default:
			t = ScheduleOnly
		}
		changes.Modified = append(changes.Modified, ModifiedJob{Old: oldJob, New: newJob, Type: t})
	}

	for id, oldJob := range oldByID {
		if _, stillPresent := newByID[id]; !stillPresent {
			changes.Removed = append(changes.Removed, oldJob)
		}
	}

	return changes
}
