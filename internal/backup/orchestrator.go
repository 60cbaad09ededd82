package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"oss.nandlabs.io/keephive/internal/copyengine"
	"oss.nandlabs.io/keephive/internal/validate"
	"oss.nandlabs.io/keephive/l3"
)

var logger = l3.Get()

const stateFilePrefix = ".keephive"

// Result summarizes a completed (or partially completed) backup run.
type Result struct {
	Path         string
	BytesCopied  uint64
	FilesCopied  uint64
	FilesSkipped uint64
	Errors       []string
}

// Orchestrator executes individual backup jobs against the filesystem.
type Orchestrator struct {
	copier copyengine.Copier
}

// NewOrchestrator returns an Orchestrator that copies files with copier.
func NewOrchestrator(copier copyengine.Copier) *Orchestrator {
	return &Orchestrator{copier: copier}
}

// ExecuteBackup validates the source/target pair, then copies source into
// name, a directory under target. The caller generates name (normally via
// GenerateBackupName) up front so it can record the same name in a
// persisted in-flight record before the copy starts. If ctx is cancelled or
// the copy fails outright, the partially-written directory is renamed with
// a _PARTIAL suffix and left for a later cleanup or manual inspection;
// ExecuteBackup itself never deletes it.
func (o *Orchestrator) ExecuteBackup(ctx context.Context, source, target, name string, progress func(copyengine.Progress)) (Result, error) {
	validation, err := validate.Validate(source, target)
	if err != nil {
		return Result{}, fmt.Errorf("backup: validation failed: %w", err)
	}
	for _, warning := range validation.Warnings {
		logger.WarnF("backup: %s", warning)
	}

	dest := filepath.Join(target, name)

	// Clear anything a crashed earlier run left at this exact name, then
	// create the directory fresh.
	if err := os.RemoveAll(dest); err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return Result{}, err
	}

	p, err := copyengine.CopyDirectory(ctx, o.copier, source, dest, progress)
	if err != nil {
		partial := MarkPartial(dest)
		if renameErr := os.Rename(dest, partial); renameErr != nil {
			logger.ErrorF("backup: failed to mark %s partial after error: %v", dest, renameErr)
		} else {
			logger.WarnF("backup: marked %s partial due to error: %v", partial, err)
		}
		return Result{}, err
	}

	return Result{
		Path:         dest,
		BytesCopied:  p.BytesCopied,
		FilesCopied:  p.FilesCopied,
		FilesSkipped: p.FilesSkipped,
		Errors:       p.Errors,
	}, nil
}

// DetectPartialBackups lists directories under target flagged as partial.
// Detection only: it never attempts to repair or delete them.
func DetectPartialBackups(target string) ([]string, error) {
	entries, err := os.ReadDir(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var partials []string
	for _, e := range entries {
		if e.IsDir() && IsPartial(e.Name()) {
			partials = append(partials, filepath.Join(target, e.Name()))
		}
	}
	return partials, nil
}

// CleanupOldBackups removes backup directories under target beyond the
// newest retentionCount, by modification time. Partial backups and
// keephive's own state/lock files are never considered for removal.
func CleanupOldBackups(target string, retentionCount int) error {
	entries, err := os.ReadDir(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	type candidate struct {
		path    string
		modTime int64
	}
	var candidates []candidate
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if IsPartial(name) || strings.HasPrefix(name, stateFilePrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{
			path:    filepath.Join(target, name),
			modTime: info.ModTime().UnixNano(),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime > candidates[j].modTime
	})

	if retentionCount < 0 {
		retentionCount = 0
	}
	if len(candidates) <= retentionCount {
		return nil
	}

	for _, c := range candidates[retentionCount:] {
		if err := os.RemoveAll(c.path); err != nil {
			logger.WarnF("backup: failed to remove old backup %s: %v", c.path, err)
		} else {
			logger.InfoF("backup: removed old backup %s", c.path)
		}
	}
	return nil
}
