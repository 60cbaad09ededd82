package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"oss.nandlabs.io/keephive/codec"
	"oss.nandlabs.io/keephive/fsutils"
	"oss.nandlabs.io/keephive/l3"
)

var logger = l3.Get()

// Manager owns the in-memory BackupState and persists it to disk atomically.
//
// Two locks guard different things: mu protects the in-memory document
// against concurrent reads/writes, while saveMu serializes the on-disk
// write protocol independently of mu. Save always acquires saveMu before
// touching mu, takes a snapshot under a read lock, releases it, and only
// then performs file I/O while still holding saveMu. This lets readers and
// writers of the in-memory document proceed while a save is in flight,
// while guaranteeing at most one save is writing to the file at a time.
type Manager struct {
	mu     sync.RWMutex
	saveMu sync.Mutex

	path  string
	codec codec.Codec
	doc   *BackupState
}

// NewManager loads state from path, or starts with an empty BackupState if
// the file doesn't exist yet.
func NewManager(path string) (*Manager, error) {
	contentType := fsutils.LookupContentType(path)
	c, err := codec.GetDefault(contentType)
	if err != nil {
		return nil, fmt.Errorf("state: unsupported file type %q for %s: %w", contentType, filepath.Base(path), err)
	}

	m := &Manager{path: path, codec: c, doc: NewBackupState()}

	if _, err := os.Stat(path); err == nil {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		var doc BackupState
		if err := c.Read(f, &doc); err != nil {
			return nil, fmt.Errorf("state: failed to decode %s: %w", path, err)
		}
		if doc.Jobs == nil {
			doc.Jobs = make(map[string]*JobState)
		}
		m.doc = &doc
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	return m, nil
}

// Read returns a deep-enough snapshot of the current state for read-only use.
// The returned JobState pointers must not be mutated by the caller.
func (m *Manager) Read() *BackupState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := &BackupState{Jobs: make(map[string]*JobState, len(m.doc.Jobs))}
	for id, js := range m.doc.Jobs {
		jsCopy := *js
		cp.Jobs[id] = &jsCopy
	}
	return cp
}

// GetJob returns a copy of the job state for id, or nil if unknown.
func (m *Manager) GetJob(id string) *JobState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	js, ok := m.doc.Jobs[id]
	if !ok {
		return nil
	}
	cp := *js
	return &cp
}

// UpdateJob atomically applies mutate to the job state for id, creating an
// idle entry first if the job has never been seen, then persists the result
// to disk under the same serialization lock used by Save. This is the only
// write path: the in-memory document is never mutated without a subsequent
// save through this protocol.
func (m *Manager) UpdateJob(id, source, target string, mutate func(*JobState)) error {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.Lock()
	js := m.doc.EnsureJob(id, source, target)
	mutate(js)
	m.mu.Unlock()

	return m.saveLocked()
}

// Save persists the current state to disk atomically: serialize a snapshot,
// write to a temp file, fsync, then rename over the real path.
func (m *Manager) Save() error {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()
	return m.saveLocked()
}

// saveLocked performs the atomic write itself. Callers must hold saveMu.
func (m *Manager) saveLocked() error {
	m.mu.RLock()
	snapshot := &BackupState{Jobs: make(map[string]*JobState, len(m.doc.Jobs))}
	for id, js := range m.doc.Jobs {
		jsCopy := *js
		snapshot.Jobs[id] = &jsCopy
	}
	m.mu.RUnlock()

	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		logger.ErrorF("state: failed to create temp file %s: %v", tmp, err)
		return err
	}

	if err := m.codec.Write(snapshot, f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		logger.ErrorF("state: failed to encode state to %s: %v", tmp, err)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		logger.ErrorF("state: failed to fsync %s: %v", tmp, err)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, m.path); err != nil {
		logger.ErrorF("state: failed to rename %s to %s: %v", tmp, m.path, err)
		return err
	}
	return nil
}

// ResetFailedJobs transitions every job currently in JobFailed back to
// JobIdle. Running jobs are deliberately left untouched: a Running status
// found at startup reflects a process that crashed mid-backup, and the
// backup directory itself (not the job's run state) is what flags that via
// the _PARTIAL suffix.
func (m *Manager) ResetFailedJobs() {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.Lock()
	for _, js := range m.doc.Jobs {
		if js.Status.Kind == JobFailed {
			js.Status = JobStatus{Kind: JobIdle}
		}
	}
	m.mu.Unlock()

	if err := m.saveLocked(); err != nil {
		logger.WarnF("state: failed to persist reset of failed jobs: %v", err)
	}
}
