// Package configwatch watches keephive's configuration file for changes and
// emits an event when it is modified, created, or recreated.
package configwatch

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"oss.nandlabs.io/keephive/l3"
)

var logger = l3.Get()

// Channel capacities mirror the original implementation: config-change
// events are rare and consumed quickly by the daemon loop, so a small
// buffer is enough; raw filesystem events can arrive in short bursts from
// editors and container volume mounts, so that channel is sized generously.
const (
	configChangeChannelCapacity = 10
	fsEventChannelCapacity      = 1000
)

// Watcher watches a single configuration file for changes. It watches the
// file's parent directory rather than the file itself, since many editors
// and orchestration tools (vim, Kubernetes ConfigMap symlink swaps) replace
// a file by renaming a new one over it, an operation that is invisible to a
// direct file watch but visible at the directory level.
type Watcher struct {
	path     string
	fileName string
	dir      string

	events  chan struct{}
	watcher *fsnotify.Watcher
}

// New creates a Watcher for the configuration file at path. The watch
// itself does not start until Watch is called.
func New(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(abs)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}

	return &Watcher{
		path:     abs,
		fileName: filepath.Base(abs),
		dir:      dir,
		events:   make(chan struct{}, configChangeChannelCapacity),
		watcher:  w,
	}, nil
}

// Events returns the channel config-change notifications are delivered on.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Watch runs the directory-level watch loop until ctx is cancelled or the
// underlying fsnotify watcher closes its channels. Errors reported by
// fsnotify are logged and the loop keeps running. It is intended to run in
// its own goroutine.
func (w *Watcher) Watch(ctx context.Context) error {
	defer func() { _ = w.watcher.Close() }()

	raw := make(chan fsnotify.Event, fsEventChannelCapacity)
	go func() {
		defer close(raw)
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				select {
				case raw <- event:
				default:
					logger.WarnF("configwatch: fs event channel full, dropping event %s", event)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-raw:
			if !ok {
				return nil
			}
			if !w.isConfigModified(event) {
				continue
			}
			logger.InfoF("configwatch: configuration file changed (%s)", event.Op)
			select {
			case w.events <- struct{}{}:
			default:
				logger.WarnF("configwatch: config-change channel full, dropping notification")
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logger.ErrorF("configwatch: watcher error: %v", err)
		}
	}
}

// isConfigModified reports whether event refers to the watched config file
// and is a kind of change worth reacting to.
func (w *Watcher) isConfigModified(event fsnotify.Event) bool {
	if filepath.Base(event.Name) != w.fileName {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove)
}

// Close stops the watch immediately.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
