// Package watcher monitors the confinement root and reports changes through
// callbacks.
package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/CageChen/filehub/internal/logging"
)

// EventType represents the type of file system event
type EventType int

// File system event types.
const (
	EventCreate EventType = iota
	EventWrite
	EventRemove
	EventRename
)

func (t EventType) String() string {
	switch t {
	case EventCreate:
		return "create"
	case EventWrite:
		return "update"
	case EventRemove:
		return "remove"
	case EventRename:
		return "rename"
	}
	return "unknown"
}

// Event represents a file system change. Path is slash separated and starts
// with the root segment, like listing paths.
type Event struct {
	Type EventType
	Path string
}

// Callback is a function called when file changes occur
type Callback func(Event)

// Watcher monitors every directory below the confinement root.
type Watcher struct {
	watcher   *fsnotify.Watcher
	rootAbs   string
	root      string
	ignore    map[string]bool
	callbacks []Callback
	mu        sync.RWMutex
	done      chan struct{}
}

// New creates a watcher for the directory rootAbs whose listing segment is
// root. Base names in ignore never produce events.
func New(rootAbs, root string, ignore ...string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	skip := make(map[string]bool, len(ignore))
	for _, name := range ignore {
		skip[name] = true
	}
	return &Watcher{
		watcher: w,
		rootAbs: rootAbs,
		root:    root,
		ignore:  skip,
		done:    make(chan struct{}),
	}, nil
}

// OnChange registers a callback for file change events
func (w *Watcher) OnChange(cb Callback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Start adds every directory below the root and begins delivering events.
func (w *Watcher) Start() error {
	err := filepath.WalkDir(w.rootAbs, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				logging.L().Warn("cannot watch directory", zap.String("path", path), zap.Error(err))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	go w.eventLoop()
	return nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.L().Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if w.ignore[filepath.Base(event.Name)] {
		return
	}
	rel, ok := w.relPath(event.Name)
	if !ok {
		return
	}

	var eventType EventType
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		eventType = EventCreate
		// New directories need their own watch.
		if isDir(event.Name) {
			_ = w.watcher.Add(event.Name)
		}
	case event.Op&fsnotify.Write == fsnotify.Write:
		eventType = EventWrite
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		eventType = EventRemove
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		eventType = EventRename
	default:
		return
	}

	w.emit(Event{Type: eventType, Path: rel})
}

func (w *Watcher) emit(e Event) {
	w.mu.RLock()
	callbacks := make([]Callback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	for _, cb := range callbacks {
		cb(e)
	}
}

// relPath maps an OS path below the root to its listing path.
func (w *Watcher) relPath(name string) (string, bool) {
	r, err := filepath.Rel(w.rootAbs, name)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	if r == "." {
		return w.root, true
	}
	return w.root + "/" + filepath.ToSlash(r), true
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
