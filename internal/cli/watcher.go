package cli

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// EventType represents the type of file change event.
type EventType int

const (
	EventCreated EventType = iota
	EventModified
	EventDeleted
	EventRenamed
)

// FileEvent represents a file change event.
type FileEvent struct {
	Type EventType
	Path string
	Name string
}

func (e EventType) String() string {
	switch e {
	case EventCreated:
		return "created"
	case EventModified:
		return "modified"
	case EventDeleted:
		return "deleted"
	case EventRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Watcher watches directory trees and reports debounced file events.
type Watcher struct {
	watcher   *fsnotify.Watcher
	debounce  time.Duration
	mu        sync.RWMutex
	roots     map[string]WatchHandler
	skip      func(path string) bool
	wg        sync.WaitGroup
	events    chan FileEvent
	done      chan struct{}
	stopOnce  sync.Once
	pendingMu sync.Mutex
	pending   map[string]*time.Timer
}

// WatchHandler is called when a file change is detected.
type WatchHandler func(event FileEvent)

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the debounce duration for file events.
// Multiple events for the same file within this duration are coalesced into
// the last one.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithSkip excludes directories for which skip returns true from recursive
// watches.
func WithSkip(skip func(path string) bool) WatcherOption {
	return func(w *Watcher) {
		w.skip = skip
	}
}

func NewWatcher(opts ...WatcherOption) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  fsWatcher,
		debounce: 100 * time.Millisecond,
		roots:    make(map[string]WatchHandler),
		events:   make(chan FileEvent, 100),
		done:     make(chan struct{}),
		pending:  make(map[string]*time.Timer),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// WatchTree watches root and every directory below it. Directories created
// later are added as they appear.
func (w *Watcher) WatchTree(root string, handler WatchHandler) error {
	root = filepath.Clean(root)

	w.mu.Lock()
	w.roots[root] = handler
	w.mu.Unlock()

	return w.addTree(root)
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.skip != nil && w.skip(path) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// Start begins watching for file changes.
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(2)

	go func() {
		defer w.wg.Done()
		w.processLoop(ctx)
	}()

	go func() {
		defer w.wg.Done()
		w.dispatchLoop(ctx)
	}()
}

// Stop stops the watcher. Pending debounced events are dropped.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)

		w.pendingMu.Lock()
		for path, timer := range w.pending {
			timer.Stop()
			delete(w.pending, path)
		}
		w.pendingMu.Unlock()

		w.wg.Wait()
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}

// handleFSEvent converts an fsnotify event to a FileEvent and debounces it.
func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	var eventType EventType
	switch {
	case event.Op&fsnotify.Create != 0:
		eventType = EventCreated
	case event.Op&fsnotify.Write != 0:
		eventType = EventModified
	case event.Op&fsnotify.Remove != 0:
		eventType = EventDeleted
	case event.Op&fsnotify.Rename != 0:
		eventType = EventRenamed
	default:
		return
	}

	if eventType == EventCreated {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if w.skip == nil || !w.skip(event.Name) {
				if err := w.addTree(event.Name); err != nil {
					log.Warn().Err(err).Str("path", event.Name).Msg("Failed to watch new directory")
				}
			}
			return
		}
	}

	fileEvent := FileEvent{
		Type: eventType,
		Path: event.Name,
		Name: filepath.Base(event.Name),
	}

	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	if timer, exists := w.pending[event.Name]; exists {
		timer.Stop()
	}

	w.pending[event.Name] = time.AfterFunc(w.debounce, func() {
		w.pendingMu.Lock()
		delete(w.pending, event.Name)
		w.pendingMu.Unlock()

		select {
		case w.events <- fileEvent:
		case <-w.done:
		default:
			log.Warn().Str("path", event.Name).Msg("Event channel full, dropping event")
		}
	})
}

func (w *Watcher) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event := <-w.events:
			w.dispatchEvent(event)
		}
	}
}

// dispatchEvent calls the handler of every tree that contains the event.
func (w *Watcher) dispatchEvent(event FileEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	for root, handler := range w.roots {
		if withinRoot(event.Path, root) {
			handler(event)
		}
	}
}

func withinRoot(path, root string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}
