package dictionary

import (
	"fmt"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"fixengine/internal/telemetry"
)

// Watcher holds a live Dictionary and atomically swaps it in for a freshly
// parsed one whenever the root file changes on disk. Only the root file is
// watched: an edit to a file it imports is not detected until the root
// file itself changes. Readers call Current at any time from any goroutine;
// the in-flight swap never blocks a reader.
type Watcher struct {
	baseDir  string
	rootFile string

	current atomic.Pointer[Dictionary]
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher loads the dictionary once and, if watch is true, starts
// watching the root file for changes (its imports are not watched).
func NewWatcher(baseDir, rootFile string, watch bool) (*Watcher, error) {
	d, err := Load(baseDir, rootFile)
	if err != nil {
		return nil, err
	}

	w := &Watcher{baseDir: baseDir, rootFile: rootFile, done: make(chan struct{})}
	w.current.Store(d)

	if !watch {
		return w, nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("dictionary: create watcher: %w", err)
	}
	w.watcher = fw

	if err := w.addWatchedFiles(); err != nil {
		_ = fw.Close()
		return nil, err
	}

	go w.run()
	return w, nil
}

func (w *Watcher) addWatchedFiles() error {
	resolved, err := resolvePath(w.baseDir, "", w.rootFile)
	if err != nil {
		return err
	}
	if err := w.watcher.Add(resolved); err != nil {
		return fmt.Errorf("dictionary: watch %q: %w", resolved, err)
	}
	return nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.reload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			telemetry.Error("dictionary watcher error", telemetry.Err(err))

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() {
	d, err := Load(w.baseDir, w.rootFile)
	if err != nil {
		telemetry.Error("dictionary reload failed, keeping previous dictionary", telemetry.Err(err))
		return
	}
	w.current.Store(d)
	telemetry.Info("dictionary reloaded")
}

// Current returns the most recently loaded Dictionary. Safe for concurrent
// use; the returned value is immutable and never mutated after a reload —
// callers simply stop seeing it once a newer one is swapped in.
func (w *Watcher) Current() *Dictionary {
	return w.current.Load()
}

// Close stops the background watch goroutine, if one was started.
func (w *Watcher) Close() error {
	if w.watcher == nil {
		return nil
	}
	close(w.done)
	return w.watcher.Close()
}
