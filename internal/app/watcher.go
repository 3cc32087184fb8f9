package app

import (
	"os"
	"sync"
	"time"
)

// FileWatcher polls a file and triggers a callback when its modification
// time moves forward. The desktop host uses it to pick up edits to the
// configuration file while running.
type FileWatcher struct {
	path          string
	checkInterval time.Duration

	mu       sync.Mutex
	baseline time.Time
	stopCh   chan struct{}
	onChange func(path string)
}

// NewFileWatcher creates a watcher for path. Returns nil if the file
// cannot be stat'ed.
func NewFileWatcher(path string, checkInterval time.Duration) *FileWatcher {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	return &FileWatcher{
		path:          path,
		checkInterval: checkInterval,
		baseline:      info.ModTime(),
	}
}

// OnChange sets the callback to invoke when the file changes. The callback
// is called from a background goroutine.
func (w *FileWatcher) OnChange(callback func(path string)) {
	w.mu.Lock()
	w.onChange = callback
	w.mu.Unlock()
}

// Start begins watching in a background goroutine.
func (w *FileWatcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopCh != nil {
		return
	}
	w.stopCh = make(chan struct{})
	go w.watchLoop(w.stopCh)
}

// Stop stops the watcher goroutine. It is safe to call more than once.
func (w *FileWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopCh != nil {
		close(w.stopCh)
		w.stopCh = nil
	}
}

func (w *FileWatcher) watchLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(w.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if w.Check() {
				w.mu.Lock()
				fn := w.onChange
				w.mu.Unlock()
				if fn != nil {
					fn(w.path)
				}
			}
		}
	}
}

// Check reports whether the file was modified since the last change it
// reported, and moves the baseline forward if so.
func (w *FileWatcher) Check() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !info.ModTime().After(w.baseline) {
		return false
	}
	w.baseline = info.ModTime()
	return true
}

// Path returns the watched file.
func (w *FileWatcher) Path() string {
	return w.path
}
