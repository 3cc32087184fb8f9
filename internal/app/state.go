// Package app provides the desktop session: which slide and results are
// open, the workspace file they are saved to, and the events the window
// reacts to.
package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"slidescope/internal/filter"
)

// SessionExt is the file extension of saved sessions.
const SessionExt = ".slidescope"

const sessionVersion = 1

// ErrSessionVersion is returned for session files written by a newer
// version of the application.
var ErrSessionVersion = errors.New("unsupported session version")

// ViewState is a saved viewport position.
type ViewState struct {
	CenterX  float64 `json:"centerX"`
	CenterY  float64 `json:"centerY"`
	Zoom     float64 `json:"zoom"`
	Rotation float64 `json:"rotation,omitempty"`
}

// SessionFile is the on-disk session. Slide and Results are stored
// relative to the session file when possible.
type SessionFile struct {
	Version int             `json:"version"`
	Slide   string          `json:"slide,omitempty"`
	Results string          `json:"results,omitempty"`
	View    *ViewState      `json:"view,omitempty"`
	Filter  *filter.Params  `json:"filter,omitempty"`
	Shapes  json.RawMessage `json:"shapes,omitempty"`
}

// EventType identifies different application events.
type EventType int

const (
	EventSlideOpened EventType = iota
	EventResultsLoaded
	EventSessionLoaded
	EventSessionSaved
	EventModified
)

// EventListener is called when an event occurs.
type EventListener func(data any)

// State holds the desktop session.
type State struct {
	mu sync.RWMutex

	SessionPath string
	SlidePath   string
	ResultsPath string
	Modified    bool

	listeners map[EventType][]EventListener
}

// NewState creates an empty session.
func NewState() *State {
	return &State{
		listeners: make(map[EventType][]EventListener),
	}
}

// On registers an event listener for the specified event type.
func (s *State) On(event EventType, listener EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[event] = append(s.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type.
func (s *State) Emit(event EventType, data any) {
	s.mu.RLock()
	listeners := s.listeners[event]
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// SetModified marks the session as modified and emits an event.
func (s *State) SetModified(modified bool) {
	s.mu.Lock()
	changed := s.Modified != modified
	s.Modified = modified
	s.mu.Unlock()
	if changed {
		s.Emit(EventModified, modified)
	}
}

// IsModified reports whether the session has unsaved changes.
func (s *State) IsModified() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Modified
}

// SetSlide records the slide on display.
func (s *State) SetSlide(path string) {
	s.mu.Lock()
	s.SlidePath = path
	s.mu.Unlock()
	s.Emit(EventSlideOpened, path)
}

// SetResults records the results file that was loaded.
func (s *State) SetResults(path string) {
	s.mu.Lock()
	s.ResultsPath = path
	s.mu.Unlock()
	s.SetModified(true)
	s.Emit(EventResultsLoaded, path)
}

// Slide returns the path of the slide on display.
func (s *State) Slide() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.SlidePath
}

// Session returns the path of the current session file, if any.
func (s *State) Session() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.SessionPath
}

// LoadSession reads a session file. Relative paths in it are resolved
// against the file's directory.
func (s *State) LoadSession(path string) (*SessionFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	var f SessionFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse session %s: %w", path, err)
	}
	if f.Version > sessionVersion {
		return nil, fmt.Errorf("%s: %w %d", path, ErrSessionVersion, f.Version)
	}

	dir := filepath.Dir(path)
	f.Slide = resolve(dir, f.Slide)
	f.Results = resolve(dir, f.Results)

	s.mu.Lock()
	s.SessionPath = path
	s.SlidePath = f.Slide
	s.ResultsPath = f.Results
	s.Modified = false
	s.mu.Unlock()

	s.Emit(EventSessionLoaded, path)
	return &f, nil
}

// SaveSession writes f to path, filling in the version and storing the
// slide and results paths relative to path.
func (s *State) SaveSession(path string, f SessionFile) error {
	dir := filepath.Dir(path)
	f.Version = sessionVersion
	f.Slide = relative(dir, f.Slide)
	f.Results = relative(dir, f.Results)

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}

	s.mu.Lock()
	s.SessionPath = path
	s.Modified = false
	s.mu.Unlock()

	s.Emit(EventSessionSaved, path)
	return nil
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func relative(dir, p string) string {
	if p == "" || !filepath.IsAbs(p) {
		return p
	}
	if rel, err := filepath.Rel(dir, p); err == nil {
		return rel
	}
	return p
}
