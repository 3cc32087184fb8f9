package app

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidescope/internal/filter"
)

func TestSessionRoundTrip(t *testing.T) {
	dir := t.TempDir()
	slide := filepath.Join(dir, "slides", "S-1234.dzi")
	path := filepath.Join(dir, "case"+SessionExt)

	s := NewState()
	var saved []any
	s.On(EventSessionSaved, func(data any) { saved = append(saved, data) })

	params := filter.Params{Brightness: 0.1, Gamma: 1.2}
	require.NoError(t, s.SaveSession(path, SessionFile{
		Slide:  slide,
		View:   &ViewState{CenterX: 100, CenterY: 200, Zoom: 0.5, Rotation: 90},
		Filter: &params,
		Shapes: json.RawMessage(`{"version":1,"shapes":[]}`),
	}))
	assert.Equal(t, []any{path}, saved)
	assert.Equal(t, path, s.Session())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"slide": "`+filepath.Join("slides", "S-1234.dzi")+`"`)

	loaded := NewState()
	f, err := loaded.LoadSession(path)
	require.NoError(t, err)
	assert.Equal(t, slide, f.Slide)
	assert.Equal(t, slide, loaded.Slide())
	assert.Equal(t, sessionVersion, f.Version)
	require.NotNil(t, f.View)
	assert.Equal(t, 0.5, f.View.Zoom)
	require.NotNil(t, f.Filter)
	assert.Equal(t, params, *f.Filter)
	assert.JSONEq(t, `{"version":1,"shapes":[]}`, string(f.Shapes))
	assert.False(t, loaded.IsModified())
}

func TestLoadSessionErrors(t *testing.T) {
	dir := t.TempDir()
	s := NewState()

	_, err := s.LoadSession(filepath.Join(dir, "missing"+SessionExt))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad"+SessionExt)
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = s.LoadSession(bad)
	assert.Error(t, err)

	future := filepath.Join(dir, "future"+SessionExt)
	require.NoError(t, os.WriteFile(future, []byte(`{"version":99}`), 0o644))
	_, err = s.LoadSession(future)
	assert.ErrorIs(t, err, ErrSessionVersion)
}

func TestModifiedEvents(t *testing.T) {
	s := NewState()
	var events []bool
	s.On(EventModified, func(data any) { events = append(events, data.(bool)) })

	s.SetModified(true)
	s.SetModified(true)
	s.SetResults("/data/results.json")
	s.SetModified(false)

	assert.Equal(t, []bool{true, false}, events)
	assert.Equal(t, "/data/results.json", s.ResultsPath)
}

func TestFileWatcherCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log: {}\n"), 0o644))

	w := NewFileWatcher(path, time.Hour)
	require.NotNil(t, w)
	assert.False(t, w.Check())

	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))
	assert.True(t, w.Check())
	assert.False(t, w.Check(), "a change is reported once")

	assert.Nil(t, NewFileWatcher(filepath.Join(t.TempDir(), "missing.yaml"), time.Second))
}

func TestFileWatcherCallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log: {}\n"), 0o644))

	w := NewFileWatcher(path, 5*time.Millisecond)
	require.NotNil(t, w)
	changed := make(chan string, 1)
	w.OnChange(func(p string) {
		select {
		case changed <- p:
		default:
		}
	})
	w.Start()
	defer w.Stop()

	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	select {
	case p := <-changed:
		assert.Equal(t, path, p)
	case <-time.After(2 * time.Second):
		t.Fatal("change not reported")
	}
	w.Stop()
}
