package viewport

import "fmt"

// Mount is the host element a viewport renders into.
type Mount interface {
	// Size returns the element size in pixels.
	Size() (width, height int)
}

// Document resolves mount targets at initialization time.
type Document interface {
	ElementByID(id string) (Mount, bool)
	Contains(m Mount) bool
}

// Target names the mount element, either by identifier or directly.
type Target struct {
	ID      string
	Element Mount
}

// ByID targets the element registered under id.
func ByID(id string) Target {
	return Target{ID: id}
}

// ByElement targets an element directly; it must still be part of the document.
func ByElement(m Mount) Target {
	return Target{Element: m}
}

func (t Target) String() string {
	if t.ID != "" {
		return "#" + t.ID
	}
	if t.Element != nil {
		return fmt.Sprintf("%T", t.Element)
	}
	return "<none>"
}

func (t Target) resolve(doc Document) (Mount, error) {
	if doc == nil {
		return nil, &InitializationError{Target: t.String(), Reason: "no document"}
	}
	if t.Element != nil {
		if !doc.Contains(t.Element) {
			return nil, &InitializationError{Target: t.String(), Reason: "element is not attached to the document"}
		}
		return t.Element, nil
	}
	if t.ID == "" {
		return nil, &InitializationError{Target: t.String(), Reason: "no target given"}
	}
	m, ok := doc.ElementByID(t.ID)
	if !ok || m == nil {
		return nil, &InitializationError{Target: t.String(), Reason: "element not found"}
	}
	return m, nil
}

// StaticMount is a fixed-size mount for headless rendering.
type StaticMount struct {
	Width, Height int
}

// Size implements Mount.
func (m *StaticMount) Size() (int, int) {
	return m.Width, m.Height
}

// Elements is a simple Document backed by a map of identifiers.
type Elements map[string]Mount

// ElementByID implements Document.
func (e Elements) ElementByID(id string) (Mount, bool) {
	m, ok := e[id]
	return m, ok
}

// Contains implements Document.
func (e Elements) Contains(m Mount) bool {
	for _, el := range e {
		if el == m {
			return true
		}
	}
	return false
}
