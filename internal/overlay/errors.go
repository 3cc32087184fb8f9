package overlay

import (
	"errors"
	"fmt"
)

var (
	// ErrShapeNotFound is matched by every *ShapeNotFoundError.
	ErrShapeNotFound = errors.New("shape not found")
	// ErrShapeLocked is returned when editing a locked shape.
	ErrShapeLocked = errors.New("shape is locked")
	// ErrInvalidGeometry is returned when an edit or insert would leave a
	// shape below the minimum point count of its kind.
	ErrInvalidGeometry = errors.New("invalid shape geometry")
	// ErrDuplicateShape is returned when inserting a shape whose ID is taken.
	ErrDuplicateShape = errors.New("duplicate shape id")
	// ErrBusy is returned for transitions that are not allowed while a drag
	// is in progress or outside of editing.
	ErrBusy = errors.New("overlay busy")
)

// ShapeNotFoundError reports an operation on an identifier that is not in
// the collection. The engine state is unchanged when it is returned.
type ShapeNotFoundError struct {
	ID string
}

func (e *ShapeNotFoundError) Error() string {
	return fmt.Sprintf("shape %q not found", e.ID)
}

// Is makes errors.Is(err, ErrShapeNotFound) true.
func (e *ShapeNotFoundError) Is(target error) bool {
	return target == ErrShapeNotFound
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidGeometry, fmt.Sprintf(format, args...))
}
