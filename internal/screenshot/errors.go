package screenshot

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyViewport is matched by *EmptyViewportError.
	ErrEmptyViewport = errors.New("viewport has no base raster")
	// ErrRegionOutsideViewport is returned when a capture region does not
	// overlap the visible part of the slide.
	ErrRegionOutsideViewport = errors.New("capture region outside viewport")
	// ErrUnsupportedFormat is returned by Encode for unknown formats.
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

// EmptyViewportError reports a capture attempted before any slide was shown.
type EmptyViewportError struct {
	Reason string
}

func (e *EmptyViewportError) Error() string {
	if e.Reason == "" {
		return ErrEmptyViewport.Error()
	}
	return fmt.Sprintf("%s: %s", ErrEmptyViewport, e.Reason)
}

// Is reports whether target is ErrEmptyViewport.
func (e *EmptyViewportError) Is(target error) bool {
	return target == ErrEmptyViewport
}
