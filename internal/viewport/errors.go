package viewport

import (
	"errors"
	"fmt"
)

// ErrInitialization is matched by every *InitializationError.
var ErrInitialization = errors.New("viewer initialization failed")

// InitializationError reports that the viewport could not be mounted.
// The viewport must not be used after it is returned.
type InitializationError struct {
	Target string
	Reason string
	Err    error
}

func (e *InitializationError) Error() string {
	msg := fmt.Sprintf("initialize viewer on %q: %s", e.Target, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InitializationError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrInitialization) true.
func (e *InitializationError) Is(target error) bool {
	return target == ErrInitialization
}
