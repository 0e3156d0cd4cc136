package mu

import (
	"errors"
	"fmt"
)

// IndexServiceError reports a failed or unparseable mu invocation, or a
// filesystem step of a move that mu was told about.
type IndexServiceError struct {
	Op     string // find, view, move, flag, index, ...
	Reason string // one-line, user-facing
	Err    error
}

func (e *IndexServiceError) Error() string {
	if e.Reason == "" && e.Err != nil {
		return fmt.Sprintf("mu %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("mu %s: %s", e.Op, e.Reason)
}

func (e *IndexServiceError) Unwrap() error { return e.Err }

// IsIndexServiceError reports whether err is or wraps an IndexServiceError.
func IsIndexServiceError(err error) bool {
	var ise *IndexServiceError
	return errors.As(err, &ise)
}

func serviceError(op, reason string, err error) *IndexServiceError {
	return &IndexServiceError{Op: op, Reason: reason, Err: err}
}
