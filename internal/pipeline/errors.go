package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrNoActiveFit is returned when transform state is recorded
	// outside an active fit. This is a programming error, not a
	// retryable condition.
	ErrNoActiveFit = errors.New("state can only be recorded during an active fit")
	// ErrCycle is returned when the transform dependency graph is not
	// acyclic.
	ErrCycle = errors.New("transform dependency graph contains a cycle")
	// ErrUnknownTransform is returned when the graph references a
	// transform that was never added.
	ErrUnknownTransform = errors.New("unknown transform")
)

// FatalError marks an error that must not be retried: precondition
// violations, data errors failing the schema contract, graph errors.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal error: %v", e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal checks if an error is a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

func fatalf(format string, args ...any) error {
	return &FatalError{Err: fmt.Errorf(format, args...)}
}
