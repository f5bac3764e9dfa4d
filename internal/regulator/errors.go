package regulator

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned by ParseState for unrecognized tokens.
	ErrInvalidInput = errors.New("regulator: invalid state token")

	// ErrDeferred means the supply is not available yet. Providers wrap it;
	// callers retry Attach later.
	ErrDeferred = errors.New("regulator: supply not available yet")

	// ErrDetached is returned for transitions requested after Detach.
	ErrDetached = errors.New("regulator: guard detached")
)

// TransitionError reports a refused enable or disable. The cached state is
// left at its previous value.
type TransitionError struct {
	Target State
	Err    error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("regulator: set %s failed: %v", e.Target, e.Err)
}

func (e *TransitionError) Unwrap() error { return e.Err }

// AttachError is a non-deferred attach failure. The binding cannot be
// created and retrying is pointless.
type AttachError struct {
	Name string
	Err  error
}

func (e *AttachError) Error() string {
	return fmt.Sprintf("regulator: get supply %q: %v", e.Name, e.Err)
}

func (e *AttachError) Unwrap() error { return e.Err }
