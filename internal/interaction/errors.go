package interaction

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned when a constructor or mutation entry
	// point is handed input that cannot produce a valid interaction.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidTransition is returned when a placeholder is asked to make
	// a state transition its current state does not allow.
	ErrInvalidTransition = errors.New("invalid placeholder transition")

	// ErrUnknownVariant is returned when decoding a stored variant name
	// that this build does not know about.
	ErrUnknownVariant = errors.New("unknown interaction variant")
)

// invalidArg wraps ErrInvalidArgument with a formatted reason.
func invalidArg(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument,
		fmt.Sprintf(format, args...))
}

// PreconditionError describes a broken invariant that indicates a bug in the
// storage layer or its caller, not bad input. It is raised with panic and is
// not meant to be recovered from: continuing would corrupt global ordering.
type PreconditionError struct {
	// Op is the entry point whose precondition was violated.
	Op string

	// UniqueID identifies the interaction involved.
	UniqueID string

	// Reason describes the violated precondition.
	Reason string
}

// Error returns the error message.
func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition violated in %s for interaction %s: %s",
		e.Op, e.UniqueID, e.Reason)
}
