package archive

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingHeader is returned when an archive does not start with a
	// header frame.
	ErrMissingHeader = errors.New("archive has no header frame")

	// ErrUnsupportedVersion is returned for archives written by a newer
	// format version.
	ErrUnsupportedVersion = errors.New("unsupported archive version")

	// ErrMalformedFrame is returned for frames that cannot be decoded.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrUnknownThread is returned for interaction frames that reference
	// a thread neither stored nor present in the archive.
	ErrUnknownThread = errors.New("interaction references unknown thread")
)

// FrameError describes a single frame that could not be exported or
// imported. Frame errors do not stop the rest of the archive.
type FrameError struct {
	// Line is the one-based line of the frame in the archive, zero for
	// frames that were never written.
	Line int

	// Kind is the kind of frame.
	Kind FrameKind

	// UniqueID identifies the thread or interaction, when known.
	UniqueID string

	// Err is the underlying error.
	Err error
}

// Error returns the error message.
func (e *FrameError) Error() string {
	msg := string(e.Kind) + " frame"
	if e.UniqueID != "" {
		msg += " " + e.UniqueID
	}
	if e.Line > 0 {
		msg += fmt.Sprintf(" at line %d", e.Line)
	}

	return fmt.Sprintf("%s: %v", msg, e.Err)
}

// Unwrap returns the underlying error.
func (e *FrameError) Unwrap() error {
	return e.Err
}
