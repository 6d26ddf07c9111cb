package ledger

import "errors"

var (
	// ErrPlaceholderDelivery is returned when a placeholder is handed to
	// Deliver. Placeholders are recorded with Insert; Deliver is for the
	// real interaction they stand in for.
	ErrPlaceholderDelivery = errors.New("placeholders cannot be delivered")

	// ErrDuplicateInBatch is returned when a batch names the same
	// interaction twice.
	ErrDuplicateInBatch = errors.New("interaction appears twice in batch")

	// ErrNotPreviewable is returned by Preview for variants without a
	// text summary.
	ErrNotPreviewable = errors.New("interaction has no preview")
)
