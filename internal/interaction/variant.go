package interaction

import (
	"context"

	"github.com/roasbeef/convostore/internal/thread"
)

// Variant is the sealed set of concrete interaction kinds. Every variant
// embeds *Interaction, so Base is promoted from the shared core.
type Variant interface {
	// Base returns the shared identity and ordering core.
	Base() *Interaction

	// variantName is the stable name the variant is stored under. It also
	// seals the interface to the variants declared in this package.
	variantName() string
}

// Previewable is implemented by variants that can summarize themselves as a
// single line of text, for example in a thread list.
type Previewable interface {
	Variant

	// PreviewText returns a one-line summary. reg is bound to the caller's
	// read transaction for variants that need to look at their thread.
	PreviewText(ctx context.Context, reg thread.Registry) (string, error)
}

// Stable variant names, written to storage next to each row.
const (
	variantIncoming    = "incoming"
	variantOutgoing    = "outgoing"
	variantInfo        = "info"
	variantError       = "error"
	variantCall        = "call"
	variantPlaceholder = "placeholder"

	variantTyping                   = "typing"
	variantDateHeader               = "date_header"
	variantUnread                   = "unread"
	variantThreadDetails            = "thread_details"
	variantUnknownThreadWarning     = "unknown_thread_warning"
	variantDefaultDisappearingTimer = "default_disappearing_timer"
)

// Ensure every variant satisfies the interfaces it is meant to.
var (
	_ Previewable = (*IncomingMessage)(nil)
	_ Previewable = (*OutgoingMessage)(nil)
	_ Previewable = (*InfoMessage)(nil)
	_ Previewable = (*ErrorMessage)(nil)
	_ Previewable = (*CallEvent)(nil)
	_ Previewable = (*Placeholder)(nil)

	_ Variant = (*TypingIndicator)(nil)
	_ Variant = (*DateHeader)(nil)
	_ Variant = (*UnreadIndicator)(nil)
	_ Variant = (*ThreadDetails)(nil)
	_ Variant = (*UnknownThreadWarning)(nil)
	_ Variant = (*DefaultDisappearingTimer)(nil)
)

// VariantName returns the stable storage name of v.
func VariantName(v Variant) string {
	return v.variantName()
}
