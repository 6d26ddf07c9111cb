package interaction

import "fmt"

// Type identifies what kind of conversation activity an interaction records.
// The set is closed and the integer codes are persisted, so existing values
// must never be renumbered. New kinds may only be appended.
type Type int64

const (
	// TypeUnknown is the zero value and never a valid stored kind.
	TypeUnknown Type = 0

	// TypeIncomingMessage is a message authored by a remote participant.
	TypeIncomingMessage Type = 1

	// TypeOutgoingMessage is a message authored locally.
	TypeOutgoingMessage Type = 2

	// TypeError is an error notice, including delivery placeholders.
	TypeError Type = 3

	// TypeCall records a voice or video call event.
	TypeCall Type = 4

	// TypeInfo is an informational marker such as a thread rename.
	TypeInfo Type = 5

	// TypeTypingIndicator is a dynamic "someone is typing" row.
	TypeTypingIndicator Type = 6

	// TypeThreadDetails is the dynamic header describing the thread.
	TypeThreadDetails Type = 7

	// TypeUnreadIndicator is the dynamic "new messages" divider.
	TypeUnreadIndicator Type = 8

	// TypeDateHeader is the dynamic divider between calendar days.
	TypeDateHeader Type = 9

	// TypeUnknownThreadWarning is the dynamic warning shown for threads
	// with an unknown contact.
	TypeUnknownThreadWarning Type = 10

	// TypeDefaultDisappearingMessageTimer is the dynamic notice about the
	// default disappearing message timer.
	TypeDefaultDisappearingMessageTimer Type = 11
)

// String returns the canonical name of the interaction type.
func (t Type) String() string {
	switch t {
	case TypeUnknown:
		return "Unknown"
	case TypeIncomingMessage:
		return "IncomingMessage"
	case TypeOutgoingMessage:
		return "OutgoingMessage"
	case TypeError:
		return "Error"
	case TypeCall:
		return "Call"
	case TypeInfo:
		return "Info"
	case TypeTypingIndicator:
		return "TypingIndicator"
	case TypeThreadDetails:
		return "ThreadDetails"
	case TypeUnreadIndicator:
		return "UnreadIndicator"
	case TypeDateHeader:
		return "DateHeader"
	case TypeUnknownThreadWarning:
		return "UnknownThreadWarning"
	case TypeDefaultDisappearingMessageTimer:
		return "DefaultDisappearingMessageTimer"
	default:
		return fmt.Sprintf("Type(%d)", int64(t))
	}
}

// IsValid reports whether t is a member of the closed set, excluding
// TypeUnknown.
func (t Type) IsValid() bool {
	return t >= TypeIncomingMessage &&
		t <= TypeDefaultDisappearingMessageTimer
}

// IsDynamic reports whether interactions of this type are view-only. Dynamic
// interactions are created and discarded by presentation logic and are never
// written to storage.
func (t Type) IsDynamic() bool {
	switch t {
	case TypeTypingIndicator, TypeThreadDetails, TypeUnreadIndicator,
		TypeDateHeader, TypeUnknownThreadWarning,
		TypeDefaultDisappearingMessageTimer:

		return true

	default:
		return false
	}
}

// AllTypes returns every valid type in code order.
func AllTypes() []Type {
	types := make([]Type, 0, TypeDefaultDisappearingMessageTimer)
	for t := TypeIncomingMessage; t <= TypeDefaultDisappearingMessageTimer; t++ {
		types = append(types, t)
	}

	return types
}
