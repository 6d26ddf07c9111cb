package interaction

import (
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/roasbeef/convostore/internal/thread"
)

// The variants in this file are dynamic: they are built by view code around
// the persisted interactions of a thread and thrown away afterwards. None of
// them can be committed; ReplaceSortID panics for them and the store refuses
// them.

// TypingIndicator shows that a participant is typing.
type TypingIndicator struct {
	*Interaction

	// AuthorID identifies who is typing.
	AuthorID string
}

// NewTypingIndicator creates a typing indicator stamped with the current
// time of clk.
func NewTypingIndicator(t *thread.Thread, authorID string,
	clk clock.Clock) (*TypingIndicator, error) {

	base, err := NewNow(TypeTypingIndicator, t, clk)
	if err != nil {
		return nil, err
	}

	return &TypingIndicator{Interaction: base, AuthorID: authorID}, nil
}

func (*TypingIndicator) variantName() string { return variantTyping }

// DateHeader separates interactions from different calendar days.
type DateHeader struct {
	*Interaction
}

// NewDateHeader creates a header for the day containing timestamp.
func NewDateHeader(t *thread.Thread, timestamp uint64) (*DateHeader, error) {
	base, err := New(TypeDateHeader, timestamp, t)
	if err != nil {
		return nil, err
	}

	return &DateHeader{Interaction: base}, nil
}

func (*DateHeader) variantName() string { return variantDateHeader }

// Day returns the UTC calendar day the header introduces.
func (d *DateHeader) Day() time.Time {
	return d.TimestampDate().UTC().Truncate(24 * time.Hour)
}

// UnreadIndicator marks where unread interactions begin.
type UnreadIndicator struct {
	*Interaction

	// UnreadCount is the number of unread interactions after the marker.
	UnreadCount int
}

// NewUnreadIndicator creates an unread divider placed at timestamp.
func NewUnreadIndicator(t *thread.Thread, timestamp uint64,
	unreadCount int) (*UnreadIndicator, error) {

	base, err := New(TypeUnreadIndicator, timestamp, t)
	if err != nil {
		return nil, err
	}

	return &UnreadIndicator{Interaction: base, UnreadCount: unreadCount}, nil
}

func (*UnreadIndicator) variantName() string { return variantUnread }

// ThreadDetails is the header row describing the thread itself.
type ThreadDetails struct {
	*Interaction
}

// NewThreadDetails creates the details header for t.
func NewThreadDetails(t *thread.Thread,
	clk clock.Clock) (*ThreadDetails, error) {

	base, err := NewNow(TypeThreadDetails, t, clk)
	if err != nil {
		return nil, err
	}

	return &ThreadDetails{Interaction: base}, nil
}

func (*ThreadDetails) variantName() string { return variantThreadDetails }

// UnknownThreadWarning warns that the other side of the thread is unknown.
type UnknownThreadWarning struct {
	*Interaction
}

// NewUnknownThreadWarning creates the warning row for t.
func NewUnknownThreadWarning(t *thread.Thread,
	clk clock.Clock) (*UnknownThreadWarning, error) {

	base, err := NewNow(TypeUnknownThreadWarning, t, clk)
	if err != nil {
		return nil, err
	}

	return &UnknownThreadWarning{Interaction: base}, nil
}

func (*UnknownThreadWarning) variantName() string {
	return variantUnknownThreadWarning
}

// DefaultDisappearingTimer tells the user which disappearing message timer
// new threads start with.
type DefaultDisappearingTimer struct {
	*Interaction

	// Duration is the default timer, zero when disabled.
	Duration time.Duration
}

// NewDefaultDisappearingTimer creates the notice for t.
func NewDefaultDisappearingTimer(t *thread.Thread, duration time.Duration,
	clk clock.Clock) (*DefaultDisappearingTimer, error) {

	base, err := NewNow(TypeDefaultDisappearingMessageTimer, t, clk)
	if err != nil {
		return nil, err
	}

	return &DefaultDisappearingTimer{
		Interaction: base,
		Duration:    duration,
	}, nil
}

func (*DefaultDisappearingTimer) variantName() string {
	return variantDefaultDisappearingTimer
}
