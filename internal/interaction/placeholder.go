package interaction

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/roasbeef/convostore/internal/thread"
)

// DefaultPlaceholderDecrement is the step, in milliseconds, an expired
// placeholder's timestamp is moved back by so its late replacement can be
// stored at the original timestamp.
const DefaultPlaceholderDecrement uint64 = 1

// PlaceholderState is the lifecycle state of a placeholder.
type PlaceholderState uint8

const (
	// PlaceholderActive means the placeholder is waiting for its
	// replacement and may still be swapped for it.
	PlaceholderActive PlaceholderState = iota + 1

	// PlaceholderExpired means too much time has passed for a replacement;
	// the timestamp has not been moved yet.
	PlaceholderExpired

	// PlaceholderDecremented means the timestamp was moved back and the
	// placeholder can coexist with a late replacement.
	PlaceholderDecremented
)

// String returns the state name.
func (s PlaceholderState) String() string {
	switch s {
	case PlaceholderActive:
		return "active"
	case PlaceholderExpired:
		return "expired"
	case PlaceholderDecremented:
		return "decremented"
	default:
		return fmt.Sprintf("PlaceholderState(%d)", uint8(s))
	}
}

// IsValid reports whether s is a known state.
func (s PlaceholderState) IsValid() bool {
	return s >= PlaceholderActive && s <= PlaceholderDecremented
}

// Placeholder stands in for a message we know was sent at Timestamp but could
// not read yet. When the real message arrives in time it replaces the
// placeholder. Once the placeholder expires it stays, and its timestamp is
// moved back so both can be kept.
//
// This is the one place a persisted interaction's timestamp changes.
type Placeholder struct {
	*Interaction

	// SenderID identifies who sent the missing message.
	SenderID string

	expiresAt uint64
	state     PlaceholderState
}

// NewPlaceholder creates an active placeholder for a message sent at
// timestamp and noticed at receivedAt. It stays eligible for replacement for
// ttl after receivedAt. The timestamp must leave room for the default
// decrement step; see NewPlaceholderWithStep.
func NewPlaceholder(t *thread.Thread, timestamp, receivedAt uint64,
	senderID string, ttl time.Duration) (*Placeholder, error) {

	return NewPlaceholderWithStep(
		t, timestamp, receivedAt, senderID, ttl,
		DefaultPlaceholderDecrement,
	)
}

// NewPlaceholderWithStep is NewPlaceholder for a placeholder that will be
// moved back by step once it expires. A timestamp below step is refused, as
// the placeholder could never be retired.
func NewPlaceholderWithStep(t *thread.Thread, timestamp, receivedAt uint64,
	senderID string, ttl time.Duration, step uint64) (*Placeholder, error) {

	if senderID == "" {
		return nil, invalidArg("placeholder has no sender")
	}
	if ttl < time.Millisecond {
		return nil, invalidArg("placeholder ttl %v below 1ms", ttl)
	}
	if err := CheckDecrementable(timestamp, step); err != nil {
		return nil, err
	}

	base, err := NewWithReceivedAt(TypeError, timestamp, receivedAt, t)
	if err != nil {
		return nil, err
	}

	return &Placeholder{
		Interaction: base,
		SenderID:    senderID,
		expiresAt:   expiryAfter(receivedAt, ttl),
		state:       PlaceholderActive,
	}, nil
}

// CheckDecrementable reports whether a placeholder at timestamp can be moved
// back by step.
func CheckDecrementable(timestamp, step uint64) error {
	if step == 0 {
		return invalidArg("decrement step must be positive")
	}
	if timestamp < step {
		return invalidArg("timestamp %d smaller than step %d",
			timestamp, step)
	}

	return nil
}

// expiryAfter returns receivedAt+ttl in milliseconds, saturating at the
// largest value the store can hold.
func expiryAfter(receivedAt uint64, ttl time.Duration) uint64 {
	const maxExpiry = math.MaxInt64

	window := uint64(ttl.Milliseconds())
	if receivedAt >= maxExpiry || window > maxExpiry-receivedAt {
		return maxExpiry
	}

	return receivedAt + window
}

// restorePlaceholder rebuilds a stored placeholder.
func restorePlaceholder(base *Interaction, senderID string, expiresAt uint64,
	state PlaceholderState) (*Placeholder, error) {

	if !state.IsValid() {
		return nil, invalidArg("placeholder %s has state %v",
			base.UniqueID(), state)
	}

	return &Placeholder{
		Interaction: base,
		SenderID:    senderID,
		expiresAt:   expiresAt,
		state:       state,
	}, nil
}

func (*Placeholder) variantName() string { return variantPlaceholder }

// State returns the current lifecycle state.
func (p *Placeholder) State() PlaceholderState {
	return p.state
}

// ExpiresAt returns the epoch millisecond time replacement stops being
// possible.
func (p *Placeholder) ExpiresAt() uint64 {
	return p.expiresAt
}

// IsExpiredAt reports whether the replacement window has closed at now,
// regardless of whether MarkExpired has been called yet.
func (p *Placeholder) IsExpiredAt(now time.Time) bool {
	return TimeToMillis(now) >= p.expiresAt
}

// IsEligibleForReplacement reports whether the real message arriving at now
// may take the placeholder's place.
func (p *Placeholder) IsEligibleForReplacement(now time.Time) bool {
	return p.state == PlaceholderActive && !p.IsExpiredAt(now)
}

// MarkExpired moves an active placeholder whose window has closed to the
// expired state.
func (p *Placeholder) MarkExpired(now time.Time) error {
	if p.state != PlaceholderActive {
		return fmt.Errorf("%w: cannot expire %s placeholder %s",
			ErrInvalidTransition, p.state, p.UniqueID())
	}
	if !p.IsExpiredAt(now) {
		return fmt.Errorf("%w: placeholder %s is eligible until %d",
			ErrInvalidTransition, p.UniqueID(), p.expiresAt)
	}

	p.state = PlaceholderExpired

	return nil
}

// DecrementTimestamp moves an expired placeholder's timestamp back by step so
// that the real message can later be stored at the original timestamp. It
// may happen once; afterwards the placeholder is immutable again.
//
// Nothing here guards against the decremented timestamp colliding with yet
// another interaction at timestamp-step.
func (p *Placeholder) DecrementTimestamp(step uint64) error {
	if p.state != PlaceholderExpired {
		return fmt.Errorf("%w: cannot decrement %s placeholder %s",
			ErrInvalidTransition, p.state, p.UniqueID())
	}

	if err := p.decrementTimestamp(step); err != nil {
		return err
	}

	p.state = PlaceholderDecremented

	return nil
}

// PreviewText describes the missing message.
func (p *Placeholder) PreviewText(context.Context,
	thread.Registry) (string, error) {

	if p.state == PlaceholderActive {
		return "Waiting for this message", nil
	}

	return fmt.Sprintf("A message from %s could not be delivered",
		p.SenderID), nil
}
