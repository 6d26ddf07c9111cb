package interaction

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/convostore/internal/thread"
)

// Interaction is the identity and ordering core shared by every kind of
// conversation activity. Concrete variants embed it and add their own
// payload; the rules around identity, timestamps and the sort key live here
// only.
//
// An Interaction performs no locking. Mutations must happen inside a write
// transaction of the owning store, reads inside a read transaction.
type Interaction struct {
	uniqueID   string
	threadID   string
	kind       Type
	timestamp  uint64
	receivedAt uint64
	sortID     uint64
}

// Record is the flat set of persisted fields of an interaction, in the shape
// the storage layer reads and writes them.
type Record struct {
	UniqueID   string
	ThreadID   string
	Kind       Type
	Timestamp  uint64
	ReceivedAt uint64
	SortID     uint64
}

// threadIDOf extracts the identifier from a thread reference, failing when
// the reference cannot be resolved to one.
func threadIDOf(t *thread.Thread) (string, error) {
	if t == nil {
		return "", invalidArg("thread reference is nil")
	}
	if t.UniqueID == "" {
		return "", invalidArg("thread has no identifier")
	}

	return t.UniqueID, nil
}

// New creates an unsaved interaction of the given kind at timestamp in thread
// t. The receipt time defaults to timestamp and the sort key is left
// unassigned.
func New(kind Type, timestamp uint64, t *thread.Thread) (*Interaction, error) {
	return NewWithReceivedAt(kind, timestamp, timestamp, t)
}

// NewWithReceivedAt is like New but takes the local receipt time verbatim.
// No ordering between timestamp and receivedAt is enforced, since the author's
// clock may be skewed relative to ours.
func NewWithReceivedAt(kind Type, timestamp, receivedAt uint64,
	t *thread.Thread) (*Interaction, error) {

	return Restore(uuid.New().String(), kind, timestamp, receivedAt, t)
}

// NewNow creates an interaction stamped with the current time of clk for both
// timestamp and receivedAt.
func NewNow(kind Type, t *thread.Thread,
	clk clock.Clock) (*Interaction, error) {

	return New(kind, TimeToMillis(clk.Now()), t)
}

// Restore creates an unsaved interaction that keeps a previously issued
// uniqueID. It is used when importing an archive: the identity survives while
// the sort key is allocated afresh on commit.
func Restore(uniqueID string, kind Type, timestamp, receivedAt uint64,
	t *thread.Thread) (*Interaction, error) {

	if uniqueID == "" {
		return nil, invalidArg("unique id is empty")
	}
	if !kind.IsValid() {
		return nil, invalidArg("unsupported interaction type %v", kind)
	}

	threadID, err := threadIDOf(t)
	if err != nil {
		return nil, err
	}

	return &Interaction{
		uniqueID:   uniqueID,
		threadID:   threadID,
		kind:       kind,
		timestamp:  timestamp,
		receivedAt: receivedAt,
	}, nil
}

// FromStorage rebuilds an interaction from a stored row. All fields are taken
// verbatim. The record must describe an interaction that was committed at
// least once, so a zero sort key is rejected, as is any dynamic kind.
func FromStorage(rec Record) (*Interaction, error) {
	switch {
	case rec.UniqueID == "":
		return nil, invalidArg("stored interaction has no unique id")

	case rec.ThreadID == "":
		return nil, invalidArg("stored interaction %s has no thread",
			rec.UniqueID)

	case rec.SortID == 0:
		return nil, invalidArg("stored interaction %s has no sort id",
			rec.UniqueID)

	case !rec.Kind.IsValid():
		return nil, invalidArg("stored interaction %s has type %v",
			rec.UniqueID, rec.Kind)

	case rec.Kind.IsDynamic():
		return nil, invalidArg("stored interaction %s is dynamic (%v)",
			rec.UniqueID, rec.Kind)
	}

	return &Interaction{
		uniqueID:   rec.UniqueID,
		threadID:   rec.ThreadID,
		kind:       rec.Kind,
		timestamp:  rec.Timestamp,
		receivedAt: rec.ReceivedAt,
		sortID:     rec.SortID,
	}, nil
}

// Base returns the interaction itself. Variants embed *Interaction and get
// this method promoted, which is how the store reaches the shared fields.
func (i *Interaction) Base() *Interaction {
	return i
}

// UniqueID returns the globally unique identifier.
func (i *Interaction) UniqueID() string {
	return i.uniqueID
}

// ThreadID returns the identifier of the owning thread.
func (i *Interaction) ThreadID() string {
	return i.threadID
}

// Type returns the kind of the interaction.
func (i *Interaction) Type() Type {
	return i.kind
}

// Timestamp returns the author-claimed send time in epoch milliseconds.
func (i *Interaction) Timestamp() uint64 {
	return i.timestamp
}

// ReceivedAtTimestamp returns the local receipt time in epoch milliseconds.
func (i *Interaction) ReceivedAtTimestamp() uint64 {
	return i.receivedAt
}

// SortID returns the storage-assigned order key, or 0 when the interaction
// has not been committed yet.
func (i *Interaction) SortID() uint64 {
	return i.sortID
}

// TimestampDate returns Timestamp as a time.Time.
func (i *Interaction) TimestampDate() time.Time {
	return MillisToTime(i.timestamp)
}

// ReceivedAtDate returns ReceivedAtTimestamp as a time.Time.
func (i *Interaction) ReceivedAtDate() time.Time {
	return MillisToTime(i.receivedAt)
}

// IsDynamic reports whether this is a view-only interaction that must never
// be persisted.
func (i *Interaction) IsDynamic() bool {
	return i.kind.IsDynamic()
}

// IsPersisted reports whether the interaction has been committed.
func (i *Interaction) IsPersisted() bool {
	return i.sortID != 0
}

// Record returns a copy of the persisted fields.
func (i *Interaction) Record() Record {
	return Record{
		UniqueID:   i.uniqueID,
		ThreadID:   i.threadID,
		Kind:       i.kind,
		Timestamp:  i.timestamp,
		ReceivedAt: i.receivedAt,
		SortID:     i.sortID,
	}
}

// ThreadWithTx resolves the owning thread through reg, which should be bound
// to the caller's read transaction. None is returned when the thread no
// longer exists.
func (i *Interaction) ThreadWithTx(ctx context.Context,
	reg thread.Registry) (fn.Option[thread.Thread], error) {

	return reg.ResolveThread(ctx, i.threadID)
}

// ReplaceSortID records the order key allocated when the interaction was
// committed. This is the only way the sort key ever changes and it may happen
// once. Calling it on an interaction that already has a sort key, on a
// dynamic interaction, or with a zero key means the storage layer is broken,
// so it panics with a *PreconditionError.
func (i *Interaction) ReplaceSortID(sortID uint64) {
	fail := func(reason string) {
		panic(&PreconditionError{
			Op:       "ReplaceSortID",
			UniqueID: i.uniqueID,
			Reason:   reason,
		})
	}

	switch {
	case i.kind.IsDynamic():
		fail(fmt.Sprintf("dynamic %v interactions are never persisted",
			i.kind))

	case sortID == 0:
		fail("sort id must be non-zero")

	case i.sortID != 0:
		fail(fmt.Sprintf("sort id already assigned (have %d, got %d)",
			i.sortID, sortID))
	}

	i.sortID = sortID
}

// decrementTimestamp moves the timestamp back by step. Only the placeholder
// variant may call this, see Placeholder.DecrementTimestamp.
func (i *Interaction) decrementTimestamp(step uint64) error {
	if err := CheckDecrementable(i.timestamp, step); err != nil {
		return err
	}

	i.timestamp -= step

	return nil
}

// String returns a short description used in logs.
func (i *Interaction) String() string {
	return fmt.Sprintf("%v(%s, thread=%s, ts=%d, sort=%d)", i.kind,
		i.uniqueID, i.threadID, i.timestamp, i.sortID)
}

// TimeToMillis converts t to epoch milliseconds. Times before the epoch map
// to zero.
func TimeToMillis(t time.Time) uint64 {
	ms := t.UnixMilli()
	if ms < 0 {
		return 0
	}

	return uint64(ms)
}

// MillisToTime converts epoch milliseconds to a time.Time.
func MillisToTime(ms uint64) time.Time {
	return time.UnixMilli(int64(ms))
}
