package archive

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/roasbeef/convostore/internal/interaction"
	"github.com/roasbeef/convostore/internal/thread"
)

// FormatVersion is the archive format written by Export.
const FormatVersion = 1

// FrameKind names the kind of a frame.
type FrameKind string

const (
	// FrameHeader opens every archive.
	FrameHeader FrameKind = "header"

	// FrameThread describes a thread.
	FrameThread FrameKind = "thread"

	// FrameInteraction holds one persisted interaction.
	FrameInteraction FrameKind = "interaction"
)

// Frame is one line of an archive. Exactly one of the body fields is set,
// matching Kind.
type Frame struct {
	Kind        FrameKind         `json:"kind"`
	Header      *HeaderFrame      `json:"header,omitempty"`
	Thread      *ThreadFrame      `json:"thread,omitempty"`
	Interaction *InteractionFrame `json:"interaction,omitempty"`
}

// HeaderFrame describes the archive as a whole.
type HeaderFrame struct {
	Version      int    `json:"version"`
	ExportedAt   uint64 `json:"exported_at"`
	Threads      int    `json:"threads"`
	Interactions int    `json:"interactions"`
}

// ThreadFrame is an archived thread.
type ThreadFrame struct {
	UniqueID  string `json:"unique_id"`
	Title     string `json:"title,omitempty"`
	CreatedAt uint64 `json:"created_at"`
}

// InteractionFrame is an archived interaction. The sort id is left out: it
// only means something inside the store that allocated it, and import hands
// out fresh ones in frame order.
type InteractionFrame struct {
	UniqueID   string           `json:"unique_id"`
	ThreadID   string           `json:"thread_id"`
	Type       interaction.Type `json:"type"`
	Variant    string           `json:"variant"`
	Timestamp  uint64           `json:"timestamp"`
	ReceivedAt uint64           `json:"received_at"`
	Payload    json.RawMessage  `json:"payload"`
}

func threadFrame(thr thread.Thread) *ThreadFrame {
	return &ThreadFrame{
		UniqueID:  thr.UniqueID,
		Title:     thr.Title,
		CreatedAt: interaction.TimeToMillis(thr.CreatedAt),
	}
}

func (f *ThreadFrame) thread() thread.Thread {
	return thread.Thread{
		UniqueID:  f.UniqueID,
		Title:     f.Title,
		CreatedAt: interaction.MillisToTime(f.CreatedAt).UTC(),
	}
}

func interactionFrame(v interaction.Variant) (*InteractionFrame, error) {
	name, payload, err := interaction.EncodeVariant(v)
	if err != nil {
		return nil, err
	}

	base := v.Base()

	return &InteractionFrame{
		UniqueID:   base.UniqueID(),
		ThreadID:   base.ThreadID(),
		Type:       base.Type(),
		Variant:    name,
		Timestamp:  base.Timestamp(),
		ReceivedAt: base.ReceivedAtTimestamp(),
		Payload:    payload,
	}, nil
}

// variant rebuilds an unsaved variant that keeps the archived unique id.
func (f *InteractionFrame) variant(
	thr *thread.Thread) (interaction.Variant, error) {

	base, err := interaction.Restore(
		f.UniqueID, f.Type, f.Timestamp, f.ReceivedAt, thr,
	)
	if err != nil {
		return nil, err
	}

	return interaction.DecodeVariant(base, f.Variant, f.Payload)
}

// validate checks that the body matching Kind is present.
func (f *Frame) validate() error {
	var ok bool
	switch f.Kind {
	case FrameHeader:
		ok = f.Header != nil
	case FrameThread:
		ok = f.Thread != nil && f.Thread.UniqueID != ""
	case FrameInteraction:
		ok = f.Interaction != nil && f.Interaction.UniqueID != ""
	default:
		return errors.New("unknown frame kind")
	}
	if !ok {
		return errors.New("frame body missing")
	}

	return nil
}

func headerFrame(now time.Time, threads, interactions int) *HeaderFrame {
	return &HeaderFrame{
		Version:      FormatVersion,
		ExportedAt:   interaction.TimeToMillis(now),
		Threads:      threads,
		Interactions: interactions,
	}
}
