package interaction

import (
	"context"
	"fmt"
	"time"

	"github.com/roasbeef/convostore/internal/thread"
)

// IncomingMessage is a message received from another participant. The body
// is markdown.
type IncomingMessage struct {
	*Interaction

	// AuthorID identifies the remote author.
	AuthorID string

	// Body is the markdown message text.
	Body string
}

// NewIncomingMessage creates an unsaved incoming message. timestamp is the
// author's claimed send time, receivedAt is when we got it.
func NewIncomingMessage(t *thread.Thread, timestamp, receivedAt uint64,
	authorID, body string) (*IncomingMessage, error) {

	if authorID == "" {
		return nil, invalidArg("incoming message has no author")
	}

	base, err := NewWithReceivedAt(
		TypeIncomingMessage, timestamp, receivedAt, t,
	)
	if err != nil {
		return nil, err
	}

	return &IncomingMessage{
		Interaction: base,
		AuthorID:    authorID,
		Body:        body,
	}, nil
}

func (*IncomingMessage) variantName() string { return variantIncoming }

// PreviewText returns the flattened markdown body.
func (m *IncomingMessage) PreviewText(context.Context,
	thread.Registry) (string, error) {

	return MarkdownPreview(m.Body, DefaultPreviewLength), nil
}

// OutgoingMessage is a message authored locally.
type OutgoingMessage struct {
	*Interaction

	// Body is the markdown message text.
	Body string

	// Recipients lists who the message was addressed to.
	Recipients []string
}

// NewOutgoingMessage creates an unsaved outgoing message sent at timestamp.
func NewOutgoingMessage(t *thread.Thread, timestamp uint64, body string,
	recipients []string) (*OutgoingMessage, error) {

	base, err := New(TypeOutgoingMessage, timestamp, t)
	if err != nil {
		return nil, err
	}

	return &OutgoingMessage{
		Interaction: base,
		Body:        body,
		Recipients:  recipients,
	}, nil
}

func (*OutgoingMessage) variantName() string { return variantOutgoing }

// PreviewText returns the flattened markdown body.
func (m *OutgoingMessage) PreviewText(context.Context,
	thread.Registry) (string, error) {

	return MarkdownPreview(m.Body, DefaultPreviewLength), nil
}

// InfoKind distinguishes the informational markers.
type InfoKind uint8

const (
	// InfoGeneric carries free-form text.
	InfoGeneric InfoKind = iota

	// InfoThreadCreated marks the creation of the thread.
	InfoThreadCreated

	// InfoThreadRenamed marks a title change; Text holds the new title.
	InfoThreadRenamed
)

// InfoMessage is an informational marker in the thread.
type InfoMessage struct {
	*Interaction

	// Kind selects how the marker is described.
	Kind InfoKind

	// Text is the marker text, its meaning depends on Kind.
	Text string
}

// NewInfoMessage creates an unsaved info marker at timestamp.
func NewInfoMessage(t *thread.Thread, timestamp uint64, kind InfoKind,
	text string) (*InfoMessage, error) {

	base, err := New(TypeInfo, timestamp, t)
	if err != nil {
		return nil, err
	}

	return &InfoMessage{
		Interaction: base,
		Kind:        kind,
		Text:        text,
	}, nil
}

func (*InfoMessage) variantName() string { return variantInfo }

// PreviewText describes the marker. Thread creation markers look up the
// current thread title through reg.
func (m *InfoMessage) PreviewText(ctx context.Context,
	reg thread.Registry) (string, error) {

	switch m.Kind {
	case InfoThreadCreated:
		thr, err := m.ThreadWithTx(ctx, reg)
		if err != nil {
			return "", err
		}

		title := thr.UnwrapOr(thread.Thread{}).Title
		if title == "" {
			return "Thread created", nil
		}

		return truncate(fmt.Sprintf("Thread created: %s", title),
			DefaultPreviewLength), nil

	case InfoThreadRenamed:
		return truncate(fmt.Sprintf("Thread renamed to %q", m.Text),
			DefaultPreviewLength), nil

	default:
		return truncate(m.Text, DefaultPreviewLength), nil
	}
}

// ErrorMessage is an error notice shown in the thread.
type ErrorMessage struct {
	*Interaction

	// Text describes the error.
	Text string
}

// NewErrorMessage creates an unsaved error notice at timestamp.
func NewErrorMessage(t *thread.Thread, timestamp uint64,
	text string) (*ErrorMessage, error) {

	base, err := New(TypeError, timestamp, t)
	if err != nil {
		return nil, err
	}

	return &ErrorMessage{Interaction: base, Text: text}, nil
}

func (*ErrorMessage) variantName() string { return variantError }

// PreviewText returns the error text.
func (m *ErrorMessage) PreviewText(context.Context,
	thread.Registry) (string, error) {

	return truncate(m.Text, DefaultPreviewLength), nil
}

// CallOutcome is how a call ended.
type CallOutcome uint8

const (
	// CallAnswered means the call was connected.
	CallAnswered CallOutcome = iota

	// CallMissed means an incoming call was not picked up.
	CallMissed

	// CallDeclined means the callee rejected the call.
	CallDeclined
)

// CallEvent records a call in the thread.
type CallEvent struct {
	*Interaction

	// Incoming is true when the remote side placed the call.
	Incoming bool

	// Video is true for video calls.
	Video bool

	// Outcome is how the call ended.
	Outcome CallOutcome

	// Duration is how long an answered call lasted.
	Duration time.Duration
}

// NewCallEvent creates an unsaved call record at timestamp.
func NewCallEvent(t *thread.Thread, timestamp uint64, incoming, video bool,
	outcome CallOutcome, duration time.Duration) (*CallEvent, error) {

	base, err := New(TypeCall, timestamp, t)
	if err != nil {
		return nil, err
	}

	return &CallEvent{
		Interaction: base,
		Incoming:    incoming,
		Video:       video,
		Outcome:     outcome,
		Duration:    duration,
	}, nil
}

func (*CallEvent) variantName() string { return variantCall }

// PreviewText describes the call, e.g. "Missed video call".
func (c *CallEvent) PreviewText(context.Context,
	thread.Registry) (string, error) {

	medium := "voice call"
	if c.Video {
		medium = "video call"
	}

	switch c.Outcome {
	case CallMissed:
		return "Missed " + medium, nil

	case CallDeclined:
		return "Declined " + medium, nil
	}

	direction := "Outgoing"
	if c.Incoming {
		direction = "Incoming"
	}

	return fmt.Sprintf("%s %s (%s)", direction, medium,
		c.Duration.Round(time.Second)), nil
}
