package interaction

import (
	"encoding/json"
	"fmt"
	"time"
)

// The payload structs are the stored JSON form of each persisted variant.
// Field names are part of the storage format.

type incomingPayload struct {
	AuthorID string `json:"author_id"`
	Body     string `json:"body"`
}

type outgoingPayload struct {
	Body       string   `json:"body"`
	Recipients []string `json:"recipients,omitempty"`
}

type infoPayload struct {
	Kind InfoKind `json:"kind"`
	Text string   `json:"text,omitempty"`
}

type errorPayload struct {
	Text string `json:"text"`
}

type callPayload struct {
	Incoming   bool        `json:"incoming"`
	Video      bool        `json:"video"`
	Outcome    CallOutcome `json:"outcome"`
	DurationMS int64       `json:"duration_ms"`
}

type placeholderPayload struct {
	SenderID  string           `json:"sender_id"`
	ExpiresAt uint64           `json:"expires_at"`
	State     PlaceholderState `json:"state"`
}

// EncodeVariant returns the stored name and JSON payload of a persisted
// variant. Dynamic variants have no stored form.
func EncodeVariant(v Variant) (string, []byte, error) {
	var payload any
	switch m := v.(type) {
	case *IncomingMessage:
		payload = incomingPayload{AuthorID: m.AuthorID, Body: m.Body}

	case *OutgoingMessage:
		payload = outgoingPayload{
			Body: m.Body, Recipients: m.Recipients,
		}

	case *InfoMessage:
		payload = infoPayload{Kind: m.Kind, Text: m.Text}

	case *ErrorMessage:
		payload = errorPayload{Text: m.Text}

	case *CallEvent:
		payload = callPayload{
			Incoming:   m.Incoming,
			Video:      m.Video,
			Outcome:    m.Outcome,
			DurationMS: m.Duration.Milliseconds(),
		}

	case *Placeholder:
		payload = placeholderPayload{
			SenderID:  m.SenderID,
			ExpiresAt: m.expiresAt,
			State:     m.state,
		}

	default:
		return "", nil, invalidArg("%v interaction %s has no stored "+
			"form", v.Base().Type(), v.Base().UniqueID())
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", nil, fmt.Errorf("unable to encode %s payload: %w",
			v.variantName(), err)
	}

	return v.variantName(), raw, nil
}

// DecodeVariant rebuilds the variant stored under name around base, which
// carries the shared fields (from FromStorage, or Restore on import).
func DecodeVariant(base *Interaction, name string,
	payload []byte) (Variant, error) {

	decode := func(dst any) error {
		if err := json.Unmarshal(payload, dst); err != nil {
			return fmt.Errorf("unable to decode %s payload of %s: "+
				"%w", name, base.UniqueID(), err)
		}

		return nil
	}

	// The stored type must agree with the variant, otherwise the row was
	// written by something other than this package.
	expect := func(kind Type) error {
		if base.Type() != kind {
			return invalidArg("%s variant stored with type %v",
				name, base.Type())
		}

		return nil
	}

	switch name {
	case variantIncoming:
		var p incomingPayload
		if err := expect(TypeIncomingMessage); err != nil {
			return nil, err
		}
		if err := decode(&p); err != nil {
			return nil, err
		}

		return &IncomingMessage{
			Interaction: base, AuthorID: p.AuthorID, Body: p.Body,
		}, nil

	case variantOutgoing:
		var p outgoingPayload
		if err := expect(TypeOutgoingMessage); err != nil {
			return nil, err
		}
		if err := decode(&p); err != nil {
			return nil, err
		}

		return &OutgoingMessage{
			Interaction: base, Body: p.Body,
			Recipients: p.Recipients,
		}, nil

	case variantInfo:
		var p infoPayload
		if err := expect(TypeInfo); err != nil {
			return nil, err
		}
		if err := decode(&p); err != nil {
			return nil, err
		}

		return &InfoMessage{
			Interaction: base, Kind: p.Kind, Text: p.Text,
		}, nil

	case variantError:
		var p errorPayload
		if err := expect(TypeError); err != nil {
			return nil, err
		}
		if err := decode(&p); err != nil {
			return nil, err
		}

		return &ErrorMessage{Interaction: base, Text: p.Text}, nil

	case variantCall:
		var p callPayload
		if err := expect(TypeCall); err != nil {
			return nil, err
		}
		if err := decode(&p); err != nil {
			return nil, err
		}

		return &CallEvent{
			Interaction: base,
			Incoming:    p.Incoming,
			Video:       p.Video,
			Outcome:     p.Outcome,
			Duration:    time.Duration(p.DurationMS) * time.Millisecond,
		}, nil

	case variantPlaceholder:
		var p placeholderPayload
		if err := expect(TypeError); err != nil {
			return nil, err
		}
		if err := decode(&p); err != nil {
			return nil, err
		}

		return restorePlaceholder(base, p.SenderID, p.ExpiresAt, p.State)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, name)
	}
}
