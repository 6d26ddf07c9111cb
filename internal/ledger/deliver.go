package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/convostore/internal/interaction"
	"github.com/roasbeef/convostore/internal/store"
)

// DeliveryOutcome describes what happened to a placeholder when the message
// it stood in for was delivered.
type DeliveryOutcome uint8

const (
	// DeliveryInserted means no placeholder was waiting.
	DeliveryInserted DeliveryOutcome = iota

	// DeliveryReplaced means the placeholder was removed in favor of the
	// real message.
	DeliveryReplaced

	// DeliveryCoexisting means the placeholder had expired. It was moved
	// back in time and kept next to the real message.
	DeliveryCoexisting
)

// String returns the outcome name.
func (o DeliveryOutcome) String() string {
	switch o {
	case DeliveryInserted:
		return "inserted"
	case DeliveryReplaced:
		return "replaced"
	case DeliveryCoexisting:
		return "coexisting"
	default:
		return fmt.Sprintf("DeliveryOutcome(%d)", uint8(o))
	}
}

// Deliver commits a message that may have been announced by a placeholder
// from the same sender at the same timestamp in the same thread. A
// placeholder still in its window is replaced. An expired one is moved back
// by the decrement step so both are kept, with the real message at the
// original timestamp. Only incoming messages have a sender a placeholder
// can stand in for; every other variant is inserted as is. An expired
// placeholder too close to zero to be moved back is left in place.
func (l *Ledger) Deliver(ctx context.Context,
	v interaction.Variant) (DeliveryOutcome, error) {

	if err := l.checkInsertable(v); err != nil {
		return 0, err
	}
	if _, ok := v.(*interaction.Placeholder); ok {
		return 0, fmt.Errorf("%w: %s", ErrPlaceholderDelivery,
			v.Base().UniqueID())
	}

	base := v.Base()
	now := l.clock.Now()

	var (
		outcome  DeliveryOutcome
		sortID   uint64
		replaced string
	)
	done := l.metrics.timeTx("deliver")
	err := l.store.WithTx(ctx, func(ctx context.Context,
		tx store.Storage) error {

		outcome, replaced = DeliveryInserted, ""

		opt, err := findPlaceholderFor(ctx, tx, v)
		if err != nil {
			return err
		}

		if opt.IsSome() {
			// The store hands out a fresh copy on every read, so the
			// mutations below vanish with a rolled back attempt.
			p := opt.UnwrapOr(nil)
			replaced = p.UniqueID()

			if p.IsEligibleForReplacement(now) {
				err := tx.DeleteInteraction(ctx, p.UniqueID())
				if err != nil {
					return err
				}
				outcome = DeliveryReplaced
			} else {
				err := l.retire(ctx, tx, p)
				stuck := errors.Is(
					err, interaction.ErrInvalidArgument,
				)
				switch {
				// Same as the sweep: the message goes in and
				// the stuck placeholder is left alone.
				case stuck:
					log.WarnS(ctx, "Delivering past "+
						"placeholder that cannot be "+
						"retired", err,
						"unique_id", p.UniqueID(),
						"timestamp", p.Timestamp())

					replaced = ""

				case err != nil:
					return err

				default:
					outcome = DeliveryCoexisting
				}
			}
		}

		sortID, err = tx.InsertInteraction(ctx, v)

		return err
	})
	done()
	if err != nil {
		return 0, fmt.Errorf("unable to deliver %s: %w",
			base.UniqueID(), err)
	}

	l.committed(ctx, v, sortID)
	l.metrics.observeDelivery(outcome)

	if outcome != DeliveryInserted {
		log.InfoS(ctx, "Placeholder resolved by delivery",
			"outcome", outcome,
			"placeholder_id", replaced,
			"unique_id", base.UniqueID(),
			"thread_id", base.ThreadID())
	}

	return outcome, nil
}

// findPlaceholderFor looks up the pending placeholder v may settle.
func findPlaceholderFor(ctx context.Context, tx store.Storage,
	v interaction.Variant) (fn.Option[*interaction.Placeholder], error) {

	msg, ok := v.(*interaction.IncomingMessage)
	if !ok {
		return fn.None[*interaction.Placeholder](), nil
	}

	return tx.FindPlaceholder(
		ctx, msg.ThreadID(), msg.AuthorID, msg.Timestamp(),
	)
}

// retire takes an active or expired placeholder to its final decremented
// state and writes it back.
func (l *Ledger) retire(ctx context.Context, tx store.Storage,
	p *interaction.Placeholder) error {

	if p.State() == interaction.PlaceholderActive {
		if err := p.MarkExpired(l.clock.Now()); err != nil {
			return err
		}
	}
	if err := p.DecrementTimestamp(l.step); err != nil {
		return err
	}

	return tx.UpdatePlaceholder(ctx, p)
}

// ExpirePlaceholders retires every active placeholder whose window has
// closed, returning how many were moved back.
func (l *Ledger) ExpirePlaceholders(ctx context.Context) (int, error) {
	now := l.clock.Now()

	var count int
	done := l.metrics.timeTx("expire")
	err := l.store.WithTx(ctx, func(ctx context.Context,
		tx store.Storage) error {

		count = 0

		due, err := tx.ListActivePlaceholders(
			ctx, interaction.TimeToMillis(now),
		)
		if err != nil {
			return err
		}

		for _, p := range due {
			err := l.retire(ctx, tx, p)
			switch {
			// A row that can never be moved back stays active
			// rather than holding up every other placeholder.
			case errors.Is(err, interaction.ErrInvalidArgument):
				log.WarnS(ctx, "Skipping placeholder that "+
					"cannot be retired", err,
					"unique_id", p.UniqueID(),
					"timestamp", p.Timestamp())

				continue

			case err != nil:
				return fmt.Errorf("unable to retire placeholder "+
					"%s: %w", p.UniqueID(), err)
			}

			log.DebugS(ctx, "Placeholder expired",
				"unique_id", p.UniqueID(),
				"thread_id", p.ThreadID(),
				"timestamp", p.Timestamp())
			count++
		}

		return nil
	})
	done()
	if err != nil {
		return 0, err
	}

	l.metrics.observeExpired(count)
	if count > 0 {
		log.InfoS(ctx, "Expired placeholders", "count", count)
	}

	return count, nil
}
