package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/roasbeef/convostore/internal/interaction"
	"github.com/roasbeef/convostore/internal/store"
	"github.com/roasbeef/convostore/internal/thread"
)

// ViewOptions controls the dynamic rows mixed into a thread view.
type ViewOptions struct {
	// LastReadSortID is the sort id of the last interaction the reader
	// has seen. Zero means nothing has been read.
	LastReadSortID uint64

	// Typing lists the participants currently typing.
	Typing []string

	// UnknownSender adds a warning row that the other side of the thread
	// is not a known contact.
	UnknownSender bool

	// DisappearingTimer, when set, adds a notice of the default timer.
	DisappearingTimer time.Duration
}

// View loads a thread and builds what a reader sees: the committed
// interactions in sort id order with dynamic rows around them. The dynamic
// rows are never committed and carry no sort id.
func (l *Ledger) View(ctx context.Context, threadID string,
	opts ViewOptions) ([]interaction.Variant, error) {

	var (
		thr    thread.Thread
		stored []interaction.Variant
	)
	err := l.store.WithReadTx(ctx, func(ctx context.Context,
		tx store.Storage) error {

		opt, err := tx.ResolveThread(ctx, threadID)
		if err != nil {
			return err
		}
		thr, err = opt.UnwrapOrErr(fmt.Errorf("%w: %s",
			store.ErrThreadNotFound, threadID))
		if err != nil {
			return err
		}

		stored, err = tx.ListThreadInteractions(ctx, threadID, 0, 0)

		return err
	})
	if err != nil {
		return nil, err
	}

	return l.buildView(&thr, stored, opts)
}

func (l *Ledger) buildView(thr *thread.Thread, stored []interaction.Variant,
	opts ViewOptions) ([]interaction.Variant, error) {

	view := make([]interaction.Variant, 0, len(stored)+4)

	details, err := interaction.NewThreadDetails(thr, l.clock)
	if err != nil {
		return nil, err
	}
	view = append(view, details)

	if opts.UnknownSender {
		warning, err := interaction.NewUnknownThreadWarning(
			thr, l.clock,
		)
		if err != nil {
			return nil, err
		}
		view = append(view, warning)
	}

	if opts.DisappearingTimer > 0 {
		timer, err := interaction.NewDefaultDisappearingTimer(
			thr, opts.DisappearingTimer, l.clock,
		)
		if err != nil {
			return nil, err
		}
		view = append(view, timer)
	}

	unread := 0
	for _, v := range stored {
		if v.Base().SortID() > opts.LastReadSortID {
			unread++
		}
	}

	var (
		lastDay    time.Time
		markerDone bool
	)
	for _, v := range stored {
		base := v.Base()

		day := base.TimestampDate().UTC().Truncate(24 * time.Hour)
		if !day.Equal(lastDay) {
			header, err := interaction.NewDateHeader(
				thr, base.Timestamp(),
			)
			if err != nil {
				return nil, err
			}
			view = append(view, header)
			lastDay = day
		}

		if !markerDone && base.SortID() > opts.LastReadSortID {
			marker, err := interaction.NewUnreadIndicator(
				thr, base.Timestamp(), unread,
			)
			if err != nil {
				return nil, err
			}
			view = append(view, marker)
			markerDone = true
		}

		view = append(view, v)
	}

	for _, author := range opts.Typing {
		typing, err := interaction.NewTypingIndicator(
			thr, author, l.clock,
		)
		if err != nil {
			return nil, err
		}
		view = append(view, typing)
	}

	return view, nil
}
