package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/convostore/internal/interaction"
	"github.com/roasbeef/convostore/internal/store"
	"github.com/roasbeef/convostore/internal/thread"
)

// DefaultPlaceholderTTL is how long a placeholder may be replaced by the
// real message after we noticed it was missing.
const DefaultPlaceholderTTL = 24 * time.Hour

// Config holds the dependencies of a Ledger.
type Config struct {
	// Store is where interactions are committed.
	Store store.Storage

	// Clock is used for placeholder expiry and receipt times. Defaults to
	// the wall clock.
	Clock clock.Clock

	// PlaceholderTTL is the replacement window of new placeholders.
	// Defaults to DefaultPlaceholderTTL.
	PlaceholderTTL time.Duration

	// DecrementStep is how far, in milliseconds, an expired placeholder
	// is moved back. Defaults to interaction.DefaultPlaceholderDecrement.
	DecrementStep uint64

	// Metrics is optional.
	Metrics *Metrics
}

// Ledger is the write path for interactions. It is the only caller of
// ReplaceSortID: sort ids are recorded on an instance once the transaction
// that allocated them has committed, so a rolled back or retried transaction
// never leaves a stale id behind.
type Ledger struct {
	store   store.Storage
	clock   clock.Clock
	ttl     time.Duration
	step    uint64
	metrics *Metrics
}

// New creates a ledger from cfg.
func New(cfg Config) (*Ledger, error) {
	if cfg.Store == nil {
		return nil, errors.New("ledger requires a store")
	}
	if cfg.PlaceholderTTL < 0 {
		return nil, fmt.Errorf("negative placeholder ttl %v",
			cfg.PlaceholderTTL)
	}

	l := &Ledger{
		store:   cfg.Store,
		clock:   cfg.Clock,
		ttl:     cfg.PlaceholderTTL,
		step:    cfg.DecrementStep,
		metrics: cfg.Metrics,
	}
	if l.clock == nil {
		l.clock = clock.NewDefaultClock()
	}
	if l.ttl == 0 {
		l.ttl = DefaultPlaceholderTTL
	}
	if l.step == 0 {
		l.step = interaction.DefaultPlaceholderDecrement
	}

	return l, nil
}

// Clock returns the clock the ledger stamps interactions with.
func (l *Ledger) Clock() clock.Clock {
	return l.clock
}

// Store returns the underlying store.
func (l *Ledger) Store() store.Storage {
	return l.store
}

// NewPlaceholder creates an active placeholder for a message sent at
// timestamp, received now, using the ledger's replacement window and
// decrement step.
func (l *Ledger) NewPlaceholder(t *thread.Thread, timestamp uint64,
	senderID string) (*interaction.Placeholder, error) {

	return interaction.NewPlaceholderWithStep(
		t, timestamp, interaction.TimeToMillis(l.clock.Now()),
		senderID, l.ttl, l.step,
	)
}

// checkInsertable refuses interactions that can never be committed before
// anything touches the store.
func (l *Ledger) checkInsertable(v interaction.Variant) error {
	if v == nil || v.Base() == nil {
		return fmt.Errorf("%w: nil interaction",
			interaction.ErrInvalidArgument)
	}

	base := v.Base()
	switch {
	case base.IsDynamic():
		l.metrics.observeReject("dynamic")

		return fmt.Errorf("%w: %v %s", store.ErrDynamicInteraction,
			base.Type(), base.UniqueID())

	case base.IsPersisted():
		l.metrics.observeReject("persisted")

		return fmt.Errorf("%w: %s has sort id %d",
			store.ErrAlreadyPersisted, base.UniqueID(),
			base.SortID())
	}

	// A placeholder that still has to be moved back must have room for
	// this ledger's step, or it could never be retired.
	p, ok := v.(*interaction.Placeholder)
	if ok && p.State() != interaction.PlaceholderDecremented {
		err := interaction.CheckDecrementable(p.Timestamp(), l.step)
		if err != nil {
			l.metrics.observeReject("undecrementable")

			return fmt.Errorf("placeholder %s: %w", p.UniqueID(),
				err)
		}
	}

	return nil
}

// Insert commits v and records its sort id on it.
func (l *Ledger) Insert(ctx context.Context, v interaction.Variant) error {
	if err := l.checkInsertable(v); err != nil {
		return err
	}

	var sortID uint64
	done := l.metrics.timeTx("insert")
	err := l.store.WithTx(ctx, func(ctx context.Context,
		tx store.Storage) error {

		var err error
		sortID, err = tx.InsertInteraction(ctx, v)

		return err
	})
	done()
	if err != nil {
		return fmt.Errorf("unable to insert %s: %w",
			v.Base().UniqueID(), err)
	}

	l.committed(ctx, v, sortID)

	return nil
}

// InsertBatch commits vs atomically. Sort ids follow the order of vs, so the
// batch reads back in the order it was given.
func (l *Ledger) InsertBatch(ctx context.Context,
	vs []interaction.Variant) error {

	seen := make(map[string]struct{}, len(vs))
	for _, v := range vs {
		if err := l.checkInsertable(v); err != nil {
			return err
		}

		id := v.Base().UniqueID()
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateInBatch, id)
		}
		seen[id] = struct{}{}
	}
	if len(vs) == 0 {
		return nil
	}

	var sortIDs []uint64
	done := l.metrics.timeTx("insert_batch")
	err := l.store.WithTx(ctx, func(ctx context.Context,
		tx store.Storage) error {

		// Start over on every attempt, the executor may retry.
		sortIDs = sortIDs[:0]
		for _, v := range vs {
			sortID, err := tx.InsertInteraction(ctx, v)
			if err != nil {
				return fmt.Errorf("unable to insert %s: %w",
					v.Base().UniqueID(), err)
			}
			sortIDs = append(sortIDs, sortID)
		}

		return nil
	})
	done()
	if err != nil {
		return err
	}

	for i, v := range vs {
		l.committed(ctx, v, sortIDs[i])
	}

	log.InfoS(ctx, "Interaction batch committed", "count", len(vs),
		"first_sort_id", sortIDs[0],
		"last_sort_id", sortIDs[len(sortIDs)-1])

	return nil
}

// committed records sortID on v after its transaction has committed.
func (l *Ledger) committed(ctx context.Context, v interaction.Variant,
	sortID uint64) {

	base := v.Base()
	base.ReplaceSortID(sortID)
	l.metrics.observeCommit(base.Type().String())

	log.DebugS(ctx, "Interaction committed",
		"unique_id", base.UniqueID(),
		"thread_id", base.ThreadID(),
		"type", base.Type(),
		"sort_id", sortID)
}

// Fetch loads a committed interaction.
func (l *Ledger) Fetch(ctx context.Context,
	uniqueID string) (fn.Option[interaction.Variant], error) {

	var result fn.Option[interaction.Variant]
	err := l.store.WithReadTx(ctx, func(ctx context.Context,
		tx store.Storage) error {

		var err error
		result, err = tx.FetchInteraction(ctx, uniqueID)

		return err
	})

	return result, err
}

// ThreadInteractions returns a page of a thread's interactions in sort id
// order, starting after afterSortID. A limit of zero or less returns the
// rest of the thread.
func (l *Ledger) ThreadInteractions(ctx context.Context, threadID string,
	afterSortID uint64, limit int) ([]interaction.Variant, error) {

	var result []interaction.Variant
	err := l.store.WithReadTx(ctx, func(ctx context.Context,
		tx store.Storage) error {

		thr, err := tx.ResolveThread(ctx, threadID)
		if err != nil {
			return err
		}
		if thr.IsNone() {
			return fmt.Errorf("%w: %s", store.ErrThreadNotFound,
				threadID)
		}

		result, err = tx.ListThreadInteractions(
			ctx, threadID, afterSortID, limit,
		)

		return err
	})

	return result, err
}

// Preview returns the one-line summary of a committed interaction. The
// variant resolves its thread through the same read transaction it was
// loaded in.
func (l *Ledger) Preview(ctx context.Context, uniqueID string) (string,
	error) {

	var text string
	err := l.store.WithReadTx(ctx, func(ctx context.Context,
		tx store.Storage) error {

		opt, err := tx.FetchInteraction(ctx, uniqueID)
		if err != nil {
			return err
		}

		v, err := opt.UnwrapOrErr(fmt.Errorf("%w: %s",
			store.ErrInteractionNotFound, uniqueID))
		if err != nil {
			return err
		}

		p, ok := v.(interaction.Previewable)
		if !ok {
			return fmt.Errorf("%w: %v", ErrNotPreviewable,
				v.Base().Type())
		}

		text, err = p.PreviewText(ctx, tx)

		return err
	})

	return text, err
}
