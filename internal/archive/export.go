package archive

import (
	"bufio"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/roasbeef/convostore/internal/interaction"
	"github.com/roasbeef/convostore/internal/store"
	"github.com/roasbeef/convostore/internal/thread"
)

// exportPageSize is how many interactions are read per query.
const exportPageSize = 500

// ExportResult summarizes an export.
type ExportResult struct {
	Threads      int
	Interactions int

	// Errors holds the interactions that could not be written.
	Errors []*FrameError
}

// Export writes the threads in threadIDs, or every thread when it is empty,
// to w as JSON lines: a header, then the threads, then their interactions
// in global sort id order. Everything is read from a single snapshot.
func Export(ctx context.Context, s store.Storage, w io.Writer,
	clk clock.Clock, threadIDs ...string) (*ExportResult, error) {

	var (
		threads []thread.Thread
		rows    []interaction.Variant
	)
	err := s.WithReadTx(ctx, func(ctx context.Context,
		tx store.Storage) error {

		var err error
		threads, err = selectThreads(ctx, tx, threadIDs)
		if err != nil {
			return err
		}

		rows = rows[:0]
		for _, thr := range threads {
			var after uint64
			for {
				page, err := tx.ListThreadInteractions(
					ctx, thr.UniqueID, after,
					exportPageSize,
				)
				if err != nil {
					return err
				}
				rows = append(rows, page...)

				if len(page) < exportPageSize {
					break
				}
				after = page[len(page)-1].Base().SortID()
			}
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to read export snapshot: %w", err)
	}

	// Interleave the threads again so an import recreates the relative
	// order across threads.
	slices.SortFunc(rows, func(a, b interaction.Variant) int {
		return cmp.Compare(a.Base().SortID(), b.Base().SortID())
	})

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	res := &ExportResult{}

	header := headerFrame(clk.Now(), len(threads), len(rows))
	err = enc.Encode(Frame{Kind: FrameHeader, Header: header})
	if err != nil {
		return nil, err
	}

	for _, thr := range threads {
		err := enc.Encode(Frame{
			Kind: FrameThread, Thread: threadFrame(thr),
		})
		if err != nil {
			return nil, err
		}
		res.Threads++
	}

	for _, v := range rows {
		frame, err := interactionFrame(v)
		if err != nil {
			res.Errors = append(res.Errors, &FrameError{
				Kind:     FrameInteraction,
				UniqueID: v.Base().UniqueID(),
				Err:      err,
			})

			continue
		}

		err = enc.Encode(Frame{
			Kind: FrameInteraction, Interaction: frame,
		})
		if err != nil {
			return nil, err
		}
		res.Interactions++
	}

	if err := bw.Flush(); err != nil {
		return nil, err
	}

	log.InfoS(ctx, "Archive exported", "threads", res.Threads,
		"interactions", res.Interactions, "errors", len(res.Errors))

	return res, nil
}

// selectThreads resolves the requested threads, or lists all of them.
func selectThreads(ctx context.Context, tx store.Storage,
	threadIDs []string) ([]thread.Thread, error) {

	if len(threadIDs) == 0 {
		return tx.ListThreads(ctx)
	}

	threads := make([]thread.Thread, 0, len(threadIDs))
	for _, id := range threadIDs {
		opt, err := tx.ResolveThread(ctx, id)
		if err != nil {
			return nil, err
		}

		thr, err := opt.UnwrapOrErr(fmt.Errorf("%w: %s",
			store.ErrThreadNotFound, id))
		if err != nil {
			return nil, err
		}
		threads = append(threads, thr)
	}

	return threads, nil
}
