package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roasbeef/convostore/internal/interaction"
	"github.com/roasbeef/convostore/internal/ledger"
	"github.com/roasbeef/convostore/internal/store"
	"github.com/roasbeef/convostore/internal/thread"
)

const (
	// importBatchSize is how many interactions are committed per
	// transaction.
	importBatchSize = 100

	// maxFrameSize bounds a single line of the archive.
	maxFrameSize = 16 << 20
)

// ImportResult summarizes an import.
type ImportResult struct {
	// Threads is the number of threads created.
	Threads int

	// Interactions is the number of interactions committed.
	Interactions int

	// Skipped counts interactions that were already stored.
	Skipped int

	// Errors holds the frames that could not be imported.
	Errors []*FrameError
}

// Err joins the frame errors, nil when every frame was imported.
func (r *ImportResult) Err() error {
	errs := make([]error, len(r.Errors))
	for i, err := range r.Errors {
		errs[i] = err
	}

	return errors.Join(errs...)
}

// pendingFrame is a decoded interaction waiting to be committed.
type pendingFrame struct {
	line    int
	variant interaction.Variant
}

// importer carries the state of one Import call.
type importer struct {
	ledger *ledger.Ledger
	store  store.Storage
	res    *ImportResult

	threads map[string]thread.Thread
	seen    map[string]struct{}
	batch   []pendingFrame
}

// Import reads an archive written by Export and commits what is missing.
// Threads are created when absent. Interactions keep their unique ids and
// get fresh sort ids in frame order; those already stored are skipped. A
// frame that cannot be imported is recorded in the result and the rest of
// the archive is still processed. Only a missing or unsupported header and
// read failures abort the import.
func Import(ctx context.Context, l *ledger.Ledger,
	r io.Reader) (*ImportResult, error) {

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxFrameSize)

	imp := &importer{
		ledger:  l,
		store:   l.Store(),
		res:     &ImportResult{},
		threads: make(map[string]thread.Thread),
		seen:    make(map[string]struct{}),
	}

	line := 0
	headerSeen := false
	for scanner.Scan() {
		line++

		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var frame Frame
		err := json.Unmarshal(raw, &frame)
		if err == nil {
			err = frame.validate()
		}

		if !headerSeen {
			if err != nil || frame.Kind != FrameHeader {
				return nil, ErrMissingHeader
			}
			if frame.Header.Version < 1 ||
				frame.Header.Version > FormatVersion {

				return nil, fmt.Errorf("%w: %d",
					ErrUnsupportedVersion,
					frame.Header.Version)
			}
			headerSeen = true

			continue
		}

		if err != nil {
			imp.fail(line, frame.Kind, "", fmt.Errorf("%w: %v",
				ErrMalformedFrame, err))

			continue
		}

		switch frame.Kind {
		case FrameHeader:
			imp.fail(line, frame.Kind, "", fmt.Errorf("%w: "+
				"repeated header", ErrMalformedFrame))

		case FrameThread:
			imp.importThread(ctx, line, frame.Thread)

		case FrameInteraction:
			if err := imp.queue(ctx, line, frame.Interaction); err != nil {
				return nil, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("unable to read archive: %w", err)
	}
	if !headerSeen {
		return nil, ErrMissingHeader
	}

	if err := imp.flush(ctx); err != nil {
		return nil, err
	}

	log.InfoS(ctx, "Archive imported", "threads", imp.res.Threads,
		"interactions", imp.res.Interactions,
		"skipped", imp.res.Skipped, "errors", len(imp.res.Errors))

	return imp.res, nil
}

func (imp *importer) fail(line int, kind FrameKind, uniqueID string,
	err error) {

	log.DebugS(context.Background(), "Archive frame rejected",
		"line", line, "kind", kind, "unique_id", uniqueID,
		"reason", err)

	imp.res.Errors = append(imp.res.Errors, &FrameError{
		Line:     line,
		Kind:     kind,
		UniqueID: uniqueID,
		Err:      err,
	})
}

// importThread creates the thread unless it already exists.
func (imp *importer) importThread(ctx context.Context, line int,
	f *ThreadFrame) {

	thr := f.thread()

	var created bool
	err := imp.store.WithTx(ctx, func(ctx context.Context,
		tx store.Storage) error {

		opt, err := tx.ResolveThread(ctx, thr.UniqueID)
		if err != nil {
			return err
		}

		created = opt.IsNone()
		if !created {
			thr = opt.UnwrapOr(thr)

			return nil
		}

		return tx.CreateThread(ctx, thr)
	})
	if err != nil {
		imp.fail(line, FrameThread, f.UniqueID, err)

		return
	}

	if created {
		imp.res.Threads++
	}
	imp.threads[thr.UniqueID] = thr
}

// resolveThread finds the thread of an interaction frame, either from the
// archive or from the store.
func (imp *importer) resolveThread(ctx context.Context,
	threadID string) (thread.Thread, bool, error) {

	if thr, ok := imp.threads[threadID]; ok {
		return thr, true, nil
	}

	opt, err := imp.store.ResolveThread(ctx, threadID)
	if err != nil || opt.IsNone() {
		return thread.Thread{}, false, err
	}

	thr := opt.UnwrapOr(thread.Thread{})
	imp.threads[threadID] = thr

	return thr, true, nil
}

// queue decodes an interaction frame and adds it to the pending batch.
// Only store failures are returned; everything else is a frame error.
func (imp *importer) queue(ctx context.Context, line int,
	f *InteractionFrame) error {

	if _, ok := imp.seen[f.UniqueID]; ok {
		imp.res.Skipped++

		return nil
	}

	existing, err := imp.store.FetchInteraction(ctx, f.UniqueID)
	if err != nil {
		return err
	}
	if existing.IsSome() {
		imp.seen[f.UniqueID] = struct{}{}
		imp.res.Skipped++

		return nil
	}

	thr, ok, err := imp.resolveThread(ctx, f.ThreadID)
	if err != nil {
		return err
	}
	if !ok {
		imp.fail(line, FrameInteraction, f.UniqueID, fmt.Errorf(
			"%w: %s", ErrUnknownThread, f.ThreadID))

		return nil
	}

	v, err := f.variant(&thr)
	if err != nil {
		imp.fail(line, FrameInteraction, f.UniqueID, err)

		return nil
	}

	imp.seen[f.UniqueID] = struct{}{}
	imp.batch = append(imp.batch, pendingFrame{line: line, variant: v})

	if len(imp.batch) >= importBatchSize {
		return imp.flush(ctx)
	}

	return nil
}

// flush commits the pending batch. When the batch as a whole is refused,
// its frames are retried one by one so only the offending ones fail.
func (imp *importer) flush(ctx context.Context) error {
	if len(imp.batch) == 0 {
		return nil
	}
	defer func() {
		imp.batch = imp.batch[:0]
	}()

	vs := make([]interaction.Variant, len(imp.batch))
	for i, p := range imp.batch {
		vs[i] = p.variant
	}

	err := imp.ledger.InsertBatch(ctx, vs)
	if err == nil {
		imp.res.Interactions += len(vs)

		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	log.WarnS(ctx, "Archive batch refused, retrying frames singly", err,
		"frames", len(vs))

	for _, p := range imp.batch {
		err := imp.ledger.Insert(ctx, p.variant)
		if err != nil {
			imp.fail(p.line, FrameInteraction,
				p.variant.Base().UniqueID(), err)

			continue
		}
		imp.res.Interactions++
	}

	return nil
}
