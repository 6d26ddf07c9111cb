package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/convostore/internal/db"
	"github.com/roasbeef/convostore/internal/interaction"
	"github.com/roasbeef/convostore/internal/thread"
)

// selectInteraction is the column list every interaction read scans with
// scanVariant. Queries alias the interactions table as i.
const selectInteraction = `
	SELECT i.sort_id, i.unique_id, i.thread_id, i.type, i.variant,
	       i.timestamp, i.received_at, i.payload
	FROM interactions i`

// sortKeyInteraction names the counter row interaction sort ids come from.
const sortKeyInteraction = "interaction"

// rowScanner is implemented by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// SQLStore implements Storage on top of a SQLite database. Calls made
// directly on it run in their own transaction; WithTx and WithReadTx group
// several calls into one.
type SQLStore struct {
	*sqlQueries

	sqlite *db.SqliteStore

	txExec *db.TransactionExecutor[*sqlQueries]
}

// NewSQLStore creates a store over an opened and migrated database.
func NewSQLStore(sqlite *db.SqliteStore, log *slog.Logger,
	opts ...db.TxExecutorOption) *SQLStore {

	createQuery := func(tx *sql.Tx) *sqlQueries {
		return &sqlQueries{q: tx}
	}

	return &SQLStore{
		sqlQueries: &sqlQueries{q: sqlite.BaseDB},
		sqlite:     sqlite,
		txExec: db.NewTransactionExecutor(
			sqlite.BaseDB, createQuery, log, opts...,
		),
	}
}

// WithTx executes fn within a write transaction, retrying it when the
// database is busy.
func (s *SQLStore) WithTx(ctx context.Context,
	fn func(ctx context.Context, s Storage) error) error {

	return s.txExec.ExecTx(
		ctx, db.WriteTxOption(), func(q *sqlQueries) error {
			return fn(ctx, q)
		},
	)
}

// WithReadTx executes fn within a read-only transaction.
func (s *SQLStore) WithReadTx(ctx context.Context,
	fn func(ctx context.Context, s Storage) error) error {

	return s.txExec.ExecTx(
		ctx, db.ReadTxOption(), func(q *sqlQueries) error {
			return fn(ctx, q)
		},
	)
}

// InsertInteraction allocates a sort id and inserts v in one transaction.
func (s *SQLStore) InsertInteraction(ctx context.Context,
	v interaction.Variant) (uint64, error) {

	var sortID uint64
	err := s.WithTx(ctx, func(ctx context.Context, tx Storage) error {
		var err error
		sortID, err = tx.InsertInteraction(ctx, v)

		return err
	})
	if err != nil {
		return 0, err
	}

	return sortID, nil
}

// UpdatePlaceholder rewrites the row and its lifecycle index together.
func (s *SQLStore) UpdatePlaceholder(ctx context.Context,
	p *interaction.Placeholder) error {

	return s.WithTx(ctx, func(ctx context.Context, tx Storage) error {
		return tx.UpdatePlaceholder(ctx, p)
	})
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.sqlite.Close()
}

// sqlQueries runs the store's SQL against either the database or a single
// transaction.
type sqlQueries struct {
	q db.Querier
}

// WithTx runs fn on the current transaction; nested calls join it.
func (s *sqlQueries) WithTx(ctx context.Context,
	fn func(ctx context.Context, s Storage) error) error {

	return fn(ctx, s)
}

// WithReadTx runs fn on the current transaction.
func (s *sqlQueries) WithReadTx(ctx context.Context,
	fn func(ctx context.Context, s Storage) error) error {

	return fn(ctx, s)
}

// Close is a no-op; the owning SQLStore closes the database.
func (s *sqlQueries) Close() error {
	return nil
}

// CreateThread stores a new thread.
func (s *sqlQueries) CreateThread(ctx context.Context,
	thr thread.Thread) error {

	if thr.UniqueID == "" {
		return errors.New("thread has no identifier")
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO threads (unique_id, title, created_at)
		VALUES (?, ?, ?)
	`, thr.UniqueID, thr.Title, thr.CreatedAt.UnixMilli())
	switch {
	case err == nil:
		return nil

	case db.IsUniqueConstraintViolation(db.MapSQLError(err)):
		return fmt.Errorf("%w: %s", ErrThreadExists, thr.UniqueID)

	default:
		return fmt.Errorf("failed to create thread: %w", err)
	}
}

// ResolveThread looks a thread up by id.
func (s *sqlQueries) ResolveThread(ctx context.Context,
	threadID string) (fn.Option[thread.Thread], error) {

	row := s.q.QueryRowContext(ctx, `
		SELECT unique_id, title, created_at
		FROM threads WHERE unique_id = ?
	`, threadID)

	thr, err := scanThread(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fn.None[thread.Thread](), nil

	case err != nil:
		return fn.None[thread.Thread](), fmt.Errorf("failed to get "+
			"thread: %w", err)
	}

	return fn.Some(thr), nil
}

// ListThreads returns all threads, oldest first.
func (s *sqlQueries) ListThreads(ctx context.Context) ([]thread.Thread,
	error) {

	rows, err := s.q.QueryContext(ctx, `
		SELECT unique_id, title, created_at
		FROM threads
		ORDER BY created_at, unique_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	var threads []thread.Thread
	for rows.Next() {
		thr, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		threads = append(threads, thr)
	}

	return threads, rows.Err()
}

// DeleteThread removes a thread; the schema cascades to its interactions.
func (s *sqlQueries) DeleteThread(ctx context.Context, threadID string) error {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM threads WHERE unique_id = ?`, threadID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}

	return expectAffected(res, ErrThreadNotFound, threadID)
}

// NextSortID bumps the interaction counter and returns the new value.
func (s *sqlQueries) NextSortID(ctx context.Context) (uint64, error) {
	var next int64
	err := s.q.QueryRowContext(ctx, `
		UPDATE sort_keys SET value = value + 1
		WHERE name = ?
		RETURNING value
	`, sortKeyInteraction).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate sort id: %w", err)
	}

	return uint64(next), nil
}

// InsertInteraction allocates a sort id and stores v under it.
func (s *sqlQueries) InsertInteraction(ctx context.Context,
	v interaction.Variant) (uint64, error) {

	base := v.Base()
	if err := checkInsertable(base); err != nil {
		return 0, err
	}

	name, payload, err := interaction.EncodeVariant(v)
	if err != nil {
		return 0, err
	}

	timestamp, err := toSQLInt(base.Timestamp())
	if err != nil {
		return 0, err
	}
	receivedAt, err := toSQLInt(base.ReceivedAtTimestamp())
	if err != nil {
		return 0, err
	}

	// Only allocate once the row is known to be storable.
	sortID, err := s.NextSortID(ctx)
	if err != nil {
		return 0, err
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO interactions (
			sort_id, unique_id, thread_id, type, variant,
			timestamp, received_at, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, int64(sortID), base.UniqueID(), base.ThreadID(),
		int64(base.Type()), name, timestamp, receivedAt, payload)
	if err != nil {
		mapped := db.MapSQLError(err)
		switch {
		case db.IsUniqueConstraintViolation(mapped):
			return 0, fmt.Errorf("%w: %s", ErrInteractionExists,
				base.UniqueID())

		case db.IsForeignKeyViolation(mapped):
			return 0, fmt.Errorf("%w: %s", ErrThreadNotFound,
				base.ThreadID())
		}

		return 0, fmt.Errorf("failed to insert interaction: %w", err)
	}

	if p, ok := v.(*interaction.Placeholder); ok {
		if err := s.upsertPlaceholderIndex(ctx, p, true); err != nil {
			return 0, err
		}
	}

	return sortID, nil
}

// FetchInteraction loads an interaction by unique id.
func (s *sqlQueries) FetchInteraction(ctx context.Context,
	uniqueID string) (fn.Option[interaction.Variant], error) {

	row := s.q.QueryRowContext(
		ctx, selectInteraction+` WHERE i.unique_id = ?`, uniqueID,
	)

	v, err := scanVariant(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fn.None[interaction.Variant](), nil

	case err != nil:
		return fn.None[interaction.Variant](), err
	}

	return fn.Some(v), nil
}

// ListThreadInteractions pages through a thread in sort id order.
func (s *sqlQueries) ListThreadInteractions(ctx context.Context,
	threadID string, afterSortID uint64,
	limit int) ([]interaction.Variant, error) {

	// SQLite treats a negative limit as unbounded.
	sqlLimit := int64(limit)
	if limit <= 0 {
		sqlLimit = -1
	}

	rows, err := s.q.QueryContext(ctx, selectInteraction+`
		WHERE i.thread_id = ? AND i.sort_id > ?
		ORDER BY i.sort_id
		LIMIT ?
	`, threadID, clampSQLInt(afterSortID), sqlLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list interactions: %w", err)
	}
	defer rows.Close()

	return collectVariants(rows)
}

// DeleteInteraction removes a stored interaction.
func (s *sqlQueries) DeleteInteraction(ctx context.Context,
	uniqueID string) error {

	res, err := s.q.ExecContext(ctx,
		`DELETE FROM interactions WHERE unique_id = ?`, uniqueID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete interaction: %w", err)
	}

	return expectAffected(res, ErrInteractionNotFound, uniqueID)
}

// UpdatePlaceholder writes back a placeholder's timestamp and state.
func (s *sqlQueries) UpdatePlaceholder(ctx context.Context,
	p *interaction.Placeholder) error {

	if !p.IsPersisted() {
		return fmt.Errorf("%w: %s", ErrNotPersisted, p.UniqueID())
	}

	_, payload, err := interaction.EncodeVariant(p)
	if err != nil {
		return err
	}

	timestamp, err := toSQLInt(p.Timestamp())
	if err != nil {
		return err
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE interactions SET timestamp = ?, payload = ?
		WHERE unique_id = ? AND variant = ?
	`, timestamp, payload, p.UniqueID(), interaction.VariantName(p))
	if err != nil {
		return fmt.Errorf("failed to update placeholder: %w", err)
	}

	if err := expectAffected(
		res, ErrInteractionNotFound, p.UniqueID(),
	); err != nil {
		return err
	}

	return s.upsertPlaceholderIndex(ctx, p, false)
}

// upsertPlaceholderIndex keeps the lifecycle index in step with the row.
func (s *sqlQueries) upsertPlaceholderIndex(ctx context.Context,
	p *interaction.Placeholder, insert bool) error {

	expiresAt, err := toSQLInt(p.ExpiresAt())
	if err != nil {
		return err
	}

	query := `
		UPDATE placeholders SET sender_id = ?, state = ?, expires_at = ?
		WHERE unique_id = ?`
	if insert {
		query = `
		INSERT INTO placeholders (sender_id, state, expires_at, unique_id)
		VALUES (?, ?, ?, ?)`
	}

	_, err = s.q.ExecContext(
		ctx, query, p.SenderID, int64(p.State()), expiresAt,
		p.UniqueID(),
	)
	if err != nil {
		return fmt.Errorf("failed to index placeholder: %w", err)
	}

	return nil
}

// FindPlaceholder returns senderID's undecremented placeholder at
// timestamp.
func (s *sqlQueries) FindPlaceholder(ctx context.Context, threadID,
	senderID string,
	timestamp uint64) (fn.Option[*interaction.Placeholder], error) {

	none := fn.None[*interaction.Placeholder]()

	ts, err := toSQLInt(timestamp)
	if err != nil {
		// Nothing beyond the storable range can be stored.
		return none, nil
	}

	rows, err := s.q.QueryContext(ctx, selectInteraction+`
		JOIN placeholders p ON p.unique_id = i.unique_id
		WHERE i.thread_id = ? AND i.timestamp = ?
			AND p.sender_id = ? AND p.state != ?
		ORDER BY i.sort_id
		LIMIT 1
	`, threadID, ts, senderID, int64(interaction.PlaceholderDecremented))
	if err != nil {
		return none, fmt.Errorf("failed to find placeholder: %w", err)
	}
	defer rows.Close()

	found, err := collectPlaceholders(rows)
	if err != nil || len(found) == 0 {
		return none, err
	}

	return fn.Some(found[0]), nil
}

// ListActivePlaceholders returns active placeholders due by expiresBy.
func (s *sqlQueries) ListActivePlaceholders(ctx context.Context,
	expiresBy uint64) ([]*interaction.Placeholder, error) {

	rows, err := s.q.QueryContext(ctx, selectInteraction+`
		JOIN placeholders p ON p.unique_id = i.unique_id
		WHERE p.state = ? AND p.expires_at <= ?
		ORDER BY p.expires_at, i.sort_id
	`, int64(interaction.PlaceholderActive), clampSQLInt(expiresBy))
	if err != nil {
		return nil, fmt.Errorf("failed to list placeholders: %w", err)
	}
	defer rows.Close()

	return collectPlaceholders(rows)
}

// CountInteractionsByType counts stored interactions per type.
func (s *sqlQueries) CountInteractionsByType(
	ctx context.Context) (map[interaction.Type]int64, error) {

	rows, err := s.q.QueryContext(ctx, `
		SELECT type, COUNT(*) FROM interactions GROUP BY type
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count interactions: %w", err)
	}
	defer rows.Close()

	counts := make(map[interaction.Type]int64)
	for rows.Next() {
		var (
			kind  int64
			count int64
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, err
		}
		counts[interaction.Type(kind)] = count
	}

	return counts, rows.Err()
}

// MaxSortID returns the highest committed sort id.
func (s *sqlQueries) MaxSortID(ctx context.Context) (uint64, error) {
	var maxID int64
	err := s.q.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sort_id), 0) FROM interactions
	`).Scan(&maxID)
	if err != nil {
		return 0, fmt.Errorf("failed to get max sort id: %w", err)
	}

	return uint64(maxID), nil
}

// checkInsertable refuses interactions that must not get a new row.
func checkInsertable(base *interaction.Interaction) error {
	switch {
	case base.IsDynamic():
		return fmt.Errorf("%w: %v %s", ErrDynamicInteraction,
			base.Type(), base.UniqueID())

	case base.IsPersisted():
		return fmt.Errorf("%w: %s has sort id %d", ErrAlreadyPersisted,
			base.UniqueID(), base.SortID())
	}

	return nil
}

// expectAffected turns a write that matched no rows into notFound.
func expectAffected(res sql.Result, notFound error, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", notFound, id)
	}

	return nil
}

// scanThread reads a thread row.
func scanThread(row rowScanner) (thread.Thread, error) {
	var (
		thr       thread.Thread
		createdAt int64
	)
	if err := row.Scan(&thr.UniqueID, &thr.Title, &createdAt); err != nil {
		return thread.Thread{}, err
	}
	thr.CreatedAt = time.UnixMilli(createdAt)

	return thr, nil
}

// scanVariant reads a row selected with selectInteraction and decodes it.
func scanVariant(row rowScanner) (interaction.Variant, error) {
	var (
		sortID, kind, timestamp, receivedAt int64
		uniqueID, threadID, name            string
		payload                             []byte
	)
	err := row.Scan(
		&sortID, &uniqueID, &threadID, &kind, &name, &timestamp,
		&receivedAt, &payload,
	)
	if err != nil {
		return nil, err
	}

	base, err := interaction.FromStorage(interaction.Record{
		UniqueID:   uniqueID,
		ThreadID:   threadID,
		Kind:       interaction.Type(kind),
		Timestamp:  uint64(timestamp),
		ReceivedAt: uint64(receivedAt),
		SortID:     uint64(sortID),
	})
	if err != nil {
		return nil, err
	}

	return interaction.DecodeVariant(base, name, payload)
}

func collectVariants(rows *sql.Rows) ([]interaction.Variant, error) {
	var variants []interaction.Variant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}

	return variants, rows.Err()
}

func collectPlaceholders(rows *sql.Rows) ([]*interaction.Placeholder,
	error) {

	variants, err := collectVariants(rows)
	if err != nil {
		return nil, err
	}

	placeholders := make([]*interaction.Placeholder, 0, len(variants))
	for _, v := range variants {
		p, ok := v.(*interaction.Placeholder)
		if !ok {
			return nil, fmt.Errorf("indexed placeholder %s decoded "+
				"as %s", v.Base().UniqueID(),
				interaction.VariantName(v))
		}
		placeholders = append(placeholders, p)
	}

	return placeholders, nil
}

// Ensure both the store and its transaction view implement Storage.
var (
	_ Storage = (*SQLStore)(nil)
	_ Storage = (*sqlQueries)(nil)
)
