package store

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/convostore/internal/interaction"
	"github.com/roasbeef/convostore/internal/thread"
)

// mockRow is an interaction in its stored form.
type mockRow struct {
	rec     interaction.Record
	variant string
	payload []byte
}

// MockStore provides an in-memory implementation of the Storage interface
// for testing purposes. All data is stored in maps and protected by a mutex.
// WithTx snapshots the data and restores it when fn fails, so rollbacks look
// the same as with the SQL store. Transactions are serialized; calls made
// outside of one are not isolated from a concurrent rollback.
type MockStore struct {
	mu sync.RWMutex

	// txMu is held for writing by WithTx and for reading by WithReadTx
	// while fn runs.
	txMu sync.RWMutex

	threads      map[string]thread.Thread
	interactions map[string]mockRow

	// nextSortID is the last allocated sort id. It is part of the
	// snapshot, so ids allocated in a rolled back transaction are reused.
	nextSortID uint64

	// allocations counts NextSortID calls, including rolled back ones.
	allocations int
}

// NewMockStore creates a new in-memory mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		threads:      make(map[string]thread.Thread),
		interactions: make(map[string]mockRow),
	}
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}

// mockSnapshot is the restorable state of a MockStore.
type mockSnapshot struct {
	threads      map[string]thread.Thread
	interactions map[string]mockRow
	nextSortID   uint64
}

func (m *MockStore) snapshot() mockSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return mockSnapshot{
		threads:      maps.Clone(m.threads),
		interactions: maps.Clone(m.interactions),
		nextSortID:   m.nextSortID,
	}
}

func (m *MockStore) restore(snap mockSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.threads = snap.threads
	m.interactions = snap.interactions
	m.nextSortID = snap.nextSortID
}

// mockTx is the Storage handed to a transaction's fn. Nested transactions
// join the outer one, as txMu is already held.
type mockTx struct {
	*MockStore
}

func (t mockTx) WithTx(ctx context.Context,
	fn func(ctx context.Context, s Storage) error) error {

	return fn(ctx, t)
}

func (t mockTx) WithReadTx(ctx context.Context,
	fn func(ctx context.Context, s Storage) error) error {

	return fn(ctx, t)
}

// WithTx executes fn and rolls the store back if it fails.
func (m *MockStore) WithTx(ctx context.Context,
	fn func(ctx context.Context, s Storage) error) error {

	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.snapshot()
	if err := fn(ctx, mockTx{m}); err != nil {
		m.restore(snap)

		return err
	}

	return nil
}

// WithReadTx executes fn while no write transaction is in flight.
func (m *MockStore) WithReadTx(ctx context.Context,
	fn func(ctx context.Context, s Storage) error) error {

	m.txMu.RLock()
	defer m.txMu.RUnlock()

	return fn(ctx, mockTx{m})
}

// Allocations returns how many sort ids have been requested so far.
func (m *MockStore) Allocations() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.allocations
}

// IsConsistent verifies that the store's internal state is consistent.
// Used for property-based testing.
func (m *MockStore) IsConsistent() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[uint64]struct{}, len(m.interactions))
	for uid, row := range m.interactions {
		rec := row.rec

		if rec.UniqueID != uid {
			return false
		}

		// Every interaction belongs to a live thread.
		if _, ok := m.threads[rec.ThreadID]; !ok {
			return false
		}

		// Sort ids are assigned, unique and never ahead of the
		// allocator.
		if rec.SortID == 0 || rec.SortID > m.nextSortID {
			return false
		}
		if _, dup := seen[rec.SortID]; dup {
			return false
		}
		seen[rec.SortID] = struct{}{}

		// Dynamic interactions never reach storage, and every row
		// decodes back into its variant.
		if rec.Kind.IsDynamic() {
			return false
		}
		if _, err := decodeRow(row); err != nil {
			return false
		}
	}

	return true
}

// CreateThread stores a new thread.
func (m *MockStore) CreateThread(_ context.Context, thr thread.Thread) error {
	if thr.UniqueID == "" {
		return fmt.Errorf("thread has no identifier")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.threads[thr.UniqueID]; ok {
		return fmt.Errorf("%w: %s", ErrThreadExists, thr.UniqueID)
	}

	// Match the millisecond precision of the SQL store.
	thr.CreatedAt = interaction.MillisToTime(
		interaction.TimeToMillis(thr.CreatedAt),
	)
	m.threads[thr.UniqueID] = thr

	return nil
}

// ResolveThread looks a thread up by id.
func (m *MockStore) ResolveThread(_ context.Context,
	threadID string) (fn.Option[thread.Thread], error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	thr, ok := m.threads[threadID]
	if !ok {
		return fn.None[thread.Thread](), nil
	}

	return fn.Some(thr), nil
}

// ListThreads returns all threads, oldest first.
func (m *MockStore) ListThreads(context.Context) ([]thread.Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	threads := make([]thread.Thread, 0, len(m.threads))
	for _, thr := range m.threads {
		threads = append(threads, thr)
	}

	sort.Slice(threads, func(i, j int) bool {
		if !threads[i].CreatedAt.Equal(threads[j].CreatedAt) {
			return threads[i].CreatedAt.Before(threads[j].CreatedAt)
		}

		return threads[i].UniqueID < threads[j].UniqueID
	})

	return threads, nil
}

// DeleteThread removes a thread and its interactions.
func (m *MockStore) DeleteThread(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.threads[threadID]; !ok {
		return fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}

	delete(m.threads, threadID)
	for uid, row := range m.interactions {
		if row.rec.ThreadID == threadID {
			delete(m.interactions, uid)
		}
	}

	return nil
}

// NextSortID allocates the next sort id.
func (m *MockStore) NextSortID(context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.allocations++
	m.nextSortID++

	return m.nextSortID, nil
}

// InsertInteraction allocates a sort id and stores v under it.
func (m *MockStore) InsertInteraction(ctx context.Context,
	v interaction.Variant) (uint64, error) {

	base := v.Base()
	if err := checkInsertable(base); err != nil {
		return 0, err
	}

	name, payload, err := interaction.EncodeVariant(v)
	if err != nil {
		return 0, err
	}

	for _, ts := range []uint64{base.Timestamp(), base.ReceivedAtTimestamp()} {
		if _, err := toSQLInt(ts); err != nil {
			return 0, err
		}
	}

	m.mu.RLock()
	_, threadOK := m.threads[base.ThreadID()]
	_, exists := m.interactions[base.UniqueID()]
	m.mu.RUnlock()

	switch {
	case exists:
		return 0, fmt.Errorf("%w: %s", ErrInteractionExists,
			base.UniqueID())

	case !threadOK:
		return 0, fmt.Errorf("%w: %s", ErrThreadNotFound,
			base.ThreadID())
	}

	sortID, err := m.NextSortID(ctx)
	if err != nil {
		return 0, err
	}

	rec := base.Record()
	rec.SortID = sortID

	m.mu.Lock()
	m.interactions[rec.UniqueID] = mockRow{
		rec:     rec,
		variant: name,
		payload: payload,
	}
	m.mu.Unlock()

	return sortID, nil
}

// FetchInteraction loads an interaction by unique id.
func (m *MockStore) FetchInteraction(_ context.Context,
	uniqueID string) (fn.Option[interaction.Variant], error) {

	m.mu.RLock()
	row, ok := m.interactions[uniqueID]
	m.mu.RUnlock()

	if !ok {
		return fn.None[interaction.Variant](), nil
	}

	v, err := decodeRow(row)
	if err != nil {
		return fn.None[interaction.Variant](), err
	}

	return fn.Some(v), nil
}

// ListThreadInteractions pages through a thread in sort id order.
func (m *MockStore) ListThreadInteractions(_ context.Context,
	threadID string, afterSortID uint64,
	limit int) ([]interaction.Variant, error) {

	rows := m.filterRows(func(row mockRow) bool {
		return row.rec.ThreadID == threadID &&
			row.rec.SortID > afterSortID
	})

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].rec.SortID < rows[j].rec.SortID
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	variants := make([]interaction.Variant, 0, len(rows))
	for _, row := range rows {
		v, err := decodeRow(row)
		if err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}

	return variants, nil
}

// DeleteInteraction removes a stored interaction.
func (m *MockStore) DeleteInteraction(_ context.Context,
	uniqueID string) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.interactions[uniqueID]; !ok {
		return fmt.Errorf("%w: %s", ErrInteractionNotFound, uniqueID)
	}
	delete(m.interactions, uniqueID)

	return nil
}

// UpdatePlaceholder writes back a placeholder's timestamp and state.
func (m *MockStore) UpdatePlaceholder(_ context.Context,
	p *interaction.Placeholder) error {

	if !p.IsPersisted() {
		return fmt.Errorf("%w: %s", ErrNotPersisted, p.UniqueID())
	}

	name, payload, err := interaction.EncodeVariant(p)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.interactions[p.UniqueID()]
	if !ok || row.variant != name {
		return fmt.Errorf("%w: %s", ErrInteractionNotFound,
			p.UniqueID())
	}

	row.rec.Timestamp = p.Timestamp()
	row.payload = payload
	m.interactions[p.UniqueID()] = row

	return nil
}

// FindPlaceholder returns senderID's undecremented placeholder at
// timestamp.
func (m *MockStore) FindPlaceholder(_ context.Context, threadID,
	senderID string,
	timestamp uint64) (fn.Option[*interaction.Placeholder], error) {

	found, err := m.placeholders(func(p *interaction.Placeholder) bool {
		return p.ThreadID() == threadID &&
			p.SenderID == senderID &&
			p.Timestamp() == timestamp &&
			p.State() != interaction.PlaceholderDecremented
	})
	if err != nil || len(found) == 0 {
		return fn.None[*interaction.Placeholder](), err
	}

	sort.Slice(found, func(i, j int) bool {
		return found[i].SortID() < found[j].SortID()
	})

	return fn.Some(found[0]), nil
}

// ListActivePlaceholders returns active placeholders due by expiresBy.
func (m *MockStore) ListActivePlaceholders(_ context.Context,
	expiresBy uint64) ([]*interaction.Placeholder, error) {

	found, err := m.placeholders(func(p *interaction.Placeholder) bool {
		return p.State() == interaction.PlaceholderActive &&
			p.ExpiresAt() <= expiresBy
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].ExpiresAt() != found[j].ExpiresAt() {
			return found[i].ExpiresAt() < found[j].ExpiresAt()
		}

		return found[i].SortID() < found[j].SortID()
	})

	return found, nil
}

// CountInteractionsByType counts stored interactions per type.
func (m *MockStore) CountInteractionsByType(
	context.Context) (map[interaction.Type]int64, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[interaction.Type]int64)
	for _, row := range m.interactions {
		counts[row.rec.Kind]++
	}

	return counts, nil
}

// MaxSortID returns the highest committed sort id.
func (m *MockStore) MaxSortID(context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var maxID uint64
	for _, row := range m.interactions {
		maxID = max(maxID, row.rec.SortID)
	}

	return maxID, nil
}

// filterRows returns copies of the rows matching keep.
func (m *MockStore) filterRows(keep func(mockRow) bool) []mockRow {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rows []mockRow
	for _, row := range m.interactions {
		if keep(row) {
			rows = append(rows, row)
		}
	}

	return rows
}

// placeholders decodes every stored placeholder matching keep.
func (m *MockStore) placeholders(
	keep func(*interaction.Placeholder) bool) ([]*interaction.Placeholder,
	error) {

	var found []*interaction.Placeholder
	for _, row := range m.filterRows(func(row mockRow) bool {
		return row.rec.Kind == interaction.TypeError
	}) {
		v, err := decodeRow(row)
		if err != nil {
			return nil, err
		}

		p, ok := v.(*interaction.Placeholder)
		if ok && keep(p) {
			found = append(found, p)
		}
	}

	return found, nil
}

// decodeRow rebuilds the variant stored in row.
func decodeRow(row mockRow) (interaction.Variant, error) {
	base, err := interaction.FromStorage(row.rec)
	if err != nil {
		return nil, err
	}

	return interaction.DecodeVariant(base, row.variant, row.payload)
}

// Ensure MockStore implements Storage.
var _ Storage = (*MockStore)(nil)
