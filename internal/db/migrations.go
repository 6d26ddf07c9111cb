package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/httpfs"
)

// LatestMigrationVersion is the schema version this build understands.
//
// NOTE: This MUST be updated when a new migration is added.
const LatestMigrationVersion uint = 2

var (
	// ErrMigrationDowngrade is returned when the database was written by a
	// newer build. Its schema is left alone, since only down migrations
	// could bring it back and they drop interactions.
	ErrMigrationDowngrade = errors.New("database downgrade detected")

	// ErrDirtySchema is returned when an earlier migration stopped half
	// way.
	ErrDirtySchema = errors.New("database schema is dirty")

	// ErrSortKeyBehind is returned when the sort id counter is lower than
	// a committed sort id, so the next allocation would reuse an id.
	ErrSortKeyBehind = errors.New("sort key counter behind stored " +
		"interactions")
)

// schemaLogger forwards golang-migrate output to the store logger.
type schemaLogger struct {
	log *slog.Logger
}

// Printf implements migrate.Logger.
func (l schemaLogger) Printf(format string, v ...any) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Verbose implements migrate.Logger.
func (schemaLogger) Verbose() bool {
	return false
}

// newMigrator builds a migrate instance over the embedded interaction
// schema.
func newMigrator(driver database.Driver,
	log *slog.Logger) (*migrate.Migrate, error) {

	src, err := httpfs.New(http.FS(sqlSchemas), "migrations")
	if err != nil {
		return nil, fmt.Errorf("unable to read embedded schema: %w", err)
	}

	m, err := migrate.NewWithInstance(
		"migrations", src, sqliteDriverName, driver,
	)
	if err != nil {
		return nil, err
	}
	m.Log = schemaLogger{log: log}

	return m, nil
}

// schemaVersion returns the applied schema version, zero for a fresh
// database. Dirty and newer-than-known schemas are refused.
func schemaVersion(m *migrate.Migrate) (uint, error) {
	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, nil

	case err != nil:
		return 0, fmt.Errorf("unable to read schema version: %w", err)

	case dirty:
		return 0, fmt.Errorf("%w at version %d, manual intervention "+
			"required", ErrDirtySchema, version)

	case version > LatestMigrationVersion:
		return 0, fmt.Errorf("%w: database is at version %d, this "+
			"build knows up to %d", ErrMigrationDowngrade, version,
			LatestMigrationVersion)
	}

	return version, nil
}

// checkSortKeys makes sure the interaction sort id counter is at least the
// highest committed sort id. A counter restored from an older copy of the
// database would otherwise hand out ids that are already taken, breaking
// the global order.
func checkSortKeys(ctx context.Context, q Querier) error {
	var counter, highest int64
	err := q.QueryRowContext(ctx, `
		SELECT
			(SELECT value FROM sort_keys WHERE name = 'interaction'),
			(SELECT COALESCE(MAX(sort_id), 0) FROM interactions)
	`).Scan(&counter, &highest)
	if err != nil {
		return fmt.Errorf("unable to read sort key counter: %w", err)
	}

	if counter < highest {
		return fmt.Errorf("%w: counter=%d, max_sort_id=%d",
			ErrSortKeyBehind, counter, highest)
	}

	return nil
}

// backupSqliteDatabase copies the database next to itself before an
// upgrade.
func backupSqliteDatabase(ctx context.Context, srcDB *sql.DB,
	dbPath string, log *slog.Logger) error {

	backupPath := fmt.Sprintf(
		"%s.%d.backup", dbPath, time.Now().UnixNano(),
	)

	log.InfoContext(ctx, "Backing up interaction database",
		"source", dbPath,
		"backup", backupPath,
	)

	// VACUUM INTO writes a consistent copy even while WAL is active.
	_, err := srcDB.ExecContext(ctx, "VACUUM INTO ?", backupPath)
	if err != nil {
		return fmt.Errorf("unable to back up database: %w", err)
	}

	return nil
}
