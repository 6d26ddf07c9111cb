package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlite_migrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DefaultBusyTimeout is how long SQLite waits on a locked database
	// before failing with SQLITE_BUSY.
	DefaultBusyTimeout = 5 * time.Second

	// DefaultDBFileName is the default database file name inside the data
	// directory.
	DefaultDBFileName = "convostore.db"

	// sqliteDriverName is the database name reported to golang-migrate.
	sqliteDriverName = "sqlite3"
)

// DefaultDBPath returns the default path for the convostore database.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(home, ".convostore", DefaultDBFileName), nil
}

// SqliteConfig holds the options for opening the interaction database.
type SqliteConfig struct {
	// DatabaseFileName is the full path of the database file.
	DatabaseFileName string

	// BusyTimeout overrides DefaultBusyTimeout when non-zero.
	BusyTimeout time.Duration

	// SkipMigrationDBBackup disables the VACUUM INTO copy taken before an
	// existing database is upgraded.
	SkipMigrationDBBackup bool
}

// SqliteStore is a SQLite-backed database handle with the schema applied.
type SqliteStore struct {
	*BaseDB

	cfg *SqliteConfig

	log *slog.Logger
}

// NewSqliteStore opens the database described by cfg, brings its schema up
// to LatestMigrationVersion and checks the sort id counter.
func NewSqliteStore(cfg *SqliteConfig, log *slog.Logger) (*SqliteStore, error) {
	if cfg.DatabaseFileName == "" {
		return nil, errors.New("database file name is required")
	}

	busyTimeout := cfg.BusyTimeout
	if busyTimeout == 0 {
		busyTimeout = DefaultBusyTimeout
	}

	sqlDB, err := OpenSQLite(cfg.DatabaseFileName, busyTimeout)
	if err != nil {
		return nil, err
	}

	s := &SqliteStore{
		BaseDB: NewBaseDB(sqlDB),
		cfg:    cfg,
		log:    log,
	}

	if err := s.migrate(context.Background()); err != nil {
		_ = sqlDB.Close()

		return nil, fmt.Errorf("error executing migrations: %w", err)
	}

	return s, nil
}

// migrate applies pending migrations. An existing database is backed up
// first; a fresh one has nothing worth keeping.
func (s *SqliteStore) migrate(ctx context.Context) error {
	driver, err := sqlite_migrate.WithInstance(
		s.DB, &sqlite_migrate.Config{},
	)
	if err != nil {
		return fmt.Errorf("error creating sqlite migration: %w", err)
	}

	m, err := newMigrator(driver, s.log)
	if err != nil {
		return err
	}

	from, err := schemaVersion(m)
	if err != nil {
		return err
	}

	if from < LatestMigrationVersion {
		if from > 0 && !s.cfg.SkipMigrationDBBackup {
			err := backupSqliteDatabase(
				ctx, s.DB, s.cfg.DatabaseFileName, s.log,
			)
			if err != nil {
				return err
			}
		}

		s.log.InfoContext(ctx, "Migrating interaction schema",
			"from_version", from,
			"to_version", LatestMigrationVersion,
		)

		err := m.Up()
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
	}

	return checkSortKeys(ctx, s.DB)
}

// OpenSQLite opens a SQLite database connection with WAL mode enabled and
// appropriate pragmas for performance and reliability.
func OpenSQLite(dbPath string, busyTimeout time.Duration) (*sql.DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w",
			err)
	}

	// Foreign keys are required for the thread cascade.
	dsn := fmt.Sprintf(
		"file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d",
		dbPath, busyTimeout.Milliseconds(),
	)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers, which is what keeps sort id
	// allocation and the insert in one ordered step.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := configurePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	return db, nil
}

// configurePragmas sets additional SQLite pragmas for optimal performance.
func configurePragmas(db *sql.DB) error {
	pragmas := []string{
		// NORMAL is durable under WAL and much faster than FULL.
		"PRAGMA synchronous = NORMAL",

		// Negative value is in KiB, 64MB cache.
		"PRAGMA cache_size = -65536",

		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}
