package db

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrRetriesExceeded is returned when a transaction is retried more
	// than the max allowed value without a success.
	ErrRetriesExceeded = errors.New("db tx retries exceeded")
)

// ErrorClass groups SQLite failures by how the store reacts to them.
type ErrorClass uint8

const (
	// ClassUnique means a unique id or sort id is already taken.
	ClassUnique ErrorClass = iota + 1

	// ClassForeignKey means a row references a thread or interaction that
	// does not exist.
	ClassForeignKey

	// ClassContention means another writer holds the database. The whole
	// transaction can be retried.
	ClassContention
)

// String returns the class name.
func (c ErrorClass) String() string {
	switch c {
	case ClassUnique:
		return "unique constraint violation"
	case ClassForeignKey:
		return "foreign key violation"
	case ClassContention:
		return "database contention"
	default:
		return fmt.Sprintf("ErrorClass(%d)", uint8(c))
	}
}

// SQLError is a driver error the store knows how to handle.
type SQLError struct {
	Class ErrorClass
	Err   error
}

// Error returns the error message.
func (e *SQLError) Error() string {
	return fmt.Sprintf("sql %v: %v", e.Class, e.Err)
}

// Unwrap returns the driver error.
func (e *SQLError) Unwrap() error {
	return e.Err
}

// MapSQLError classifies err when it carries a SQLite failure the store
// handles. Any other error is returned unchanged.
func MapSQLError(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}

	class, ok := classify(sqliteErr)
	if !ok {
		return err
	}

	return &SQLError{Class: class, Err: err}
}

func classify(e sqlite3.Error) (ErrorClass, bool) {
	switch {
	case e.ExtendedCode == sqlite3.ErrConstraintUnique,
		e.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:

		return ClassUnique, true

	case e.ExtendedCode == sqlite3.ErrConstraintForeignKey:
		return ClassForeignKey, true

	// SQLITE_LOCKED is a conflict on the same connection, SQLITE_BUSY one
	// with another connection. Both clear up once the other tx is done.
	case e.Code == sqlite3.ErrBusy, e.Code == sqlite3.ErrLocked:
		return ClassContention, true

	default:
		return 0, false
	}
}

func hasClass(err error, class ErrorClass) bool {
	var sqlErr *SQLError
	return errors.As(err, &sqlErr) && sqlErr.Class == class
}

// IsUniqueConstraintViolation reports whether err is a mapped unique or
// primary key violation.
func IsUniqueConstraintViolation(err error) bool {
	return hasClass(err, ClassUnique)
}

// IsForeignKeyViolation reports whether err is a mapped foreign key
// violation.
func IsForeignKeyViolation(err error) bool {
	return hasClass(err, ClassForeignKey)
}

// IsRetryable reports whether the transaction that failed with err may be
// run again.
func IsRetryable(err error) bool {
	return hasClass(err, ClassContention)
}
