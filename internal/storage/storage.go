// Package storage defines the Storage interface, the contract any
// database backend must satisfy to hold student records.
//
// The service layer depends only on this interface, so the SQLite backend
// (package sqlite) and the ORM backend (package gormstore) are
// interchangeable, and tests can substitute a fake.
//
// Backends translate their driver errors into the sentinels below so the
// service can tell "nothing matched" and "unique constraint hit" apart
// from genuine failures without knowing which database is in use.
package storage

import (
	"context"
	"errors"

	"github.com/aanand-mishra/student-records/internal/types"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("storage: record not found")

	// ErrDuplicateKey is returned when a write violates a unique index
	// (registration number, or class and roll number among active rows).
	ErrDuplicateKey = errors.New("storage: duplicate key")
)

// Storage is the database contract.
//
// Uniqueness of reg_no is enforced atomically by the backend's unique
// index. Callers may pre-check with the lookup methods, but only the
// index is authoritative under concurrent writes.
type Storage interface {
	// GetStudentByRegNo returns the record with the given registration
	// number regardless of its soft-delete flag, or ErrNotFound.
	GetStudentByRegNo(ctx context.Context, regNo string) (types.Student, error)

	// FindActiveStudentByClassAndRoll returns an active (not soft-deleted)
	// record holding the class and roll number pair, skipping the record
	// whose registration number is excludeRegNo. ErrNotFound if none.
	FindActiveStudentByClassAndRoll(ctx context.Context, class, rollNo, excludeRegNo string) (types.Student, error)

	// CreateStudent inserts the record and returns it with its generated
	// ID. Returns ErrDuplicateKey on a unique index violation.
	CreateStudent(ctx context.Context, student types.Student) (types.Student, error)

	// UpdateStudentFields writes the non-nil fields of changes plus
	// UpdatedAt and returns the stored record afterwards.
	UpdateStudentFields(ctx context.Context, regNo string, changes types.StudentChanges) (types.Student, error)

	// CountStudents returns the number of rows, soft-deleted included.
	CountStudents(ctx context.Context) (int64, error)

	// ListStudents returns up to limit rows starting at offset, ordered by
	// creation time (newest first) and then by ID. Never returns nil.
	ListStudents(ctx context.Context, offset, limit int) ([]types.Student, error)

	// Ping checks that the database is reachable.
	Ping(ctx context.Context) error

	// Close releases the connection pool.
	Close() error
}
