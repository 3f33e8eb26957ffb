// Package sqlite provides a SQLite-backed implementation of the
// storage.Storage interface using Go's standard database/sql package.
//
// WHY SQLite?
// ───────────
// SQLite stores everything in a single file on disk. There is no
// network, no separate server process, and no installation beyond the
// driver. It is the default backend for local runs and for tests.
//
// The schema lives in migrations/ and is applied by golang-migrate when
// the store is opened (see migrate.go).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aanand-mishra/student-records/internal/storage"
	"github.com/aanand-mishra/student-records/internal/types"

	// Importing the driver by name (not blank) also gives us sqlite3.Error
	// for constraint-code mapping; its init() registers "sqlite3".
	"github.com/mattn/go-sqlite3"
)

// SQLite is the concrete implementation of storage.Storage.
// It holds a *sql.DB which is a connection pool managed by database/sql.
// A single *sql.DB is safe for concurrent use by multiple goroutines.
type SQLite struct {
	Db *sql.DB
}

// Compile-time check that *SQLite satisfies the contract.
var _ storage.Storage = (*SQLite)(nil)

// studentColumns is the SELECT list shared by every query. scanStudent
// reads the columns in exactly this order.
const studentColumns = "id, reg_no, name, class, roll_no, contact_no, is_deleted, created_at, updated_at"

// New opens (creating if needed) the SQLite database file at path,
// applies pending migrations, and returns a ready-to-use *SQLite.
func New(path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite.New: empty database path")
	}

	if !isMemoryPath(path) {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite.New: create dir: %w", err)
			}
		}
	}

	// sql.Open does NOT open a real connection yet; it just validates
	// the driver name and data source name (DSN).
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite.New: open db: %w", err)
	}

	// SQLite allows one writer at a time. A single pooled connection
	// serialises writers inside the process instead of surfacing
	// "database is locked", and keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite.New: ping: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite.New: %w", err)
	}

	return &SQLite{Db: db}, nil
}

func isMemoryPath(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file:")
}

// ─────────────────────────────────────────────────────────────────────────────
// GetStudentByRegNo fetches exactly one row matched by registration number.
// The soft-delete flag is not filtered on.
// ─────────────────────────────────────────────────────────────────────────────
func (s *SQLite) GetStudentByRegNo(ctx context.Context, regNo string) (types.Student, error) {
	row := s.Db.QueryRowContext(ctx,
		"SELECT "+studentColumns+" FROM students WHERE reg_no = ? LIMIT 1",
		regNo,
	)

	student, err := scanStudent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Student{}, storage.ErrNotFound
		}
		return types.Student{}, fmt.Errorf("GetStudentByRegNo: scan: %w", err)
	}

	return student, nil
}

// FindActiveStudentByClassAndRoll looks for an active row holding the pair.
func (s *SQLite) FindActiveStudentByClassAndRoll(ctx context.Context, class, rollNo, excludeRegNo string) (types.Student, error) {
	row := s.Db.QueryRowContext(ctx,
		"SELECT "+studentColumns+` FROM students
		 WHERE class = ? AND roll_no = ? AND is_deleted = 0 AND reg_no <> ?
		 LIMIT 1`,
		class, rollNo, excludeRegNo,
	)

	student, err := scanStudent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Student{}, storage.ErrNotFound
		}
		return types.Student{}, fmt.Errorf("FindActiveStudentByClassAndRoll: scan: %w", err)
	}

	return student, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// CreateStudent inserts a new row into the students table.
//
// Placeholders (?) keep user input out of the SQL text; the driver sends
// the values separately and the engine treats them as pure data.
// ─────────────────────────────────────────────────────────────────────────────
func (s *SQLite) CreateStudent(ctx context.Context, student types.Student) (types.Student, error) {
	stmt, err := s.Db.PrepareContext(ctx, `
		INSERT INTO students (reg_no, name, class, roll_no, contact_no, is_deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return types.Student{}, fmt.Errorf("CreateStudent: prepare: %w", err)
	}
	defer stmt.Close()

	result, err := stmt.ExecContext(ctx,
		student.RegNo,
		student.Name,
		student.Class,
		student.RollNo,
		student.ContactNo,
		student.IsDeleted,
		student.CreatedAt,
		student.UpdatedAt,
	)
	if err != nil {
		return types.Student{}, fmt.Errorf("CreateStudent: exec: %w", mapError(err))
	}

	lastID, err := result.LastInsertId()
	if err != nil {
		return types.Student{}, fmt.Errorf("CreateStudent: last insert id: %w", err)
	}

	student.ID = lastID
	return student, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// UpdateStudentFields builds the SET clause from the non-nil fields of
// changes. Column names are fixed strings; only values are parameters.
// ─────────────────────────────────────────────────────────────────────────────
func (s *SQLite) UpdateStudentFields(ctx context.Context, regNo string, changes types.StudentChanges) (types.Student, error) {
	sets := make([]string, 0, 6)
	args := make([]any, 0, 7)

	add := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if changes.Name != nil {
		add("name", *changes.Name)
	}
	if changes.Class != nil {
		add("class", *changes.Class)
	}
	if changes.RollNo != nil {
		add("roll_no", *changes.RollNo)
	}
	if changes.ContactNo != nil {
		add("contact_no", *changes.ContactNo)
	}
	if changes.IsDeleted != nil {
		add("is_deleted", *changes.IsDeleted)
	}
	add("updated_at", changes.UpdatedAt)

	args = append(args, regNo)

	result, err := s.Db.ExecContext(ctx,
		"UPDATE students SET "+strings.Join(sets, ", ")+" WHERE reg_no = ?",
		args...,
	)
	if err != nil {
		return types.Student{}, fmt.Errorf("UpdateStudentFields: exec: %w", mapError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return types.Student{}, fmt.Errorf("UpdateStudentFields: rows affected: %w", err)
	}
	if affected == 0 {
		return types.Student{}, storage.ErrNotFound
	}

	// Re-fetch the record so we return exactly what is stored in the DB.
	return s.GetStudentByRegNo(ctx, regNo)
}

// CountStudents counts every row, soft-deleted included.
func (s *SQLite) CountStudents(ctx context.Context) (int64, error) {
	var total int64
	if err := s.Db.QueryRowContext(ctx, "SELECT COUNT(*) FROM students").Scan(&total); err != nil {
		return 0, fmt.Errorf("CountStudents: %w", err)
	}
	return total, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// ListStudents returns one window of rows, newest first.
//
// Rows created within the same timestamp fall back to id order so the
// listing stays stable between pages.
// ─────────────────────────────────────────────────────────────────────────────
func (s *SQLite) ListStudents(ctx context.Context, offset, limit int) ([]types.Student, error) {
	rows, err := s.Db.QueryContext(ctx,
		"SELECT "+studentColumns+" FROM students ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("ListStudents: query: %w", err)
	}
	defer rows.Close() // must close rows to free the DB connection

	// Returning [] instead of null in JSON is better API behaviour.
	students := make([]types.Student, 0, limit)

	for rows.Next() {
		student, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("ListStudents: scan row: %w", err)
		}
		students = append(students, student)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListStudents: rows iteration: %w", err)
	}

	return students, nil
}

// Ping checks the database connection.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.Db.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *SQLite) Close() error {
	return s.Db.Close()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanStudent(sc scanner) (types.Student, error) {
	var student types.Student
	err := sc.Scan(
		&student.ID,
		&student.RegNo,
		&student.Name,
		&student.Class,
		&student.RollNo,
		&student.ContactNo,
		&student.IsDeleted,
		&student.CreatedAt,
		&student.UpdatedAt,
	)
	if err != nil {
		return types.Student{}, err
	}

	student.CreatedAt = student.CreatedAt.UTC()
	student.UpdatedAt = student.UpdatedAt.UTC()
	return student, nil
}

// mapError translates unique-constraint failures into storage.ErrDuplicateKey
// and passes every other error through untouched.
func mapError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %v", storage.ErrDuplicateKey, err)
		}
	}
	return err
}
