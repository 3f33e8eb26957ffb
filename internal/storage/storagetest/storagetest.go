// Package storagetest is a behavioural test suite every storage.Storage
// backend must pass. Backend packages call Run from their own tests.
package storagetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aanand-mishra/student-records/internal/storage"
	"github.com/aanand-mishra/student-records/internal/types"
)

// Factory returns an empty, migrated store. Run closes it.
type Factory func(t *testing.T) storage.Storage

var base = time.Date(2024, 3, 1, 9, 30, 0, 123456000, time.UTC)

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Storage)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"GetMissing", testGetMissing},
		{"DuplicateRegNo", testDuplicateRegNo},
		{"DuplicateActiveClassRoll", testDuplicateActiveClassRoll},
		{"FindActiveByClassAndRoll", testFindActiveByClassAndRoll},
		{"UpdateFields", testUpdateFields},
		{"UpdateMissing", testUpdateMissing},
		{"CountAndList", testCountAndList},
		{"Ping", testPing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func record(regNo, class, rollNo string, at time.Time) types.Student {
	return types.Student{
		RegNo:     regNo,
		Name:      "Student " + regNo,
		Class:     class,
		RollNo:    rollNo,
		ContactNo: "555-0100",
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func mustCreate(t *testing.T, s storage.Storage, st types.Student) types.Student {
	t.Helper()
	created, err := s.CreateStudent(context.Background(), st)
	require.NoError(t, err)
	return created
}

func testCreateAndGet(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	created := mustCreate(t, s, record("R1", "10", "1", base))
	assert.NotZero(t, created.ID)
	assert.Equal(t, "R1", created.RegNo)

	got, err := s.GetStudentByRegNo(ctx, "R1")
	require.NoError(t, err)

	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Student R1", got.Name)
	assert.Equal(t, "10", got.Class)
	assert.Equal(t, "1", got.RollNo)
	assert.Equal(t, "555-0100", got.ContactNo)
	assert.False(t, got.IsDeleted)
	assert.True(t, base.Equal(got.CreatedAt), "created_at %s != %s", got.CreatedAt, base)
	assert.True(t, base.Equal(got.UpdatedAt), "updated_at %s != %s", got.UpdatedAt, base)
}

func testGetMissing(t *testing.T, s storage.Storage) {
	_, err := s.GetStudentByRegNo(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testDuplicateRegNo(t *testing.T, s storage.Storage) {
	mustCreate(t, s, record("R1", "10", "1", base))

	_, err := s.CreateStudent(context.Background(), record("R1", "11", "7", base))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// A soft-deleted row still owns its registration number.
	deleted := true
	_, err = s.UpdateStudentFields(context.Background(), "R1", types.StudentChanges{
		IsDeleted: &deleted,
		UpdatedAt: base.Add(time.Second),
	})
	require.NoError(t, err)

	_, err = s.CreateStudent(context.Background(), record("R1", "12", "9", base))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func testDuplicateActiveClassRoll(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	mustCreate(t, s, record("R1", "10", "1", base))

	_, err := s.CreateStudent(ctx, record("R2", "10", "1", base))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	deleted := true
	_, err = s.UpdateStudentFields(ctx, "R1", types.StudentChanges{
		IsDeleted: &deleted,
		UpdatedAt: base.Add(time.Second),
	})
	require.NoError(t, err)

	// The pair is free once its holder is soft-deleted.
	_, err = s.CreateStudent(ctx, record("R2", "10", "1", base))
	assert.NoError(t, err)
}

func testFindActiveByClassAndRoll(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	mustCreate(t, s, record("R1", "10", "1", base))

	got, err := s.FindActiveStudentByClassAndRoll(ctx, "10", "1", "")
	require.NoError(t, err)
	assert.Equal(t, "R1", got.RegNo)

	_, err = s.FindActiveStudentByClassAndRoll(ctx, "10", "1", "R1")
	assert.ErrorIs(t, err, storage.ErrNotFound, "excluded record must be skipped")

	_, err = s.FindActiveStudentByClassAndRoll(ctx, "10", "2", "")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	deleted := true
	_, err = s.UpdateStudentFields(ctx, "R1", types.StudentChanges{
		IsDeleted: &deleted,
		UpdatedAt: base.Add(time.Second),
	})
	require.NoError(t, err)

	_, err = s.FindActiveStudentByClassAndRoll(ctx, "10", "1", "")
	assert.ErrorIs(t, err, storage.ErrNotFound, "deleted records are not active")
}

func testUpdateFields(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	mustCreate(t, s, record("R1", "10", "1", base))

	contact := "555-0199"
	later := base.Add(90 * time.Second)

	updated, err := s.UpdateStudentFields(ctx, "R1", types.StudentChanges{
		ContactNo: &contact,
		UpdatedAt: later,
	})
	require.NoError(t, err)

	assert.Equal(t, "555-0199", updated.ContactNo)
	assert.Equal(t, "Student R1", updated.Name, "unsupplied fields stay put")
	assert.Equal(t, "10", updated.Class)
	assert.Equal(t, "1", updated.RollNo)
	assert.True(t, later.Equal(updated.UpdatedAt))
	assert.True(t, base.Equal(updated.CreatedAt))

	name, class, roll := "Renamed", "11", "4"
	updated, err = s.UpdateStudentFields(ctx, "R1", types.StudentChanges{
		Name:      &name,
		Class:     &class,
		RollNo:    &roll,
		UpdatedAt: later.Add(time.Second),
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "11", updated.Class)
	assert.Equal(t, "4", updated.RollNo)

	mustCreate(t, s, record("R2", "12", "5", base))
	_, err = s.UpdateStudentFields(ctx, "R2", types.StudentChanges{
		Class:     &class,
		RollNo:    &roll,
		UpdatedAt: later.Add(2 * time.Second),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func testUpdateMissing(t *testing.T, s storage.Storage) {
	name := "x"
	_, err := s.UpdateStudentFields(context.Background(), "ghost", types.StudentChanges{
		Name:      &name,
		UpdatedAt: base,
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testCountAndList(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	total, err := s.CountStudents(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)

	empty, err := s.ListStudents(ctx, 0, 10)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	for i := 1; i <= 15; i++ {
		mustCreate(t, s, record(fmt.Sprintf("R%02d", i), "10", fmt.Sprint(i), base.Add(time.Duration(i)*time.Minute)))
	}

	total, err = s.CountStudents(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 15, total)

	first, err := s.ListStudents(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, first, 10)
	assert.Equal(t, "R15", first[0].RegNo, "newest first")
	assert.Equal(t, "R06", first[9].RegNo)

	second, err := s.ListStudents(ctx, 10, 10)
	require.NoError(t, err)
	require.Len(t, second, 5)
	assert.Equal(t, "R05", second[0].RegNo)
	assert.Equal(t, "R01", second[4].RegNo)

	beyond, err := s.ListStudents(ctx, 20, 10)
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func testPing(t *testing.T, s storage.Storage) {
	assert.NoError(t, s.Ping(context.Background()))
}
