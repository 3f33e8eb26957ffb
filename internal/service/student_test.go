package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aanand-mishra/student-records/internal/storage"
	"github.com/aanand-mishra/student-records/internal/storage/sqlite"
	"github.com/aanand-mishra/student-records/internal/types"
)

// stepClock advances by step on every reading.
type stepClock struct {
	t    time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T) (*StudentService, *stepClock) {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "students.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := &stepClock{t: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC), step: time.Second}
	return New(store, discardLogger(), WithClock(clock.Now)), clock
}

func input(regNo, class, rollNo string) types.CreateStudentInput {
	return types.CreateStudentInput{
		RegNo:     types.FlexString(regNo),
		Name:      "Student " + regNo,
		Class:     types.FlexString(class),
		RollNo:    types.FlexString(rollNo),
		ContactNo: "555",
	}
}

func assertSameStudent(t *testing.T, want, got types.Student) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.RegNo, got.RegNo)
	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, want.Class, got.Class)
	assert.Equal(t, want.RollNo, got.RollNo)
	assert.Equal(t, want.ContactNo, got.ContactNo)
	assert.Equal(t, want.IsDeleted, got.IsDeleted)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "createdAt %s != %s", got.CreatedAt, want.CreatedAt)
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt), "updatedAt %s != %s", got.UpdatedAt, want.UpdatedAt)
}

func ptr[T any](v T) *T { return &v }

func assertKind(t *testing.T, err error, want Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want, KindOf(err), "error: %v", err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Create
// ─────────────────────────────────────────────────────────────────────────────

func TestCreate_Valid(t *testing.T) {
	svc, _ := newTestService(t)

	created, err := svc.Create(context.Background(), types.CreateStudentInput{
		RegNo:     "  R1 ",
		Name:      " Asha ",
		Class:     "10",
		RollNo:    "1",
		ContactNo: "555",
	})
	require.NoError(t, err)

	assert.Equal(t, "R1", created.RegNo)
	assert.Equal(t, "Asha", created.Name)
	assert.Equal(t, "10", created.Class)
	assert.Equal(t, "1", created.RollNo)
	assert.Equal(t, "555", created.ContactNo)
	assert.False(t, created.IsDeleted)
	assert.NotZero(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.True(t, created.CreatedAt.Equal(created.UpdatedAt))
}

func TestCreate_MissingFields(t *testing.T) {
	svc, _ := newTestService(t)

	tests := []struct {
		name  string
		in    types.CreateStudentInput
		field string
	}{
		{"regNo", types.CreateStudentInput{Name: "A", Class: "10", RollNo: "1", ContactNo: "555"}, "regNo"},
		{"name", types.CreateStudentInput{RegNo: "R1", Class: "10", RollNo: "1", ContactNo: "555"}, "name"},
		{"class", types.CreateStudentInput{RegNo: "R1", Name: "A", RollNo: "1", ContactNo: "555"}, "class"},
		{"rollNo", types.CreateStudentInput{RegNo: "R1", Name: "A", Class: "10", ContactNo: "555"}, "rollNo"},
		{"contactNo", types.CreateStudentInput{RegNo: "R1", Name: "A", Class: "10", RollNo: "1"}, "contactNo"},
		{"blank name", types.CreateStudentInput{RegNo: "R1", Name: "   ", Class: "10", RollNo: "1", ContactNo: "555"}, "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.in)
			assertKind(t, err, KindValidation)
			assert.Contains(t, MessageOf(err), fmt.Sprintf("field %s is required", tt.field))
		})
	}
}

func TestCreate_DuplicateRegNo(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, input("R1", "10", "1"))
	require.NoError(t, err)

	dup := input("R1", "11", "2")
	dup.Name = "Someone Else"
	_, err = svc.Create(ctx, dup)
	assertKind(t, err, KindConflict)

	got, err := svc.Get(ctx, "R1")
	require.NoError(t, err)
	assertSameStudent(t, first, got)
}

func TestCreate_DuplicateRegNoOfDeletedStudent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, input("R1", "10", "1"))
	require.NoError(t, err)
	_, err = svc.SoftDelete(ctx, "R1")
	require.NoError(t, err)

	_, err = svc.Create(ctx, input("R1", "10", "1"))
	assertKind(t, err, KindConflict)
}

func TestCreate_DuplicateClassRoll(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, input("R1", "10", "1"))
	require.NoError(t, err)

	_, err = svc.Create(ctx, input("R2", "10", "1"))
	assertKind(t, err, KindConflict)

	_, err = svc.Create(ctx, input("R3", "11", "1"))
	assert.NoError(t, err, "different class")

	_, err = svc.Create(ctx, input("R4", "10", "2"))
	assert.NoError(t, err, "different roll number")

	_, err = svc.SoftDelete(ctx, "R1")
	require.NoError(t, err)

	_, err = svc.Create(ctx, input("R5", "10", "1"))
	assert.NoError(t, err, "pair freed by soft delete")
}

func TestCreate_StoreDuplicateOnInsertIsConflict(t *testing.T) {
	mock := &MockStorage{
		GetStudentByRegNoFunc: func(context.Context, string) (types.Student, error) {
			return types.Student{}, storage.ErrNotFound
		},
		FindActiveStudentByClassAndRollFunc: func(context.Context, string, string, string) (types.Student, error) {
			return types.Student{}, storage.ErrNotFound
		},
		CreateStudentFunc: func(context.Context, types.Student) (types.Student, error) {
			return types.Student{}, fmt.Errorf("insert: %w", storage.ErrDuplicateKey)
		},
	}
	svc := New(mock, discardLogger())

	_, err := svc.Create(context.Background(), input("R1", "10", "1"))
	assertKind(t, err, KindConflict)
	assert.Equal(t, 1, mock.CreateCalls)
}

func TestCreate_StoreFailure(t *testing.T) {
	boom := errors.New("connection reset")
	mock := &MockStorage{
		GetStudentByRegNoFunc: func(context.Context, string) (types.Student, error) {
			return types.Student{}, boom
		},
	}
	svc := New(mock, discardLogger())

	_, err := svc.Create(context.Background(), input("R1", "10", "1"))
	assertKind(t, err, KindStore)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "internal storage error", MessageOf(err))
	assert.Zero(t, mock.CreateCalls, "no write after a failed pre-check")
}

// ─────────────────────────────────────────────────────────────────────────────
// List
// ─────────────────────────────────────────────────────────────────────────────

func TestList_Pagination(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := 1; i <= 15; i++ {
		_, err := svc.Create(ctx, input(fmt.Sprintf("R%02d", i), "10", fmt.Sprint(i)))
		require.NoError(t, err)
	}

	first, err := svc.List(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, first.Students, 10)
	assert.Equal(t, "R15", first.Students[0].RegNo)
	assert.Equal(t, "R06", first.Students[9].RegNo)
	for i := 1; i < len(first.Students); i++ {
		assert.True(t, first.Students[i-1].CreatedAt.After(first.Students[i].CreatedAt), "newest first")
	}
	assert.Equal(t, types.Pagination{Total: 15, Page: 1, Limit: 10, TotalPages: 2}, first.Pagination)

	second, err := svc.List(ctx, 2, 10)
	require.NoError(t, err)
	require.Len(t, second.Students, 5)
	assert.Equal(t, "R05", second.Students[0].RegNo)
	assert.Equal(t, "R01", second.Students[4].RegNo)

	third, err := svc.List(ctx, 3, 10)
	require.NoError(t, err)
	assert.NotNil(t, third.Students)
	assert.Empty(t, third.Students)
	assert.Equal(t, 3, third.Pagination.Page)
}

func TestList_Coercion(t *testing.T) {
	mock := &MockStorage{
		CountStudentsFunc: func(context.Context) (int64, error) { return 250, nil },
		ListStudentsFunc: func(_ context.Context, offset, limit int) ([]types.Student, error) {
			return []types.Student{}, nil
		},
	}
	svc := New(mock, discardLogger())
	ctx := context.Background()

	tests := []struct {
		page, limit         int
		wantPage, wantLimit int
	}{
		{0, 0, 1, 10},
		{-3, -1, 1, 10},
		{2, 1000, 2, MaxLimit},
		{4, 25, 4, 25},
	}

	for _, tt := range tests {
		res, err := svc.List(ctx, tt.page, tt.limit)
		require.NoError(t, err)
		assert.Equal(t, tt.wantPage, res.Pagination.Page)
		assert.Equal(t, tt.wantLimit, res.Pagination.Limit)
	}
}

func TestList_OffsetPassedToStore(t *testing.T) {
	var gotOffset, gotLimit int
	mock := &MockStorage{
		CountStudentsFunc: func(context.Context) (int64, error) { return 45, nil },
		ListStudentsFunc: func(_ context.Context, offset, limit int) ([]types.Student, error) {
			gotOffset, gotLimit = offset, limit
			return []types.Student{}, nil
		},
	}
	svc := New(mock, discardLogger(), WithMaxLimit(20))

	res, err := svc.List(context.Background(), 3, 50)
	require.NoError(t, err)
	assert.Equal(t, 40, gotOffset)
	assert.Equal(t, 20, gotLimit)
	assert.Equal(t, 3, res.Pagination.TotalPages)
}

func TestList_PastLastPageSkipsQuery(t *testing.T) {
	mock := &MockStorage{
		CountStudentsFunc: func(context.Context) (int64, error) { return 5, nil },
	}
	svc := New(mock, discardLogger())

	res, err := svc.List(context.Background(), math.MaxInt, 10)
	require.NoError(t, err)
	assert.Empty(t, res.Students)
	assert.Zero(t, mock.ListCalls)

	empty := &MockStorage{
		CountStudentsFunc: func(context.Context) (int64, error) { return 0, nil },
	}
	res, err = New(empty, discardLogger()).List(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Pagination.TotalPages)
	assert.NotNil(t, res.Students)
}

func TestList_StoreFailure(t *testing.T) {
	mock := &MockStorage{
		CountStudentsFunc: func(context.Context) (int64, error) { return 0, errors.New("disk I/O error") },
	}
	_, err := New(mock, discardLogger()).List(context.Background(), 1, 10)
	assertKind(t, err, KindStore)
}

// ─────────────────────────────────────────────────────────────────────────────
// Get
// ─────────────────────────────────────────────────────────────────────────────

func TestGet(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, input("R1", "10", "1"))
	require.NoError(t, err)

	got, err := svc.Get(ctx, " R1 ")
	require.NoError(t, err)
	assert.Equal(t, "R1", got.RegNo)

	_, err = svc.Get(ctx, "   ")
	assertKind(t, err, KindValidation)

	_, err = svc.Get(ctx, "R404")
	assertKind(t, err, KindNotFound)
}

// ─────────────────────────────────────────────────────────────────────────────
// Update
// ─────────────────────────────────────────────────────────────────────────────

func TestUpdate_EmptyPatch(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, input("R1", "10", "1"))
	require.NoError(t, err)

	_, err = svc.Update(ctx, "R1", types.StudentPatch{})
	assertKind(t, err, KindValidation)

	_, err = svc.Update(ctx, "", types.StudentPatch{Name: ptr("B")})
	assertKind(t, err, KindValidation)
}

func TestUpdate_BlankField(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, input("R1", "10", "1"))
	require.NoError(t, err)

	_, err = svc.Update(ctx, "R1", types.StudentPatch{RollNo: ptr(types.FlexString("  "))})
	assertKind(t, err, KindValidation)
	assert.Contains(t, MessageOf(err), "rollNo")
}

func TestUpdate_ContactOnly(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, input("R1", "10", "1"))
	require.NoError(t, err)

	updated, err := svc.Update(ctx, "R1", types.StudentPatch{ContactNo: ptr(types.FlexString("999"))})
	require.NoError(t, err)

	assert.Equal(t, "999", updated.ContactNo)
	assert.Equal(t, created.Name, updated.Name)
	assert.Equal(t, created.Class, updated.Class)
	assert.Equal(t, created.RollNo, updated.RollNo)
	assert.True(t, created.CreatedAt.Equal(updated.CreatedAt))
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
}

func TestUpdate_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Update(context.Background(), "R404", types.StudentPatch{Name: ptr("B")})
	assertKind(t, err, KindNotFound)
}

func TestUpdate_ClassRollConflict(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, input("R1", "10", "1"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, input("R2", "10", "2"))
	require.NoError(t, err)

	_, err = svc.Update(ctx, "R2", types.StudentPatch{
		Class:  ptr(types.FlexString("10")),
		RollNo: ptr(types.FlexString("1")),
	})
	assertKind(t, err, KindConflict)

	_, err = svc.Update(ctx, "R2", types.StudentPatch{RollNo: ptr(types.FlexString("1"))})
	assertKind(t, err, KindConflict) // single field change lands on a taken pair

	// Re-submitting the record's own pair is not a conflict.
	_, err = svc.Update(ctx, "R1", types.StudentPatch{
		Class:  ptr(types.FlexString("10")),
		RollNo: ptr(types.FlexString("1")),
	})
	assert.NoError(t, err)

	moved, err := svc.Update(ctx, "R2", types.StudentPatch{
		Class:  ptr(types.FlexString("11")),
		RollNo: ptr(types.FlexString("1")),
	})
	require.NoError(t, err)
	assert.Equal(t, "11", moved.Class)
}

func TestUpdate_StoreDuplicateIsConflict(t *testing.T) {
	current := types.Student{RegNo: "R1", Class: "10", RollNo: "1", UpdatedAt: time.Now().UTC()}
	mock := &MockStorage{
		GetStudentByRegNoFunc: func(context.Context, string) (types.Student, error) { return current, nil },
		FindActiveStudentByClassAndRollFunc: func(context.Context, string, string, string) (types.Student, error) {
			return types.Student{}, storage.ErrNotFound
		},
		UpdateStudentFieldsFunc: func(context.Context, string, types.StudentChanges) (types.Student, error) {
			return types.Student{}, storage.ErrDuplicateKey
		},
	}

	_, err := New(mock, discardLogger()).Update(context.Background(), "R1",
		types.StudentPatch{RollNo: ptr(types.FlexString("2"))})
	assertKind(t, err, KindConflict)
}

// ─────────────────────────────────────────────────────────────────────────────
// SoftDelete
// ─────────────────────────────────────────────────────────────────────────────

func TestSoftDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SoftDelete(ctx, "R404")
	assertKind(t, err, KindNotFound)

	_, err = svc.SoftDelete(ctx, " ")
	assertKind(t, err, KindValidation)

	created, err := svc.Create(ctx, input("R1", "10", "1"))
	require.NoError(t, err)

	deleted, err := svc.SoftDelete(ctx, "R1")
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.True(t, deleted.UpdatedAt.After(created.UpdatedAt))

	// Deleting again succeeds and still advances updatedAt.
	again, err := svc.SoftDelete(ctx, "R1")
	require.NoError(t, err)
	assert.True(t, again.IsDeleted)
	assert.True(t, again.UpdatedAt.After(deleted.UpdatedAt))
}

func TestUpdatedAtStrictlyIncreasesUnderFrozenClock(t *testing.T) {
	svc, clock := newTestService(t)
	clock.step = 0
	ctx := context.Background()

	created, err := svc.Create(ctx, input("R1", "10", "1"))
	require.NoError(t, err)

	prev := created.UpdatedAt
	for i := 0; i < 3; i++ {
		updated, err := svc.Update(ctx, "R1", types.StudentPatch{Name: ptr(fmt.Sprintf("Name %d", i))})
		require.NoError(t, err)
		assert.True(t, updated.UpdatedAt.After(prev), "iteration %d", i)
		prev = updated.UpdatedAt
	}

	deleted, err := svc.SoftDelete(ctx, "R1")
	require.NoError(t, err)
	assert.True(t, deleted.UpdatedAt.After(prev))
}

func TestExampleWalkthrough(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	r1 := types.CreateStudentInput{RegNo: "R1", Name: "A", Class: "10", RollNo: "1", ContactNo: "555"}

	created, err := svc.Create(ctx, r1)
	require.NoError(t, err)
	assert.False(t, created.IsDeleted)

	_, err = svc.Create(ctx, r1)
	assertKind(t, err, KindConflict)

	got, err := svc.Get(ctx, "R1")
	require.NoError(t, err)
	assertSameStudent(t, created, got)

	deleted, err := svc.SoftDelete(ctx, "R1")
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)

	got, err = svc.Get(ctx, "R1")
	require.NoError(t, err, "lookup ignores the soft-delete flag")
	assert.True(t, got.IsDeleted)
}

func TestKindOf_ForeignError(t *testing.T) {
	err := errors.New("plain")
	assert.Equal(t, KindStore, KindOf(err))
	assert.Equal(t, "internal storage error", MessageOf(err))
}
