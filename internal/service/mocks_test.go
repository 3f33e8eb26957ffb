package service

import (
	"context"
	"errors"

	"github.com/aanand-mishra/student-records/internal/storage"
	"github.com/aanand-mishra/student-records/internal/types"
)

// Compile-time check to ensure MockStorage implements storage.Storage
var _ storage.Storage = (*MockStorage)(nil)

// MockStorage is a func-field fake of storage.Storage. Unset functions
// fail, so a test only wires the calls it expects.
type MockStorage struct {
	GetStudentByRegNoFunc               func(ctx context.Context, regNo string) (types.Student, error)
	FindActiveStudentByClassAndRollFunc func(ctx context.Context, class, rollNo, excludeRegNo string) (types.Student, error)
	CreateStudentFunc                   func(ctx context.Context, student types.Student) (types.Student, error)
	UpdateStudentFieldsFunc             func(ctx context.Context, regNo string, changes types.StudentChanges) (types.Student, error)
	CountStudentsFunc                   func(ctx context.Context) (int64, error)
	ListStudentsFunc                    func(ctx context.Context, offset, limit int) ([]types.Student, error)

	CreateCalls int
	ListCalls   int
}

var errNotWired = errors.New("mock: not wired")

func (m *MockStorage) GetStudentByRegNo(ctx context.Context, regNo string) (types.Student, error) {
	if m.GetStudentByRegNoFunc != nil {
		return m.GetStudentByRegNoFunc(ctx, regNo)
	}
	return types.Student{}, errNotWired
}

func (m *MockStorage) FindActiveStudentByClassAndRoll(ctx context.Context, class, rollNo, excludeRegNo string) (types.Student, error) {
	if m.FindActiveStudentByClassAndRollFunc != nil {
		return m.FindActiveStudentByClassAndRollFunc(ctx, class, rollNo, excludeRegNo)
	}
	return types.Student{}, errNotWired
}

func (m *MockStorage) CreateStudent(ctx context.Context, student types.Student) (types.Student, error) {
	m.CreateCalls++
	if m.CreateStudentFunc != nil {
		return m.CreateStudentFunc(ctx, student)
	}
	return types.Student{}, errNotWired
}

func (m *MockStorage) UpdateStudentFields(ctx context.Context, regNo string, changes types.StudentChanges) (types.Student, error) {
	if m.UpdateStudentFieldsFunc != nil {
		return m.UpdateStudentFieldsFunc(ctx, regNo, changes)
	}
	return types.Student{}, errNotWired
}

func (m *MockStorage) CountStudents(ctx context.Context) (int64, error) {
	if m.CountStudentsFunc != nil {
		return m.CountStudentsFunc(ctx)
	}
	return 0, errNotWired
}

func (m *MockStorage) ListStudents(ctx context.Context, offset, limit int) ([]types.Student, error) {
	m.ListCalls++
	if m.ListStudentsFunc != nil {
		return m.ListStudentsFunc(ctx, offset, limit)
	}
	return nil, errNotWired
}

func (m *MockStorage) Ping(ctx context.Context) error { return nil }

func (m *MockStorage) Close() error { return nil }
