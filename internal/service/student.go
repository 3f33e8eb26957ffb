// Package service holds the student record rules: input validation, the
// registration-number and class/roll uniqueness checks, soft deletion and
// pagination. It keeps no state between calls; everything durable lives
// behind storage.Storage.
//
// The uniqueness checks here are advisory. Two concurrent creates with the
// same registration number can both pass the pre-check; the store's unique
// index rejects the loser, which is reported as a ConflictError as well.
package service

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/aanand-mishra/student-records/internal/storage"
	"github.com/aanand-mishra/student-records/internal/types"
)

// Pagination defaults.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// StudentService implements the five record operations.
type StudentService struct {
	store    storage.Storage
	log      *slog.Logger
	validate *validator.Validate
	now      func() time.Time
	maxLimit int
}

// Option customises a StudentService.
type Option func(*StudentService)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *StudentService) { s.now = now }
}

// WithMaxLimit caps the page size accepted by List.
func WithMaxLimit(limit int) Option {
	return func(s *StudentService) {
		if limit > 0 {
			s.maxLimit = limit
		}
	}
}

// New returns a service over store. A nil log falls back to slog.Default.
func New(store storage.Storage, log *slog.Logger, opts ...Option) *StudentService {
	if log == nil {
		log = slog.Default()
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names so messages match the request body.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	s := &StudentService{
		store:    store,
		log:      log,
		validate: v,
		now:      time.Now,
		maxLimit: MaxLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates in, checks both uniqueness rules and persists a new
// active record with CreatedAt == UpdatedAt.
func (s *StudentService) Create(ctx context.Context, in types.CreateStudentInput) (types.Student, error) {
	in = types.CreateStudentInput{
		RegNo:     types.FlexString(in.RegNo.Trimmed()),
		Name:      strings.TrimSpace(in.Name),
		Class:     types.FlexString(in.Class.Trimmed()),
		RollNo:    types.FlexString(in.RollNo.Trimmed()),
		ContactNo: types.FlexString(in.ContactNo.Trimmed()),
	}

	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return types.Student{}, validationFailed(verrs)
		}
		return types.Student{}, invalid("%s", err.Error())
	}

	regNo := string(in.RegNo)

	_, err := s.store.GetStudentByRegNo(ctx, regNo)
	switch {
	case err == nil:
		return types.Student{}, conflict("registration number %q already exists", regNo)
	case !errors.Is(err, storage.ErrNotFound):
		return types.Student{}, s.storeFailure(ctx, "create", err)
	}

	if err := s.ensureRollAvailable(ctx, string(in.Class), string(in.RollNo), ""); err != nil {
		return types.Student{}, err
	}

	now := s.timestamp(time.Time{})
	created, err := s.store.CreateStudent(ctx, types.Student{
		RegNo:     regNo,
		Name:      in.Name,
		Class:     string(in.Class),
		RollNo:    string(in.RollNo),
		ContactNo: string(in.ContactNo),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return types.Student{}, conflict("a student with registration number %q or roll number %q in class %q already exists",
				regNo, in.RollNo, in.Class)
		}
		return types.Student{}, s.storeFailure(ctx, "create", err)
	}

	s.log.InfoContext(ctx, "student created",
		slog.String("reg_no", created.RegNo),
		slog.Int64("id", created.ID))

	return created, nil
}

// List returns one page of students, newest first. Out-of-range values
// for page and limit are coerced, never rejected.
func (s *StudentService) List(ctx context.Context, page, limit int) (types.StudentPage, error) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	total, err := s.store.CountStudents(ctx)
	if err != nil {
		return types.StudentPage{}, s.storeFailure(ctx, "list", err)
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))

	result := types.StudentPage{
		Students: []types.Student{},
		Pagination: types.Pagination{
			Total:      total,
			Page:       page,
			Limit:      limit,
			TotalPages: totalPages,
		},
	}

	// Past the last page: nothing to fetch, and (page-1)*limit could
	// overflow for absurd page numbers.
	if page > totalPages {
		return result, nil
	}

	students, err := s.store.ListStudents(ctx, (page-1)*limit, limit)
	if err != nil {
		return types.StudentPage{}, s.storeFailure(ctx, "list", err)
	}
	result.Students = students

	return result, nil
}

// Get returns the record with the given registration number, including
// soft-deleted records.
func (s *StudentService) Get(ctx context.Context, regNo string) (types.Student, error) {
	regNo = strings.TrimSpace(regNo)
	if regNo == "" {
		return types.Student{}, invalid("registration number is required")
	}

	return s.lookup(ctx, "get", regNo)
}

// Update applies the supplied fields of patch. When the class or the roll
// number changes, the resulting pair must not belong to another active
// record.
func (s *StudentService) Update(ctx context.Context, regNo string, patch types.StudentPatch) (types.Student, error) {
	regNo = strings.TrimSpace(regNo)
	if regNo == "" {
		return types.Student{}, invalid("registration number is required")
	}
	if patch.IsEmpty() {
		return types.Student{}, invalid("at least one of name, class, rollNo, contactNo must be provided")
	}

	changes, err := changesFromPatch(patch)
	if err != nil {
		return types.Student{}, err
	}

	current, err := s.lookup(ctx, "update", regNo)
	if err != nil {
		return types.Student{}, err
	}

	if changes.Class != nil || changes.RollNo != nil {
		class, rollNo := current.Class, current.RollNo
		if changes.Class != nil {
			class = *changes.Class
		}
		if changes.RollNo != nil {
			rollNo = *changes.RollNo
		}
		if err := s.ensureRollAvailable(ctx, class, rollNo, regNo); err != nil {
			return types.Student{}, err
		}
	}

	changes.UpdatedAt = s.timestamp(current.UpdatedAt)

	updated, err := s.write(ctx, "update", regNo, changes)
	if err != nil {
		return types.Student{}, err
	}

	s.log.InfoContext(ctx, "student updated", slog.String("reg_no", regNo))
	return updated, nil
}

// SoftDelete flags the record as deleted and advances UpdatedAt. Calling
// it on an already deleted record succeeds again.
func (s *StudentService) SoftDelete(ctx context.Context, regNo string) (types.Student, error) {
	regNo = strings.TrimSpace(regNo)
	if regNo == "" {
		return types.Student{}, invalid("registration number is required")
	}

	current, err := s.lookup(ctx, "delete", regNo)
	if err != nil {
		return types.Student{}, err
	}

	deleted := true
	updated, err := s.write(ctx, "delete", regNo, types.StudentChanges{
		IsDeleted: &deleted,
		UpdatedAt: s.timestamp(current.UpdatedAt),
	})
	if err != nil {
		return types.Student{}, err
	}

	s.log.InfoContext(ctx, "student deactivated", slog.String("reg_no", regNo))
	return updated, nil
}

// Ping reports whether the store is reachable.
func (s *StudentService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ─────────────────────────────────────────────────────────────────────────────
// helpers
// ─────────────────────────────────────────────────────────────────────────────

func (s *StudentService) lookup(ctx context.Context, op, regNo string) (types.Student, error) {
	student, err := s.store.GetStudentByRegNo(ctx, regNo)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return types.Student{}, notFound(regNo)
		}
		return types.Student{}, s.storeFailure(ctx, op, err)
	}
	return student, nil
}

func (s *StudentService) write(ctx context.Context, op, regNo string, changes types.StudentChanges) (types.Student, error) {
	updated, err := s.store.UpdateStudentFields(ctx, regNo, changes)
	switch {
	case err == nil:
		return updated, nil
	case errors.Is(err, storage.ErrNotFound):
		return types.Student{}, notFound(regNo)
	case errors.Is(err, storage.ErrDuplicateKey):
		return types.Student{}, conflict("roll number is already taken in this class")
	default:
		return types.Student{}, s.storeFailure(ctx, op, err)
	}
}

// ensureRollAvailable fails with ConflictError when an active record other
// than excludeRegNo already holds class and rollNo.
func (s *StudentService) ensureRollAvailable(ctx context.Context, class, rollNo, excludeRegNo string) error {
	holder, err := s.store.FindActiveStudentByClassAndRoll(ctx, class, rollNo, excludeRegNo)
	switch {
	case err == nil:
		return conflict("roll number %q is already taken in class %q by %q", rollNo, class, holder.RegNo)
	case errors.Is(err, storage.ErrNotFound):
		return nil
	default:
		return s.storeFailure(ctx, "roll check", err)
	}
}

// timestamp returns the current time at microsecond precision (what every
// backend stores), nudged forward so it is strictly after prev.
func (s *StudentService) timestamp(prev time.Time) time.Time {
	now := s.now().UTC().Truncate(time.Microsecond)
	if !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}
	return now
}

func (s *StudentService) storeFailure(ctx context.Context, op string, err error) *Error {
	s.log.ErrorContext(ctx, "storage failure",
		slog.String("op", op),
		slog.String("error", err.Error()))
	return &Error{Kind: KindStore, Message: "internal storage error", Err: err}
}

func changesFromPatch(patch types.StudentPatch) (types.StudentChanges, error) {
	var changes types.StudentChanges

	field := func(name, value string) (*string, error) {
		value = strings.TrimSpace(value)
		if value == "" {
			return nil, invalid("field %s must not be empty", name)
		}
		return &value, nil
	}

	var err error
	if patch.Name != nil {
		if changes.Name, err = field("name", *patch.Name); err != nil {
			return changes, err
		}
	}
	if patch.Class != nil {
		if changes.Class, err = field("class", string(*patch.Class)); err != nil {
			return changes, err
		}
	}
	if patch.RollNo != nil {
		if changes.RollNo, err = field("rollNo", string(*patch.RollNo)); err != nil {
			return changes, err
		}
	}
	if patch.ContactNo != nil {
		if changes.ContactNo, err = field("contactNo", string(*patch.ContactNo)); err != nil {
			return changes, err
		}
	}

	return changes, nil
}
