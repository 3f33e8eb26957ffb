// Package gormstore implements storage.Storage on top of gorm, so the
// service can run against PostgreSQL or MySQL in production (and SQLite
// through gorm's own driver in tests).
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/aanand-mishra/student-records/internal/storage"
	"github.com/aanand-mishra/student-records/internal/types"
)

// Supported driver names.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// Config describes how to reach the database.
type Config struct {
	Driver string
	DSN    string

	Logger   *slog.Logger
	LogLevel gormLogger.LogLevel

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// Store is the gorm-backed storage.Storage.
type Store struct {
	db *gorm.DB
}

var _ storage.Storage = (*Store)(nil)

// studentRow is the table mapping. Timestamps are written by the service,
// so gorm's automatic create/update time tracking is switched off.
type studentRow struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	RegNo     string    `gorm:"size:64;not null;uniqueIndex:idx_students_reg_no"`
	Name      string    `gorm:"size:255;not null"`
	Class     string    `gorm:"size:64;not null"`
	RollNo    string    `gorm:"size:64;not null"`
	ContactNo string    `gorm:"size:64;not null"`
	IsDeleted bool      `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;precision:6;autoCreateTime:false;index:idx_students_created_at"`
	UpdatedAt time.Time `gorm:"not null;precision:6;autoUpdateTime:false"`
}

func (studentRow) TableName() string { return "students" }

// Open connects, tunes the pool and migrates the schema.
func Open(cfg Config) (*Store, error) {
	dialector, err := dialectorFor(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if level == 0 {
		level = gormLogger.Warn
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         NewGormLogger(cfg.Logger, level),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore.Open: connect: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gormstore.Open: pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(orDefault(cfg.MaxOpenConns, 20))
	sqlDB.SetMaxIdleConns(orDefault(cfg.MaxIdleConns, 10))
	sqlDB.SetConnMaxIdleTime(orDefaultDuration(cfg.ConnMaxIdleTime, 60*time.Second))
	sqlDB.SetConnMaxLifetime(orDefaultDuration(cfg.ConnMaxLifetime, 10*time.Minute))

	if cfg.Driver == DriverSQLite {
		// one writer at a time, same as the database/sql backend
		sqlDB.SetMaxOpenConns(1)
	}

	if err := migrate(db); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func dialectorFor(driver, dsn string) (gorm.Dialector, error) {
	if dsn == "" {
		return nil, errors.New("gormstore.Open: empty DSN")
	}

	switch driver {
	case DriverPostgres:
		return postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), nil
	case DriverMySQL:
		// time.Time columns only scan with parseTime enabled
		if !strings.Contains(dsn, "parseTime=") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "parseTime=true&loc=UTC"
		}
		return mysql.Open(dsn), nil
	case DriverSQLite:
		return gormsqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("gormstore.Open: unsupported driver %q", driver)
	}
}

// migrate creates the table and its indexes. MySQL has no partial
// indexes, so there the class/roll rule rests on the service check alone.
func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&studentRow{}); err != nil {
		return fmt.Errorf("gormstore.migrate: %w", err)
	}

	switch db.Dialector.Name() {
	case "postgres", "sqlite":
		err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_students_class_roll_active
			ON students (class, roll_no) WHERE NOT is_deleted`).Error
		if err != nil {
			return fmt.Errorf("gormstore.migrate: class/roll index: %w", err)
		}
	}

	return nil
}

func (s *Store) GetStudentByRegNo(ctx context.Context, regNo string) (types.Student, error) {
	var row studentRow
	err := s.db.WithContext(ctx).Where("reg_no = ?", regNo).Take(&row).Error
	if err != nil {
		return types.Student{}, mapError("GetStudentByRegNo", err)
	}
	return row.toStudent(), nil
}

func (s *Store) FindActiveStudentByClassAndRoll(ctx context.Context, class, rollNo, excludeRegNo string) (types.Student, error) {
	var row studentRow
	err := s.db.WithContext(ctx).
		Where("class = ? AND roll_no = ? AND is_deleted = ? AND reg_no <> ?", class, rollNo, false, excludeRegNo).
		Take(&row).Error
	if err != nil {
		return types.Student{}, mapError("FindActiveStudentByClassAndRoll", err)
	}
	return row.toStudent(), nil
}

func (s *Store) CreateStudent(ctx context.Context, student types.Student) (types.Student, error) {
	row := fromStudent(student)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return types.Student{}, mapError("CreateStudent", err)
	}
	return row.toStudent(), nil
}

func (s *Store) UpdateStudentFields(ctx context.Context, regNo string, changes types.StudentChanges) (types.Student, error) {
	values := map[string]any{"updated_at": changes.UpdatedAt}
	if changes.Name != nil {
		values["name"] = *changes.Name
	}
	if changes.Class != nil {
		values["class"] = *changes.Class
	}
	if changes.RollNo != nil {
		values["roll_no"] = *changes.RollNo
	}
	if changes.ContactNo != nil {
		values["contact_no"] = *changes.ContactNo
	}
	if changes.IsDeleted != nil {
		values["is_deleted"] = *changes.IsDeleted
	}

	err := s.db.WithContext(ctx).
		Model(&studentRow{}).
		Where("reg_no = ?", regNo).
		Updates(values).Error
	if err != nil {
		return types.Student{}, mapError("UpdateStudentFields", err)
	}

	// MySQL reports zero affected rows when nothing changed, so existence
	// is decided by the re-read rather than RowsAffected.
	return s.GetStudentByRegNo(ctx, regNo)
}

func (s *Store) CountStudents(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&studentRow{}).Count(&total).Error; err != nil {
		return 0, mapError("CountStudents", err)
	}
	return total, nil
}

func (s *Store) ListStudents(ctx context.Context, offset, limit int) ([]types.Student, error) {
	var rows []studentRow
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, mapError("ListStudents", err)
	}

	students := make([]types.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, row.toStudent())
	}
	return students, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func mapError(op string, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return storage.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), isSQLiteUnique(err):
		return fmt.Errorf("%s: %w: %v", op, storage.ErrDuplicateKey, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// isSQLiteUnique catches unique violations the sqlite dialector leaves
// untranslated (partial indexes report through the same extended code).
func isSQLiteUnique(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func fromStudent(s types.Student) studentRow {
	return studentRow{
		ID:        s.ID,
		RegNo:     s.RegNo,
		Name:      s.Name,
		Class:     s.Class,
		RollNo:    s.RollNo,
		ContactNo: s.ContactNo,
		IsDeleted: s.IsDeleted,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func (r studentRow) toStudent() types.Student {
	return types.Student{
		ID:        r.ID,
		RegNo:     r.RegNo,
		Name:      r.Name,
		Class:     r.Class,
		RollNo:    r.RollNo,
		ContactNo: r.ContactNo,
		IsDeleted: r.IsDeleted,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func orDefaultDuration(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}
