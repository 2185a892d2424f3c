package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/airsense/airsense/internal/reading"
)

var (
	// ErrNotFound is returned when no data is available.
	ErrNotFound = errors.New("no data available")
)

// StorageError reports a persistence failure. It maps to a 5xx at the
// API boundary; no partial write is ever visible.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// History range limits enforced by ReadingStore.Range.
const (
	DefaultHistoryLimit = 500
	MinHistoryLimit     = 1
	MaxHistoryLimit     = 5000
)

// Open connects to the sqlite database at path, creating the parent
// directory if needed, and migrates the schema.
func Open(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&reading.Reading{}, &ProfileVersion{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// ReadingStore is the durable append-only log of sensor readings.
type ReadingStore struct {
	db *gorm.DB
}

// NewReadingStore creates a ReadingStore on an opened database.
func NewReadingStore(db *gorm.DB) *ReadingStore {
	return &ReadingStore{db: db}
}

// Append durably persists a reading and returns its assigned id. The
// write is atomic; on failure nothing is visible and a StorageError is
// returned.
func (s *ReadingStore) Append(ctx context.Context, r *reading.Reading) (uint, error) {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return 0, &StorageError{Op: "append reading", Err: err}
	}
	return r.ID, nil
}

// Latest returns the most recently stored reading, or ErrNotFound when
// the log is empty.
func (s *ReadingStore) Latest(ctx context.Context) (*reading.Reading, error) {
	var r reading.Reading
	err := s.db.WithContext(ctx).Order("id DESC").First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "latest reading", Err: err}
	}
	return &r, nil
}

// Range returns the most recent `limit` readings in chronological
// order. The limit is clamped to [MinHistoryLimit, MaxHistoryLimit].
func (s *ReadingStore) Range(ctx context.Context, limit int) ([]reading.Reading, error) {
	limit = ClampLimit(limit)

	var rows []reading.Reading
	if err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, &StorageError{Op: "range readings", Err: err}
	}

	// Reverse into chronological order.
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// ForEach lazily walks every stored reading in ascending time order,
// calling fn for each row. Iteration stops on the first error.
func (s *ReadingStore) ForEach(ctx context.Context, fn func(r *reading.Reading) error) error {
	rows, err := s.db.WithContext(ctx).Model(&reading.Reading{}).Order("id ASC").Rows()
	if err != nil {
		return &StorageError{Op: "scan readings", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var r reading.Reading
		if err := s.db.ScanRows(rows, &r); err != nil {
			return &StorageError{Op: "scan readings", Err: err}
		}
		if err := fn(&r); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return &StorageError{Op: "scan readings", Err: err}
	}
	return nil
}

// ClampLimit forces a history limit into [MinHistoryLimit, MaxHistoryLimit].
func ClampLimit(limit int) int {
	if limit < MinHistoryLimit {
		return MinHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}
