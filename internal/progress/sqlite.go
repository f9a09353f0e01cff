package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// progressRecord is the row layout of the progress_records table.
type progressRecord struct {
	Key       string `gorm:"primaryKey"`
	Data      []byte `gorm:"not null"`
	UpdatedAt time.Time
}

func (progressRecord) TableName() string { return "progress_records" }

// SQLiteStorage is a [Storage] backed by a local SQLite database through gorm
// and the pure-Go glebarez driver, so the binary needs no cgo.
type SQLiteStorage struct {
	db *gorm.DB
}

var _ Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens (or creates) the database at dsn and migrates the
// progress_records table.
func NewSQLiteStorage(dsn string) (*SQLiteStorage, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("progress: open sqlite: %w", err)
	}
	return NewSQLiteStorageFromDB(db)
}

// NewSQLiteStorageFromDB wraps an existing gorm handle and migrates the table.
func NewSQLiteStorageFromDB(db *gorm.DB) (*SQLiteStorage, error) {
	if err := db.AutoMigrate(&progressRecord{}); err != nil {
		return nil, fmt.Errorf("progress: migrate sqlite: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// Name implements the metrics label lookup.
func (s *SQLiteStorage) Name() string { return "sqlite" }

// Load implements [Storage].
func (s *SQLiteStorage) Load(ctx context.Context, key string) ([]byte, error) {
	var rec progressRecord
	err := s.db.WithContext(ctx).Where(&progressRecord{Key: key}).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("progress: sqlite load %s: %w", key, err)
	}
	return rec.Data, nil
}

// Save implements [Storage].
func (s *SQLiteStorage) Save(ctx context.Context, key string, data []byte) error {
	rec := progressRecord{Key: key, Data: data, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("progress: sqlite save %s: %w", key, err)
	}
	return nil
}

// Delete implements [Storage].
func (s *SQLiteStorage) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where(&progressRecord{Key: key}).Delete(&progressRecord{}).Error; err != nil {
		return fmt.Errorf("progress: sqlite delete %s: %w", key, err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying database.
func (s *SQLiteStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
