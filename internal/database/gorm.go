package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// kvEntry is the GORM mapping of the kv table shared with the SQL backends.
type kvEntry struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Value     string    `gorm:"column:value;type:text;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (kvEntry) TableName() string {
	return "kv"
}

// GormStore stores keys through a GORM connection.
type GormStore struct {
	db *gorm.DB
}

// Ensure GormStore implements Store and Batcher.
var (
	_ Store   = (*GormStore)(nil)
	_ Batcher = (*GormStore)(nil)
)

// NewGormPostgres opens a GORM connection to PostgreSQL.
func NewGormPostgres(dsn string) (*GormStore, error) {
	return NewGorm(postgres.Open(dsn))
}

// NewGorm opens a GORM connection with any dialector and migrates the kv table.
func NewGorm(dialector gorm.Dialector) (*GormStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	if err := db.AutoMigrate(&kvEntry{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DatabaseType returns the database backend name.
func (s *GormStore) DatabaseType() string {
	return "GORM/" + s.db.Dialector.Name()
}

// Get retrieves the value stored under key.
func (s *GormStore) Get(ctx context.Context, key string) (string, bool, error) {
	var e kvEntry
	err := s.db.WithContext(ctx).First(&e, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return e.Value, true, nil
}

// Set saves value under key.
func (s *GormStore) Set(ctx context.Context, key, value string) error {
	return upsertGorm(s.db.WithContext(ctx), key, value)
}

// SetMany saves all entries in one transaction.
func (s *GormStore) SetMany(ctx context.Context, entries []Entry) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, e := range entries {
			if err := upsertGorm(tx, e.Key, e.Value); err != nil {
				return fmt.Errorf("set %s: %w", e.Key, err)
			}
		}
		return nil
	})
}

func upsertGorm(db *gorm.DB, key, value string) error {
	e := kvEntry{Key: key, Value: value, UpdatedAt: time.Now()}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&e).Error
}
