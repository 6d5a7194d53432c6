package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry is one key-value document row.
type Entry struct {
	Key       string `gorm:"column:storage_key;primaryKey;size:255"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// TableName pins the table name independent of gorm's pluralization.
func (Entry) TableName() string {
	return "kv_entries"
}

// GormStore persists documents through gorm, on sqlite or postgres.
type GormStore struct {
	db *gorm.DB
	// sqlite only allows a single writer
	writeMu sync.Mutex
}

// NewGormStore migrates the schema and wraps db.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := Migrator(db).Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate key-value schema: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Migrator returns the migration set for the key-value table.
func Migrator(db *gorm.DB) *gormigrate.Gormigrate {
	migrator := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "0001_kv_entries",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Entry{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&Entry{})
			},
		},
	})

	migrator.InitSchema(func(tx *gorm.DB) error {
		slog.Info("clean database detected, creating key-value schema")
		return tx.AutoMigrate(&Entry{})
	})

	return migrator
}

// Get returns the stored value and whether the key exists.
func (s *GormStore) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}

	var entry Entry
	err := s.db.WithContext(ctx).First(&entry, "storage_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return entry.Value, true, nil
}

// Set upserts value under key.
func (s *GormStore) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	entry := Entry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "storage_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open builds the Store for a driver. The returned close func is never nil.
func Open(driver, dsn string) (Store, func() error, error) {
	noop := func() error { return nil }

	var dialector gorm.Dialector
	switch driver {
	case "", DriverMemory:
		return NewMemoryStore(), noop, nil
	case DriverSQLite:
		if dsn == "" {
			dsn = "sanatani-gyan.db"
		}
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		if dsn == "" {
			return nil, noop, errors.New("STORE_DSN is required for the postgres driver")
		}
		dialector = postgres.Open(dsn)
	default:
		return nil, noop, fmt.Errorf("unsupported store driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, noop, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	store, err := NewGormStore(db)
	if err != nil {
		return nil, noop, err
	}
	return store, store.Close, nil
}
