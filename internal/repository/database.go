// Package repository provides data access layer using GORM for database operations.
package repository

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aimd54/streakd/internal/config"
	"github.com/aimd54/streakd/internal/errs"
	"github.com/aimd54/streakd/internal/models"
	"github.com/aimd54/streakd/pkg/logger"
)

// DB holds the database connection.
type DB struct {
	*gorm.DB
}

// NewDB creates a new database connection for the configured driver.
func NewDB(cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	// Configure GORM logger
	var gormLogLevel gormlogger.LogLevel
	switch log.GetLogger().GetLevel() {
	case 0: // debug
		gormLogLevel = gormlogger.Info
	default:
		gormLogLevel = gormlogger.Warn
	}

	gormConfig := &gorm.Config{
		Logger:         newGormLogger(stdlog.New(os.Stdout, "\r\n", stdlog.LstdFlags), gormLogLevel),
		TranslateError: true,
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(sqliteDSN(cfg.SQLite.Path))
	default:
		dialector = postgres.Open(cfg.Postgres.DSN())
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	// Set connection pool settings
	if cfg.Driver == "sqlite" {
		// SQLite serializes writers; one connection avoids SQLITE_BUSY inside transactions.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second)
	}

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	event := log.Info().Str("driver", cfg.Driver)
	if cfg.Driver == "sqlite" {
		event = event.Str("path", cfg.SQLite.Path)
	} else {
		event = event.Str("host", cfg.Postgres.Host).Int("port", cfg.Postgres.Port).Str("database", cfg.Postgres.Database)
	}
	event.Msg("Connected to database")

	return &DB{db}, nil
}

// newGormLogger mirrors gorm's default logger but stays quiet on
// ErrRecordNotFound, which the ledger lookups hit on every fresh day.
func newGormLogger(w gormlogger.Writer, level gormlogger.LogLevel) gormlogger.Interface {
	return gormlogger.New(w, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_busy_timeout=5000&_foreign_keys=on"
}

// AutoMigrate runs database migrations for all models.
func (db *DB) AutoMigrate() error {
	return db.DB.AutoMigrate(
		&models.Habit{},
		&models.CompletionRecord{},
		&models.Achievement{},
	)
}

// Close closes the database connection.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health checks if the database is healthy.
func (db *DB) Health() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Store groups the repositories that share one connection or transaction.
type Store struct {
	db           *DB
	Habits       *HabitRepository
	Ledger       *CompletionRepository
	Achievements *AchievementRepository
}

// NewStore creates a store over db.
func NewStore(db *DB) *Store {
	return &Store{
		db:           db,
		Habits:       NewHabitRepository(db),
		Ledger:       NewCompletionRepository(db),
		Achievements: NewAchievementRepository(db),
	}
}

// DB returns the underlying connection.
func (s *Store) DB() *DB {
	return s.db
}

// Transaction runs fn with a store bound to a single transaction.
// Any error returned by fn rolls the transaction back.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(NewStore(&DB{gtx}))
	})
	return storeError("store.Transaction", err)
}

// storeError maps driver errors onto the engine taxonomy.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var engineErr *errs.Error
	switch {
	case errors.As(err, &engineErr):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &errs.Error{Kind: errs.KindNotFound, Op: op, Err: err}
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &errs.Error{Kind: errs.KindConflict, Op: op, Err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return errs.Transient(op, err)
	}
}
