// Package testutil holds fixtures shared by service and API tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/aimd54/streakd/internal/config"
	"github.com/aimd54/streakd/internal/repository"
	"github.com/aimd54/streakd/pkg/logger"
)

// NewDB opens an isolated in-memory SQLite database with the full schema.
func NewDB(t *testing.T) *repository.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	cfg := &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{
			Path: fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString()),
		},
	}

	db, err := repository.NewDB(cfg, logger.Nop())
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	if err := db.AutoMigrate(); err != nil {
		t.Fatalf("Failed to auto-migrate tables: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// NewStore returns a store over a fresh in-memory database.
func NewStore(t *testing.T) *repository.Store {
	t.Helper()
	return repository.NewStore(NewDB(t))
}
