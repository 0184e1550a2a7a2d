// Package repo implements the document store: persistence for
// documentations, their units and chunks, web metadata, threads, messages
// and stream fragments, backed by GORM. This file contains database
// bootstrapping helpers for SQLite (pure Go driver) and schema migrations.
package repo

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-docchat-backend/internal/domain"
)

// connPragmas are applied to every pooled connection through the DSN so that
// background workers get the same foreign-key and busy semantics as the
// connection that ran the migrations.
const connPragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// OpenSQLite opens (or creates) a SQLite database, applies PRAGMAs and
// registers the OpenTelemetry tracing plugin.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(withPragmas(path)), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

func withPragmas(path string) string {
	if strings.Contains(path, "?") {
		return path + "&" + connPragmas
	}
	return path + "?" + connPragmas
}

// Models lists every table owned by the document store, parents first.
func Models() []any {
	return []any{
		&domain.Documentation{},
		&domain.FileDocument{},
		&domain.PageDocument{},
		&domain.FileChunk{},
		&domain.PageChunk{},
		&domain.WebInfo{},
		&domain.WebLinks{},
		&domain.Thread{},
		&domain.Message{},
		&domain.StreamFragment{},
		&domain.UsageCounter{},
		&domain.Idempotency{},
	}
}

// AutoMigrate creates or updates the schema for all store models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
