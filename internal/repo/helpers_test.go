package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-docchat-backend/internal/domain"
)

// newStoreDB opens a unique in-memory database with every store table
// migrated and foreign keys enforced on all pooled connections.
func newStoreDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:store_%s?mode=memory&cache=shared&%s", uuid.NewString(), connPragmas)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedDocumentation(t *testing.T, db *gorm.DB, userID string, typ domain.DocType, total, active int) *domain.Documentation {
	t.Helper()
	d := &domain.Documentation{UserID: userID, Name: "docs", Type: typ, TotalPage: total, ActivePage: active}
	if err := CreateDocumentation(context.Background(), db, d); err != nil {
		t.Fatalf("seed documentation: %v", err)
	}
	return d
}

func seedThread(t *testing.T, db *gorm.DB, userID string) *domain.Thread {
	t.Helper()
	th, err := CreateThread(context.Background(), db, userID, "New Chat", nil)
	if err != nil {
		t.Fatalf("seed thread: %v", err)
	}
	return th
}

func mustDoc(t *testing.T, db *gorm.DB, id string) *domain.Documentation {
	t.Helper()
	d, err := GetDocumentationByID(context.Background(), db, id)
	if err != nil {
		t.Fatalf("get documentation: %v", err)
	}
	return d
}

var t0 = time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
