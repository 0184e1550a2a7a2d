package repo

import (
	"context"
	"errors"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/tbourn/go-docchat-backend/internal/domain"
)

func TestGetDocumentation_EnforcesOwner(t *testing.T) {
	db := newStoreDB(t)
	d := seedDocumentation(t, db, "u1", domain.DocTypeFiles, 0, 0)

	if _, err := GetDocumentation(context.Background(), db, d.ID, "u2"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected not found for foreign owner, got %v", err)
	}
	got, err := GetDocumentation(context.Background(), db, d.ID, "u1")
	if err != nil || got.Name != "docs" {
		t.Fatalf("GetDocumentation: %v %+v", err, got)
	}
}

func TestIncrementActivePage_ClampsToTotal(t *testing.T) {
	db := newStoreDB(t)
	ctx := context.Background()
	d := seedDocumentation(t, db, "u1", domain.DocTypeWeb, 2, 0)

	for i := 0; i < 5; i++ {
		if err := IncrementActivePage(ctx, db, d.ID); err != nil {
			t.Fatalf("IncrementActivePage: %v", err)
		}
	}
	if got := mustDoc(t, db, d.ID); got.ActivePage != 2 || got.TotalPage != 2 {
		t.Fatalf("expected 2/2, got %d/%d", got.ActivePage, got.TotalPage)
	}
}

func TestIncrementActivePage_Concurrent(t *testing.T) {
	db := newStoreDB(t)
	ctx := context.Background()
	d := seedDocumentation(t, db, "u1", domain.DocTypeFiles, 8, 0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = IncrementActivePage(ctx, db, d.ID)
		}()
	}
	wg.Wait()
	if got := mustDoc(t, db, d.ID); got.ActivePage > got.TotalPage {
		t.Fatalf("active exceeded total: %d/%d", got.ActivePage, got.TotalPage)
	}
}

func TestReleaseUnit_KeepsInvariant(t *testing.T) {
	db := newStoreDB(t)
	ctx := context.Background()
	d := seedDocumentation(t, db, "u1", domain.DocTypeFiles, 3, 3)

	steps := []struct {
		completed    bool
		total, activ int
	}{
		{true, 2, 2},
		{false, 1, 1},
		{true, 0, 0},
		{true, 0, 0},
		{false, 0, 0},
	}
	for i, s := range steps {
		if err := ReleaseUnit(ctx, db, d.ID, s.completed); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		got := mustDoc(t, db, d.ID)
		if got.TotalPage != s.total || got.ActivePage != s.activ {
			t.Fatalf("step %d: expected %d/%d, got %d/%d", i, s.activ, s.total, got.ActivePage, got.TotalPage)
		}
	}
}

func TestAddTotalPages_AndMissing(t *testing.T) {
	db := newStoreDB(t)
	ctx := context.Background()
	d := seedDocumentation(t, db, "u1", domain.DocTypeFiles, 1, 0)

	if err := AddTotalPages(ctx, db, d.ID, 3); err != nil {
		t.Fatalf("AddTotalPages: %v", err)
	}
	if got := mustDoc(t, db, d.ID); got.TotalPage != 4 {
		t.Fatalf("expected total 4, got %d", got.TotalPage)
	}
	if err := AddTotalPages(ctx, db, "missing", 1); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRenameAndStatus(t *testing.T) {
	db := newStoreDB(t)
	ctx := context.Background()
	d := seedDocumentation(t, db, "u1", domain.DocTypeWeb, 0, 0)

	if err := RenameDocumentation(ctx, db, d.ID, "u2", "x"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected not found for foreign rename, got %v", err)
	}
	if err := RenameDocumentation(ctx, db, d.ID, "u1", "Renamed"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if err := SetDocumentationStatus(ctx, db, d.ID, domain.DocumentationScanAll); err != nil {
		t.Fatalf("status: %v", err)
	}
	got := mustDoc(t, db, d.ID)
	if got.Name != "Renamed" || got.Status != domain.DocumentationScanAll {
		t.Fatalf("unexpected row: %+v", got)
	}
}

func TestDeleteDocumentation_CascadesUnitsAndChunks(t *testing.T) {
	db := newStoreDB(t)
	ctx := context.Background()
	d := seedDocumentation(t, db, "u1", domain.DocTypeFiles, 1, 0)

	files := []domain.FileDocument{{DocumentationID: d.ID, FileName: "a.md", FilePrefix: "p/a.md"}}
	if err := CreateFileDocuments(ctx, db, files); err != nil {
		t.Fatalf("create files: %v", err)
	}
	chunks := []domain.ChunkFields{{DocumentationID: d.ID, Content: "c", Embedding: EncodeVector([]float32{1, 0})}}
	if err := ReplaceUnitChunks(ctx, db, domain.UnitFile, files[0].ID, chunks); err != nil {
		t.Fatalf("chunks: %v", err)
	}

	if err := DeleteDocumentation(ctx, db, d.ID, "u2"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected not found for foreign delete, got %v", err)
	}
	if err := DeleteDocumentation(ctx, db, d.ID, "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var n int64
	db.Model(&domain.FileDocument{}).Count(&n)
	if n != 0 {
		t.Fatalf("expected files cascaded, got %d", n)
	}
	db.Model(&domain.FileChunk{}).Count(&n)
	if n != 0 {
		t.Fatalf("expected chunks removed, got %d", n)
	}
}

func TestListDocumentations(t *testing.T) {
	db := newStoreDB(t)
	ctx := context.Background()
	a := seedDocumentation(t, db, "u1", domain.DocTypeFiles, 0, 0)
	b := seedDocumentation(t, db, "u1", domain.DocTypeWeb, 0, 0)
	seedDocumentation(t, db, "u2", domain.DocTypeWeb, 0, 0)

	n, err := CountDocumentations(ctx, db, "u1")
	if err != nil || n != 2 {
		t.Fatalf("count: %d %v", n, err)
	}
	page, err := ListDocumentationsPage(ctx, db, "u1", 0, 1)
	if err != nil || len(page) != 1 {
		t.Fatalf("page: %v %v", page, err)
	}
	byIDs, err := ListDocumentationsByIDs(ctx, db, "u1", []string{a.ID, b.ID, "nope"})
	if err != nil || len(byIDs) != 2 {
		t.Fatalf("by ids: %v %v", byIDs, err)
	}
	opts, err := ListDocumentationOptions(ctx, db, "u1")
	if err != nil || len(opts) != 2 {
		t.Fatalf("options: %v %v", opts, err)
	}
	for _, o := range opts {
		if o.ID == "" || o.Name == "" || !o.Type.Valid() {
			t.Fatalf("incomplete option: %+v", o)
		}
	}
}
