package domain

import (
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:domain_models?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Enforce FKs so cascades actually execute.
	db.Exec("PRAGMA foreign_keys=ON;")
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		Documentation{}.TableName():  "documentations",
		FileDocument{}.TableName():   "file_documents",
		PageDocument{}.TableName():   "page_documents",
		FileChunk{}.TableName():      "file_chunks",
		PageChunk{}.TableName():      "page_chunks",
		WebLinks{}.TableName():       "web_links",
		Thread{}.TableName():         "threads",
		Message{}.TableName():        "messages",
		StreamFragment{}.TableName(): "stream_fragments",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
	if UnitPage.ChunkTable() != "page_chunks" || UnitFile.ChunkTable() != "file_chunks" {
		t.Fatalf("unexpected chunk tables")
	}
}

func TestMigrations_Indexes_AndCascades(t *testing.T) {
	db := newDomainDB(t)
	models := []any{
		&Documentation{}, &FileDocument{}, &PageDocument{}, &FileChunk{}, &PageChunk{},
		&WebInfo{}, &WebLinks{}, &Thread{}, &Message{}, &StreamFragment{}, &UsageCounter{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range models {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
	if !m.HasIndex(&PageDocument{}, "ux_page_doc_url") {
		t.Fatalf("expected unique index ux_page_doc_url on page_documents")
	}
	if !m.HasIndex(&StreamFragment{}, "ux_stream_seq") {
		t.Fatalf("expected unique index ux_stream_seq on stream_fragments")
	}

	now := time.Now().UTC()
	doc := &Documentation{ID: "d1", UserID: "u1", Name: "Docs", Type: DocTypeWeb, CreatedAt: now, UpdatedAt: now}
	if err := db.Create(doc).Error; err != nil {
		t.Fatalf("insert documentation: %v", err)
	}
	p1 := &PageDocument{ID: "p1", DocumentationID: "d1", URL: "https://x.dev/a", Status: UnitStarting}
	if err := db.Create(p1).Error; err != nil {
		t.Fatalf("insert page: %v", err)
	}
	p2 := &PageDocument{ID: "p2", DocumentationID: "d1", URL: "https://x.dev/a", Status: UnitStarting}
	if err := db.Create(p2).Error; err == nil {
		t.Fatalf("expected duplicate (documentation_id, url) to be rejected")
	}
	links := &WebLinks{ID: "w1", DocumentationID: "d1", Links: LinkList{{URL: "https://x.dev/a"}}}
	if err := db.Create(links).Error; err != nil {
		t.Fatalf("insert links: %v", err)
	}

	if err := db.Delete(&Documentation{}, "id = ?", "d1").Error; err != nil {
		t.Fatalf("delete documentation: %v", err)
	}
	var cnt int64
	db.Model(&PageDocument{}).Where("documentation_id = ?", "d1").Count(&cnt)
	if cnt != 0 {
		t.Fatalf("expected pages to cascade-delete, got %d", cnt)
	}
	db.Model(&WebLinks{}).Where("documentation_id = ?", "d1").Count(&cnt)
	if cnt != 0 {
		t.Fatalf("expected web links to cascade-delete, got %d", cnt)
	}

	th := &Thread{ID: "t1", UserID: "u1", Name: "New Chat", SelectedDocumentation: StringList{"d1"}}
	if err := db.Create(th).Error; err != nil {
		t.Fatalf("insert thread: %v", err)
	}
	msg := &Message{ID: "m1", ThreadID: "t1", Role: RoleUser, Content: "hi"}
	if err := db.Create(msg).Error; err != nil {
		t.Fatalf("insert message: %v", err)
	}
	var back Thread
	if err := db.First(&back, "id = ?", "t1").Error; err != nil {
		t.Fatalf("read thread: %v", err)
	}
	if len(back.SelectedDocumentation) != 1 || back.SelectedDocumentation[0] != "d1" {
		t.Fatalf("selected documentation not round-tripped: %+v", back.SelectedDocumentation)
	}
	if err := db.Delete(&Thread{}, "id = ?", "t1").Error; err != nil {
		t.Fatalf("delete thread: %v", err)
	}
	db.Model(&Message{}).Where("thread_id = ?", "t1").Count(&cnt)
	if cnt != 0 {
		t.Fatalf("expected messages to cascade-delete when thread deleted, got %d", cnt)
	}
}

func TestStatusHelpers(t *testing.T) {
	if UnitStarting.Terminal() || !UnitNoData.Terminal() || UnitStatus("bogus").Terminal() {
		t.Fatalf("unexpected Terminal results")
	}
	if !DocTypeWeb.Valid() || DocType("ftp").Valid() {
		t.Fatalf("unexpected Valid results")
	}
	if DocTypeWeb.UnitKind() != UnitPage || DocTypeFiles.UnitKind() != UnitFile {
		t.Fatalf("unexpected unit kinds")
	}
	if !StreamError.Done() || StreamStreaming.Done() {
		t.Fatalf("unexpected Done results")
	}
}

func TestLists(t *testing.T) {
	l := LinkList{{URL: "a"}, {URL: "b"}, {URL: "a"}}
	if got := l.Without("a"); len(got) != 1 || got[0].URL != "b" {
		t.Fatalf("Without: %+v", got)
	}
	if urls := l.URLs(); len(urls) != 3 || urls[1] != "b" {
		t.Fatalf("URLs: %v", urls)
	}
	var nilList LinkList
	v, _ := nilList.Value()
	if v != "[]" {
		t.Fatalf("nil list should encode as [], got %v", v)
	}
	var s StringList
	if err := s.Scan([]byte(`["x","y"]`)); err != nil || !s.Contains("y") {
		t.Fatalf("Scan: %v %v", s, err)
	}
	if err := s.Scan(42); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
}
