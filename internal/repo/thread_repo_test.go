package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-docchat-backend/internal/domain"
)

func TestThreadCRUD(t *testing.T) {
	db := newStoreDB(t)
	ctx := context.Background()

	th, err := CreateThread(ctx, db, "u1", "New Chat", []string{"d1", "d2"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := GetThread(ctx, db, th.ID, "u2"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected not found for foreign owner, got %v", err)
	}
	if err := RenameThread(ctx, db, th.ID, "u1", "Deploying"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if err := UpdateThreadSelection(ctx, db, th.ID, "u1", []string{"d2"}); err != nil {
		t.Fatalf("selection: %v", err)
	}
	got, err := GetThread(ctx, db, th.ID, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Deploying" || len(got.SelectedDocumentation) != 1 || got.SelectedDocumentation[0] != "d2" {
		t.Fatalf("unexpected thread: %+v", got)
	}
	if err := SetThreadName(ctx, db, th.ID, "Auto"); err != nil {
		t.Fatalf("set name: %v", err)
	}

	n, err := CountThreads(ctx, db, "u1")
	if err != nil || n != 1 {
		t.Fatalf("count: %d %v", n, err)
	}
	page, err := ListThreadsPage(ctx, db, "u1", 0, 10)
	if err != nil || len(page) != 1 || page[0].Name != "Auto" {
		t.Fatalf("page: %+v %v", page, err)
	}
}

func TestRemoveDocumentationFromSelections(t *testing.T) {
	db := newStoreDB(t)
	ctx := context.Background()
	a, _ := CreateThread(ctx, db, "u1", "a", []string{"d1", "d2"})
	b, _ := CreateThread(ctx, db, "u1", "b", []string{"d10"})
	c, _ := CreateThread(ctx, db, "u2", "c", []string{"d1"})

	if err := RemoveDocumentationFromSelections(ctx, db, "u1", "d1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	ga, _ := GetThreadByID(ctx, db, a.ID)
	gb, _ := GetThreadByID(ctx, db, b.ID)
	gc, _ := GetThreadByID(ctx, db, c.ID)
	if ga.SelectedDocumentation.Contains("d1") || !ga.SelectedDocumentation.Contains("d2") {
		t.Fatalf("thread a not updated: %+v", ga.SelectedDocumentation)
	}
	if !gb.SelectedDocumentation.Contains("d10") {
		t.Fatalf("thread b should keep d10: %+v", gb.SelectedDocumentation)
	}
	if !gc.SelectedDocumentation.Contains("d1") {
		t.Fatalf("other user's thread must be untouched: %+v", gc.SelectedDocumentation)
	}
}

func TestDeleteThread_RemovesMessagesAndFragments(t *testing.T) {
	db := newStoreDB(t)
	ctx := context.Background()
	th := seedThread(t, db, "u1")
	um, err := CreateUserMessage(ctx, db, th.ID, "hi")
	if err != nil {
		t.Fatalf("user msg: %v", err)
	}
	am, err := CreateAssistantPlaceholder(ctx, db, th.ID, um.CreatedAt)
	if err != nil {
		t.Fatalf("assistant msg: %v", err)
	}
	if err := AppendFragment(ctx, db, am.StreamID, 0, "hel"); err != nil {
		t.Fatalf("fragment: %v", err)
	}

	if err := DeleteThread(ctx, db, th.ID, "u2"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected not found for foreign delete, got %v", err)
	}
	if err := DeleteThread(ctx, db, th.ID, "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var n int64
	db.Model(&domain.Message{}).Where("thread_id = ?", th.ID).Count(&n)
	if n != 0 {
		t.Fatalf("expected messages removed, got %d", n)
	}
	db.Model(&domain.StreamFragment{}).Where("stream_id = ?", am.StreamID).Count(&n)
	if n != 0 {
		t.Fatalf("expected fragments removed, got %d", n)
	}
}

func TestTouchThread(t *testing.T) {
	db := newStoreDB(t)
	ctx := context.Background()
	th := seedThread(t, db, "u1")
	db.Model(&domain.Thread{}).Where("id = ?", th.ID).Update("updated_at", t0)
	if err := TouchThread(ctx, db, th.ID); err != nil {
		t.Fatalf("touch: %v", err)
	}
	got, _ := GetThreadByID(ctx, db, th.ID)
	if !got.UpdatedAt.After(t0.Add(time.Hour)) {
		t.Fatalf("updated_at not bumped: %v", got.UpdatedAt)
	}
}
