package services

import (
	"context"
	"errors"
	"testing"
	"unicode/utf8"

	"golang.org/x/text/language"

	"github.com/tbourn/go-docchat-backend/internal/domain"
	"github.com/tbourn/go-docchat-backend/internal/metering"
	"github.com/tbourn/go-docchat-backend/internal/queue"
	"github.com/tbourn/go-docchat-backend/internal/repo"
)

func TestThreadCreate(t *testing.T) {
	db := newSvcDB(t)
	meter := &fakeMeter{}
	svc := NewThreadService(db, meter, nil)
	ctx := context.Background()
	doc := seedDoc(t, db, "u1", domain.DocTypeFiles)

	th, err := svc.Create(ctx, "u1", []string{doc.ID, doc.ID, " "})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if th.Name != DefaultThreadName || len(th.SelectedDocumentation) != 1 {
		t.Fatalf("unexpected thread: %+v", th)
	}
	if meter.tracked[metering.FeatureChats] != 1 {
		t.Fatalf("want 1 chat tracked, got %d", meter.tracked[metering.FeatureChats])
	}

	foreign := seedDoc(t, db, "u2", domain.DocTypeFiles)
	if _, err := svc.Create(ctx, "u1", []string{foreign.ID}); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	meter.set(metering.FeatureChats, 0)
	if _, err := svc.Create(ctx, "u1", nil); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if n, _ := repo.CountThreads(ctx, db, "u1"); n != 1 {
		t.Fatalf("rejected creates must not insert, got %d threads", n)
	}
}

func TestThreadRenameSelectionDelete(t *testing.T) {
	db := newSvcDB(t)
	svc := NewThreadService(db, &fakeMeter{}, nil)
	ctx := context.Background()
	th, _ := svc.Create(ctx, "u1", nil)

	if err := svc.Rename(ctx, "u1", th.ID, "  Quarterly   numbers "); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	got, _ := svc.Get(ctx, "u1", th.ID)
	if got.Name != "Quarterly numbers" {
		t.Fatalf("want normalized name, got %q", got.Name)
	}
	if err := svc.Rename(ctx, "u2", th.ID, "x"); !errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("expected ErrThreadNotFound, got %v", err)
	}

	doc := seedDoc(t, db, "u1", domain.DocTypeWeb)
	if err := svc.UpdateSelection(ctx, "u1", th.ID, []string{doc.ID}); err != nil {
		t.Fatalf("UpdateSelection: %v", err)
	}
	got, _ = svc.Get(ctx, "u1", th.ID)
	if len(got.SelectedDocumentation) != 1 || got.SelectedDocumentation[0] != doc.ID {
		t.Fatalf("unexpected selection: %v", got.SelectedDocumentation)
	}

	if err := svc.Delete(ctx, "u1", th.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, "u1", th.ID); !errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("expected ErrThreadNotFound after delete, got %v", err)
	}
}

func TestThreadListPage(t *testing.T) {
	db := newSvcDB(t)
	svc := NewThreadService(db, &fakeMeter{}, nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := svc.Create(ctx, "u1", nil); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	items, total, err := svc.ListPage(ctx, "u1", 2, 2)
	if err != nil || total != 5 || len(items) != 2 {
		t.Fatalf("ListPage items=%d total=%d err=%v", len(items), total, err)
	}
	items, total, _ = svc.ListPage(ctx, "nobody", 0, 0)
	if total != 0 || len(items) != 0 {
		t.Fatalf("want empty page, got %d/%d", len(items), total)
	}
}

func TestGenerateTitle(t *testing.T) {
	cases := []struct {
		name   string
		titler *fakeTitler
		want   string
	}{
		{"provider", &fakeTitler{title: `"Revenue Growth Analysis"`}, "Revenue Growth Analysis"},
		{"fallback on error", &fakeTitler{err: errors.New("down")}, "Revenue Growth"},
		{"fallback on empty", &fakeTitler{title: "   "}, "Revenue Growth"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := newSvcDB(t)
			svc := NewThreadService(db, &fakeMeter{}, tc.titler)
			ctx := context.Background()
			th, _ := svc.Create(ctx, "u1", nil)
			if _, err := repo.CreateUserMessage(ctx, db, th.ID, "What is the revenue growth in 2025?"); err != nil {
				t.Fatalf("message: %v", err)
			}
			if err := svc.HandleTitleJob(ctx, queue.Job{Kind: queue.KindThreadTitle, Target: th.ID}); err != nil {
				t.Fatalf("HandleTitleJob: %v", err)
			}
			got, _ := svc.Get(ctx, "u1", th.ID)
			if got.Name != tc.want {
				t.Fatalf("want %q, got %q", tc.want, got.Name)
			}
			if tc.titler.got != "What is the revenue growth in 2025?" {
				t.Fatalf("titler got %q", tc.titler.got)
			}
		})
	}
}

func TestGenerateTitle_KeepsUserNames(t *testing.T) {
	db := newSvcDB(t)
	titler := &fakeTitler{title: "Generated"}
	svc := NewThreadService(db, &fakeMeter{}, titler)
	ctx := context.Background()
	th, _ := svc.Create(ctx, "u1", nil)
	_ = svc.Rename(ctx, "u1", th.ID, "Mine")
	_, _ = repo.CreateUserMessage(ctx, db, th.ID, "hello there")

	if err := svc.GenerateTitle(ctx, th.ID); err != nil {
		t.Fatalf("GenerateTitle: %v", err)
	}
	got, _ := svc.Get(ctx, "u1", th.ID)
	if got.Name != "Mine" {
		t.Fatalf("user-chosen name must survive, got %q", got.Name)
	}
	if err := svc.GenerateTitle(ctx, "missing"); err != nil {
		t.Fatalf("missing thread should be a no-op, got %v", err)
	}
}

func TestGenerateTitleFromPrompt(t *testing.T) {
	svc := &ThreadService{TitleMaxLen: 20, TitleLocale: language.English}
	if got := svc.generateTitleFromPrompt("how do I configure the ingestion workers"); got != "Configure Ingestion Workers" {
		t.Fatalf("unexpected title %q", got)
	}
	if got := svc.generateTitleFromPrompt("   "); got != "" {
		t.Fatalf("blank prompt should give empty title, got %q", got)
	}
	long := svc.clip("Configure Ingestion Workers Quickly")
	if utf8.RuneCountInString(long) > 20 {
		t.Fatalf("clip exceeded max: %q", long)
	}
}
