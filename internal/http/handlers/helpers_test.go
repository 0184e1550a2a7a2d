package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-docchat-backend/internal/ai"
	"github.com/tbourn/go-docchat-backend/internal/blob"
	"github.com/tbourn/go-docchat-backend/internal/config"
	"github.com/tbourn/go-docchat-backend/internal/domain"
	"github.com/tbourn/go-docchat-backend/internal/metering"
	"github.com/tbourn/go-docchat-backend/internal/queue"
	"github.com/tbourn/go-docchat-backend/internal/repo"
	"github.com/tbourn/go-docchat-backend/internal/services"
	"github.com/tbourn/go-docchat-backend/internal/sources"
	"github.com/tbourn/go-docchat-backend/internal/vectorindex"
)

// ---------- test plumbing ----------

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

// recQueue records jobs instead of running them.
type recQueue struct {
	mu   sync.Mutex
	jobs []queue.Job
}

func (q *recQueue) Enqueue(_ context.Context, job queue.Job, _ time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recQueue) count(kind string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, j := range q.jobs {
		if j.Kind == kind {
			n++
		}
	}
	return n
}

type stubStream struct {
	frags []string
	i     int
}

func (s *stubStream) Recv() (string, error) {
	if s.i >= len(s.frags) {
		return "", io.EOF
	}
	s.i++
	return s.frags[s.i-1], nil
}

func (s *stubStream) Close() error { return nil }

type stubGenerator struct{ frags []string }

func (g stubGenerator) Generate(context.Context, ai.Prompt) (ai.Stream, error) {
	return &stubStream{frags: g.frags}, nil
}

type stubRetriever struct{}

func (stubRetriever) Retrieve(context.Context, string, string, []string) (*services.RetrievedContext, error) {
	return &services.RetrievedContext{}, nil
}

type stubMapper struct{ site *sources.SiteMap }

func (m stubMapper) MapSite(context.Context, string) (*sources.SiteMap, error) { return m.site, nil }

// fixture wires real services over an in-memory store with a recording queue.
type fixture struct {
	db      *gorm.DB
	q       *recQueue
	docs    *services.DocumentationService
	threads *services.ThreadService
	chat    *services.ChatStreamService
	h       *Handlers
	r       *gin.Engine
}

func newFixture(t *testing.T, meter config.MeteringConfig) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	blobs, err := blob.NewDisk(t.TempDir())
	if err != nil {
		t.Fatalf("blob: %v", err)
	}
	q := &recQueue{}
	m := metering.NewLedger(db, meter)
	f := &fixture{db: db, q: q}
	f.docs = &services.DocumentationService{
		DB:    db,
		Queue: q,
		Meter: m,
		Mapper: stubMapper{site: &sources.SiteMap{
			Info:  sources.SiteInfo{Name: "Example Docs", URL: "https://example.com"},
			Links: []domain.Link{{URL: "https://example.com/a", Title: "A"}, {URL: "https://example.com/b", Title: "B"}},
		}},
		Blobs:          blobs,
		Index:          &vectorindex.SQLite{DB: db},
		FilePatterns:   []string{"*.md", "*.txt", "*.pdf"},
		MaxUploadBytes: 1 << 20,
	}
	f.threads = services.NewThreadService(db, m, nil)
	f.chat = &services.ChatStreamService{
		DB:             db,
		Queue:          q,
		Meter:          m,
		Retriever:      stubRetriever{},
		Generator:      stubGenerator{frags: []string{"Hel", "lo"}},
		HistoryWindow:  10,
		MaxPromptRunes: 100,
		PollInterval:   5 * time.Millisecond,
	}
	f.h = New(db, f.docs, f.threads, f.chat)
	f.r = gin.New()
	f.mount()
	return f
}

func unlimited() config.MeteringConfig { return config.MeteringConfig{Unlimited: true} }

func (f *fixture) mount() {
	r, h := f.r, f.h
	r.POST("/uploads", h.Upload)
	r.POST("/documentations/files", h.CreateFilesDocumentation)
	r.POST("/documentations/web", h.CreateWebDocumentation)
	r.GET("/documentations", h.ListDocumentations)
	r.GET("/documentations/options", h.DocumentationOptions)
	r.GET("/documentations/:id", h.GetDocumentation)
	r.PUT("/documentations/:id/name", h.RenameDocumentation)
	r.DELETE("/documentations/:id", h.DeleteDocumentation)
	r.GET("/documentations/:id/web", h.GetWebInfo)
	r.GET("/documentations/:id/files", h.ListFiles)
	r.POST("/documentations/:id/files", h.AddFiles)
	r.POST("/documentations/:id/files/:fileId/rescan", h.RescanFile)
	r.DELETE("/documentations/:id/files/:fileId", h.DeleteFile)
	r.GET("/documentations/:id/pages", h.ListPages)
	r.POST("/documentations/:id/pages", h.StartPage)
	r.POST("/documentations/:id/pages/scan-all", h.ScanAllPages)
	r.DELETE("/documentations/:id/pages", h.DeleteLinkPage)
	r.POST("/threads", h.CreateThread)
	r.GET("/threads", h.ListThreads)
	r.GET("/threads/:id", h.GetThread)
	r.PUT("/threads/:id/name", h.RenameThread)
	r.PUT("/threads/:id/selection", h.UpdateThreadSelection)
	r.DELETE("/threads/:id", h.DeleteThread)
	r.POST("/threads/:id/messages", h.PostMessage)
	r.GET("/threads/:id/messages", h.ListMessages)
	r.GET("/streams/:id", h.GetStream)
	r.GET("/streams/:id/events", h.StreamEvents)
	r.GET("/streams/:id/ws", h.StreamSocket)
}

// do sends a JSON request as user and returns the recorder.
func (f *fixture) do(t *testing.T, method, path, user string, body any, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v body=%s", err, w.Body.String())
	}
	return out
}

func wantCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status=%d want %d body=%s", w.Code, status, w.Body.String())
	}
	if code == "" {
		return
	}
	if got := decode[ErrorResponse](t, w); got.Code != code {
		t.Fatalf("code=%q want %q", got.Code, code)
	}
}

// sendTurn creates a thread for user and posts one message, returning the thread and response.
func (f *fixture) sendTurn(t *testing.T, user, content string) (*domain.Thread, PostMessageResponse) {
	t.Helper()
	th, err := f.threads.Create(context.Background(), user, nil)
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}
	w := f.do(t, http.MethodPost, "/threads/"+th.ID+"/messages", user, gin.H{"content": content})
	if w.Code != http.StatusAccepted {
		t.Fatalf("post message status=%d body=%s", w.Code, w.Body.String())
	}
	return th, decode[PostMessageResponse](t, w)
}
