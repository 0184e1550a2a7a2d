package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-docchat-backend/internal/ai"
	"github.com/tbourn/go-docchat-backend/internal/domain"
	"github.com/tbourn/go-docchat-backend/internal/metering"
	"github.com/tbourn/go-docchat-backend/internal/queue"
	"github.com/tbourn/go-docchat-backend/internal/repo"
	"github.com/tbourn/go-docchat-backend/internal/sources"
)

// newSvcDB opens a unique in-memory SQLite DB with the store schema migrated.
func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", uuid.NewString())
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
	// One connection serializes background goroutines on the shared cache.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// ----- Queue -----

type enqueued struct {
	job   queue.Job
	delay time.Duration
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []enqueued
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, job queue.Job, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, enqueued{job: job, delay: delay})
	return nil
}

func (q *fakeQueue) ofKind(kind string) []enqueued {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []enqueued
	for _, e := range q.jobs {
		if e.job.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// ----- Meter -----

// fakeMeter allows everything unless a balance is set for the feature.
type fakeMeter struct {
	mu       sync.Mutex
	balances map[metering.Feature]metering.Balance
	tracked  map[metering.Feature]int64
	checkErr error
}

func (m *fakeMeter) Check(_ context.Context, _ string, f metering.Feature) (metering.Balance, error) {
	if m.checkErr != nil {
		return metering.Balance{}, m.checkErr
	}
	if b, ok := m.balances[f]; ok {
		return b, nil
	}
	return metering.Balance{Allowed: true, Unlimited: true, Remaining: math.MaxInt64}, nil
}

func (m *fakeMeter) Track(_ context.Context, _ string, f metering.Feature, n int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tracked == nil {
		m.tracked = map[metering.Feature]int64{}
	}
	m.tracked[f] += n
	return nil
}

func (m *fakeMeter) set(f metering.Feature, remaining int64) {
	if m.balances == nil {
		m.balances = map[metering.Feature]metering.Balance{}
	}
	m.balances[f] = metering.Balance{Allowed: remaining > 0, Remaining: remaining, Limit: remaining}
}

// ----- AI -----

// fakeEmbedder maps texts to vectors through vecs, falling back to def.
type fakeEmbedder struct {
	mu    sync.Mutex
	vecs  map[string][]float32
	def   []float32
	err   error
	calls int
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := e.vecs[t]; ok {
			out[i] = v
			continue
		}
		if e.def != nil {
			out[i] = e.def
		} else {
			out[i] = []float32{1, 0, 0}
		}
	}
	return out, nil
}

type fakeStream struct {
	frags  []string
	err    error // returned after frags are exhausted; io.EOF when nil
	i      int
	before func(i int)
}

func (s *fakeStream) Recv() (string, error) {
	if s.i < len(s.frags) {
		if s.before != nil {
			s.before(s.i)
		}
		s.i++
		return s.frags[s.i-1], nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *fakeStream) Close() error { return nil }

type fakeGenerator struct {
	frags     []string
	streamErr error
	err       error
	// beforeFrag runs before fragment i is handed out.
	beforeFrag func(i int)

	mu      sync.Mutex
	prompts []ai.Prompt
}

func (g *fakeGenerator) Generate(_ context.Context, p ai.Prompt) (ai.Stream, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, p)
	g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	return &fakeStream{frags: g.frags, err: g.streamErr, before: g.beforeFrag}, nil
}

type fakeTitler struct {
	title string
	err   error
	got   string
}

func (f *fakeTitler) Title(_ context.Context, first string, _ int) (string, error) {
	f.got = first
	return f.title, f.err
}

type fakeRetriever struct {
	out *RetrievedContext
	err error

	gotUser  string
	gotQuery string
	gotDocs  []string
}

func (r *fakeRetriever) Retrieve(_ context.Context, userID, query string, docIDs []string) (*RetrievedContext, error) {
	r.gotUser, r.gotQuery, r.gotDocs = userID, query, docIDs
	if r.err != nil {
		return nil, r.err
	}
	if r.out == nil {
		return &RetrievedContext{}, nil
	}
	return r.out, nil
}

// ----- Sources -----

type fakePages struct {
	pages map[string]*sources.Page
	err   error
	calls int
}

func (f *fakePages) FetchPage(_ context.Context, url string) (*sources.Page, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.pages[url]
	if !ok {
		return nil, errors.New("page not found")
	}
	return p, nil
}

type fakeFiles struct {
	texts map[string]string
	err   error
	calls int
}

func (f *fakeFiles) FetchFile(_ context.Context, key string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	t, ok := f.texts[key]
	if !ok {
		return "", errors.New("blob not found")
	}
	return t, nil
}

type fakeMapper struct {
	site *sources.SiteMap
	err  error
}

func (f *fakeMapper) MapSite(_ context.Context, _ string) (*sources.SiteMap, error) {
	return f.site, f.err
}

// ----- Seeds -----

func seedDoc(t *testing.T, db *gorm.DB, userID string, typ domain.DocType) *domain.Documentation {
	t.Helper()
	d := &domain.Documentation{UserID: userID, Name: "docs", Type: typ, Status: domain.DocumentationReady}
	if err := repo.CreateDocumentation(context.Background(), db, d); err != nil {
		t.Fatalf("seed documentation: %v", err)
	}
	return d
}

func seedFile(t *testing.T, db *gorm.DB, doc *domain.Documentation, name, key string) *domain.FileDocument {
	t.Helper()
	ctx := context.Background()
	files := []domain.FileDocument{{DocumentationID: doc.ID, FileName: name, FilePrefix: key}}
	if err := repo.CreateFileDocuments(ctx, db, files); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	if err := repo.AddTotalPages(ctx, db, doc.ID, 1); err != nil {
		t.Fatalf("add total: %v", err)
	}
	return &files[0]
}

func mustDocumentation(t *testing.T, db *gorm.DB, id string) *domain.Documentation {
	t.Helper()
	d, err := repo.GetDocumentationByID(context.Background(), db, id)
	if err != nil {
		t.Fatalf("get documentation: %v", err)
	}
	return d
}
