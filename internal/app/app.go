// Package app assembles the service: store, providers, background queue,
// application services and the HTTP engine. Both the serve command and the
// end-to-end tests build the process through New.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-docchat-backend/internal/ai"
	"github.com/tbourn/go-docchat-backend/internal/blob"
	"github.com/tbourn/go-docchat-backend/internal/config"
	httpapi "github.com/tbourn/go-docchat-backend/internal/http"
	"github.com/tbourn/go-docchat-backend/internal/http/handlers"
	"github.com/tbourn/go-docchat-backend/internal/metering"
	"github.com/tbourn/go-docchat-backend/internal/queue"
	"github.com/tbourn/go-docchat-backend/internal/repo"
	"github.com/tbourn/go-docchat-backend/internal/services"
	"github.com/tbourn/go-docchat-backend/internal/sources"
	"github.com/tbourn/go-docchat-backend/internal/vectorindex"
)

// Deps are the external collaborators. Nil fields are built from cfg.
type Deps struct {
	DB       *gorm.DB
	Provider ai.Provider
	Mapper   sources.SiteMapper
	Pages    sources.PageFetcher
	Blobs    blob.Store
}

// App is a wired process.
type App struct {
	Cfg    config.Config
	DB     *gorm.DB
	Queue  *queue.Local
	Engine *gin.Engine

	Docs    *services.DocumentationService
	Threads *services.ThreadService
	Chat    *services.ChatStreamService
	Ingest  *services.IngestionService
}

// New opens the store, builds every service and registers the queue handlers
// and HTTP routes. Nothing runs until Recover and the HTTP server start.
func New(ctx context.Context, cfg config.Config, deps Deps) (*App, error) {
	db := deps.DB
	if db == nil {
		if err := ensureParentDir(cfg.DBPath); err != nil {
			return nil, err
		}
		var err error
		if db, err = repo.OpenSQLite(cfg.DBPath); err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	provider := deps.Provider
	if provider == nil {
		provider = ai.NewLimited(ai.NewOpenAI(cfg.AI), cfg.AI.RPM)
	}
	mapper := deps.Mapper
	if mapper == nil {
		mapper = sources.NewFirecrawl(cfg.Scrape)
	}
	pages := deps.Pages
	if pages == nil {
		pages = sources.NewReader(cfg.Scrape)
	}
	blobs := deps.Blobs
	if blobs == nil {
		disk, err := blob.NewDisk(cfg.Blob.Dir)
		if err != nil {
			return nil, fmt.Errorf("blob store: %w", err)
		}
		blobs = disk
	}

	index, err := vectorindex.New(ctx, cfg.Retrieval.Backend, db)
	if err != nil {
		return nil, fmt.Errorf("vector index: %w", err)
	}

	q := queue.NewLocal(cfg.Ingest.Workers)
	meter := metering.NewLedger(db, cfg.Metering)

	a := &App{Cfg: cfg, DB: db, Queue: q}
	a.Ingest = &services.IngestionService{
		DB:       db,
		Index:    index,
		Embedder: provider,
		Pages:    pages,
		Files:    &sources.BlobFiles{Store: blobs},
		Cfg:      cfg.Ingest,
	}
	a.Docs = &services.DocumentationService{
		DB:             db,
		Queue:          q,
		Meter:          meter,
		Mapper:         mapper,
		Blobs:          blobs,
		Index:          index,
		FilePatterns:   cfg.Ingest.FilePatterns,
		ScanStagger:    cfg.Ingest.ScanStagger,
		MaxUploadBytes: cfg.Blob.MaxBytes,
	}
	a.Threads = services.NewThreadService(db, meter, provider)
	a.Threads.TitleMaxLen = cfg.Chat.TitleMaxRunes
	a.Chat = &services.ChatStreamService{
		DB:    db,
		Queue: q,
		Meter: meter,
		Retriever: &services.RetrievalService{
			DB:          db,
			Embedder:    provider,
			Index:       index,
			TopK:        cfg.Retrieval.TopK,
			MaxDistance: cfg.Retrieval.MaxDistance,
		},
		Generator:      provider,
		HistoryWindow:  cfg.Chat.HistoryWindow,
		MaxPromptRunes: cfg.Chat.MaxPromptRunes,
		IdempotencyTTL: cfg.IdempotencyTTL,
	}

	q.Handle(queue.KindIngestFile, a.Ingest.HandleJob)
	q.Handle(queue.KindIngestPage, a.Ingest.HandleJob)
	q.Handle(queue.KindThreadTitle, a.Threads.HandleTitleJob)
	q.Handle(queue.KindChatStream, a.Chat.HandleJob,
		queue.WithSlots(cfg.Chat.Workers),
		queue.OnDrop(a.Chat.DropJob),
	)

	gin.SetMode(cfg.GinMode)
	a.Engine = gin.New()
	httpapi.RegisterRoutes(a.Engine, db, cfg, handlers.New(db, a.Docs, a.Threads, a.Chat))
	return a, nil
}

// Recover repairs state left behind by a previous process: units still
// starting are rescheduled, open streams are re-enqueued or finalized and
// expired idempotency records are purged.
func (a *App) Recover(ctx context.Context) error {
	n, err := a.Ingest.ResumePending(ctx, a.Queue)
	if err != nil {
		return fmt.Errorf("resume units: %w", err)
	}
	resumed, closed, err := a.Chat.ResumeOpen(ctx)
	if err != nil {
		return fmt.Errorf("resume streams: %w", err)
	}
	purged, err := repo.PurgeExpiredIdempotency(ctx, a.DB, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("purge idempotency: %w", err)
	}
	log.Info().
		Int("units_resumed", n).
		Int("streams_resumed", resumed).
		Int("streams_finalized", closed).
		Int64("idempotency_purged", purged).
		Msg("startup recovery done")
	return nil
}

// RunMaintenance finalizes streams idle past Chat.StuckAfter and purges
// expired idempotency records every Chat.SweepInterval until ctx is done.
func (a *App) RunMaintenance(ctx context.Context) {
	swept := make(chan struct{})
	go func() {
		defer close(swept)
		a.Chat.RunSweeper(ctx, a.Cfg.Chat.SweepInterval, a.Cfg.Chat.StuckAfter)
	}()
	defer func() { <-swept }()

	ticker := time.NewTicker(a.Cfg.Chat.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := repo.PurgeExpiredIdempotency(ctx, a.DB, time.Now().UTC()); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("purge idempotency")
			}
		}
	}
}

// Close drains the queue and closes the store.
func (a *App) Close(ctx context.Context) error {
	qErr := a.Queue.Shutdown(ctx)
	if sqlDB, err := a.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil && qErr == nil {
			return err
		}
	}
	return qErr
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
