// Package services – IngestionService
//
// This file implements the per-unit ingestion pipeline. A unit (uploaded file
// or scraped page) in the starting state is fetched, chunked with the policy
// matching its kind, filtered for short chunks, embedded concurrently and
// persisted. The unit then ends in exactly one terminal state:
//
//   - completed: chunks stored, total_chunks set, parent active_page + 1
//   - no-data:   content fetched but no chunk survived the length filter
//   - failed:    any fetch, embedding or store error
//
// Failures are recorded on the unit and logged; they are never returned to
// the scheduler, so one bad unit cannot abort a batch. Jobs for units that
// are no longer starting are skipped, which makes duplicate deliveries
// harmless.
package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-docchat-backend/internal/ai"
	"github.com/tbourn/go-docchat-backend/internal/chunker"
	"github.com/tbourn/go-docchat-backend/internal/config"
	"github.com/tbourn/go-docchat-backend/internal/domain"
	"github.com/tbourn/go-docchat-backend/internal/observability"
	"github.com/tbourn/go-docchat-backend/internal/queue"
	"github.com/tbourn/go-docchat-backend/internal/repo"
	"github.com/tbourn/go-docchat-backend/internal/sources"
	"github.com/tbourn/go-docchat-backend/internal/vectorindex"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// IngestionService runs the ingestion pipeline for single units.
type IngestionService struct {
	DB       *gorm.DB
	Index    vectorindex.Index
	Embedder ai.Embedder
	Pages    sources.PageFetcher
	Files    sources.FileFetcher
	Cfg      config.IngestConfig
}

// errNoData marks a unit whose content produced no usable chunk.
var errNoData = errors.New("no chunk passed the length filter")

// unitRef is the minimum the pipeline needs to know about a unit.
type unitRef struct {
	kind   domain.UnitKind
	id     string
	docID  string
	status domain.UnitStatus
	name   string // file name or page URL
}

// HandleJob is the queue handler for ingest.file and ingest.page jobs.
func (s *IngestionService) HandleJob(ctx context.Context, job queue.Job) error {
	switch job.Kind {
	case queue.KindIngestFile:
		return s.IngestFile(ctx, job.Target)
	case queue.KindIngestPage:
		return s.IngestPage(ctx, job.Target)
	default:
		return fmt.Errorf("ingestion: unexpected job kind %q", job.Kind)
	}
}

// IngestFile runs the pipeline for one FileDocument.
func (s *IngestionService) IngestFile(ctx context.Context, fileID string) error {
	f, err := repo.GetFileDocumentByID(ctx, s.DB, fileID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Debug().Str("unit_id", fileID).Msg("file removed before ingestion")
		return nil
	}
	if err != nil {
		return err
	}
	ref := unitRef{kind: domain.UnitFile, id: f.ID, docID: f.DocumentationID, status: f.Status, name: f.FileName}
	return s.run(ctx, ref, func(ctx context.Context) ([]chunker.Chunk, error) {
		text, err := s.Files.FetchFile(ctx, f.FilePrefix)
		if err != nil {
			return nil, fmt.Errorf("fetch file: %w", err)
		}
		return s.chunkFile(f.FileName, text), nil
	})
}

// IngestPage runs the pipeline for one PageDocument. The fetched markdown is
// stored on the page before chunking.
func (s *IngestionService) IngestPage(ctx context.Context, pageID string) error {
	p, err := repo.GetPageDocumentByID(ctx, s.DB, pageID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Debug().Str("unit_id", pageID).Msg("page removed before ingestion")
		return nil
	}
	if err != nil {
		return err
	}
	ref := unitRef{kind: domain.UnitPage, id: p.ID, docID: p.DocumentationID, status: p.Status, name: p.URL}
	return s.run(ctx, ref, func(ctx context.Context) ([]chunker.Chunk, error) {
		page, err := s.Pages.FetchPage(ctx, p.URL)
		if err != nil {
			return nil, fmt.Errorf("fetch page: %w", err)
		}
		if err := repo.SetPageContent(ctx, s.DB, p.ID, page.Title, page.Markdown); err != nil {
			return nil, err
		}
		return chunker.Split(chunker.PolicyMarkdown, page.Markdown,
			chunker.WithWordLimits(s.Cfg.MarkdownMinWords, s.Cfg.MarkdownMaxWords, s.Cfg.MarkdownOverlapWords),
		), nil
	})
}

// ResumePending re-enqueues every unit left in the starting state, e.g. by a
// restart that dropped in-memory jobs.
func (s *IngestionService) ResumePending(ctx context.Context, q queue.Queue) (int, error) {
	n := 0
	for kind, jobKind := range map[domain.UnitKind]string{
		domain.UnitFile: queue.KindIngestFile,
		domain.UnitPage: queue.KindIngestPage,
	} {
		ids, err := repo.ListStartingUnitIDs(ctx, s.DB, kind)
		if err != nil {
			return n, err
		}
		for i, id := range ids {
			if err := q.Enqueue(ctx, queue.Job{Kind: jobKind, Target: id}, s.stagger(i)); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

// stagger spreads the start of the i-th job of a batch.
func (s *IngestionService) stagger(i int) time.Duration {
	return time.Duration(i) * s.Cfg.ScanStagger
}

// run executes fetch+chunk, then the shared embed/store/finish steps.
func (s *IngestionService) run(ctx context.Context, u unitRef, produce func(context.Context) ([]chunker.Chunk, error)) error {
	tr := otel.Tracer("services/IngestionService")
	ctx, span := tr.Start(ctx, "Ingest",
		trace.WithAttributes(
			attribute.String("unit.kind", string(u.kind)),
			attribute.String("unit.id", u.id),
			attribute.String("documentation.id", u.docID),
		),
	)
	defer span.End()

	logger := log.With().
		Str("unit_kind", string(u.kind)).
		Str("unit_id", u.id).
		Str("documentation_id", u.docID).
		Logger()

	if u.status != domain.UnitStarting {
		logger.Debug().Str("status", string(u.status)).Msg("unit not starting; skipping")
		return nil
	}

	n, err := s.process(ctx, u, produce)
	var upd repo.UnitUpdate
	switch {
	case errors.Is(err, errNoData):
		upd = repo.UnitUpdate{Status: domain.UnitNoData}
		logger.Info().Str("source", u.name).Msg("unit has no usable content")
	case err != nil:
		upd = repo.UnitUpdate{Status: domain.UnitFailed, LastError: truncateError(err)}
		span.RecordError(err)
		span.SetStatus(codes.Error, "ingestion failed")
		logger.Warn().Err(err).Str("source", u.name).Msg("unit ingestion failed")
	default:
		upd = repo.UnitUpdate{Status: domain.UnitCompleted, TotalChunks: n}
	}

	if err := repo.UpdateUnitStatus(ctx, s.DB, u.kind, u.id, upd); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Deleted mid-flight: drop whatever was written for it.
			s.discard(ctx, u)
			return nil
		}
		return err
	}
	observability.IngestUnits.WithLabelValues(string(u.kind), string(upd.Status)).Inc()

	if upd.Status == domain.UnitCompleted {
		if err := repo.IncrementActivePage(ctx, s.DB, u.docID); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		logger.Info().Int("chunks", n).Str("source", u.name).Msg("unit ingested")
	}
	if u.kind == domain.UnitPage {
		s.settleScanAll(ctx, u.docID)
	}
	return nil
}

// settleScanAll returns a documentation from scan-all to ready once no page
// is left starting.
func (s *IngestionService) settleScanAll(ctx context.Context, docID string) {
	doc, err := repo.GetDocumentationByID(ctx, s.DB, docID)
	if err != nil || doc.Status != domain.DocumentationScanAll {
		return
	}
	counts, err := repo.UnitStatusCounts(ctx, s.DB, domain.UnitPage, docID)
	if err != nil || counts[domain.UnitStarting] > 0 {
		return
	}
	if err := repo.SetDocumentationStatus(ctx, s.DB, docID, domain.DocumentationReady); err != nil {
		log.Warn().Err(err).Str("documentation_id", docID).Msg("settle scan-all status")
	}
}

// process fetches, chunks, embeds and stores. It returns the chunk count.
func (s *IngestionService) process(ctx context.Context, u unitRef, produce func(context.Context) ([]chunker.Chunk, error)) (int, error) {
	chunks, err := produce(ctx)
	if err != nil {
		return 0, err
	}
	chunks = chunker.FilterShort(chunks, s.Cfg.MinChunkChars)
	if len(chunks) == 0 {
		if err := repo.DeleteUnitChunks(ctx, s.DB, u.kind, u.id); err != nil {
			return 0, err
		}
		if err := s.Index.DeleteUnit(ctx, u.kind, u.id); err != nil {
			return 0, err
		}
		return 0, errNoData
	}

	vectors, err := s.embedAll(ctx, chunks)
	if err != nil {
		return 0, err
	}

	rows := make([]domain.ChunkFields, len(chunks))
	for i, c := range chunks {
		rows[i] = domain.ChunkFields{
			DocumentationID: u.docID,
			ChunkIndex:      i,
			Heading:         c.Heading,
			Content:         c.Content,
			Embedding:       repo.EncodeVector(vectors[i]),
		}
	}
	if err := repo.ReplaceUnitChunks(ctx, s.DB, u.kind, u.id, rows); err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}
	if err := s.Index.IndexUnit(ctx, u.kind, u.id, rows); err != nil {
		return 0, fmt.Errorf("index chunks: %w", err)
	}
	observability.IngestChunks.WithLabelValues(string(u.kind)).Add(float64(len(rows)))
	return len(rows), nil
}

// embedAll embeds every chunk with at most EmbedConcurrency calls in flight.
// The first failure cancels the remaining calls.
func (s *IngestionService) embedAll(ctx context.Context, chunks []chunker.Chunk) ([][]float32, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	limit := max(s.Cfg.EmbedConcurrency, 1)
	sem := make(chan struct{}, limit)
	out := make([][]float32, len(chunks))

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for i := range chunks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			v, err := ai.EmbedOne(ctx, s.Embedder, chunks[i].EmbedText())
			observability.EmbeddingRequests.WithLabelValues(observability.Outcome(err)).Inc()
			if err != nil {
				once.Do(func() {
					firstErr = fmt.Errorf("embed chunk %d: %w", i, err)
					cancel()
				})
				return
			}
			out[i] = v
		}(i)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// chunkFile picks the chunking policy from the file extension: markdown for
// markdown sources, paragraphs for plain text formats and heading sections
// for everything else (extracted document text).
func (s *IngestionService) chunkFile(name, text string) []chunker.Chunk {
	switch strings.ToLower(path.Ext(name)) {
	case ".md", ".markdown", ".mdx":
		return chunker.Split(chunker.PolicyMarkdown, text,
			chunker.WithWordLimits(s.Cfg.MarkdownMinWords, s.Cfg.MarkdownMaxWords, s.Cfg.MarkdownOverlapWords))
	case ".txt", ".text", ".csv", ".json", ".rst":
		return chunker.Split(chunker.PolicyParagraph, text,
			chunker.WithChunkSize(s.Cfg.TextMaxChars), chunker.WithOverlap(s.Cfg.TextOverlapChars))
	default:
		return chunker.Split(chunker.PolicySections, text, chunker.WithChunkSize(s.Cfg.SectionMaxChars))
	}
}

func (s *IngestionService) discard(ctx context.Context, u unitRef) {
	if err := repo.DeleteUnitChunks(ctx, s.DB, u.kind, u.id); err != nil {
		log.Warn().Err(err).Str("unit_id", u.id).Msg("discard chunks of deleted unit")
	}
	if err := s.Index.DeleteUnit(ctx, u.kind, u.id); err != nil {
		log.Warn().Err(err).Str("unit_id", u.id).Msg("discard index entries of deleted unit")
	}
}

// truncateError keeps stored error text bounded.
func truncateError(err error) string {
	const maxLen = 500
	msg := err.Error()
	if len(msg) > maxLen {
		return strings.ToValidUTF8(msg[:maxLen], "")
	}
	return msg
}
