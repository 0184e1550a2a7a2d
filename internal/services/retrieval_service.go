// Package services – RetrievalService
//
// This file implements the read path that turns a question and the thread's
// selected documentations into a context string. The query is embedded once,
// the selection is partitioned by documentation type, each partition runs
// its own filtered top-k vector search concurrently, hits at or beyond
// MaxDistance are dropped, and the surviving chunk texts are concatenated
// best-first within each partition (files before web pages).
//
// The service never writes. It may run while the same documentations are
// being ingested and then sees whatever chunks are already stored.
package services

import (
	"context"
	"strings"
	"sync"

	"gorm.io/gorm"

	"github.com/tbourn/go-docchat-backend/internal/ai"
	"github.com/tbourn/go-docchat-backend/internal/domain"
	"github.com/tbourn/go-docchat-backend/internal/observability"
	"github.com/tbourn/go-docchat-backend/internal/repo"
	"github.com/tbourn/go-docchat-backend/internal/vectorindex"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// contextSeparator joins chunk texts in a context.
const contextSeparator = "\n\n"

// RetrievedContext is the outcome of one retrieval.
type RetrievedContext struct {
	Text   string
	Chunks int
}

// Retriever builds the context for a question.
type Retriever interface {
	Retrieve(ctx context.Context, userID, query string, docIDs []string) (*RetrievedContext, error)
}

// RetrievalService is the vector-search backed Retriever.
type RetrievalService struct {
	DB       *gorm.DB
	Embedder ai.Embedder
	Index    vectorindex.Index

	TopK        int
	MaxDistance float64
}

// partitionOrder fixes the order partitions appear in the context.
var partitionOrder = []domain.DocType{domain.DocTypeFiles, domain.DocTypeWeb}

// Retrieve implements Retriever. Documentations the user does not own are
// ignored. An empty selection or no hit under MaxDistance yields an empty
// context and no error.
func (s *RetrievalService) Retrieve(ctx context.Context, userID, query string, docIDs []string) (*RetrievedContext, error) {
	tr := otel.Tracer("services/RetrievalService")
	ctx, span := tr.Start(ctx, "Retrieve",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("documentations", len(docIDs)),
		),
	)
	defer span.End()

	out := &RetrievedContext{}
	parts, err := s.partition(ctx, userID, docIDs)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 || strings.TrimSpace(query) == "" {
		observability.RetrievalContextChunks.Observe(0)
		return out, nil
	}

	vec, err := ai.EmbedOne(ctx, s.Embedder, query)
	observability.EmbeddingRequests.WithLabelValues(observability.Outcome(err)).Inc()
	if err != nil {
		return nil, err
	}

	results := make([][]string, len(partitionOrder))
	errs := make([]error, len(partitionOrder))
	var wg sync.WaitGroup
	for i, typ := range partitionOrder {
		ids := parts[typ]
		if len(ids) == 0 {
			continue
		}
		wg.Add(1)
		go func(i int, kind domain.UnitKind, ids []string) {
			defer wg.Done()
			results[i], errs[i] = s.searchPartition(ctx, kind, vec, ids)
		}(i, typ.UnitKind(), ids)
	}
	wg.Wait()

	var texts []string
	for i := range partitionOrder {
		if errs[i] != nil {
			return nil, errs[i]
		}
		texts = append(texts, results[i]...)
	}
	out.Text = strings.Join(texts, contextSeparator)
	out.Chunks = len(texts)
	observability.RetrievalContextChunks.Observe(float64(out.Chunks))
	span.SetAttributes(attribute.Int("context.chunks", out.Chunks))
	return out, nil
}

// partition groups the owned documentations among docIDs by type, keeping
// the selection order within each group.
func (s *RetrievalService) partition(ctx context.Context, userID string, docIDs []string) (map[domain.DocType][]string, error) {
	ids := dedupe(docIDs)
	if len(ids) == 0 {
		return nil, nil
	}
	docs, err := repo.ListDocumentationsByIDs(ctx, s.DB, userID, ids)
	if err != nil {
		return nil, err
	}
	typeOf := make(map[string]domain.DocType, len(docs))
	for _, d := range docs {
		typeOf[d.ID] = d.Type
	}
	parts := map[domain.DocType][]string{}
	for _, id := range ids {
		if t, ok := typeOf[id]; ok {
			parts[t] = append(parts[t], id)
		}
	}
	return parts, nil
}

// searchPartition runs the filtered top-k search for one chunk collection
// and returns the texts of the hits under the distance threshold, best first.
func (s *RetrievalService) searchPartition(ctx context.Context, kind domain.UnitKind, vec []float32, docIDs []string) ([]string, error) {
	hits, err := s.Index.Search(ctx, kind, vec, s.topK(), docIDs)
	if err != nil {
		return nil, err
	}
	keep := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.Distance < s.MaxDistance {
			keep = append(keep, h.ID)
		}
	}
	return repo.ChunkContents(ctx, s.DB, kind, keep)
}

func (s *RetrievalService) topK() int {
	if s.TopK <= 0 {
		return 10
	}
	return s.TopK
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
