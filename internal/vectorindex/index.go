// Package vectorindex provides the vector similarity search used by retrieval.
//
// Two backends exist. SQLite scans the chunk tables directly and needs no
// maintenance. Chromem keeps an in-memory chromem-go collection per chunk
// kind, warmed from the store at startup and updated as units are ingested
// or deleted. Both report Distance as 1 - cosine similarity.
package vectorindex

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/tbourn/go-docchat-backend/internal/domain"
	"github.com/tbourn/go-docchat-backend/internal/repo"
)

// Index is the vector search collaborator of the document store.
type Index interface {
	// Search returns up to k chunks of kind belonging to docIDs, best first.
	Search(ctx context.Context, kind domain.UnitKind, query []float32, k int, docIDs []string) ([]repo.ScoredChunk, error)
	// IndexUnit replaces the indexed chunks of a unit.
	IndexUnit(ctx context.Context, kind domain.UnitKind, unitID string, chunks []domain.ChunkFields) error
	// DeleteUnit drops every indexed chunk of a unit.
	DeleteUnit(ctx context.Context, kind domain.UnitKind, unitID string) error
	// DeleteDocumentation drops every indexed chunk of a documentation.
	DeleteDocumentation(ctx context.Context, docID string) error
}

// Backend names accepted by New.
const (
	BackendSQLite  = "sqlite"
	BackendChromem = "chromem"
)

// New builds the index named by backend. The chromem backend is warmed from
// db before it is returned.
func New(ctx context.Context, backend string, db *gorm.DB) (Index, error) {
	switch backend {
	case "", BackendSQLite:
		return &SQLite{DB: db}, nil
	case BackendChromem:
		c, err := NewChromem()
		if err != nil {
			return nil, err
		}
		if err := c.Warm(ctx, db); err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", backend)
	}
}

// SQLite searches the chunk tables with repo.SearchChunks. Chunk rows are
// the index, so the write methods are no-ops.
type SQLite struct {
	DB *gorm.DB
}

func (s *SQLite) Search(ctx context.Context, kind domain.UnitKind, query []float32, k int, docIDs []string) ([]repo.ScoredChunk, error) {
	return repo.SearchChunks(ctx, s.DB, kind, query, k, docIDs)
}

func (s *SQLite) IndexUnit(context.Context, domain.UnitKind, string, []domain.ChunkFields) error {
	return nil
}

func (s *SQLite) DeleteUnit(context.Context, domain.UnitKind, string) error { return nil }

func (s *SQLite) DeleteDocumentation(context.Context, string) error { return nil }
