package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"sort"

	chromem "github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-docchat-backend/internal/domain"
	"github.com/tbourn/go-docchat-backend/internal/repo"
)

const (
	metaDocumentation = "documentation_id"
	metaUnit          = "unit_id"
)

// errNoEmbedding is returned by the collection embedding func. Every chunk
// is added with its stored vector, so chromem never has to embed text.
var errNoEmbedding = errors.New("vectorindex: chunks must carry an embedding")

// Chromem is an in-memory chromem-go index with one collection per unit kind.
type Chromem struct {
	db          *chromem.DB
	collections map[domain.UnitKind]*chromem.Collection
}

// NewChromem creates empty collections for both chunk kinds.
func NewChromem() (*Chromem, error) {
	db := chromem.NewDB()
	noEmbed := func(context.Context, string) ([]float32, error) { return nil, errNoEmbedding }

	c := &Chromem{db: db, collections: map[domain.UnitKind]*chromem.Collection{}}
	for _, kind := range []domain.UnitKind{domain.UnitFile, domain.UnitPage} {
		col, err := db.GetOrCreateCollection(kind.ChunkTable(), nil, noEmbed)
		if err != nil {
			return nil, fmt.Errorf("create collection: %w", err)
		}
		c.collections[kind] = col
	}
	return c, nil
}

// Warm loads every stored chunk into the collections.
func (c *Chromem) Warm(ctx context.Context, db *gorm.DB) error {
	for kind := range c.collections {
		total := 0
		err := repo.EachChunk(ctx, db, kind, func(batch []domain.ChunkFields) error {
			total += len(batch)
			return c.add(ctx, kind, batch)
		})
		if err != nil {
			return fmt.Errorf("warm %s: %w", kind.ChunkTable(), err)
		}
		log.Info().Str("collection", kind.ChunkTable()).Int("chunks", total).Msg("vector index warmed")
	}
	return nil
}

func (c *Chromem) add(ctx context.Context, kind domain.UnitKind, chunks []domain.ChunkFields) error {
	docs := make([]chromem.Document, 0, len(chunks))
	for _, ch := range chunks {
		vec, err := repo.DecodeVector(ch.Embedding)
		if err != nil || len(vec) == 0 {
			continue
		}
		docs = append(docs, chromem.Document{
			ID:        ch.ID,
			Embedding: vec,
			Content:   ch.Content,
			Metadata: map[string]string{
				metaDocumentation: ch.DocumentationID,
				metaUnit:          ch.UnitID,
			},
		})
	}
	if len(docs) == 0 {
		return nil
	}
	return c.collections[kind].AddDocuments(ctx, docs, 1)
}

// Search queries each documentation separately, since chromem filters only
// by metadata equality, and merges the hits.
func (c *Chromem) Search(ctx context.Context, kind domain.UnitKind, query []float32, k int, docIDs []string) ([]repo.ScoredChunk, error) {
	col := c.collections[kind]
	if col == nil || k <= 0 || len(query) == 0 {
		return nil, nil
	}
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	n := min(k, count)

	var hits []repo.ScoredChunk
	for _, id := range docIDs {
		res, err := col.QueryEmbedding(ctx, query, n, map[string]string{metaDocumentation: id}, nil)
		if err != nil {
			return nil, fmt.Errorf("chromem query: %w", err)
		}
		for _, r := range res {
			hits = append(hits, repo.ScoredChunk{
				ID:              r.ID,
				DocumentationID: r.Metadata[metaDocumentation],
				UnitID:          r.Metadata[metaUnit],
				Distance:        1 - float64(r.Similarity),
			})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (c *Chromem) IndexUnit(ctx context.Context, kind domain.UnitKind, unitID string, chunks []domain.ChunkFields) error {
	if err := c.DeleteUnit(ctx, kind, unitID); err != nil {
		return err
	}
	return c.add(ctx, kind, chunks)
}

func (c *Chromem) DeleteUnit(ctx context.Context, kind domain.UnitKind, unitID string) error {
	col := c.collections[kind]
	if col == nil {
		return nil
	}
	return col.Delete(ctx, map[string]string{metaUnit: unitID}, nil)
}

func (c *Chromem) DeleteDocumentation(ctx context.Context, docID string) error {
	for _, col := range c.collections {
		if err := col.Delete(ctx, map[string]string{metaDocumentation: docID}, nil); err != nil {
			return err
		}
	}
	return nil
}
