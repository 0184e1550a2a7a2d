// Package repo implements the document store backed by GORM. This file holds
// the embedding codec and the brute-force cosine search used as the default
// vector index over the chunk tables.
package repo

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sort"

	"gorm.io/gorm"

	"github.com/tbourn/go-docchat-backend/internal/domain"
)

// ErrDimensionMismatch is returned when a stored embedding and the query
// vector have different lengths.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// ScoredChunk is one vector search hit. Distance is 1 - cosine similarity,
// so it lies in [0, 2] and lower means more similar.
type ScoredChunk struct {
	ID              string
	DocumentationID string
	UnitID          string
	Distance        float64
}

// EncodeVector serialises v as little-endian float32s.
func EncodeVector(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, errors.New("embedding blob length is not a multiple of 4")
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// CosineDistance returns 1 - cos(a, b). Zero vectors are at distance 1.
func CosineDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1, nil
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb)), nil
}

// SearchChunks scans the chunk table of kind restricted to docIDs and returns
// the k nearest chunks, best first. Ties are broken by id so results are
// deterministic. Rows whose embedding has a different dimension are skipped.
func SearchChunks(ctx context.Context, db *gorm.DB, kind domain.UnitKind, query []float32, k int, docIDs []string) ([]ScoredChunk, error) {
	if k <= 0 || len(docIDs) == 0 || len(query) == 0 {
		return nil, nil
	}
	rows, err := db.WithContext(ctx).
		Table(kind.ChunkTable()).
		Select("id, documentation_id, unit_id, embedding").
		Where("documentation_id IN ?", docIDs).
		Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []ScoredChunk
	for rows.Next() {
		var (
			h    ScoredChunk
			blob []byte
		)
		if err := rows.Scan(&h.ID, &h.DocumentationID, &h.UnitID, &blob); err != nil {
			return nil, err
		}
		vec, err := DecodeVector(blob)
		if err != nil {
			continue
		}
		d, err := CosineDistance(query, vec)
		if err != nil {
			continue
		}
		h.Distance = d
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
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
