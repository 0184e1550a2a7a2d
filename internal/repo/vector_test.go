package repo

import (
	"context"
	"math"
	"testing"

	"github.com/tbourn/go-docchat-backend/internal/domain"
)

func TestVectorCodec_RoundTrip(t *testing.T) {
	in := []float32{0, 1.5, -2.25, float32(math.Pi)}
	out, err := DecodeVector(EncodeVector(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("index %d: %v != %v", i, in[i], out[i])
		}
	}
	if _, err := DecodeVector([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for truncated blob")
	}
}

func TestCosineDistance(t *testing.T) {
	cases := []struct {
		a, b []float32
		want float64
	}{
		{[]float32{1, 0}, []float32{2, 0}, 0},
		{[]float32{1, 0}, []float32{0, 1}, 1},
		{[]float32{1, 0}, []float32{-1, 0}, 2},
		{[]float32{0, 0}, []float32{1, 0}, 1},
	}
	for _, c := range cases {
		got, err := CosineDistance(c.a, c.b)
		if err != nil || math.Abs(got-c.want) > 1e-9 {
			t.Fatalf("CosineDistance(%v,%v) = %v, %v; want %v", c.a, c.b, got, err, c.want)
		}
	}
	if _, err := CosineDistance([]float32{1}, []float32{1, 2}); err != ErrDimensionMismatch {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestSearchChunks_FiltersAndOrders(t *testing.T) {
	db := newStoreDB(t)
	ctx := context.Background()
	d1 := seedDocumentation(t, db, "u1", domain.DocTypeWeb, 0, 0)
	d2 := seedDocumentation(t, db, "u1", domain.DocTypeWeb, 0, 0)

	mk := func(doc, content string, v ...float32) domain.ChunkFields {
		return domain.ChunkFields{DocumentationID: doc, Content: content, Embedding: EncodeVector(v)}
	}
	if err := ReplaceUnitChunks(ctx, db, domain.UnitPage, "p1", []domain.ChunkFields{
		mk(d1.ID, "far", 0, 1),
		mk(d1.ID, "near", 1, 0.1),
		mk(d1.ID, "exact", 1, 0),
	}); err != nil {
		t.Fatalf("seed d1: %v", err)
	}
	if err := ReplaceUnitChunks(ctx, db, domain.UnitPage, "p2", []domain.ChunkFields{
		mk(d2.ID, "other-doc", 1, 0),
	}); err != nil {
		t.Fatalf("seed d2: %v", err)
	}

	hits, err := SearchChunks(ctx, db, domain.UnitPage, []float32{1, 0}, 2, []string{d1.ID})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected top-2, got %+v", hits)
	}
	if hits[0].Distance > hits[1].Distance {
		t.Fatalf("hits not best-first: %+v", hits)
	}
	contents, err := ChunkContents(ctx, db, domain.UnitPage, []string{hits[0].ID, hits[1].ID})
	if err != nil {
		t.Fatalf("contents: %v", err)
	}
	if contents[0] != "exact" || contents[1] != "near" {
		t.Fatalf("unexpected contents order: %v", contents)
	}

	if hits, _ := SearchChunks(ctx, db, domain.UnitPage, []float32{1, 0}, 10, nil); len(hits) != 0 {
		t.Fatalf("expected no hits for empty filter, got %+v", hits)
	}
	if hits, _ := SearchChunks(ctx, db, domain.UnitFile, []float32{1, 0}, 10, []string{d1.ID}); len(hits) != 0 {
		t.Fatalf("expected no hits in file collection, got %+v", hits)
	}
}

func TestReplaceUnitChunks_IsIdempotent(t *testing.T) {
	db := newStoreDB(t)
	ctx := context.Background()
	d := seedDocumentation(t, db, "u1", domain.DocTypeFiles, 0, 0)
	chunks := func() []domain.ChunkFields {
		return []domain.ChunkFields{
			{DocumentationID: d.ID, ChunkIndex: 0, Content: "a", Embedding: EncodeVector([]float32{1})},
			{DocumentationID: d.ID, ChunkIndex: 1, Content: "b", Embedding: EncodeVector([]float32{1})},
		}
	}
	for i := 0; i < 2; i++ {
		if err := ReplaceUnitChunks(ctx, db, domain.UnitFile, "f1", chunks()); err != nil {
			t.Fatalf("replace %d: %v", i, err)
		}
	}
	n, err := CountUnitChunks(ctx, db, domain.UnitFile, "f1")
	if err != nil || n != 2 {
		t.Fatalf("expected 2 chunks after re-run, got %d (%v)", n, err)
	}

	var seen int
	err = EachChunk(ctx, db, domain.UnitFile, func(batch []domain.ChunkFields) error {
		seen += len(batch)
		return nil
	})
	if err != nil || seen != 2 {
		t.Fatalf("EachChunk: seen=%d err=%v", seen, err)
	}

	if err := DeleteUnitChunks(ctx, db, domain.UnitFile, "f1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := CountUnitChunks(ctx, db, domain.UnitFile, "f1"); n != 0 {
		t.Fatalf("expected 0 chunks, got %d", n)
	}
}
