// Package repo implements the document store backed by GORM. This file
// provides repository functions for the two chunk collections.
//
// Chunks are immutable once written. They are replaced wholesale when a unit
// is re-ingested and deleted in bulk with their unit, so re-running the
// pipeline for a unit never accumulates duplicates.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-docchat-backend/internal/domain"
)

const chunkBatchSize = 100

// ReplaceUnitChunks deletes the existing chunks of unitID and inserts
// chunks in one transaction. IDs and CreatedAt are assigned when empty.
func ReplaceUnitChunks(ctx context.Context, db *gorm.DB, kind domain.UnitKind, unitID string, chunks []domain.ChunkFields) error {
	now := time.Now().UTC()
	for i := range chunks {
		if chunks[i].ID == "" {
			chunks[i].ID = uuid.NewString()
		}
		chunks[i].UnitID = unitID
		chunks[i].CreatedAt = now
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := DeleteUnitChunks(ctx, tx, kind, unitID); err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		if kind == domain.UnitPage {
			rows := make([]domain.PageChunk, len(chunks))
			for i, c := range chunks {
				rows[i] = domain.PageChunk{ChunkFields: c}
			}
			return tx.CreateInBatches(&rows, chunkBatchSize).Error
		}
		rows := make([]domain.FileChunk, len(chunks))
		for i, c := range chunks {
			rows[i] = domain.FileChunk{ChunkFields: c}
		}
		return tx.CreateInBatches(&rows, chunkBatchSize).Error
	})
}

// DeleteUnitChunks removes every chunk of unitID.
func DeleteUnitChunks(ctx context.Context, db *gorm.DB, kind domain.UnitKind, unitID string) error {
	return db.WithContext(ctx).
		Table(kind.ChunkTable()).
		Where("unit_id = ?", unitID).
		Delete(&domain.ChunkFields{}).Error
}

// CountUnitChunks returns how many chunks unitID has.
func CountUnitChunks(ctx context.Context, db *gorm.DB, kind domain.UnitKind, unitID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Table(kind.ChunkTable()).
		Where("unit_id = ?", unitID).
		Count(&n).Error
	return n, err
}

// ChunkContents returns the content of the chunks in ids, in the order of
// ids. Ids that no longer exist are skipped.
func ChunkContents(ctx context.Context, db *gorm.DB, kind domain.UnitKind, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []struct {
		ID      string
		Content string
	}
	err := db.WithContext(ctx).
		Table(kind.ChunkTable()).
		Select("id, content").
		Where("id IN ?", ids).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	byID := make(map[string]string, len(rows))
	for _, r := range rows {
		byID[r.ID] = r.Content
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// EachChunk streams every chunk of kind to fn in batches. It is used to warm
// an external vector index at startup.
func EachChunk(ctx context.Context, db *gorm.DB, kind domain.UnitKind, fn func([]domain.ChunkFields) error) error {
	var batch []domain.ChunkFields
	res := db.WithContext(ctx).
		Table(kind.ChunkTable()).
		FindInBatches(&batch, 500, func(tx *gorm.DB, _ int) error {
			return fn(batch)
		})
	return res.Error
}
