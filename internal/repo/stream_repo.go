// Package repo implements the document store backed by GORM. This file
// provides the append-only fragment log behind replayable streams.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-docchat-backend/internal/domain"
)

// AppendFragment persists fragment seq of streamID. A second append with the
// same seq violates ux_stream_seq and returns ErrDuplicate, which rejects a
// concurrent producer.
func AppendFragment(ctx context.Context, db *gorm.DB, streamID string, seq int, text string) error {
	f := &domain.StreamFragment{
		StreamID:  streamID,
		Seq:       seq,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(f).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// ListFragments returns the fragments of streamID with seq > afterSeq in
// production order. Pass -1 to read from the start.
func ListFragments(ctx context.Context, db *gorm.DB, streamID string, afterSeq int) ([]domain.StreamFragment, error) {
	var out []domain.StreamFragment
	err := db.WithContext(ctx).
		Where("stream_id = ? AND seq > ?", streamID, afterSeq).
		Order("seq asc").
		Find(&out).Error
	return out, err
}

// NextFragmentSeq returns the seq the next fragment of streamID should use.
func NextFragmentSeq(ctx context.Context, db *gorm.DB, streamID string) (int, error) {
	var row struct{ N int64 }
	err := db.WithContext(ctx).
		Model(&domain.StreamFragment{}).
		Select("COUNT(*) AS n").
		Where("stream_id = ?", streamID).
		Scan(&row).Error
	return int(row.N), err
}
