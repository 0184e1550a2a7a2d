// Package repo implements the document store backed by GORM. This file
// provides repository functions for the Message model.
//
// Assistant messages are created in the pending stream state with empty
// content. FinalizeMessage is the only write that sets their content, and it
// always clears is_streaming, so a message cannot be left half-finished by a
// successful call.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-docchat-backend/internal/domain"
)

// CreateUserMessage appends a user turn to a thread.
func CreateUserMessage(ctx context.Context, db *gorm.DB, threadID, content string) (*domain.Message, error) {
	now := time.Now().UTC()
	m := &domain.Message{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Role:      domain.RoleUser,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Omit("Thread").Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// CreateAssistantPlaceholder inserts an in-flight assistant message bound to
// a fresh stream handle. Its CreatedAt is one microsecond after after so it
// always sorts behind the user message that triggered it.
func CreateAssistantPlaceholder(ctx context.Context, db *gorm.DB, threadID string, after time.Time) (*domain.Message, error) {
	now := time.Now().UTC()
	if !now.After(after) {
		now = after.Add(time.Microsecond)
	}
	m := &domain.Message{
		ID:           uuid.NewString(),
		ThreadID:     threadID,
		Role:         domain.RoleAssistant,
		Content:      "",
		StreamID:     uuid.NewString(),
		IsStreaming:  true,
		StreamStatus: domain.StreamPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := db.WithContext(ctx).Omit("Thread").Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// GetMessage fetches a message by id.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMessageByStreamID fetches the assistant message bound to streamID.
func GetMessageByStreamID(ctx context.Context, db *gorm.DB, streamID string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("stream_id = ?", streamID).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListRecentMessages returns up to limit messages of a thread created before
// the given instant, in chronological order.
func ListRecentMessages(ctx context.Context, db *gorm.DB, threadID string, before time.Time, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("thread_id = ? AND created_at < ?", threadID, before).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// CountMessages returns the number of messages in a thread.
func CountMessages(ctx context.Context, db *gorm.DB, threadID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("thread_id = ?", threadID).
		Count(&total).Error
	return total, err
}

// ListMessagesPage returns a page of messages, newest first.
func ListMessagesPage(ctx context.Context, db *gorm.DB, threadID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at desc, id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// FirstUserMessage returns the earliest user message of a thread.
func FirstUserMessage(ctx context.Context, db *gorm.DB, threadID string) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).
		Where("thread_id = ? AND role = ?", threadID, domain.RoleUser).
		Order("created_at asc, id asc").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// SetStreamStatus moves a streaming message to status without touching its
// content.
func SetStreamStatus(ctx context.Context, db *gorm.DB, streamID string, status domain.StreamStatus) error {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("stream_id = ? AND is_streaming = ?", streamID, true).
		Updates(map[string]any{"stream_status": status, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FinalizeMessage stores the full text of a stream, clears is_streaming and
// records the terminal status.
func FinalizeMessage(ctx context.Context, db *gorm.DB, streamID, content string, status domain.StreamStatus) error {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("stream_id = ?", streamID).
		Updates(map[string]any{
			"content":       content,
			"is_streaming":  false,
			"stream_status": status,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListStuckStreams returns assistant messages still marked streaming with no
// activity since cutoff: neither the message nor any of its fragments was
// written at or after it.
func ListStuckStreams(ctx context.Context, db *gorm.DB, cutoff time.Time) ([]domain.Message, error) {
	cutoff = cutoff.UTC()
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("is_streaming = ? AND updated_at < ?", true, cutoff).
		Where("NOT EXISTS (SELECT 1 FROM stream_fragments f WHERE f.stream_id = messages.stream_id AND f.created_at >= ?)", cutoff).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// ListOpenStreams returns every assistant message still marked streaming,
// oldest first.
func ListOpenStreams(ctx context.Context, db *gorm.DB) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("is_streaming = ?", true).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}
