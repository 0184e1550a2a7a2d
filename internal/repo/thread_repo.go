// Package repo implements the document store backed by GORM. This file
// provides repository functions for the Thread model.
//
// All reads and writes that take a userID enforce ownership; a foreign or
// missing thread yields gorm.ErrRecordNotFound.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-docchat-backend/internal/domain"
)

// CreateThread inserts a new thread owned by userID.
func CreateThread(ctx context.Context, db *gorm.DB, userID, name string, selected []string) (*domain.Thread, error) {
	now := time.Now().UTC()
	t := &domain.Thread{
		ID:                    uuid.NewString(),
		UserID:                userID,
		Name:                  name,
		SelectedDocumentation: domain.StringList(selected),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if t.SelectedDocumentation == nil {
		t.SelectedDocumentation = domain.StringList{}
	}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

// GetThread fetches a thread by id and owner.
func GetThread(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Thread, error) {
	var t domain.Thread
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetThreadByID fetches a thread by id without an owner check.
func GetThreadByID(ctx context.Context, db *gorm.DB, id string) (*domain.Thread, error) {
	var t domain.Thread
	if err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// CountThreads returns the number of threads owned by userID.
func CountThreads(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Thread{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListThreadsPage returns a page of threads, most recently updated first.
func ListThreadsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Thread, error) {
	var out []domain.Thread
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at desc, id asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// RenameThread updates the name of an owned thread.
func RenameThread(ctx context.Context, db *gorm.DB, id, userID, name string) error {
	return patchThread(ctx, db, id, userID, map[string]any{"name": name})
}

// SetThreadName updates the name of a thread without an owner check. Used by
// background title generation.
func SetThreadName(ctx context.Context, db *gorm.DB, id, name string) error {
	return patchRow(ctx, db, &domain.Thread{}, id, map[string]any{"name": name, "updated_at": time.Now().UTC()})
}

// UpdateThreadSelection replaces the selected documentation ids.
func UpdateThreadSelection(ctx context.Context, db *gorm.DB, id, userID string, selected []string) error {
	list := domain.StringList(selected)
	if list == nil {
		list = domain.StringList{}
	}
	return patchThread(ctx, db, id, userID, map[string]any{"selected_documentation": list})
}

// TouchThread bumps updated_at so the thread sorts first.
func TouchThread(ctx context.Context, db *gorm.DB, id string) error {
	return patchRow(ctx, db, &domain.Thread{}, id, map[string]any{"updated_at": time.Now().UTC()})
}

// DeleteThread removes an owned thread. Messages cascade; stream fragments
// of its assistant messages are removed explicitly.
func DeleteThread(ctx context.Context, db *gorm.DB, id, userID string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t domain.Thread
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&t).Error; err != nil {
			return err
		}
		sub := tx.Model(&domain.Message{}).Select("stream_id").Where("thread_id = ? AND stream_id <> ''", id)
		if err := tx.Where("stream_id IN (?)", sub).Delete(&domain.StreamFragment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Thread{}, "id = ?", id).Error
	})
}

// RemoveDocumentationFromSelections drops docID from every thread of userID
// that has it selected.
func RemoveDocumentationFromSelections(ctx context.Context, db *gorm.DB, userID, docID string) error {
	var threads []domain.Thread
	err := db.WithContext(ctx).
		Where("user_id = ? AND selected_documentation LIKE ?", userID, "%\""+docID+"\"%").
		Find(&threads).Error
	if err != nil {
		return err
	}
	for _, t := range threads {
		if !t.SelectedDocumentation.Contains(docID) {
			continue
		}
		err := db.WithContext(ctx).
			Model(&domain.Thread{}).
			Where("id = ?", t.ID).
			Update("selected_documentation", t.SelectedDocumentation.Without(docID)).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func patchThread(ctx context.Context, db *gorm.DB, id, userID string, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Thread{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
