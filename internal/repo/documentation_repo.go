// Package repo implements the document store backed by GORM. This file
// provides repository functions for the Documentation aggregate root.
//
// Counter updates (total_page, active_page) are single-row atomic patches
// evaluated by SQLite, so concurrent unit completions never read-modify-write
// in Go. Every patch preserves 0 <= active_page <= total_page.
//
// Error semantics:
//   - Missing or foreign rows return gorm.ErrRecordNotFound (ErrNotFound).
//   - Other DB errors are propagated as-is.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-docchat-backend/internal/domain"
)

// ErrNotFound is returned when a row is missing or owned by someone else.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateDocumentation inserts a new Documentation. ID and timestamps are
// assigned when empty.
func CreateDocumentation(ctx context.Context, db *gorm.DB, d *domain.Documentation) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	return db.WithContext(ctx).Create(d).Error
}

// GetDocumentation fetches a documentation by id scoped to its owner.
func GetDocumentation(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Documentation, error) {
	var d domain.Documentation
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDocumentationByID fetches a documentation by id without an owner
// check. Used by background jobs that already carry a verified id.
func GetDocumentationByID(ctx context.Context, db *gorm.DB, id string) (*domain.Documentation, error) {
	var d domain.Documentation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// CountDocumentations returns the number of documentations owned by userID.
func CountDocumentations(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Documentation{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListDocumentationsPage returns a page of the user's documentations, most
// recently updated first.
func ListDocumentationsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Documentation, error) {
	var out []domain.Documentation
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at desc, id asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListDocumentationsByIDs returns the owned documentations among ids. Rows
// come back in arbitrary order; unknown or foreign ids are skipped.
func ListDocumentationsByIDs(ctx context.Context, db *gorm.DB, userID string, ids []string) ([]domain.Documentation, error) {
	var out []domain.Documentation
	if len(ids) == 0 {
		return out, nil
	}
	err := db.WithContext(ctx).
		Where("user_id = ? AND id IN ?", userID, ids).
		Find(&out).Error
	return out, err
}

// RenameDocumentation updates the display name of an owned documentation.
func RenameDocumentation(ctx context.Context, db *gorm.DB, id, userID, name string) error {
	res := db.WithContext(ctx).
		Model(&domain.Documentation{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{"name": name, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetDocumentationStatus sets the aggregate status.
func SetDocumentationStatus(ctx context.Context, db *gorm.DB, id string, status domain.DocumentationStatus) error {
	return patchDocumentation(ctx, db, id, map[string]any{"status": status})
}

// AddTotalPages grows total_page by n.
func AddTotalPages(ctx context.Context, db *gorm.DB, id string, n int) error {
	return patchDocumentation(ctx, db, id, map[string]any{
		"total_page": gorm.Expr("total_page + ?", n),
	})
}

// IncrementActivePage records one more completed unit, clamped to
// total_page so duplicate completions are harmless.
func IncrementActivePage(ctx context.Context, db *gorm.DB, id string) error {
	return patchDocumentation(ctx, db, id, map[string]any{
		"active_page": gorm.Expr("MIN(active_page + 1, total_page)"),
	})
}

// DecrementActivePage records that a completed unit was reset for another
// scan. active_page stays non-negative.
func DecrementActivePage(ctx context.Context, db *gorm.DB, id string) error {
	return patchDocumentation(ctx, db, id, map[string]any{
		"active_page": gorm.Expr("MAX(active_page - 1, 0)"),
	})
}

// ReleaseUnit decrements the counters for one removed unit. active_page is
// decremented only when the unit had completed. Both stay non-negative and
// active_page never exceeds the new total_page.
func ReleaseUnit(ctx context.Context, db *gorm.DB, id string, wasCompleted bool) error {
	d := 0
	if wasCompleted {
		d = 1
	}
	return patchDocumentation(ctx, db, id, map[string]any{
		"total_page":  gorm.Expr("MAX(total_page - 1, 0)"),
		"active_page": gorm.Expr("MAX(MIN(active_page - ?, MAX(total_page - 1, 0)), 0)", d),
	})
}

// DeleteDocumentation removes an owned documentation. Units, web rows and
// chunks go with it; chunks are deleted explicitly since they carry no FK.
func DeleteDocumentation(ctx context.Context, db *gorm.DB, id, userID string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var d domain.Documentation
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&d).Error; err != nil {
			return err
		}
		if err := tx.Where("documentation_id = ?", id).Delete(&domain.FileChunk{}).Error; err != nil {
			return err
		}
		if err := tx.Where("documentation_id = ?", id).Delete(&domain.PageChunk{}).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Documentation{}, "id = ?", id).Error
	})
}

func patchDocumentation(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Documentation{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DocumentationOption is the compact form used by context pickers.
type DocumentationOption struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Type domain.DocType `json:"type"`
}

// ListDocumentationOptions returns id, name and type of every documentation
// owned by userID, by name.
func ListDocumentationOptions(ctx context.Context, db *gorm.DB, userID string) ([]DocumentationOption, error) {
	var out []DocumentationOption
	err := db.WithContext(ctx).
		Model(&domain.Documentation{}).
		Select("id, name, type").
		Where("user_id = ?", userID).
		Order("name asc, id asc").
		Scan(&out).Error
	return out, err
}
