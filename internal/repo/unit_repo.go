// Package repo implements the document store backed by GORM. This file
// provides repository functions for ingestion units: FileDocument and
// PageDocument.
//
// Status transitions are plain column patches keyed by unit id. Re-running a
// transition with the same values is harmless, which lets the ingestion
// pipeline tolerate at-least-once scheduling.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-docchat-backend/internal/domain"
)

// UnitUpdate is a status transition for one unit. TotalChunks and LastError
// are written as given, so a transition to starting clears both.
type UnitUpdate struct {
	Status      domain.UnitStatus
	TotalChunks int
	LastError   string
}

// CreateFileDocuments inserts files in a single batch. IDs are assigned when
// empty and every file starts in the starting state.
func CreateFileDocuments(ctx context.Context, db *gorm.DB, files []domain.FileDocument) error {
	if len(files) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range files {
		if files[i].ID == "" {
			files[i].ID = uuid.NewString()
		}
		files[i].Status = domain.UnitStarting
		files[i].CreatedAt, files[i].UpdatedAt = now, now
	}
	return db.WithContext(ctx).Omit(clause.Associations).Create(&files).Error
}

// GetFileDocument fetches a file unit by id within a documentation.
func GetFileDocument(ctx context.Context, db *gorm.DB, docID, id string) (*domain.FileDocument, error) {
	var f domain.FileDocument
	err := db.WithContext(ctx).
		Where("id = ? AND documentation_id = ?", id, docID).
		First(&f).Error
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// GetFileDocumentByID fetches a file unit by id only.
func GetFileDocumentByID(ctx context.Context, db *gorm.DB, id string) (*domain.FileDocument, error) {
	var f domain.FileDocument
	if err := db.WithContext(ctx).Where("id = ?", id).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFileDocuments returns the files of a documentation in upload order.
func ListFileDocuments(ctx context.Context, db *gorm.DB, docID string) ([]domain.FileDocument, error) {
	var out []domain.FileDocument
	err := db.WithContext(ctx).
		Where("documentation_id = ?", docID).
		Order("created_at asc, id asc").
		Find(&out).Error
	return out, err
}

// DeleteFileDocument removes a file unit row. Chunks must be deleted first.
func DeleteFileDocument(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Delete(&domain.FileDocument{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpsertPageDocument creates the page for (docID, url) or, when it already
// exists, resets it to starting with the new title. The returned row is the
// persisted one.
func UpsertPageDocument(ctx context.Context, db *gorm.DB, docID, url, title string) (*domain.PageDocument, error) {
	now := time.Now().UTC()
	p := &domain.PageDocument{
		ID:              uuid.NewString(),
		DocumentationID: docID,
		URL:             url,
		Title:           title,
		Status:          domain.UnitStarting,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err := db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "documentation_id"}, {Name: "url"}},
			DoUpdates: clause.Assignments(map[string]any{
				"title":        title,
				"status":       domain.UnitStarting,
				"total_chunks": 0,
				"last_error":   "",
				"updated_at":   now,
			}),
		}).
		Create(p).Error
	if err != nil {
		return nil, err
	}
	return GetPageByURL(ctx, db, docID, url)
}

// GetPageByURL fetches the page for (docID, url).
func GetPageByURL(ctx context.Context, db *gorm.DB, docID, url string) (*domain.PageDocument, error) {
	var p domain.PageDocument
	err := db.WithContext(ctx).
		Where("documentation_id = ? AND url = ?", docID, url).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPageDocumentByID fetches a page unit by id.
func GetPageDocumentByID(ctx context.Context, db *gorm.DB, id string) (*domain.PageDocument, error) {
	var p domain.PageDocument
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPageDocuments returns the pages of a documentation without their
// markdown bodies.
func ListPageDocuments(ctx context.Context, db *gorm.DB, docID string) ([]domain.PageDocument, error) {
	var out []domain.PageDocument
	err := db.WithContext(ctx).
		Omit("markdown").
		Where("documentation_id = ?", docID).
		Order("created_at asc, id asc").
		Find(&out).Error
	return out, err
}

// SetPageContent stores the scraped title and markdown of a page. An empty
// title keeps the existing one.
func SetPageContent(ctx context.Context, db *gorm.DB, id, title, markdown string) error {
	fields := map[string]any{"markdown": markdown, "updated_at": time.Now().UTC()}
	if title != "" {
		fields["title"] = title
	}
	return patchRow(ctx, db, &domain.PageDocument{}, id, fields)
}

// DeletePageDocument removes a page unit row. Chunks must be deleted first.
func DeletePageDocument(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Delete(&domain.PageDocument{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateUnitStatus applies a status transition to a unit of the given kind.
func UpdateUnitStatus(ctx context.Context, db *gorm.DB, kind domain.UnitKind, id string, u UnitUpdate) error {
	fields := map[string]any{
		"status":       u.Status,
		"total_chunks": u.TotalChunks,
		"last_error":   u.LastError,
		"updated_at":   time.Now().UTC(),
	}
	if kind == domain.UnitPage {
		return patchRow(ctx, db, &domain.PageDocument{}, id, fields)
	}
	return patchRow(ctx, db, &domain.FileDocument{}, id, fields)
}

// UnitStatusCounts returns, per status, how many units of docID exist.
func UnitStatusCounts(ctx context.Context, db *gorm.DB, kind domain.UnitKind, docID string) (map[domain.UnitStatus]int64, error) {
	var rows []struct {
		Status domain.UnitStatus
		N      int64
	}
	var model any = &domain.FileDocument{}
	if kind == domain.UnitPage {
		model = &domain.PageDocument{}
	}
	err := db.WithContext(ctx).
		Model(model).
		Select("status, COUNT(*) AS n").
		Where("documentation_id = ?", docID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.UnitStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}

func patchRow(ctx context.Context, db *gorm.DB, model any, id string, fields map[string]any) error {
	res := db.WithContext(ctx).Model(model).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListStartingUnitIDs returns the ids of units of kind still in the starting
// state, oldest first. Used to reschedule work lost by a restart.
func ListStartingUnitIDs(ctx context.Context, db *gorm.DB, kind domain.UnitKind) ([]string, error) {
	var model any = &domain.FileDocument{}
	if kind == domain.UnitPage {
		model = &domain.PageDocument{}
	}
	var ids []string
	err := db.WithContext(ctx).
		Model(model).
		Where("status = ?", domain.UnitStarting).
		Order("created_at asc").
		Pluck("id", &ids).Error
	return ids, err
}
