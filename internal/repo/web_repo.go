// Package repo implements the document store backed by GORM. This file
// provides repository functions for crawled web metadata: WebInfo and
// WebLinks (one row each per web documentation).
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-docchat-backend/internal/domain"
)

// SaveWebInfo inserts the site metadata of a documentation.
func SaveWebInfo(ctx context.Context, db *gorm.DB, info *domain.WebInfo) error {
	if info.ID == "" {
		info.ID = uuid.NewString()
	}
	info.CreatedAt = time.Now().UTC()
	return db.WithContext(ctx).Omit(clause.Associations).Create(info).Error
}

// GetWebInfo fetches the site metadata of a documentation.
func GetWebInfo(ctx context.Context, db *gorm.DB, docID string) (*domain.WebInfo, error) {
	var info domain.WebInfo
	if err := db.WithContext(ctx).Where("documentation_id = ?", docID).First(&info).Error; err != nil {
		return nil, err
	}
	return &info, nil
}

// SaveWebLinks inserts the crawled link list of a documentation.
func SaveWebLinks(ctx context.Context, db *gorm.DB, wl *domain.WebLinks) error {
	if wl.ID == "" {
		wl.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	wl.CreatedAt, wl.UpdatedAt = now, now
	if wl.Links == nil {
		wl.Links = domain.LinkList{}
	}
	return db.WithContext(ctx).Omit(clause.Associations).Create(wl).Error
}

// GetWebLinks fetches the crawled link list of a documentation.
func GetWebLinks(ctx context.Context, db *gorm.DB, docID string) (*domain.WebLinks, error) {
	var wl domain.WebLinks
	if err := db.WithContext(ctx).Where("documentation_id = ?", docID).First(&wl).Error; err != nil {
		return nil, err
	}
	return &wl, nil
}

// UpdateWebLinks replaces the link list of a documentation.
func UpdateWebLinks(ctx context.Context, db *gorm.DB, docID string, links domain.LinkList) error {
	if links == nil {
		links = domain.LinkList{}
	}
	res := db.WithContext(ctx).
		Model(&domain.WebLinks{}).
		Where("documentation_id = ?", docID).
		Updates(map[string]any{"links": links, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
