// Package repo implements the document store backed by GORM. This file
// provides the usage counters read and written by the metering ledger.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-docchat-backend/internal/domain"
)

// GetUsage returns the counter for (userID, feature). A missing counter is
// reported as zero usage in a period starting at the zero time.
func GetUsage(ctx context.Context, db *gorm.DB, userID, feature string) (*domain.UsageCounter, error) {
	var u domain.UsageCounter
	err := db.WithContext(ctx).
		Where("user_id = ? AND feature = ?", userID, feature).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.UsageCounter{UserID: userID, Feature: feature}, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// AddUsage adds amount to the counter for (userID, feature). When the stored
// period started before periodStart the counter is reset first, so daily
// features roll over on the first write of a new day.
func AddUsage(ctx context.Context, db *gorm.DB, userID, feature string, amount int64, periodStart time.Time) error {
	now := time.Now().UTC()
	u := &domain.UsageCounter{
		UserID:      userID,
		Feature:     feature,
		Used:        amount,
		PeriodStart: periodStart,
		UpdatedAt:   now,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "feature"}},
			DoUpdates: clause.Assignments(map[string]any{
				"used": gorm.Expr(
					"CASE WHEN usage_counters.period_start < ? THEN ? ELSE usage_counters.used + ? END",
					periodStart, amount, amount),
				"period_start": gorm.Expr(
					"CASE WHEN usage_counters.period_start < ? THEN ? ELSE usage_counters.period_start END",
					periodStart, periodStart),
				"updated_at": now,
			}),
		}).
		Create(u).Error
}
