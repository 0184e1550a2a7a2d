// Package metering authorizes and records usage of metered features.
//
// Ledger keeps balances in the usage_counters table: chats reset daily,
// scans draw from a fixed credit, and the documentation limit is derived
// from how many documentations the user owns.
package metering

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-docchat-backend/internal/config"
	"github.com/tbourn/go-docchat-backend/internal/repo"
)

// Feature names a metered capability.
type Feature string

const (
	FeatureChats              Feature = "chats"
	FeatureScans              Feature = "scans"
	FeatureDocumentationLimit Feature = "documentation_limit"
)

// ErrUnknownFeature is returned for features the ledger does not meter.
var ErrUnknownFeature = errors.New("metering: unknown feature")

// Balance is the result of a Check. Remaining is how many more units may be
// consumed; Allowed is Remaining > 0.
type Balance struct {
	Allowed   bool  `json:"allowed"`
	Remaining int64 `json:"remaining"`
	Limit     int64 `json:"limit"`
	Unlimited bool  `json:"unlimited"`
}

// Meter is the usage metering collaborator.
type Meter interface {
	Check(ctx context.Context, userID string, feature Feature) (Balance, error)
	Track(ctx context.Context, userID string, feature Feature, amount int64) error
}

// Ledger is a Meter backed by the document store.
type Ledger struct {
	DB  *gorm.DB
	Cfg config.MeteringConfig
	Now func() time.Time
}

// NewLedger returns a Ledger using the wall clock.
func NewLedger(db *gorm.DB, cfg config.MeteringConfig) *Ledger {
	return &Ledger{DB: db, Cfg: cfg, Now: time.Now}
}

// Check implements Meter.
func (l *Ledger) Check(ctx context.Context, userID string, feature Feature) (Balance, error) {
	if l.Cfg.Unlimited {
		return Balance{Allowed: true, Remaining: math.MaxInt64, Limit: math.MaxInt64, Unlimited: true}, nil
	}
	switch feature {
	case FeatureChats:
		u, err := repo.GetUsage(ctx, l.DB, userID, string(feature))
		if err != nil {
			return Balance{}, err
		}
		used := u.Used
		if u.PeriodStart.Before(l.today()) {
			used = 0
		}
		return balance(int64(l.Cfg.ChatDailyLimit), used), nil
	case FeatureScans:
		u, err := repo.GetUsage(ctx, l.DB, userID, string(feature))
		if err != nil {
			return Balance{}, err
		}
		return balance(int64(l.Cfg.ScanCredits), u.Used), nil
	case FeatureDocumentationLimit:
		n, err := repo.CountDocumentations(ctx, l.DB, userID)
		if err != nil {
			return Balance{}, err
		}
		return balance(int64(l.Cfg.DocumentationLimit), n), nil
	default:
		return Balance{}, ErrUnknownFeature
	}
}

// Track implements Meter. The documentation limit is derived from stored
// rows, so tracking it is a no-op.
func (l *Ledger) Track(ctx context.Context, userID string, feature Feature, amount int64) error {
	if amount <= 0 {
		return nil
	}
	var err error
	switch feature {
	case FeatureChats:
		err = repo.AddUsage(ctx, l.DB, userID, string(feature), amount, l.today())
	case FeatureScans:
		err = repo.AddUsage(ctx, l.DB, userID, string(feature), amount, time.Time{})
	case FeatureDocumentationLimit:
		return nil
	default:
		return ErrUnknownFeature
	}
	if err != nil {
		return err
	}
	log.Debug().Str("user_id", userID).Str("feature", string(feature)).Int64("amount", amount).Msg("usage tracked")
	return nil
}

func (l *Ledger) today() time.Time {
	now := l.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func balance(limit, used int64) Balance {
	rem := max(limit-used, 0)
	return Balance{Allowed: rem > 0, Remaining: rem, Limit: limit}
}
