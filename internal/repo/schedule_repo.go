// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// DateSchedule model (calendar-day availability overrides).
//
// Absence of a row means the date is open. Rows are written only by operator
// actions, so the set stays small and is read far more often than written.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/danovmusic/go-booking-backend/internal/domain"
)

// GetDateSchedule fetches the override row for one date, or ErrNotFound when
// the date has no override (meaning it is open).
func GetDateSchedule(ctx context.Context, db *gorm.DB, date string) (*domain.DateSchedule, error) {
	var d domain.DateSchedule
	err := db.WithContext(ctx).
		Where("date = ?", date).
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDateSchedulesBetween returns all override rows with from <= date <= to,
// ordered by date ascending. Dates compare lexicographically because of the
// fixed "2006-01-02" layout.
func ListDateSchedulesBetween(ctx context.Context, db *gorm.DB, from, to string) ([]domain.DateSchedule, error) {
	var out []domain.DateSchedule
	err := db.WithContext(ctx).
		Where("date >= ? AND date <= ?", from, to).
		Order("date asc").
		Find(&out).Error
	return out, err
}

// SetDateSchedule creates or updates the override row for sched.Date,
// replacing all three flags and the reason. Clearing every flag reopens the
// date while keeping the row for audit.
func SetDateSchedule(ctx context.Context, db *gorm.DB, sched *domain.DateSchedule) (*domain.DateSchedule, error) {
	now := time.Now().UTC()
	if sched.ID == "" {
		sched.ID = uuid.NewString()
	}
	if sched.CreatedAt.IsZero() {
		sched.CreatedAt = now
	}
	sched.UpdatedAt = now
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "date"}},
			DoUpdates: clause.Assignments(map[string]any{
				"is_blocked":     sched.IsBlocked,
				"is_holiday":     sched.IsHoliday,
				"is_maintenance": sched.IsMaintenance,
				"reason":         sched.Reason,
				"updated_at":     now,
			}),
		}).
		Create(sched).Error
	if err != nil {
		return nil, err
	}
	return GetDateSchedule(ctx, db, sched.Date)
}
