// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer. Each function is context-aware and safe to call from services or
// handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/danovmusic/go-booking-backend/internal/domain"
)

// BookingsStats returns aggregate metadata for bookings, optionally filtered
// by status: the total number of rows and the maximum UpdatedAt timestamp
// among those rows.
//
// When no rows match, the returned count is 0 and maxUpdatedAt is nil.
//
// Return values:
//   - count:        total matching bookings
//   - maxUpdatedAt: pointer to the greatest UpdatedAt, or nil if no rows
//   - err:          database error, if any
func BookingsStats(ctx context.Context, db *gorm.DB, status domain.BookingStatus) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Booking{})
	if status != "" {
		q = q.Where("status = ?", status)
	}

	// Count
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// AttemptsStats returns aggregate metadata for the rejected-attempt audit
// log, optionally filtered by kind: the total number of rows and the maximum
// CreatedAt timestamp among those rows (attempt rows are append-only).
//
// When no rows match, the returned count is 0 and maxCreatedAt is nil.
func AttemptsStats(ctx context.Context, db *gorm.DB, kind domain.AttemptKind) (count int64, maxCreatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.AttemptLog{})
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var row struct {
		CreatedAt time.Time
	}
	if err = q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
