// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the TimeSlot
// model, including the compare-and-set reservation used by the booking
// confirmation path.
//
// Slots follow create-on-first-write semantics: a grid cell has no row until
// something blocks or reserves it. Unblocking and releasing never delete the
// row; they clear the occupancy flags and the reason.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/danovmusic/go-booking-backend/internal/domain"
)

// ErrSlotTaken is returned by ReserveSlot when the requested cell is blocked
// or already reserved by a different booking. It signals a lost reservation
// race; the caller must treat it as an availability conflict, not a DB failure.
var ErrSlotTaken = errors.New("repo: slot already blocked or booked")

// GetSlot fetches the slot row for one grid cell, or ErrNotFound when the
// cell has never been written.
func GetSlot(ctx context.Context, db *gorm.DB, date, tm string) (*domain.TimeSlot, error) {
	var s domain.TimeSlot
	err := db.WithContext(ctx).
		Where("date = ? AND time = ?", date, tm).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSlotsForDay returns all slot rows written for the given date, ordered
// by time ascending. Cells without rows are implicitly free.
func ListSlotsForDay(ctx context.Context, db *gorm.DB, date string) ([]domain.TimeSlot, error) {
	var out []domain.TimeSlot
	err := db.WithContext(ctx).
		Where("date = ?", date).
		Order("time asc").
		Find(&out).Error
	return out, err
}

// BlockSlot marks one grid cell as operator-blocked, creating the row if the
// cell was never written. The reason replaces any previous one.
func BlockSlot(ctx context.Context, db *gorm.DB, date, tm, reason string) (*domain.TimeSlot, error) {
	now := time.Now().UTC()
	s := &domain.TimeSlot{
		ID:        uuid.NewString(),
		Date:      date,
		Time:      tm,
		IsBlocked: true,
		Reason:    reason,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "date"}, {Name: "time"}},
			DoUpdates: clause.Assignments(map[string]any{
				"is_blocked": true,
				"reason":     reason,
				"updated_at": now,
			}),
		}).
		Create(s).Error
	if err != nil {
		return nil, err
	}
	return GetSlot(ctx, db, date, tm)
}

// UnblockSlot clears the operator block and its reason on one grid cell. The
// row is kept (never deleted) and any active reservation on it is untouched.
// Unblocking a cell that was never written is a no-op.
func UnblockSlot(ctx context.Context, db *gorm.DB, date, tm string) error {
	return db.WithContext(ctx).
		Model(&domain.TimeSlot{}).
		Where("date = ? AND time = ?", date, tm).
		Updates(map[string]any{"is_blocked": false, "reason": "", "updated_at": time.Now().UTC()}).Error
}

// ReserveSlot reserves one grid cell for a booking with compare-and-set
// semantics: the update only lands if the cell is neither blocked nor booked.
// When the cell has no row yet, an insert is attempted; a unique-index
// collision there means another writer won the same cell concurrently.
//
// Reserving a cell already held by the same booking is a no-op (idempotent).
// Any other occupied state returns ErrSlotTaken. The reason records who holds
// the cell and is cleared again on release.
func ReserveSlot(ctx context.Context, db *gorm.DB, date, tm, bookingID, reason string) error {
	res := db.WithContext(ctx).
		Model(&domain.TimeSlot{}).
		Where("date = ? AND time = ? AND is_blocked = ? AND is_booked = ?", date, tm, false, false).
		Updates(map[string]any{
			"is_booked":  true,
			"booking_id": bookingID,
			"reason":     reason,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	// No free row matched: either the cell is occupied or it has no row yet.
	existing, err := GetSlot(ctx, db, date, tm)
	switch {
	case err == nil:
		if existing.IsBooked && existing.BookingID != nil && *existing.BookingID == bookingID {
			return nil
		}
		return ErrSlotTaken
	case errors.Is(err, gorm.ErrRecordNotFound):
		// fall through to insert
	default:
		return err
	}

	now := time.Now().UTC()
	s := &domain.TimeSlot{
		ID:        uuid.NewString(),
		Date:      date,
		Time:      tm,
		IsBooked:  true,
		BookingID: &bookingID,
		Reason:    reason,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		// The unique index on (date,time) turns a concurrent first write
		// into an insert failure here. Whoever got the row in owns the cell.
		if cur, gerr := GetSlot(ctx, db, date, tm); gerr == nil {
			if cur.IsBooked && cur.BookingID != nil && *cur.BookingID == bookingID {
				return nil
			}
			return ErrSlotTaken
		}
		return err
	}
	return nil
}

// ReleaseSlotsForBooking clears the reservation and its reason on every cell
// held by the booking. Operator blocks on the same cells survive the release.
// Returns the number of cells released.
func ReleaseSlotsForBooking(ctx context.Context, db *gorm.DB, bookingID string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.TimeSlot{}).
		Where("booking_id = ?", bookingID).
		Updates(map[string]any{
			"is_booked":  false,
			"booking_id": nil,
			"reason":     "",
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}
