// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Booking model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a booking is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// This repository is designed to be wrapped by a higher-level service
// (see services.BookingService) which enforces the status state machine,
// slot reservation, and anti-abuse rules.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/danovmusic/go-booking-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateBooking inserts a new Booking row. The booking ID and both mail-link
// tokens are generated here when empty, and CreatedAt is set to UTC.
//
// On success, it returns the persisted Booking. On failure, it returns a DB error.
func CreateBooking(ctx context.Context, db *gorm.DB, b *domain.Booking) (*domain.Booking, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.ConfirmToken == "" {
		b.ConfirmToken = uuid.NewString()
	}
	if b.RejectToken == "" {
		b.RejectToken = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = domain.StatusPending
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(b).Error; err != nil {
		return nil, err
	}
	return b, nil
}

// GetBooking fetches a single booking by its ID. If the record does not
// exist, it returns ErrNotFound. On other DB errors, the raw error is returned.
func GetBooking(ctx context.Context, db *gorm.DB, id string) (*domain.Booking, error) {
	var b domain.Booking
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBookingByConfirmToken fetches the booking holding the given confirm
// token, or ErrNotFound.
func GetBookingByConfirmToken(ctx context.Context, db *gorm.DB, token string) (*domain.Booking, error) {
	var b domain.Booking
	err := db.WithContext(ctx).
		Where("confirm_token = ?", token).
		First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBookingByRejectToken fetches the booking holding the given reject
// token, or ErrNotFound.
func GetBookingByRejectToken(ctx context.Context, db *gorm.DB, token string) (*domain.Booking, error) {
	var b domain.Booking
	err := db.WithContext(ctx).
		Where("reject_token = ?", token).
		First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CountBookings returns the total number of bookings, optionally filtered by
// status (empty status counts everything). On DB error, it returns the error.
func CountBookings(ctx context.Context, db *gorm.DB, status domain.BookingStatus) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.Booking{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	err := q.Count(&total).Error
	return total, err
}

// ListBookingsPage returns a paginated slice of bookings ordered by creation
// time descending, optionally filtered by status. Use CountBookings to obtain
// the total for pagination metadata.
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListBookingsPage(ctx context.Context, db *gorm.DB, status domain.BookingStatus, offset, limit int) ([]domain.Booking, error) {
	q := db.WithContext(ctx).Model(&domain.Booking{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []domain.Booking
	err := q.Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListConfirmedBookingsForDay returns the confirmed bookings on the given
// date, ordered by start time. Only confirmed bookings occupy grid cells;
// pending ones hold no capacity until an operator confirms them.
func ListConfirmedBookingsForDay(ctx context.Context, db *gorm.DB, date string) ([]domain.Booking, error) {
	var out []domain.Booking
	err := db.WithContext(ctx).
		Where("date = ? AND status = ?", date, domain.StatusConfirmed).
		Order("time asc").
		Find(&out).Error
	return out, err
}

// UpdateBookingStatus moves a booking from one status to another with a
// compare-and-set on the current status. If no rows are affected (booking
// missing, or its status already changed), it returns ErrNotFound so the
// caller can distinguish a lost race from success.
func UpdateBookingStatus(ctx context.Context, db *gorm.DB, id string, from, to domain.BookingStatus) error {
	res := db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkEmailSent records that the studio notification for the booking went
// out. Returns ErrNotFound if the booking does not exist.
func MarkEmailSent(ctx context.Context, db *gorm.DB, id string) error {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("id = ?", id).
		Updates(map[string]any{"email_sent": true, "email_sent_at": &now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteBooking removes a booking row permanently. Slot rows referencing it
// keep their history; the FK nulls the back-reference. Returns ErrNotFound
// when the booking does not exist.
func DeleteBooking(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&domain.Booking{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountRecentDuplicates counts bookings that match the given contact and
// session identity and were created after since. Used by the anti-abuse gate
// to collapse double submissions of the same form.
func CountRecentDuplicates(ctx context.Context, db *gorm.DB, ip, email, phone, date, tm string, since time.Time) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("source_ip = ? AND email = ? AND phone = ? AND date = ? AND time = ? AND created_at >= ?",
			ip, email, phone, date, tm, since).
		Count(&total).Error
	return total, err
}

// CountBookingsFromIPSince counts bookings submitted from ip after since,
// regardless of status. Used by the anti-abuse gate's rate check.
func CountBookingsFromIPSince(ctx context.Context, db *gorm.DB, ip string, since time.Time) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("source_ip = ? AND created_at >= ?", ip, since).
		Count(&total).Error
	return total, err
}
