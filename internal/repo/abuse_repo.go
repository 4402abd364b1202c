// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the per-IP
// AbuseRecord counters and the append-only AttemptLog audit trail.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/danovmusic/go-booking-backend/internal/domain"
)

// GetAbuseRecord fetches the counter row for one IP, or ErrNotFound when the
// IP has never submitted a booking.
func GetAbuseRecord(ctx context.Context, db *gorm.DB, ip string) (*domain.AbuseRecord, error) {
	var r domain.AbuseRecord
	err := db.WithContext(ctx).
		Where("ip = ?", ip).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// IncrementAbuseRecord bumps the lifetime booking counter for ip, creating
// the row on first sight. FirstSeen is written once; LastSeen moves on every
// call. The updated record is returned so the caller can apply thresholds.
func IncrementAbuseRecord(ctx context.Context, db *gorm.DB, ip string) (*domain.AbuseRecord, error) {
	now := time.Now().UTC()
	r := &domain.AbuseRecord{
		ID:           uuid.NewString(),
		IP:           ip,
		BookingCount: 1,
		FirstSeen:    now,
		LastSeen:     now,
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "ip"}},
			DoUpdates: clause.Assignments(map[string]any{
				"booking_count": gorm.Expr("booking_count + 1"),
				"last_seen":     now,
			}),
		}).
		Create(r).Error
	if err != nil {
		return nil, err
	}
	return GetAbuseRecord(ctx, db, ip)
}

// TouchAbuseRecord records that ip was seen without counting a booking: the
// row is created with a zero counter on first sight, and only LastSeen moves
// on later calls. Every submission attempt, accepted or rejected, goes
// through here. The current record is returned for threshold checks.
func TouchAbuseRecord(ctx context.Context, db *gorm.DB, ip string) (*domain.AbuseRecord, error) {
	now := time.Now().UTC()
	r := &domain.AbuseRecord{
		ID:        uuid.NewString(),
		IP:        ip,
		FirstSeen: now,
		LastSeen:  now,
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "ip"}},
			DoUpdates: clause.Assignments(map[string]any{
				"last_seen": now,
			}),
		}).
		Create(r).Error
	if err != nil {
		return nil, err
	}
	return GetAbuseRecord(ctx, db, ip)
}

// BlockIP marks the IP as blocked with the given reason, creating the row if
// the IP was never seen. Blocking is sticky until UnblockIP clears it.
func BlockIP(ctx context.Context, db *gorm.DB, ip, reason string) error {
	now := time.Now().UTC()
	r := &domain.AbuseRecord{
		ID:          uuid.NewString(),
		IP:          ip,
		IsBlocked:   true,
		BlockReason: reason,
		FirstSeen:   now,
		LastSeen:    now,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "ip"}},
			DoUpdates: clause.Assignments(map[string]any{
				"is_blocked":   true,
				"block_reason": reason,
				"last_seen":    now,
			}),
		}).
		Create(r).Error
}

// UnblockIP clears the block and resets the lifetime counter so the IP gets
// a clean slate. Returns ErrNotFound if the IP has no record.
func UnblockIP(ctx context.Context, db *gorm.DB, ip string) error {
	res := db.WithContext(ctx).
		Model(&domain.AbuseRecord{}).
		Where("ip = ?", ip).
		Updates(map[string]any{
			"is_blocked":    false,
			"block_reason":  "",
			"booking_count": 0,
			"last_seen":     time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountAbuseRecords returns the total number of tracked IPs, optionally
// restricted to currently blocked ones.
func CountAbuseRecords(ctx context.Context, db *gorm.DB, blockedOnly bool) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.AbuseRecord{})
	if blockedOnly {
		q = q.Where("is_blocked = ?", true)
	}
	var total int64
	err := q.Count(&total).Error
	return total, err
}

// ListAbuseRecordsPage returns a paginated slice of IP records ordered by
// most recent activity, optionally restricted to blocked IPs.
func ListAbuseRecordsPage(ctx context.Context, db *gorm.DB, blockedOnly bool, offset, limit int) ([]domain.AbuseRecord, error) {
	q := db.WithContext(ctx).Model(&domain.AbuseRecord{})
	if blockedOnly {
		q = q.Where("is_blocked = ?", true)
	}
	var out []domain.AbuseRecord
	err := q.Order("last_seen desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CreateAttempt appends one rejected-attempt record to the audit log.
func CreateAttempt(ctx context.Context, db *gorm.DB, ip, userAgent string, kind domain.AttemptKind, detail string) (*domain.AttemptLog, error) {
	a := &domain.AttemptLog{
		ID:        uuid.NewString(),
		IP:        ip,
		UserAgent: userAgent,
		Kind:      kind,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(a).Error; err != nil {
		return nil, err
	}
	return a, nil
}

// CountAttempts returns the number of audit rows, optionally filtered by kind.
func CountAttempts(ctx context.Context, db *gorm.DB, kind domain.AttemptKind) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.AttemptLog{})
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	var total int64
	err := q.Count(&total).Error
	return total, err
}

// ListAttemptsPage returns a paginated slice of audit rows ordered newest
// first, optionally filtered by kind.
func ListAttemptsPage(ctx context.Context, db *gorm.DB, kind domain.AttemptKind, offset, limit int) ([]domain.AttemptLog, error) {
	q := db.WithContext(ctx).Model(&domain.AttemptLog{})
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	var out []domain.AttemptLog
	err := q.Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
