package repo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/danovmusic/go-booking-backend/internal/domain"
)

func newSlotRepoDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("slot_repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	// Concurrent reservation tests need writers to wait instead of erroring.
	db.Exec("PRAGMA busy_timeout=5000;")
	if err := db.AutoMigrate(&domain.Booking{}, &domain.TimeSlot{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestBlockSlot_CreatesAndUpdates(t *testing.T) {
	db := newSlotRepoDB(t)
	ctx := context.Background()

	s, err := BlockSlot(ctx, db, "2026-03-02", "10:00", "maintenance")
	if err != nil {
		t.Fatalf("BlockSlot: %v", err)
	}
	if !s.IsBlocked || s.Reason != "maintenance" {
		t.Fatalf("unexpected slot after block: %+v", s)
	}

	// Blocking again updates in place instead of violating the unique index.
	s2, err := BlockSlot(ctx, db, "2026-03-02", "10:00", "equipment check")
	if err != nil {
		t.Fatalf("BlockSlot again: %v", err)
	}
	if s2.ID != s.ID {
		t.Fatalf("expected same row updated, got new id %s", s2.ID)
	}
	if s2.Reason != "equipment check" {
		t.Fatalf("expected reason replaced, got %q", s2.Reason)
	}

	var cnt int64
	if err := db.Model(&domain.TimeSlot{}).Count(&cnt).Error; err != nil || cnt != 1 {
		t.Fatalf("expected exactly one slot row, got %d (%v)", cnt, err)
	}
}

func TestUnblockSlot_KeepsRowAndReservation(t *testing.T) {
	db := newSlotRepoDB(t)
	ctx := context.Background()

	if _, err := BlockSlot(ctx, db, "2026-03-02", "10:00", "hold"); err != nil {
		t.Fatalf("BlockSlot: %v", err)
	}
	if err := UnblockSlot(ctx, db, "2026-03-02", "10:00"); err != nil {
		t.Fatalf("UnblockSlot: %v", err)
	}
	s, err := GetSlot(ctx, db, "2026-03-02", "10:00")
	if err != nil {
		t.Fatalf("GetSlot after unblock: %v", err)
	}
	if s.IsBlocked {
		t.Fatalf("expected slot unblocked")
	}
	if s.Reason != "" {
		t.Fatalf("unblock must clear the reason, got %q", s.Reason)
	}

	// Unblocking a never-written cell is a no-op, not an error.
	if err := UnblockSlot(ctx, db, "2026-03-02", "11:00"); err != nil {
		t.Fatalf("UnblockSlot on missing row: %v", err)
	}
	if _, err := GetSlot(ctx, db, "2026-03-02", "11:00"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unblock must not create rows, got %v", err)
	}
}

func TestReserveSlot_FreshCell(t *testing.T) {
	db := newSlotRepoDB(t)
	ctx := context.Background()

	if err := ReserveSlot(ctx, db, "2026-03-02", "10:00", "b1", "booked by Ana Petrenko"); err != nil {
		t.Fatalf("ReserveSlot: %v", err)
	}
	s, err := GetSlot(ctx, db, "2026-03-02", "10:00")
	if err != nil {
		t.Fatalf("GetSlot: %v", err)
	}
	if !s.IsBooked || s.BookingID == nil || *s.BookingID != "b1" {
		t.Fatalf("unexpected slot after reserve: %+v", s)
	}
	if s.Reason != "booked by Ana Petrenko" {
		t.Fatalf("expected reservation reason on the row, got %q", s.Reason)
	}
}

func TestReserveSlot_ExistingFreeRow(t *testing.T) {
	db := newSlotRepoDB(t)
	ctx := context.Background()

	// Row exists (previous block history) but the cell is free now.
	if _, err := BlockSlot(ctx, db, "2026-03-02", "10:00", "x"); err != nil {
		t.Fatalf("BlockSlot: %v", err)
	}
	if err := UnblockSlot(ctx, db, "2026-03-02", "10:00"); err != nil {
		t.Fatalf("UnblockSlot: %v", err)
	}

	if err := ReserveSlot(ctx, db, "2026-03-02", "10:00", "b1", "booked by Ana Petrenko"); err != nil {
		t.Fatalf("ReserveSlot: %v", err)
	}
	s, _ := GetSlot(ctx, db, "2026-03-02", "10:00")
	if !s.IsBooked || s.BookingID == nil || *s.BookingID != "b1" {
		t.Fatalf("unexpected slot: %+v", s)
	}
	if s.Reason != "booked by Ana Petrenko" {
		t.Fatalf("reuse of an old row must replace the reason, got %q", s.Reason)
	}
}

func TestReserveSlot_ConflictAndIdempotency(t *testing.T) {
	db := newSlotRepoDB(t)
	ctx := context.Background()

	if err := ReserveSlot(ctx, db, "2026-03-02", "10:00", "b1", "booked by Ana"); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	// Same booking again: no-op.
	if err := ReserveSlot(ctx, db, "2026-03-02", "10:00", "b1", "booked by Ana"); err != nil {
		t.Fatalf("idempotent reserve: %v", err)
	}
	// Different booking: conflict.
	if err := ReserveSlot(ctx, db, "2026-03-02", "10:00", "b2", "booked by Oleh"); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
	// Blocked cell: conflict.
	if _, err := BlockSlot(ctx, db, "2026-03-02", "11:00", "closed"); err != nil {
		t.Fatalf("BlockSlot: %v", err)
	}
	if err := ReserveSlot(ctx, db, "2026-03-02", "11:00", "b2", "booked by Oleh"); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken for blocked cell, got %v", err)
	}
}

func TestReserveSlot_ConcurrentWriters_OneWins(t *testing.T) {
	db := newSlotRepoDB(t)
	ctx := context.Background()

	const writers = 8
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		id := fmt.Sprintf("b%d", i)
		go func() {
			errs <- ReserveSlot(ctx, db, "2026-03-02", "12:00", id, "booked by "+id)
		}()
	}

	var ok, conflict int
	for i := 0; i < writers; i++ {
		switch err := <-errs; {
		case err == nil:
			ok++
		case errors.Is(err, ErrSlotTaken):
			conflict++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflict != writers-1 {
		t.Fatalf("expected exactly one winner, got ok=%d conflict=%d", ok, conflict)
	}

	s, err := GetSlot(ctx, db, "2026-03-02", "12:00")
	if err != nil {
		t.Fatalf("GetSlot: %v", err)
	}
	if !s.IsBooked || s.BookingID == nil {
		t.Fatalf("cell must end booked by the winner: %+v", s)
	}
}

func TestReleaseSlotsForBooking(t *testing.T) {
	db := newSlotRepoDB(t)
	ctx := context.Background()

	if err := ReserveSlot(ctx, db, "2026-03-02", "10:00", "b1", "booked by Ana"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := ReserveSlot(ctx, db, "2026-03-02", "11:00", "b2", "booked by Oleh"); err != nil {
		t.Fatalf("reserve other: %v", err)
	}

	n, err := ReleaseSlotsForBooking(ctx, db, "b1")
	if err != nil {
		t.Fatalf("ReleaseSlotsForBooking: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 cell released, got %d", n)
	}

	s, _ := GetSlot(ctx, db, "2026-03-02", "10:00")
	if s.IsBooked || s.BookingID != nil {
		t.Fatalf("expected released cell, got %+v", s)
	}
	if s.Reason != "" {
		t.Fatalf("release must clear the reason, got %q", s.Reason)
	}
	other, _ := GetSlot(ctx, db, "2026-03-02", "11:00")
	if !other.IsBooked {
		t.Fatalf("release must not touch other bookings' cells")
	}

	// Releasing again affects nothing.
	n, err = ReleaseSlotsForBooking(ctx, db, "b1")
	if err != nil || n != 0 {
		t.Fatalf("second release: n=%d err=%v", n, err)
	}
}

func TestListSlotsForDay(t *testing.T) {
	db := newSlotRepoDB(t)
	ctx := context.Background()

	if _, err := BlockSlot(ctx, db, "2026-03-02", "11:00", "x"); err != nil {
		t.Fatalf("BlockSlot: %v", err)
	}
	if err := ReserveSlot(ctx, db, "2026-03-02", "09:00", "b1", "booked by Ana"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := BlockSlot(ctx, db, "2026-03-03", "09:00", "other day"); err != nil {
		t.Fatalf("BlockSlot other day: %v", err)
	}

	got, err := ListSlotsForDay(ctx, db, "2026-03-02")
	if err != nil {
		t.Fatalf("ListSlotsForDay: %v", err)
	}
	if len(got) != 2 || got[0].Time != "09:00" || got[1].Time != "11:00" {
		t.Fatalf("unexpected slots: %+v", got)
	}
}
