// Package services – AvailabilityService
//
// This file implements AvailabilityService, which owns the two calendar
// layers (day-level overrides and slot-level cells) from the read side and
// the operator actions that write them. It renders the hourly day grid by
// merging slot rows with the runs occupied by confirmed bookings, and serves
// the upcoming-dates list through the injected cache.
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/danovmusic/go-booking-backend/internal/cache"
	"github.com/danovmusic/go-booking-backend/internal/domain"
	"github.com/danovmusic/go-booking-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Slot display states on the day grid.
const (
	SlotFree    = "available"
	SlotBooked  = "booked"
	SlotBlocked = "blocked"
)

// SlotInfo is one cell of the rendered day grid. Reason is set on blocked
// cells only: the slot's own reason, or the day override's when the whole
// date is closed.
type SlotInfo struct {
	Time   string `json:"time"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// DayGrid is the availability view for one calendar day.
type DayGrid struct {
	Date   string     `json:"date"`
	Open   bool       `json:"open"`
	Reason string     `json:"reason,omitempty"`
	Slots  []SlotInfo `json:"slots"`
}

// AvailabilityService renders availability views and applies operator
// schedule changes.
type AvailabilityService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Cache holds the upcoming-dates snapshot. Optional; nil disables caching.
	Cache cache.Cache
	// CacheTTL bounds the staleness of the snapshot. Defaults to 5 minutes.
	CacheTTL time.Duration

	// WindowDays is how far ahead UpcomingDates looks. Defaults to 7.
	WindowDays int

	// Loc is the studio's local time zone.
	Loc *time.Location

	// now is swappable for tests.
	now func() time.Time
}

func (s *AvailabilityService) loc() *time.Location {
	if s.Loc != nil {
		return s.Loc
	}
	return time.UTC
}

func (s *AvailabilityService) timeNow() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *AvailabilityService) cacheTTL() time.Duration {
	if s.CacheTTL > 0 {
		return s.CacheTTL
	}
	return 5 * time.Minute
}

func (s *AvailabilityService) windowDays() int {
	if s.WindowDays > 0 {
		return s.WindowDays
	}
	return 7
}

// DayGrid renders the hourly grid for one date. Cells are marked blocked
// from slot rows and booked across the full run of each confirmed booking.
// Dates already behind the studio's local calendar render an empty grid.
func (s *AvailabilityService) DayGrid(ctx context.Context, date string) (*DayGrid, error) {
	tr := otel.Tracer("services/AvailabilityService")
	ctx, span := tr.Start(ctx, "DayGrid",
		trace.WithAttributes(attribute.String("date", date)),
	)
	defer span.End()

	if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return nil, &ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}

	grid := &DayGrid{Date: date, Open: true, Slots: []SlotInfo{}}

	if date < s.timeNow().In(s.loc()).Format(domain.DateLayout) {
		grid.Open = false
		return grid, nil
	}

	sched, err := repo.GetDateSchedule(ctx, s.DB, date)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	if sched != nil && sched.Unavailable() {
		grid.Open = false
		grid.Reason = sched.Reason
		for _, tm := range domain.GridTimes() {
			grid.Slots = append(grid.Slots, SlotInfo{Time: tm, Status: SlotBlocked, Reason: sched.Reason})
		}
		return grid, nil
	}

	status := make(map[string]string, domain.SlotsPerDay)
	reason := make(map[string]string, domain.SlotsPerDay)
	for _, tm := range domain.GridTimes() {
		status[tm] = SlotFree
	}

	slots, err := repo.ListSlotsForDay(ctx, s.DB, date)
	if err != nil {
		return nil, err
	}
	for i := range slots {
		if _, ok := status[slots[i].Time]; !ok {
			continue
		}
		switch {
		case slots[i].IsBlocked:
			status[slots[i].Time] = SlotBlocked
			reason[slots[i].Time] = slots[i].Reason
		case slots[i].IsBooked:
			status[slots[i].Time] = SlotBooked
		}
	}

	confirmed, err := repo.ListConfirmedBookingsForDay(ctx, s.DB, date)
	if err != nil {
		return nil, err
	}
	for i := range confirmed {
		cells, err := runCells(confirmed[i].Time, confirmed[i].DurationHours)
		if err != nil {
			continue
		}
		for _, c := range cells {
			if cur, ok := status[c]; ok && cur == SlotFree {
				status[c] = SlotBooked
			}
		}
	}

	for _, tm := range domain.GridTimes() {
		grid.Slots = append(grid.Slots, SlotInfo{Time: tm, Status: status[tm], Reason: reason[tm]})
	}
	return grid, nil
}

// UpcomingDates returns the bookable dates over the next window: weekdays
// only, skipping dates closed by an override. The result is cached under a
// single well-known key and recomputed after the TTL or any schedule write.
func (s *AvailabilityService) UpcomingDates(ctx context.Context) ([]string, error) {
	tr := otel.Tracer("services/AvailabilityService")
	ctx, span := tr.Start(ctx, "UpcomingDates")
	defer span.End()

	if s.Cache != nil {
		var cached []string
		hit, err := s.Cache.Get(ctx, availableDatesKey, &cached)
		if err != nil {
			log.Error().Err(err).Msg("availability cache read failed")
		} else if hit {
			return cached, nil
		}
	}

	now := s.timeNow().In(s.loc())
	first := now.AddDate(0, 0, 1)
	last := first.AddDate(0, 0, s.windowDays()-1)

	overrides, err := repo.ListDateSchedulesBetween(ctx, s.DB,
		first.Format(domain.DateLayout), last.Format(domain.DateLayout))
	if err != nil {
		return nil, err
	}
	closed := make(map[string]bool, len(overrides))
	for i := range overrides {
		closed[overrides[i].Date] = overrides[i].Unavailable()
	}

	out := make([]string, 0, s.windowDays())
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		key := d.Format(domain.DateLayout)
		if closed[key] {
			continue
		}
		out = append(out, key)
	}

	if s.Cache != nil {
		if err := s.Cache.Set(ctx, availableDatesKey, out, s.cacheTTL()); err != nil {
			log.Error().Err(err).Msg("availability cache write failed")
		}
	}
	return out, nil
}

// SetDaySchedule applies an operator day-level override and invalidates the
// availability snapshot. Clearing all flags reopens the date.
func (s *AvailabilityService) SetDaySchedule(ctx context.Context, date string, blocked, holiday, maintenance bool, reason string) (*domain.DateSchedule, error) {
	if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return nil, &ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	sched, err := repo.SetDateSchedule(ctx, s.DB, &domain.DateSchedule{
		Date:          date,
		IsBlocked:     blocked,
		IsHoliday:     holiday,
		IsMaintenance: maintenance,
		Reason:        reason,
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return sched, nil
}

// BlockSlot applies an operator block to one grid cell.
func (s *AvailabilityService) BlockSlot(ctx context.Context, date, tm, reason string) (*domain.TimeSlot, error) {
	if err := validateCell(date, tm); err != nil {
		return nil, err
	}
	slot, err := repo.BlockSlot(ctx, s.DB, date, tm, reason)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return slot, nil
}

// UnblockSlot lifts an operator block from one grid cell. Reservations on the
// cell survive; unblocking a never-written cell is a no-op.
func (s *AvailabilityService) UnblockSlot(ctx context.Context, date, tm string) error {
	if err := validateCell(date, tm); err != nil {
		return err
	}
	if err := repo.UnblockSlot(ctx, s.DB, date, tm); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *AvailabilityService) invalidate(ctx context.Context) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Delete(ctx, availableDatesKey); err != nil {
		log.Error().Err(err).Msg("failed to invalidate availability cache")
	}
}

func validateCell(date, tm string) error {
	if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return &ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	t, err := time.Parse(domain.TimeLayout, tm)
	if err != nil || t.Minute() != 0 || t.Hour() < domain.OpeningHour || t.Hour() > domain.ClosingHour {
		return &ValidationError{Field: "time", Reason: "must be an hourly slot between 09:00 and 21:00"}
	}
	return nil
}
