// Package services – BookingService
//
// This file implements BookingService, the application-level component that
// owns the booking lifecycle: public submission (validation, anti-abuse gate,
// advisory availability check, persistence), the status state machine, the
// mail-link confirm/reject entry points, and deletion. Slot reservation
// happens at confirmation time with compare-and-set semantics, so two
// concurrent confirmations of the same cell resolve to exactly one winner.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include booking identifiers and transition parameters where applicable.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/danovmusic/go-booking-backend/internal/cache"
	"github.com/danovmusic/go-booking-backend/internal/domain"
	"github.com/danovmusic/go-booking-backend/internal/repo"
	"github.com/danovmusic/go-booking-backend/internal/search"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// availableDatesKey is the cache key for the upcoming-dates snapshot. Every
// write that can change availability invalidates it.
const availableDatesKey = "available_dates"

// Notifier is the outbound messaging contract required by BookingService.
// Implementations deliver best effort; returned errors are recorded but never
// fail the booking operation that triggered them.
type Notifier interface {
	// BookingReceived acknowledges a new request to the client.
	BookingReceived(ctx context.Context, b *domain.Booking) error

	// BookingConfirmed tells the client the session is on.
	BookingConfirmed(ctx context.Context, b *domain.Booking) error

	// BookingRejected tells the client the slot could not be given.
	BookingRejected(ctx context.Context, b *domain.Booking) error

	// StudioAlert notifies the studio inbox with confirm/reject links.
	StudioAlert(ctx context.Context, b *domain.Booking) error
}

// SubmitRequest carries one public booking submission, including the request
// metadata the anti-abuse gate needs.
type SubmitRequest struct {
	Name          string
	Email         string
	Phone         string
	Service       domain.Service
	Date          string // "2006-01-02"
	Time          string // "15:04", one of the grid times
	DurationHours int
	Message       string

	// Website is the hidden honeypot field; humans leave it empty.
	Website string

	IP        string
	UserAgent string
}

// The state machine lets an operator move a booking between any two of the
// three states; moving to confirmed must win the slot reservation, and moving
// away from confirmed gives the slot back. Same-state transitions are handled
// as no-ops before this is consulted.
func transitionAllowed(from, to domain.BookingStatus) bool {
	return domain.ValidStatus(from) && domain.ValidStatus(to) && from != to
}

// BookingService coordinates booking persistence, the status state machine,
// and the collaborators around them (gate, cache, notifier).
type BookingService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Gate screens public submissions. Required for Submit.
	Gate *AbuseGate
	// Notifier delivers booking emails. Optional; nil disables delivery.
	Notifier Notifier
	// Cache holds the availability snapshot invalidated on writes. Optional.
	Cache cache.Cache

	// Loc is the studio's local time zone for date validation.
	Loc *time.Location

	// now is swappable for tests.
	now func() time.Time
}

func (s *BookingService) loc() *time.Location {
	if s.Loc != nil {
		return s.Loc
	}
	return time.UTC
}

func (s *BookingService) timeNow() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Submit handles a public booking submission end to end: anti-abuse gate,
// field validation, calendar and slot advisory checks, atomic persistence
// with the per-IP counter, and best-effort notifications. The gate runs
// before validation so an abusive sender learns nothing about field rules.
//
// The advisory slot check here keeps obviously taken cells out of the flow;
// the authoritative reservation happens at confirmation time.
func (s *BookingService) Submit(ctx context.Context, req *SubmitRequest) (*domain.Booking, error) {
	tr := otel.Tracer("services/BookingService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.String("booking.date", req.Date),
			attribute.String("booking.time", req.Time),
			attribute.String("booking.service", string(req.Service)),
		),
	)
	defer span.End()

	score, err := s.Gate.Check(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := validateSubmission(req, s.timeNow().In(s.loc())); err != nil {
		return nil, err
	}

	if err := s.checkDateOpen(ctx, req.Date); err != nil {
		return nil, err
	}
	if err := s.checkRunFree(ctx, req.Date, req.Time, req.DurationHours, ""); err != nil {
		return nil, err
	}

	b := &domain.Booking{
		Name:          strings.TrimSpace(req.Name),
		Email:         strings.TrimSpace(req.Email),
		Phone:         strings.TrimSpace(req.Phone),
		Service:       req.Service,
		Date:          req.Date,
		Time:          req.Time,
		DurationHours: req.DurationHours,
		Message:       strings.TrimSpace(req.Message),
		Status:        domain.StatusPending,
		SourceIP:      req.IP,
		UserAgent:     req.UserAgent,
		Suspicious:    score >= suspiciousScore,
		SpamScore:     score,
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.CreateBooking(ctx, tx, b); err != nil {
			return err
		}
		return s.Gate.RecordAccepted(ctx, tx, req.IP)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateAvailability(ctx)
	s.notifySubmitted(ctx, b)
	return b, nil
}

// TransitionStatus is the single sanctioned path for changing a booking's
// status. Same-status calls are idempotent no-ops. Moving to confirmed
// reserves the slot cell first; a lost reservation race surfaces as
// ErrSlotUnavailable and leaves the booking untouched. Moving to pending or
// cancelled releases any cells the booking holds.
func (s *BookingService) TransitionStatus(ctx context.Context, id string, to domain.BookingStatus) (*domain.Booking, error) {
	tr := otel.Tracer("services/BookingService")
	ctx, span := tr.Start(ctx, "TransitionStatus",
		trace.WithAttributes(
			attribute.String("booking.id", id),
			attribute.String("booking.to", string(to)),
		),
	)
	defer span.End()

	if !domain.ValidStatus(to) {
		return nil, ErrInvalidTransition
	}

	b, err := repo.GetBooking(ctx, s.DB, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	if b.Status == to {
		return b, nil
	}
	if !transitionAllowed(b.Status, to) {
		return nil, ErrInvalidTransition
	}
	from := b.Status

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if to == domain.StatusConfirmed {
			if err := repo.ReserveSlot(ctx, tx, b.Date, b.Time, b.ID, "booked by "+b.Name); err != nil {
				if errors.Is(err, repo.ErrSlotTaken) {
					return ErrSlotUnavailable
				}
				return err
			}
		}
		if err := repo.UpdateBookingStatus(ctx, tx, b.ID, from, to); err != nil {
			if isNotFound(err) {
				// Lost a status race; the tx rolls back the reservation.
				return ErrInvalidTransition
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if to != domain.StatusConfirmed {
		// Cells held by the booking are freed outside the status tx; a
		// failure here leaves them releasable by the next admin action.
		if _, rerr := repo.ReleaseSlotsForBooking(ctx, s.DB, b.ID); rerr != nil {
			log.Error().Err(rerr).Str("booking_id", b.ID).Msg("failed to release slots on status change")
		}
	}

	b.Status = to
	s.invalidateAvailability(ctx)
	s.notifyTransition(ctx, b)
	return b, nil
}

// Confirm moves a pending booking to confirmed by ID (operator action).
// Bookings already past pending are left untouched so the endpoint is safe
// to retry.
func (s *BookingService) Confirm(ctx context.Context, id string) (*domain.Booking, error) {
	return s.resolvePending(ctx, id, domain.StatusConfirmed)
}

// Reject moves a pending booking to cancelled by ID (operator action).
// Bookings already past pending are left untouched.
func (s *BookingService) Reject(ctx context.Context, id string) (*domain.Booking, error) {
	return s.resolvePending(ctx, id, domain.StatusCancelled)
}

// ConfirmByToken resolves a confirm mail-link. Only pending bookings move;
// an already confirmed or cancelled one is returned as-is so a re-clicked
// link never flips a settled booking.
func (s *BookingService) ConfirmByToken(ctx context.Context, token string) (*domain.Booking, error) {
	b, err := repo.GetBookingByConfirmToken(ctx, s.DB, token)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return s.resolvePending(ctx, b.ID, domain.StatusConfirmed)
}

// RejectByToken resolves a reject mail-link. Only pending bookings move; a
// settled one is returned as-is.
func (s *BookingService) RejectByToken(ctx context.Context, token string) (*domain.Booking, error) {
	b, err := repo.GetBookingByRejectToken(ctx, s.DB, token)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return s.resolvePending(ctx, b.ID, domain.StatusCancelled)
}

// resolvePending is the shared confirm/reject entry point: it transitions the
// booking only while it is still pending and returns it unchanged otherwise.
func (s *BookingService) resolvePending(ctx context.Context, id string, to domain.BookingStatus) (*domain.Booking, error) {
	b, err := repo.GetBooking(ctx, s.DB, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	if b.Status != domain.StatusPending {
		return b, nil
	}
	return s.TransitionStatus(ctx, id, to)
}

// Get returns a booking by ID.
func (s *BookingService) Get(ctx context.Context, id string) (*domain.Booking, error) {
	b, err := repo.GetBooking(ctx, s.DB, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return b, nil
}

// ListPage returns paginated bookings, optionally filtered by status.
// It applies defaults for invalid page/pageSize and returns the total count.
func (s *BookingService) ListPage(ctx context.Context, status domain.BookingStatus, page, pageSize int) ([]domain.Booking, int64, error) {
	tr := otel.Tracer("services/BookingService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("booking.status", string(status)),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountBookings(ctx, s.DB, status)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Booking{}, 0, nil
	}

	items, err := repo.ListBookingsPage(ctx, s.DB, status, offset, pageSize)
	return items, total, err
}

// searchCorpusCap bounds how many recent bookings the admin search indexes.
const searchCorpusCap = 500

// Search runs the admin free-text search over recent bookings. The index is
// a per-call snapshot of the newest bookings; at studio scale that is the
// whole table.
func (s *BookingService) Search(ctx context.Context, query string, limit int) ([]search.Match, error) {
	tr := otel.Tracer("services/BookingService")
	ctx, span := tr.Start(ctx, "Search",
		trace.WithAttributes(attribute.Int("limit", limit)),
	)
	defer span.End()

	bookings, err := repo.ListBookingsPage(ctx, s.DB, "", 0, searchCorpusCap)
	if err != nil {
		return nil, err
	}
	return search.NewBookingIndex(bookings).TopK(query, limit), nil
}

// Delete removes a booking permanently, releasing any cells it holds first.
func (s *BookingService) Delete(ctx context.Context, id string) error {
	tr := otel.Tracer("services/BookingService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(attribute.String("booking.id", id)),
	)
	defer span.End()

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.ReleaseSlotsForBooking(ctx, tx, id); err != nil {
			return err
		}
		if err := repo.DeleteBooking(ctx, tx, id); err != nil {
			if isNotFound(err) {
				return ErrBookingNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidateAvailability(ctx)
	return nil
}

// --- Submission validation ---

// validateSubmission applies the hard form rules. Soft content heuristics
// live in the gate; anything rejected here is a plain user error.
func validateSubmission(req *SubmitRequest, now time.Time) error {
	if utf8.RuneCountInString(strings.TrimSpace(req.Name)) < 2 {
		return &ValidationError{Field: "name", Reason: "must be at least 2 characters"}
	}
	if !validEmail(req.Email) {
		return &ValidationError{Field: "email", Reason: "must be a valid email address"}
	}
	if n := countDigits(req.Phone); n < 10 || n > 15 {
		return &ValidationError{Field: "phone", Reason: "must contain 10 to 15 digits"}
	}
	if !domain.ValidService(req.Service) {
		return &ValidationError{Field: "service", Reason: "unknown service"}
	}

	day, err := time.ParseInLocation(domain.DateLayout, req.Date, now.Location())
	if err != nil {
		return &ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if day.Before(today) {
		return &ValidationError{Field: "date", Reason: "must not be in the past"}
	}

	start, err := time.Parse(domain.TimeLayout, req.Time)
	if err != nil {
		return &ValidationError{Field: "time", Reason: "must be HH:MM"}
	}
	if start.Minute() != 0 || start.Hour() < domain.OpeningHour || start.Hour() > domain.ClosingHour {
		return &ValidationError{Field: "time", Reason: "must be an hourly slot between 09:00 and 21:00"}
	}

	if req.DurationHours < domain.MinDurationHrs || req.DurationHours > domain.MaxDurationHrs {
		return &ValidationError{Field: "duration_hours", Reason: "must be between 1 and 6 hours"}
	}
	end := start.Add(time.Duration(req.DurationHours) * time.Hour)
	closing := time.Date(end.Year(), end.Month(), end.Day(), domain.ClosingHour, domain.ClosingMinute, 0, 0, end.Location())
	if end.Day() != start.Day() || end.After(closing) {
		return &ValidationError{Field: "duration_hours", Reason: "session must end by 21:30"}
	}
	return nil
}

// validEmail applies a deliberately simple shape check: exactly one "@" with
// a dotted domain. Anything fancier is the mail server's problem.
func validEmail(email string) bool {
	email = strings.TrimSpace(email)
	at := strings.Count(email, "@")
	if at != 1 {
		return false
	}
	parts := strings.SplitN(email, "@", 2)
	local, dom := parts[0], parts[1]
	if local == "" || dom == "" {
		return false
	}
	if !strings.Contains(dom, ".") || strings.HasPrefix(dom, ".") || strings.HasSuffix(dom, ".") {
		return false
	}
	for _, r := range email {
		if unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// --- Calendar checks ---

func (s *BookingService) checkDateOpen(ctx context.Context, date string) error {
	sched, err := repo.GetDateSchedule(ctx, s.DB, date)
	if err != nil {
		if isNotFound(err) {
			return nil // no override row means open
		}
		return err
	}
	if sched.Unavailable() {
		return ErrDateUnavailable
	}
	return nil
}

// checkRunFree verifies that every grid cell in [start, start+duration) is
// neither blocked, reserved, nor overlapped by a confirmed booking. Pending
// bookings hold no capacity and never conflict here. excludeID skips one
// booking's own rows (used when re-checking).
func (s *BookingService) checkRunFree(ctx context.Context, date, start string, duration int, excludeID string) error {
	cells, err := runCells(start, duration)
	if err != nil {
		return &ValidationError{Field: "time", Reason: "must be HH:MM"}
	}
	want := make(map[string]struct{}, len(cells))
	for _, c := range cells {
		want[c] = struct{}{}
	}

	slots, err := repo.ListSlotsForDay(ctx, s.DB, date)
	if err != nil {
		return err
	}
	for i := range slots {
		if _, ok := want[slots[i].Time]; !ok {
			continue
		}
		if slots[i].BookingID != nil && *slots[i].BookingID == excludeID && excludeID != "" {
			continue
		}
		if !slots[i].Available() {
			return ErrSlotUnavailable
		}
	}

	confirmed, err := repo.ListConfirmedBookingsForDay(ctx, s.DB, date)
	if err != nil {
		return err
	}
	for i := range confirmed {
		if confirmed[i].ID == excludeID {
			continue
		}
		other, err := runCells(confirmed[i].Time, confirmed[i].DurationHours)
		if err != nil {
			continue
		}
		for _, c := range other {
			if _, ok := want[c]; ok {
				return ErrSlotUnavailable
			}
		}
	}
	return nil
}

// runCells expands a start time and duration into the hourly grid cells the
// session occupies.
func runCells(start string, duration int) ([]string, error) {
	t, err := time.Parse(domain.TimeLayout, start)
	if err != nil {
		return nil, err
	}
	if duration < 1 {
		duration = 1
	}
	out := make([]string, 0, duration)
	for i := 0; i < duration; i++ {
		out = append(out, t.Add(time.Duration(i)*time.Hour).Format(domain.TimeLayout))
	}
	return out, nil
}

// --- Notifications and cache ---

func (s *BookingService) invalidateAvailability(ctx context.Context) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Delete(ctx, availableDatesKey); err != nil {
		log.Error().Err(err).Msg("failed to invalidate availability cache")
	}
}

func (s *BookingService) notifySubmitted(ctx context.Context, b *domain.Booking) {
	if s.Notifier == nil {
		return
	}
	_ = s.Notifier.BookingReceived(ctx, b)
	if err := s.Notifier.StudioAlert(ctx, b); err == nil {
		if merr := repo.MarkEmailSent(ctx, s.DB, b.ID); merr != nil {
			log.Error().Err(merr).Str("booking_id", b.ID).Msg("failed to mark email sent")
		}
	}
}

func (s *BookingService) notifyTransition(ctx context.Context, b *domain.Booking) {
	if s.Notifier == nil {
		return
	}
	switch b.Status {
	case domain.StatusConfirmed:
		_ = s.Notifier.BookingConfirmed(ctx, b)
	case domain.StatusCancelled:
		_ = s.Notifier.BookingRejected(ctx, b)
	}
}

// isNotFound treats repo-level not found sentinels as "not found" in a
// driver-agnostic way. It also checks gorm.ErrRecordNotFound for safety.
func isNotFound(err error) bool {
	if errors.Is(err, repo.ErrNotFound) {
		return true
	}
	return errors.Is(err, gorm.ErrRecordNotFound)
}
