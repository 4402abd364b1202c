// Booking HTTP handlers.
//
// This file exposes the public REST endpoints for bookings:
//   - POST /bookings                  (submit a booking request)
//   - GET  /bookings/confirm/{token}  (confirm via mail link)
//   - GET  /bookings/reject/{token}   (reject via mail link)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate service errors into the stable error-code taxonomy.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/danovmusic/go-booking-backend/internal/domain"
	"github.com/danovmusic/go-booking-backend/internal/http/middleware"
	"github.com/danovmusic/go-booking-backend/internal/i18n"
	"github.com/danovmusic/go-booking-backend/internal/search"
	"github.com/danovmusic/go-booking-backend/internal/services"
	"github.com/danovmusic/go-booking-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// BookingService defines the booking lifecycle operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type BookingService interface {
	// Submit validates and persists a public booking request.
	Submit(ctx context.Context, req *services.SubmitRequest) (*domain.Booking, error)
	// Confirm moves a booking to confirmed (operator action).
	Confirm(ctx context.Context, id string) (*domain.Booking, error)
	// Reject moves a booking to cancelled (operator action).
	Reject(ctx context.Context, id string) (*domain.Booking, error)
	// ConfirmByToken resolves a confirmation mail link.
	ConfirmByToken(ctx context.Context, token string) (*domain.Booking, error)
	// RejectByToken resolves a rejection mail link.
	RejectByToken(ctx context.Context, token string) (*domain.Booking, error)
	// Get returns one booking by ID.
	Get(ctx context.Context, id string) (*domain.Booking, error)
	// ListPage returns a page of bookings and the total count.
	ListPage(ctx context.Context, status domain.BookingStatus, page, pageSize int) ([]domain.Booking, int64, error)
	// Search ranks recent bookings against a free-text query.
	Search(ctx context.Context, query string, limit int) ([]search.Match, error)
	// Delete removes a booking permanently.
	Delete(ctx context.Context, id string) error
}

// AvailabilityService defines the calendar views and operator schedule
// operations consumed by HTTP handlers.
type AvailabilityService interface {
	// DayGrid renders the hourly availability grid for one date.
	DayGrid(ctx context.Context, date string) (*services.DayGrid, error)
	// UpcomingDates returns the bookable dates in the rolling window.
	UpcomingDates(ctx context.Context) ([]string, error)
	// SetDaySchedule upserts the day-level override for a date.
	SetDaySchedule(ctx context.Context, date string, blocked, holiday, maintenance bool, reason string) (*domain.DateSchedule, error)
	// BlockSlot marks one grid cell unavailable.
	BlockSlot(ctx context.Context, date, tm, reason string) (*domain.TimeSlot, error)
	// UnblockSlot clears the operator block from one grid cell.
	UnblockSlot(ctx context.Context, date, tm string) error
}

// AbuseService defines the anti-abuse inspection operations consumed by the
// admin handlers.
type AbuseService interface {
	// ListRecordsPage returns per-IP abuse counters, optionally blocked only.
	ListRecordsPage(ctx context.Context, blockedOnly bool, page, pageSize int) ([]domain.AbuseRecord, int64, error)
	// ListAttemptsPage returns rejected-attempt audit records.
	ListAttemptsPage(ctx context.Context, kind domain.AttemptKind, page, pageSize int) ([]domain.AttemptLog, int64, error)
	// Unblock lifts a sticky IP block and resets its counter.
	Unblock(ctx context.Context, ip string) error
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for bookings, availability, and abuse
// control. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	bookingSvc BookingService
	availSvc   AvailabilityService
	abuseSvc   AbuseService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(bookingSvc BookingService, availSvc AvailabilityService, abuseSvc AbuseService) *Handlers {
	return &Handlers{bookingSvc: bookingSvc, availSvc: availSvc, abuseSvc: abuseSvc}
}

//
// DTOs
//

// SubmitBookingRequest is the JSON payload for a public booking submission.
type SubmitBookingRequest struct {
	// Name is the client's name (min 2 characters).
	Name string `json:"name" binding:"required" example:"Ana Petrenko"`
	// Email receives the confirmation messages.
	Email string `json:"email" binding:"required" example:"ana@example.com"`
	// Phone must contain 10 to 15 digits.
	Phone string `json:"phone" binding:"required" example:"+380501112233"`
	// Service is one of the studio service codes.
	Service string `json:"service" binding:"required" example:"recording"`
	// Date of the session, YYYY-MM-DD.
	Date string `json:"date" binding:"required" example:"2026-03-03"`
	// Time is the hourly start cell, HH:MM.
	Time string `json:"time" binding:"required" example:"10:00"`
	// DurationHours is the session length (1 to 6).
	DurationHours int `json:"duration_hours" example:"2"`
	// Message is an optional note to the studio.
	Message string `json:"message" example:"Two vocal takes plus rough mix"`
	// Website is a hidden field; leave empty.
	Website string `json:"website"`
}

// BookingActionResponse is returned by the mail-link endpoints.
type BookingActionResponse struct {
	ID      string               `json:"id"`
	Status  domain.BookingStatus `json:"status"`
	Message string               `json:"message"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.Clamp(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1, maxPageSize)
	return
}

// failService maps service-layer errors onto the HTTP error taxonomy. Every
// handler that calls into the services funnels its error path through here so
// the status/code pairing stays consistent across endpoints.
func failService(c *gin.Context, err error) {
	if ve, ok := services.AsValidation(err); ok {
		failValidation(c, ve.Field, ve.Reason)
		return
	}
	if ae, ok := services.AsAbuse(err); ok {
		middleware.CountGateRejection(string(ae.Kind))
		// The heuristic detail stays in the attempt log; callers get a
		// fixed message so the gate leaks nothing about its rules.
		fail(c, http.StatusTooManyRequests, ErrCodeSubmissionRejected, "booking could not be accepted")
		return
	}
	switch {
	case errors.Is(err, services.ErrBookingNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "booking not found")
	case errors.Is(err, services.ErrDateUnavailable):
		fail(c, http.StatusConflict, ErrCodeDateUnavailable, "date not available")
	case errors.Is(err, services.ErrSlotUnavailable):
		fail(c, http.StatusConflict, ErrCodeSlotUnavailable, "time slot not available")
	case errors.Is(err, services.ErrInvalidTransition):
		fail(c, http.StatusConflict, ErrCodeInvalidTransition, "status change not allowed")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

//
// Handlers
//

// SubmitBooking godoc
// @ID          submitBooking
// @Summary     Submit a booking request
// @Description Creates a pending booking for the requested date and time and notifies the studio.
// @Tags        Bookings
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.SubmitBookingRequest  true  "Booking payload"
//
// @Success     201  {object}  domain.Booking
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     409  {object}  handlers.ErrorResponse  "Date or slot unavailable"
// @Failure     429  {object}  handlers.ErrorResponse  "Submission rejected"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /bookings [post]
func (h *Handlers) SubmitBooking(c *gin.Context) {
	var req SubmitBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	b, err := h.bookingSvc.Submit(c.Request.Context(), &services.SubmitRequest{
		Name:          strings.TrimSpace(req.Name),
		Email:         strings.TrimSpace(req.Email),
		Phone:         strings.TrimSpace(req.Phone),
		Service:       domain.Service(req.Service),
		Date:          req.Date,
		Time:          req.Time,
		DurationHours: req.DurationHours,
		Message:       req.Message,
		Website:       req.Website,
		IP:            c.ClientIP(),
		UserAgent:     c.Request.UserAgent(),
	})
	if err != nil {
		failService(c, err)
		return
	}
	middleware.CountBookingEvent("submitted")
	ok(c, http.StatusCreated, b)
}

// Mail links are opened by clients directly, so the outcome message is
// localized from the Accept-Language header.
var (
	confirmedMessages = map[string]string{
		"en": "booking confirmed",
		"de": "Buchung bestätigt",
		"ru": "бронирование подтверждено",
		"uk": "бронювання підтверджено",
	}
	rejectedMessages = map[string]string{
		"en": "booking rejected",
		"de": "Buchung abgelehnt",
		"ru": "бронирование отклонено",
		"uk": "бронювання відхилено",
	}
)

// ConfirmBookingByToken godoc
// @ID          confirmBookingByToken
// @Summary     Confirm a booking via mail link
// @Description Confirms the pending booking behind the token and reserves its time slot. Repeated calls are no-ops.
// @Tags        Bookings
// @Produce     json
//
// @Param       token  path  string  true  "Confirmation token"  format(uuid)
//
// @Success     200  {object}  handlers.BookingActionResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown token"
// @Failure     409  {object}  handlers.ErrorResponse  "Slot taken or booking cancelled"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /bookings/confirm/{token} [get]
func (h *Handlers) ConfirmBookingByToken(c *gin.Context) {
	b, err := h.bookingSvc.ConfirmByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		failService(c, err)
		return
	}
	middleware.CountBookingEvent("confirmed")
	ok(c, http.StatusOK, BookingActionResponse{
		ID:      b.ID,
		Status:  b.Status,
		Message: i18n.SelectVariant(c.GetHeader("Accept-Language"), confirmedMessages),
	})
}

// RejectBookingByToken godoc
// @ID          rejectBookingByToken
// @Summary     Reject a booking via mail link
// @Description Cancels the pending booking behind the token. Settled bookings are returned unchanged, so repeated clicks are harmless.
// @Tags        Bookings
// @Produce     json
//
// @Param       token  path  string  true  "Rejection token"  format(uuid)
//
// @Success     200  {object}  handlers.BookingActionResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown token"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /bookings/reject/{token} [get]
func (h *Handlers) RejectBookingByToken(c *gin.Context) {
	b, err := h.bookingSvc.RejectByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		failService(c, err)
		return
	}
	middleware.CountBookingEvent("cancelled")
	ok(c, http.StatusOK, BookingActionResponse{
		ID:      b.ID,
		Status:  b.Status,
		Message: i18n.SelectVariant(c.GetHeader("Accept-Language"), rejectedMessages),
	})
}
