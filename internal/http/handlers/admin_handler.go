// Admin HTTP handlers.
//
// Operator endpoints behind the admin token guard:
//   - GET    /admin/bookings                 (list, paginated, ETag support)
//   - GET    /admin/bookings/search          (free-text search)
//   - GET    /admin/bookings/{id}            (inspect one booking)
//   - POST   /admin/bookings/{id}/confirm    (confirm)
//   - POST   /admin/bookings/{id}/reject     (reject)
//   - DELETE /admin/bookings/{id}            (delete permanently)
//   - PUT    /admin/schedule/{date}          (day-level override)
//   - POST   /admin/slots/block              (block one grid cell)
//   - POST   /admin/slots/unblock            (unblock one grid cell)
//   - GET    /admin/abuse/records            (per-IP counters)
//   - GET    /admin/abuse/attempts           (rejected-attempt audit log, ETag support)
//   - POST   /admin/abuse/unblock            (lift a sticky IP block)
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/danovmusic/go-booking-backend/internal/domain"
	"github.com/danovmusic/go-booking-backend/internal/http/middleware"
	"github.com/danovmusic/go-booking-backend/internal/repo"
	"github.com/danovmusic/go-booking-backend/internal/services"
	"github.com/danovmusic/go-booking-backend/internal/sysutil"
	"github.com/danovmusic/go-booking-backend/internal/utils"
)

//
// DTOs
//

// ListBookingsResponse wraps a page of bookings and pagination information.
type ListBookingsResponse struct {
	Bookings   []domain.Booking `json:"bookings"`
	Pagination Pagination       `json:"pagination"`
}

// SetScheduleRequest is the JSON payload for a day-level override.
type SetScheduleRequest struct {
	Blocked     bool   `json:"blocked"`
	Holiday     bool   `json:"holiday"`
	Maintenance bool   `json:"maintenance"`
	Reason      string `json:"reason" example:"annual maintenance"`
}

// SlotActionRequest is the JSON payload for blocking or unblocking one cell.
type SlotActionRequest struct {
	Date   string `json:"date" binding:"required" example:"2026-03-03"`
	Time   string `json:"time" binding:"required" example:"14:00"`
	Reason string `json:"reason" example:"console repair"`
}

// UnblockIPRequest is the JSON payload for lifting a sticky IP block.
type UnblockIPRequest struct {
	IP string `json:"ip" binding:"required" example:"203.0.113.7"`
}

// AbuseRecordsResponse wraps a page of per-IP abuse counters.
type AbuseRecordsResponse struct {
	Records    []domain.AbuseRecord `json:"records"`
	Pagination Pagination           `json:"pagination"`
}

// AttemptsResponse wraps a page of rejected-attempt audit records.
type AttemptsResponse struct {
	Attempts   []domain.AttemptLog `json:"attempts"`
	Pagination Pagination          `json:"pagination"`
}

// isRepoNotFound reports whether err is the persistence-layer missing-row
// sentinel.
func isRepoNotFound(err error) bool {
	return errors.Is(err, repo.ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}

func paginationMeta(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

//
// Bookings
//

// ListBookings godoc
// @ID          listBookings
// @Summary     List bookings (paginated)
// @Description Returns a page of bookings, newest first, optionally filtered by status. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Admin
// @Produce     json
//
// @Param       X-Admin-Token  header  string  true  "Admin token"
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       status         query   string  false "Filter by status"            Enums(pending, confirmed, cancelled)
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListBookingsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Missing or wrong admin token"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/bookings [get]
func (h *Handlers) ListBookings(c *gin.Context) {
	ctx := c.Request.Context()
	status := domain.BookingStatus(strings.TrimSpace(c.Query("status")))
	if status != "" && !domain.ValidStatus(status) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown status filter")
		return
	}
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, ok := h.bookingSvc.(*services.BookingService); ok {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.BookingsStats(ctx, db, status)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"bookings:%s:%d:%d"`, status, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.bookingSvc.ListPage(ctx, status, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListBookingsResponse{
		Bookings:   items,
		Pagination: paginationMeta(page, pageSize, total),
	})
}

// BookingSearchHit is one scored result of the admin free-text search.
type BookingSearchHit struct {
	Booking domain.Booking `json:"booking"`
	Score   float64        `json:"score"`
}

// BookingSearchResponse wraps the ranked hits for a search query.
type BookingSearchResponse struct {
	Query string             `json:"query"`
	Hits  []BookingSearchHit `json:"hits"`
}

// SearchBookings godoc
// @ID          searchBookings
// @Summary     Search bookings by free text
// @Description Ranks recent bookings against the query (name, email, phone in any formatting, service, date, message).
// @Tags        Admin
// @Produce     json
//
// @Param       X-Admin-Token  header  string  true  "Admin token"
// @Param       q              query   string  true  "Search query"
// @Param       limit          query   int     false "Maximum hits"  minimum(1) maximum(50) default(10)
//
// @Success     200  {object} handlers.BookingSearchResponse
// @Failure     400  {object} handlers.ErrorResponse "Missing query"
// @Failure     401  {object} handlers.ErrorResponse "Missing or wrong admin token"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/bookings/search [get]
func (h *Handlers) SearchBookings(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		failValidation(c, "q", "must not be empty")
		return
	}
	limit := utils.Clamp(utils.AtoiDefault(c.Query("limit"), 10), 1, 50)

	matches, err := h.bookingSvc.Search(c.Request.Context(), q, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	hits := make([]BookingSearchHit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, BookingSearchHit{Booking: m.Booking, Score: m.Score})
	}
	ok(c, http.StatusOK, BookingSearchResponse{Query: q, Hits: hits})
}

// GetBooking godoc
// @ID          getBooking
// @Summary     Get one booking
// @Tags        Admin
// @Produce     json
//
// @Param       X-Admin-Token  header  string  true  "Admin token"
// @Param       id             path    string  true  "Booking ID (UUID)"  format(uuid)
//
// @Success     200  {object} domain.Booking
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Booking not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/bookings/{id} [get]
func (h *Handlers) GetBooking(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "booking id must be a UUID")
		return
	}
	b, err := h.bookingSvc.Get(c.Request.Context(), id)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, b)
}

// ConfirmBooking godoc
// @ID          confirmBooking
// @Summary     Confirm a booking
// @Description Moves a pending booking to confirmed and reserves its time slot. Bookings past pending are returned unchanged.
// @Tags        Admin
// @Produce     json
//
// @Param       X-Admin-Token  header  string  true  "Admin token"
// @Param       id             path    string  true  "Booking ID (UUID)"  format(uuid)
//
// @Success     200  {object} domain.Booking
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Booking not found"
// @Failure     409  {object} handlers.ErrorResponse "Slot taken or transition not allowed"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/bookings/{id}/confirm [post]
func (h *Handlers) ConfirmBooking(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "booking id must be a UUID")
		return
	}
	b, err := h.bookingSvc.Confirm(c.Request.Context(), id)
	if err != nil {
		failService(c, err)
		return
	}
	middleware.CountBookingEvent("confirmed")
	ok(c, http.StatusOK, b)
}

// RejectBooking godoc
// @ID          rejectBooking
// @Summary     Reject a booking
// @Description Cancels a pending booking. Bookings past pending are returned unchanged.
// @Tags        Admin
// @Produce     json
//
// @Param       X-Admin-Token  header  string  true  "Admin token"
// @Param       id             path    string  true  "Booking ID (UUID)"  format(uuid)
//
// @Success     200  {object} domain.Booking
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Booking not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/bookings/{id}/reject [post]
func (h *Handlers) RejectBooking(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "booking id must be a UUID")
		return
	}
	b, err := h.bookingSvc.Reject(c.Request.Context(), id)
	if err != nil {
		failService(c, err)
		return
	}
	middleware.CountBookingEvent("cancelled")
	ok(c, http.StatusOK, b)
}

// DeleteBooking godoc
// @ID          deleteBooking
// @Summary     Delete a booking permanently
// @Tags        Admin
//
// @Param       X-Admin-Token  header  string  true  "Admin token"
// @Param       id             path    string  true  "Booking ID (UUID)"  format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Booking not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/bookings/{id} [delete]
func (h *Handlers) DeleteBooking(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "booking id must be a UUID")
		return
	}
	if err := h.bookingSvc.Delete(c.Request.Context(), id); err != nil {
		failService(c, err)
		return
	}
	middleware.CountBookingEvent("deleted")
	noContent(c)
}

//
// Schedule and slots
//

// SetDaySchedule godoc
// @ID          setDaySchedule
// @Summary     Set the day-level override for a date
// @Description Upserts the schedule row for the date. A date with no override is open by default.
// @Tags        Admin
// @Accept      json
// @Produce     json
//
// @Param       X-Admin-Token  header  string  true  "Admin token"
// @Param       date           path    string  true  "Date (YYYY-MM-DD)"  example(2026-03-05)
// @Param       body           body    handlers.SetScheduleRequest  true  "Override flags"
//
// @Success     200  {object} domain.DateSchedule
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/schedule/{date} [put]
func (h *Handlers) SetDaySchedule(c *gin.Context) {
	var req SetScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	sched, err := h.availSvc.SetDaySchedule(c.Request.Context(), c.Param("date"),
		req.Blocked, req.Holiday, req.Maintenance, req.Reason)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, sched)
}

// BlockSlot godoc
// @ID          blockSlot
// @Summary     Block one grid cell
// @Description Marks the cell unavailable for booking. Blocking an already blocked cell updates its reason.
// @Tags        Admin
// @Accept      json
// @Produce     json
//
// @Param       X-Admin-Token  header  string  true  "Admin token"
// @Param       body           body    handlers.SlotActionRequest  true  "Cell to block"
//
// @Success     200  {object} domain.TimeSlot
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/slots/block [post]
func (h *Handlers) BlockSlot(c *gin.Context) {
	var req SlotActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	slot, err := h.availSvc.BlockSlot(c.Request.Context(), req.Date, req.Time, req.Reason)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, slot)
}

// UnblockSlot godoc
// @ID          unblockSlot
// @Summary     Unblock one grid cell
// @Description Clears the operator block. Unblocking a cell with no slot row is a no-op.
// @Tags        Admin
// @Accept      json
//
// @Param       X-Admin-Token  header  string  true  "Admin token"
// @Param       body           body    handlers.SlotActionRequest  true  "Cell to unblock"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/slots/unblock [post]
func (h *Handlers) UnblockSlot(c *gin.Context) {
	var req SlotActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := h.availSvc.UnblockSlot(c.Request.Context(), req.Date, req.Time); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}

//
// Abuse control
//

// ListAbuseRecords godoc
// @ID          listAbuseRecords
// @Summary     List per-IP abuse counters
// @Tags        Admin
// @Produce     json
//
// @Param       X-Admin-Token  header  string  true  "Admin token"
// @Param       blocked        query   bool    false "Only blocked IPs"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.AbuseRecordsResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/abuse/records [get]
func (h *Handlers) ListAbuseRecords(c *gin.Context) {
	page, pageSize := clampPagination(c)
	blockedOnly := sysutil.IsTruthy(c.Query("blocked"))

	items, total, err := h.abuseSvc.ListRecordsPage(c.Request.Context(), blockedOnly, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, AbuseRecordsResponse{
		Records:    items,
		Pagination: paginationMeta(page, pageSize, total),
	})
}

// ListAttempts godoc
// @ID          listAttempts
// @Summary     List rejected booking attempts
// @Description Returns the append-only audit log of gate rejections, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Admin
// @Produce     json
//
// @Param       X-Admin-Token  header  string  true  "Admin token"
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       kind           query   string  false "Filter by kind"  Enums(rate_limit, duplicate, honeypot, suspicious)
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.AttemptsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/abuse/attempts [get]
func (h *Handlers) ListAttempts(c *gin.Context) {
	ctx := c.Request.Context()
	kind := domain.AttemptKind(strings.TrimSpace(c.Query("kind")))
	switch kind {
	case "", domain.AttemptRateLimit, domain.AttemptDuplicate, domain.AttemptHoneypot, domain.AttemptSuspicious:
	default:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown attempt kind")
		return
	}
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	var db *gorm.DB
	if gate, ok := h.abuseSvc.(*services.AbuseGate); ok {
		db = gate.DB
	}
	if db != nil {
		count, maxTS, err := repo.AttemptsStats(ctx, db, kind)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"attempts:%s:%d:%d"`, kind, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.abuseSvc.ListAttemptsPage(ctx, kind, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, AttemptsResponse{
		Attempts:   items,
		Pagination: paginationMeta(page, pageSize, total),
	})
}

// UnblockIP godoc
// @ID          unblockIP
// @Summary     Lift a sticky IP block
// @Description Clears the block flag and resets the per-IP booking counter.
// @Tags        Admin
// @Accept      json
//
// @Param       X-Admin-Token  header  string  true  "Admin token"
// @Param       body           body    handlers.UnblockIPRequest  true  "IP to unblock"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "IP has no abuse record"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/abuse/unblock [post]
func (h *Handlers) UnblockIP(c *gin.Context) {
	var req UnblockIPRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.IP) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "ip required")
		return
	}
	if err := h.abuseSvc.Unblock(c.Request.Context(), strings.TrimSpace(req.IP)); err != nil {
		if isRepoNotFound(err) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "no abuse record for ip")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}
