package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/danovmusic/go-booking-backend/internal/domain"
	"github.com/danovmusic/go-booking-backend/internal/repo"
)

// ---------- ListBookings ----------

func TestListBookings_ETag304_and_SuccessPage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newHandlersDB(t)
	h := newRealHandlers(db)

	date := futureDate(10)
	seedPendingBooking(t, db, date, "10:00")
	seedPendingBooking(t, db, date, "14:00")

	r := gin.New()
	r.GET("/admin/bookings", h.ListBookings)

	// Compute expected ETag
	count, maxTS, err := repo.BookingsStats(context.Background(), db, "")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	var ts int64
	if maxTS != nil {
		ts = maxTS.Unix()
	}
	etag := fmt.Sprintf(`W/"bookings:%s:%d:%d"`, "", count, ts)

	// 304 path
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/bookings", nil)
	req.Header.Set("If-None-Match", etag)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified {
		t.Fatalf("etag 304 -> %d", w.Code)
	}

	// 200 success with pagination
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/admin/bookings?page=1&page_size=1", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list 200 -> %d body=%s", w.Code, w.Body.String())
	}
	var out ListBookingsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.Pagination.Page != 1 || out.Pagination.PageSize != 1 || out.Pagination.Total != count {
		t.Fatalf("pagination mismatch: %#v", out.Pagination)
	}
	if out.Pagination.TotalPages != 2 || !out.Pagination.HasNext {
		t.Fatalf("pages/hasnext mismatch: %#v", out.Pagination)
	}
	if len(out.Bookings) != 1 {
		t.Fatalf("expected 1 booking on page 1")
	}
}

func TestListBookings_UnknownStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newStubHandlers()
	r := gin.New()
	r.GET("/admin/bookings", h.ListBookings)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/bookings?status=paused", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown status -> %d", w.Code)
	}
}

func TestListBookings_SkipETagPrecheck_And_ListError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// Stub service (not *services.BookingService) so db==nil skips the ETag
	// pre-check entirely.
	svc := stubBookingSvc{
		listPage: func(context.Context, domain.BookingStatus, int, int) ([]domain.Booking, int64, error) {
			return nil, 0, gorm.ErrInvalidField
		},
	}
	h := New(svc, stubAvailSvc{}, stubAbuseSvc{})
	r := gin.New()
	r.GET("/admin/bookings", h.ListBookings)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/bookings?page=1&page_size=5", nil)
	req.Header.Set("If-None-Match", `W/"nope"`)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on list error; got %d body=%s", w.Code, w.Body.String())
	}
}

// ---------- booking actions ----------

// ---------- SearchBookings ----------

func TestSearchBookings(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newHandlersDB(t)
	h := newRealHandlers(db)

	seedPendingBooking(t, db, futureDate(5), "10:00")

	r := gin.New()
	r.GET("/admin/bookings/search", h.SearchBookings)

	// Missing query → 400.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/bookings/search", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing q -> %d", w.Code)
	}

	// Name hit.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/admin/bookings/search?q=petrenko", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("search -> %d body=%s", w.Code, w.Body.String())
	}
	var out BookingSearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(out.Hits) != 1 || out.Hits[0].Booking.Email != "ana@example.com" {
		t.Fatalf("unexpected hits: %#v", out.Hits)
	}
	if out.Hits[0].Score <= 0 {
		t.Fatalf("score should be positive: %v", out.Hits[0].Score)
	}

	// Phone hit regardless of formatting.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/admin/bookings/search?q=050-111-22-33", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("phone search -> %d", w.Code)
	}
	out = BookingSearchResponse{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(out.Hits) != 1 {
		t.Fatalf("phone query should hit, got %#v", out.Hits)
	}

	// No hits is an empty list, not an error.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/admin/bookings/search?q=nobody", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("no-hit search -> %d", w.Code)
	}
	out = BookingSearchResponse{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(out.Hits) != 0 {
		t.Fatalf("expected no hits, got %#v", out.Hits)
	}
}

func TestBookingActions_BadUUID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newStubHandlers()
	r := gin.New()
	r.GET("/admin/bookings/:id", h.GetBooking)
	r.POST("/admin/bookings/:id/confirm", h.ConfirmBooking)
	r.POST("/admin/bookings/:id/reject", h.RejectBooking)
	r.DELETE("/admin/bookings/:id", h.DeleteBooking)

	cases := []struct{ method, path string }{
		{http.MethodGet, "/admin/bookings/not-uuid"},
		{http.MethodPost, "/admin/bookings/not-uuid/confirm"},
		{http.MethodPost, "/admin/bookings/not-uuid/reject"},
		{http.MethodDelete, "/admin/bookings/not-uuid"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s %s -> %d", tc.method, tc.path, w.Code)
		}
	}
}

func TestConfirmBooking_ReservesAndConflicts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newHandlersDB(t)
	h := newRealHandlers(db)
	r := gin.New()
	r.POST("/admin/bookings/:id/confirm", h.ConfirmBooking)

	date := futureDate(10)
	first := seedPendingBooking(t, db, date, "10:00")
	rival := seedPendingBooking(t, db, date, "10:00")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/bookings/"+first.ID+"/confirm", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("confirm -> %d body=%s", w.Code, w.Body.String())
	}
	var out domain.Booking
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.Status != domain.StatusConfirmed {
		t.Fatalf("status = %q", out.Status)
	}

	// The rival wants the same cell and must lose with a conflict.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/bookings/"+rival.ID+"/confirm", nil))
	if w.Code != http.StatusConflict {
		t.Fatalf("rival confirm -> %d body=%s", w.Code, w.Body.String())
	}
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("json: %v", err)
	}
	if er.Code != ErrCodeSlotUnavailable {
		t.Fatalf("code = %q", er.Code)
	}
}

func TestRejectAndDeleteBooking(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newHandlersDB(t)
	h := newRealHandlers(db)
	r := gin.New()
	r.GET("/admin/bookings/:id", h.GetBooking)
	r.POST("/admin/bookings/:id/reject", h.RejectBooking)
	r.DELETE("/admin/bookings/:id", h.DeleteBooking)

	b := seedPendingBooking(t, db, futureDate(10), "12:00")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/bookings/"+b.ID+"/reject", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("reject -> %d body=%s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/admin/bookings/"+b.ID, nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete -> %d body=%s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/bookings/"+b.ID, nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete -> %d", w.Code)
	}

	// Deleting again reports not found.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/admin/bookings/"+b.ID, nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete -> %d", w.Code)
	}
}

// ---------- schedule and slots ----------

func TestSetDaySchedule(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newHandlersDB(t)
	h := newRealHandlers(db)
	r := gin.New()
	r.PUT("/admin/schedule/:date", h.SetDaySchedule)

	date := futureDate(12)
	body := `{"holiday": true, "reason": "public holiday"}`
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/admin/schedule/"+date, bytes.NewBufferString(body)))
	if w.Code != http.StatusOK {
		t.Fatalf("set schedule -> %d body=%s", w.Code, w.Body.String())
	}
	var out domain.DateSchedule
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.Date != date || !out.IsHoliday || out.Reason != "public holiday" {
		t.Fatalf("unexpected schedule: %#v", out)
	}

	// Bad date in path -> 400
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/admin/schedule/someday", bytes.NewBufferString(body)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad date -> %d", w.Code)
	}
}

func TestBlockAndUnblockSlot(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newHandlersDB(t)
	h := newRealHandlers(db)
	r := gin.New()
	r.POST("/admin/slots/block", h.BlockSlot)
	r.POST("/admin/slots/unblock", h.UnblockSlot)

	date := futureDate(12)
	block := fmt.Sprintf(`{"date": %q, "time": "14:00", "reason": "console repair"}`, date)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/slots/block", bytes.NewBufferString(block)))
	if w.Code != http.StatusOK {
		t.Fatalf("block -> %d body=%s", w.Code, w.Body.String())
	}
	var slot domain.TimeSlot
	if err := json.Unmarshal(w.Body.Bytes(), &slot); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !slot.IsBlocked || slot.Reason != "console repair" {
		t.Fatalf("unexpected slot: %#v", slot)
	}

	unblock := fmt.Sprintf(`{"date": %q, "time": "14:00"}`, date)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/slots/unblock", bytes.NewBufferString(unblock)))
	if w.Code != http.StatusNoContent {
		t.Fatalf("unblock -> %d body=%s", w.Code, w.Body.String())
	}

	// Off-grid time -> 400 with validation code
	bad := fmt.Sprintf(`{"date": %q, "time": "14:30"}`, date)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/slots/block", bytes.NewBufferString(bad)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("off-grid block -> %d", w.Code)
	}
}

// ---------- abuse control ----------

func TestListAbuseRecords(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newHandlersDB(t)
	h := newRealHandlers(db)
	r := gin.New()
	r.GET("/admin/abuse/records", h.ListAbuseRecords)

	ctx := context.Background()
	if _, err := repo.IncrementAbuseRecord(ctx, db, "203.0.113.7"); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	if err := repo.BlockIP(ctx, db, "203.0.113.8", "too many bookings"); err != nil {
		t.Fatalf("seed block: %v", err)
	}

	// All records
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/abuse/records", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("records -> %d body=%s", w.Code, w.Body.String())
	}
	var out AbuseRecordsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.Pagination.Total != 2 {
		t.Fatalf("total = %d", out.Pagination.Total)
	}

	// Blocked only
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/abuse/records?blocked=true", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("blocked records -> %d", w.Code)
	}
	out = AbuseRecordsResponse{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.Pagination.Total != 1 || len(out.Records) != 1 || out.Records[0].IP != "203.0.113.8" {
		t.Fatalf("unexpected blocked page: %#v", out)
	}
}

func TestListAttempts_ETag_And_KindFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newHandlersDB(t)
	h := newRealHandlers(db)
	r := gin.New()
	r.GET("/admin/abuse/attempts", h.ListAttempts)

	ctx := context.Background()
	for _, kind := range []domain.AttemptKind{domain.AttemptHoneypot, domain.AttemptRateLimit} {
		if _, err := repo.CreateAttempt(ctx, db, "203.0.113.7", "test-agent", kind, "test"); err != nil {
			t.Fatalf("seed attempt: %v", err)
		}
	}

	// Unknown kind -> 400
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/abuse/attempts?kind=bogus", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown kind -> %d", w.Code)
	}

	// Filtered page
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/abuse/attempts?kind=honeypot", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("attempts -> %d body=%s", w.Code, w.Body.String())
	}
	var out AttemptsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.Pagination.Total != 1 || len(out.Attempts) != 1 || out.Attempts[0].Kind != domain.AttemptHoneypot {
		t.Fatalf("unexpected attempts page: %#v", out)
	}

	// 304 path against the filtered ETag
	count, maxTS, err := repo.AttemptsStats(ctx, db, domain.AttemptHoneypot)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	var ts int64
	if maxTS != nil {
		ts = maxTS.Unix()
	}
	etag := fmt.Sprintf(`W/"attempts:%s:%d:%d"`, domain.AttemptHoneypot, count, ts)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/abuse/attempts?kind=honeypot", nil)
	req.Header.Set("If-None-Match", etag)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified {
		t.Fatalf("etag 304 -> %d", w.Code)
	}
}

func TestUnblockIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newHandlersDB(t)
	h := newRealHandlers(db)
	r := gin.New()
	r.POST("/admin/abuse/unblock", h.UnblockIP)

	ctx := context.Background()
	if err := repo.BlockIP(ctx, db, "203.0.113.9", "too many bookings"); err != nil {
		t.Fatalf("seed block: %v", err)
	}

	// Missing ip -> 400
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/abuse/unblock", bytes.NewBufferString(`{}`)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing ip -> %d", w.Code)
	}

	// Success -> 204
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/abuse/unblock",
		bytes.NewBufferString(`{"ip": "203.0.113.9"}`)))
	if w.Code != http.StatusNoContent {
		t.Fatalf("unblock -> %d body=%s", w.Code, w.Body.String())
	}

	rec, err := repo.GetAbuseRecord(ctx, db, "203.0.113.9")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.IsBlocked || rec.BookingCount != 0 {
		t.Fatalf("record not reset: %#v", rec)
	}

	// Unknown ip -> 404
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/abuse/unblock",
		bytes.NewBufferString(`{"ip": "198.51.100.1"}`)))
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown ip -> %d", w.Code)
	}
}
