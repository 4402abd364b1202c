package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/danovmusic/go-booking-backend/internal/domain"
	"github.com/danovmusic/go-booking-backend/internal/services"
)

// ---------- UpcomingDates ----------

func TestUpcomingDates_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	want := []string{"2026-03-03", "2026-03-04"}
	h := New(stubBookingSvc{}, stubAvailSvc{
		upcoming: func(context.Context) ([]string, error) { return want, nil },
	}, stubAbuseSvc{})
	r := gin.New()
	r.GET("/availability", h.UpcomingDates)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/availability", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("upcoming -> %d body=%s", w.Code, w.Body.String())
	}
	var out UpcomingDatesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(out.Dates) != 2 || out.Dates[0] != want[0] || out.Dates[1] != want[1] {
		t.Fatalf("dates = %v", out.Dates)
	}
}

func TestUpcomingDates_ServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := New(stubBookingSvc{}, stubAvailSvc{
		upcoming: func(context.Context) ([]string, error) { return nil, gorm.ErrInvalidField },
	}, stubAbuseSvc{})
	r := gin.New()
	r.GET("/availability", h.UpcomingDates)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/availability", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500; got %d", w.Code)
	}
}

// ---------- DayAvailability ----------

func TestDayAvailability_Success_FullGrid(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newHandlersDB(t)
	h := newRealHandlers(db)
	r := gin.New()
	r.GET("/availability/:date", h.DayAvailability)

	date := futureDate(10)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/availability/"+date, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("grid -> %d body=%s", w.Code, w.Body.String())
	}
	var out services.DayGrid
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !out.Open || out.Date != date {
		t.Fatalf("unexpected grid header: %#v", out)
	}
	if len(out.Slots) != domain.SlotsPerDay {
		t.Fatalf("slots = %d; want %d", len(out.Slots), domain.SlotsPerDay)
	}
	if out.Slots[0].Time != "09:00" || out.Slots[len(out.Slots)-1].Time != "21:00" {
		t.Fatalf("grid edges: %s..%s", out.Slots[0].Time, out.Slots[len(out.Slots)-1].Time)
	}
}

func TestDayAvailability_BadDate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newHandlersDB(t)
	h := newRealHandlers(db)
	r := gin.New()
	r.GET("/availability/:date", h.DayAvailability)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/availability/yesterday", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad date -> %d", w.Code)
	}
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("json: %v", err)
	}
	if er.Code != ErrCodeValidation {
		t.Fatalf("code = %q", er.Code)
	}
}
