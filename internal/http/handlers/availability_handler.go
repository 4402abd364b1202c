// Availability HTTP handlers.
//
// Public read endpoints for the studio calendar:
//   - GET /availability         (upcoming bookable dates)
//   - GET /availability/{date}  (hourly grid for one day)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// UpcomingDatesResponse wraps the rolling window of bookable dates.
type UpcomingDatesResponse struct {
	Dates []string `json:"dates"`
}

// UpcomingDates godoc
// @ID          upcomingDates
// @Summary     List upcoming bookable dates
// @Description Returns the weekday dates in the next booking window that are not closed by a schedule override. Served from cache when fresh.
// @Tags        Availability
// @Produce     json
//
// @Success     200  {object}  handlers.UpcomingDatesResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /availability [get]
func (h *Handlers) UpcomingDates(c *gin.Context) {
	dates, err := h.availSvc.UpcomingDates(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, UpcomingDatesResponse{Dates: dates})
}

// DayAvailability godoc
// @ID          dayAvailability
// @Summary     Get the hourly grid for one day
// @Description Renders every grid cell for the date as available, booked, or blocked. Closed days come back with open=false and all cells blocked; past dates come back empty.
// @Tags        Availability
// @Produce     json
//
// @Param       date  path  string  true  "Date (YYYY-MM-DD)"  example(2026-03-03)
//
// @Success     200  {object}  services.DayGrid
// @Failure     400  {object}  handlers.ErrorResponse  "Bad date"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /availability/{date} [get]
func (h *Handlers) DayAvailability(c *gin.Context) {
	grid, err := h.availSvc.DayGrid(c.Request.Context(), c.Param("date"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, grid)
}
