// Location HTTP handlers.
//
//   - GET  /location  (bounded-wait position with fallback)
//   - POST /location  (report a device fix from the UI shell)
package handlers

import (
	"math"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/campus-cafe-sync/internal/domain"
)

// LocationRequest is a device fix.
type LocationRequest struct {
	Lat *float64 `json:"lat" binding:"required" example:"52.2053"`
	Lng *float64 `json:"lng" binding:"required" example:"0.1218"`
}

func validCoordinates(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// GetLocation godoc
// @ID          getLocation
// @Summary     Current position
// @Description Waits briefly for a device fix, then falls back to the last known position and finally to the configured default. Never fails.
// @Tags        Location
// @Produce     json
// @Success     200  {object}  services.ResolvedLocation
// @Router      /location [get]
func (h *Handlers) GetLocation(c *gin.Context) {
	ok(c, http.StatusOK, h.location.Resolve(c.Request.Context()))
}

// ReportLocation godoc
// @ID          reportLocation
// @Summary     Report a device fix
// @Tags        Location
// @Accept      json
// @Param       body  body  handlers.LocationRequest  true  "WGS84 position"
// @Success     204   {string}  string "No Content"
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Router      /location [post]
func (h *Handlers) ReportLocation(c *gin.Context) {
	var req LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Lat == nil || req.Lng == nil || !validCoordinates(*req.Lat, *req.Lng) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "lat in [-90,90] and lng in [-180,180] required")
		return
	}
	if err := h.location.Report(c.Request.Context(), domain.Coordinates{Lat: *req.Lat, Lng: *req.Lng}); err != nil {
		serviceError(c, err)
		return
	}
	noContent(c)
}
