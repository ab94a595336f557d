package handlers

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/campus-cafe-sync/internal/domain"
	"github.com/tbourn/campus-cafe-sync/internal/services"
)

func TestGetLocation_ReturnsResolved(t *testing.T) {
	gin.SetMode(gin.TestMode)
	loc := &stubLocation{resolved: services.ResolvedLocation{
		Coordinates: domain.Coordinates{Lat: 52.2, Lng: 0.12},
		Source:      services.LocationDefault,
	}}
	h := newTestHandlers(Deps{Location: loc})
	r := gin.New()
	r.GET("/location", h.GetLocation)

	w := serve(r, http.MethodGet, "/location", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"source":"default"`) || !strings.Contains(w.Body.String(), `"lat":52.2`) {
		t.Fatalf("location: %d %s", w.Code, w.Body.String())
	}
}

func TestReportLocation_Validates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	loc := &stubLocation{}
	h := newTestHandlers(Deps{Location: loc})
	r := gin.New()
	r.POST("/location", h.ReportLocation)

	for _, body := range []string{"{bad", `{"lat":1}`, `{"lat":91,"lng":0}`, `{"lat":0,"lng":-181}`} {
		if w := serve(r, http.MethodPost, "/location", body); w.Code != http.StatusBadRequest {
			t.Fatalf("%s -> %d", body, w.Code)
		}
	}

	// Zero is a valid coordinate.
	if w := serve(r, http.MethodPost, "/location", `{"lat":0,"lng":0}`); w.Code != http.StatusNoContent {
		t.Fatalf("origin -> %d", w.Code)
	}
	if w := serve(r, http.MethodPost, "/location", `{"lat":-33.9,"lng":151.2}`); w.Code != http.StatusNoContent {
		t.Fatalf("report -> %d", w.Code)
	}
	if len(loc.reported) != 2 || loc.reported[1].Lng != 151.2 {
		t.Fatalf("reported=%+v", loc.reported)
	}

	loc.err = errors.New("disk full")
	if w := serve(r, http.MethodPost, "/location", `{"lat":1,"lng":1}`); w.Code != http.StatusInternalServerError {
		t.Fatalf("store failure -> %d", w.Code)
	}
}
