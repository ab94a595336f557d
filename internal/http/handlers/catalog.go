// Catalog HTTP handlers.
//
//   - GET /events          (paginated, cached, weak ETag)
//   - GET /cafes           (paginated, cached, weak ETag)
//   - GET /cafes/{id}      (detail by id or slug)
//   - GET /cafes/{id}/menu (menu items keyed by the canonical café id, ?q= ranks them)
//
// Collections go through the collection cache: a fresh page is served
// without a request, and a failed refresh serves the previous page marked
// stale. The stored access token is sent when present; catalog endpoints work
// signed out.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/campus-cafe-sync/internal/domain"
	"github.com/tbourn/campus-cafe-sync/internal/http/middleware"
	"github.com/tbourn/campus-cafe-sync/internal/search"
	"github.com/tbourn/campus-cafe-sync/internal/services"
)

//
// DTOs
//

// CacheInfo describes where a collection page came from.
type CacheInfo struct {
	// Cached is true when the page was served from the local cache.
	Cached bool `json:"cached"`
	// Stale is true when a refresh failed and an older page was served.
	Stale     bool      `json:"stale"`
	FetchedAt time.Time `json:"fetched_at"`
}

// EventsResponse is a page of the events feed.
type EventsResponse struct {
	Items []domain.Event `json:"items"`
	Page  int            `json:"page"`
	Size  int            `json:"size"`
	Total int            `json:"total"`
	CacheInfo
}

// CafesResponse is a page of the café directory.
type CafesResponse struct {
	Items []domain.Cafe `json:"items"`
	Page  int           `json:"page"`
	Size  int           `json:"size"`
	Total int           `json:"total"`
	CacheInfo
}

// CafeResponse is a café detail with the caller's favorite flag.
type CafeResponse struct {
	domain.Cafe
	Favorite bool `json:"favorite"`
}

// MenuResponse lists a café's menu under its canonical id.
type MenuResponse struct {
	CafeID domain.ID         `json:"cafe_id"`
	Items  []domain.MenuItem `json:"items"`
}

//
// Helpers
//

func (h *Handlers) optionalToken(ctx context.Context) string {
	tok, _ := h.sessions.AccessToken(ctx)
	return tok
}

// notModified sets a weak ETag for a cached page and reports whether the
// client already holds it.
func notModified(c *gin.Context, kind services.Resource, page int, res services.CacheResult) bool {
	if res.FetchedAt.IsZero() {
		return false
	}
	etag := fmt.Sprintf(`W/"%s:%d:%d"`, kind, page, res.FetchedAt.UnixNano())
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}

func cacheInfo(c *gin.Context, res services.CacheResult) CacheInfo {
	if res.Stale {
		c.Header("Warning", `110 - "Response is Stale"`)
		middleware.LoggerFrom(c).Warn().Err(res.FetchErr).Msg("serving stale page")
	}
	return CacheInfo{Cached: res.Cached, Stale: res.Stale, FetchedAt: res.FetchedAt}
}

//
// Handlers
//

// ListEvents godoc
// @ID          listEvents
// @Summary     List events
// @Description Returns a page of the events feed from the local cache when fresh. Supports weak ETag via If-None-Match.
// @Tags        Catalog
// @Produce     json
// @Param       page           query   int     false  "Page number"  minimum(1) default(1)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Success     200  {object}  handlers.EventsResponse
// @Success     304  {string}  string "Not Modified"
// @Failure     409  {object}  handlers.ErrorResponse  "Superseded by a newer request"
// @Failure     502  {object}  handlers.ErrorResponse  "Café service unreachable and nothing cached"
// @Router      /events [get]
func (h *Handlers) ListEvents(c *gin.Context) {
	ctx := c.Request.Context()
	page := pageParam(c)
	token := h.optionalToken(ctx)

	p, res, err := services.LoadPage(ctx, h.cache, services.ResourceEvents, page,
		func(ctx context.Context) (domain.Page[domain.Event], error) {
			return h.catalog.Events(ctx, token, page, h.pageSize)
		})
	if err != nil {
		serviceError(c, err)
		return
	}
	if notModified(c, services.ResourceEvents, page, res) {
		return
	}
	ok(c, http.StatusOK, EventsResponse{Items: p.Items, Page: page, Size: p.Size, Total: p.Total, CacheInfo: cacheInfo(c, res)})
}

// ListCafes godoc
// @ID          listCafes
// @Summary     List cafés
// @Description Returns a page of the café directory from the local cache when fresh. Supports weak ETag via If-None-Match.
// @Tags        Catalog
// @Produce     json
// @Param       page           query   int     false  "Page number"  minimum(1) default(1)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Success     200  {object}  handlers.CafesResponse
// @Success     304  {string}  string "Not Modified"
// @Failure     409  {object}  handlers.ErrorResponse  "Superseded by a newer request"
// @Failure     502  {object}  handlers.ErrorResponse  "Café service unreachable and nothing cached"
// @Router      /cafes [get]
func (h *Handlers) ListCafes(c *gin.Context) {
	ctx := c.Request.Context()
	page := pageParam(c)
	token := h.optionalToken(ctx)

	p, res, err := services.LoadPage(ctx, h.cache, services.ResourceCafes, page,
		func(ctx context.Context) (domain.Page[domain.Cafe], error) {
			return h.catalog.Cafes(ctx, token, page, h.pageSize)
		})
	if err != nil {
		serviceError(c, err)
		return
	}
	if notModified(c, services.ResourceCafes, page, res) {
		return
	}
	ok(c, http.StatusOK, CafesResponse{Items: p.Items, Page: page, Size: p.Size, Total: p.Total, CacheInfo: cacheInfo(c, res)})
}

// GetCafe godoc
// @ID          getCafe
// @Summary     Café detail
// @Tags        Catalog
// @Produce     json
// @Param       id   path      string  true  "Café id or slug"  example(blue-bottle)
// @Success     200  {object}  handlers.CafeResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Café not found"
// @Failure     502  {object}  handlers.ErrorResponse  "Café service unreachable"
// @Router      /cafes/{id} [get]
func (h *Handlers) GetCafe(c *gin.Context) {
	ctx := c.Request.Context()
	routeID := strings.TrimSpace(c.Param("id"))

	cafe, err := h.catalog.Cafe(ctx, h.optionalToken(ctx), routeID)
	if err != nil {
		remoteError(c, err)
		return
	}
	cafe.ID = services.ResolveCafeID(routeID, &cafe)
	ok(c, http.StatusOK, CafeResponse{Cafe: cafe, Favorite: h.favorites.IsCafeFavorite(cafe.ID)})
}

// GetMenu godoc
// @ID          getMenu
// @Summary     Café menu
// @Description Resolves the canonical café id first so every item carries the id the favorites endpoints expect.
// @Tags        Catalog
// @Produce     json
// @Param       id   path      string  true   "Café id or slug"  example(blue-bottle)
// @Param       q    query     string  false  "Free-text filter; results are ranked by relevance"
// @Success     200  {object}  handlers.MenuResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Café not found"
// @Failure     502  {object}  handlers.ErrorResponse  "Café service unreachable"
// @Router      /cafes/{id}/menu [get]
func (h *Handlers) GetMenu(c *gin.Context) {
	ctx := c.Request.Context()
	routeID := strings.TrimSpace(c.Param("id"))
	token := h.optionalToken(ctx)

	cafe, err := h.catalog.Cafe(ctx, token, routeID)
	if err != nil {
		remoteError(c, err)
		return
	}
	cafeID := services.ResolveCafeID(routeID, &cafe)

	items, err := h.catalog.Menu(ctx, token, cafeID)
	if err != nil {
		remoteError(c, err)
		return
	}
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		ranked := search.NewMenuIndex(items).TopK(q, len(items))
		items = make([]domain.MenuItem, len(ranked))
		for i, r := range ranked {
			items[i] = r.Item
		}
	}
	if items == nil {
		items = []domain.MenuItem{}
	}
	ok(c, http.StatusOK, MenuResponse{CafeID: cafeID, Items: items})
}
