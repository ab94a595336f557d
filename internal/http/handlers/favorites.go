// Favorites HTTP handlers.
//
//   - GET  /favorites                      (mirrored snapshot, no request)
//   - POST /favorites/sync                 (reconcile with the server)
//   - POST /favorites/articles/toggle      (flip an article favorite)
//   - POST /favorites/cafes/{id}/toggle    (flip a café favorite)
//
// All routes require a session; the token comes from RequireSession.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/campus-cafe-sync/internal/api"
	"github.com/tbourn/campus-cafe-sync/internal/domain"
	"github.com/tbourn/campus-cafe-sync/internal/http/middleware"
	"github.com/tbourn/campus-cafe-sync/internal/services"
)

// ToggleArticleRequest names an article favorite. Both ids are required
// because article ids are only unique within their café.
type ToggleArticleRequest struct {
	ArticleID domain.ID `json:"article_id" swaggertype:"string" example:"17"`
	CafeID    domain.ID `json:"cafe_id"    swaggertype:"string" example:"42"`
}

// ToggleResponse reports the membership after a toggle.
type ToggleResponse struct {
	Favorite bool `json:"favorite" example:"true"`
}

// GetFavorites godoc
// @ID          getFavorites
// @Summary     Favorites snapshot
// @Description Returns the mirrored favorites with their resolved details. Does not contact the server.
// @Tags        Favorites
// @Produce     json
// @Success     200  {object}  services.FavoritesSnapshot
// @Failure     401  {object}  handlers.ErrorResponse  "Sign in again"
// @Router      /favorites [get]
func (h *Handlers) GetFavorites(c *gin.Context) {
	ok(c, http.StatusOK, h.favorites.Snapshot())
}

// SyncFavorites godoc
// @ID          syncFavorites
// @Summary     Reconcile favorites
// @Description Fetches both favorites sets and re-fetches details only for the set that changed.
// @Tags        Favorites
// @Produce     json
// @Success     200  {object}  services.FavoritesSnapshot
// @Failure     401  {object}  handlers.ErrorResponse  "Sign in again"
// @Failure     502  {object}  handlers.ErrorResponse  "Café service unreachable"
// @Router      /favorites/sync [post]
func (h *Handlers) SyncFavorites(c *gin.Context) {
	snap, err := h.favorites.Sync(c.Request.Context(), middleware.AccessTokenFrom(c))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, snap)
}

// ToggleArticleFavorite godoc
// @ID          toggleArticleFavorite
// @Summary     Toggle an article favorite
// @Description Flips membership on the server; the local mirror changes only after confirmation.
// @Tags        Favorites
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.ToggleArticleRequest  true  "Article and café ids"
// @Success     200   {object}  handlers.ToggleResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse  "Sign in again"
// @Failure     502   {object}  handlers.ErrorResponse  "Café service unreachable"
// @Router      /favorites/articles/toggle [post]
func (h *Handlers) ToggleArticleFavorite(c *gin.Context) {
	var req ToggleArticleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ArticleID.Empty() || req.CafeID.Empty() {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "article_id and cafe_id required")
		return
	}
	on, err := h.favorites.Toggle(c.Request.Context(), req.ArticleID, req.CafeID, middleware.AccessTokenFrom(c))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, ToggleResponse{Favorite: on})
}

// ToggleCafeFavorite godoc
// @ID          toggleCafeFavorite
// @Summary     Toggle a café favorite
// @Description The path id may be a slug; the canonical id is resolved from the café detail first.
// @Tags        Favorites
// @Produce     json
// @Param       id   path      string  true  "Café id or slug"  example(42)
// @Success     200  {object}  handlers.ToggleResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Sign in again"
// @Failure     404  {object}  handlers.ErrorResponse  "Café not found"
// @Failure     502  {object}  handlers.ErrorResponse  "Café service unreachable"
// @Router      /favorites/cafes/{id}/toggle [post]
func (h *Handlers) ToggleCafeFavorite(c *gin.Context) {
	ctx := c.Request.Context()
	token := middleware.AccessTokenFrom(c)
	routeID := strings.TrimSpace(c.Param("id"))

	// Without the detail the route id is used as-is.
	var detail *domain.Cafe
	cafe, err := h.catalog.Cafe(ctx, token, routeID)
	switch {
	case err == nil:
		detail = &cafe
	case errors.Is(err, api.ErrNotFound):
		remoteError(c, err)
		return
	default:
		middleware.LoggerFrom(c).Warn().Err(err).Str("cafe", routeID).Msg("café detail unavailable; toggling by route id")
	}

	on, err := h.favorites.ToggleCafe(ctx, services.ResolveCafeID(routeID, detail), token)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, ToggleResponse{Favorite: on})
}
