// Package handlers implements the local bridge's HTTP endpoints.
//
// Handlers are transport-thin: they validate input, call the sync services,
// and translate results and service errors into HTTP responses. Services are
// consumed through the narrow interfaces below so tests can substitute fakes.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/campus-cafe-sync/internal/api"
	"github.com/tbourn/campus-cafe-sync/internal/domain"
	"github.com/tbourn/campus-cafe-sync/internal/services"
	"github.com/tbourn/campus-cafe-sync/internal/utils"
)

//
// Service contracts
//

// SessionService is the session lifecycle consumed by the session endpoints.
type SessionService interface {
	Login(ctx context.Context, username, password string) (*domain.UserProfile, error)
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.UserProfile, error)
	RequestPasswordReset(ctx context.Context, email string) error
	UpdateProfile(ctx context.Context, patch domain.ProfileUpdate) (*domain.UserProfile, error)
	DeleteAccount(ctx context.Context) error
	Logout(ctx context.Context) error
	// AccessToken returns the stored token without validation; catalog
	// endpoints send it when present.
	AccessToken(ctx context.Context) (string, bool)
	State() services.SessionState
}

// Catalog is the remote café API used by the catalog endpoints.
type Catalog interface {
	Cafes(ctx context.Context, token string, page, size int) (domain.Page[domain.Cafe], error)
	Cafe(ctx context.Context, token, idOrSlug string) (domain.Cafe, error)
	Menu(ctx context.Context, token string, cafeID domain.ID) ([]domain.MenuItem, error)
	Events(ctx context.Context, token string, page, size int) (domain.Page[domain.Event], error)
}

// FavoritesService is the favorites mirror.
type FavoritesService interface {
	Sync(ctx context.Context, token string) (services.FavoritesSnapshot, error)
	Snapshot() services.FavoritesSnapshot
	Toggle(ctx context.Context, articleID, cafeID domain.ID, token string) (bool, error)
	ToggleCafe(ctx context.Context, cafeID domain.ID, token string) (bool, error)
	IsCafeFavorite(id domain.ID) bool
	Reset()
}

// CartService is the local cart.
type CartService interface {
	AddItem(ctx context.Context, item domain.CartItem) (string, error)
	RemoveItem(ctx context.Context, hash string) error
	SetQuantity(ctx context.Context, hash string, delta int) (int, error)
	Lines(ctx context.Context) ([]services.CartLineView, error)
	Clear(ctx context.Context) error
}

// LocationService resolves and records the device position.
type LocationService interface {
	Resolve(ctx context.Context) services.ResolvedLocation
	Report(ctx context.Context, c domain.Coordinates) error
}

// IdempotencyStore replays writes retried under the same Idempotency-Key.
type IdempotencyStore interface {
	Lookup(ctx context.Context, scope, key string) (*domain.IdempotencyRecord, bool, error)
	Remember(ctx context.Context, scope, key, result string, status int) error
}

//
// Handler wiring
//

// Deps carries the services behind the endpoints. Cache is concrete because
// typed page loading is a generic function over it.
type Deps struct {
	Sessions    SessionService
	Catalog     Catalog
	Cache       *services.CollectionCache
	Favorites   FavoritesService
	Cart        CartService
	Location    LocationService
	Idempotency IdempotencyStore

	// PageSize is the size requested for paginated collections.
	PageSize int
}

// Handlers groups the bridge endpoints.
type Handlers struct {
	sessions  SessionService
	catalog   Catalog
	cache     *services.CollectionCache
	favorites FavoritesService
	cart      CartService
	location  LocationService
	idem      IdempotencyStore
	pageSize  int
}

// DefaultPageSize is used when Deps.PageSize is not set.
const DefaultPageSize = 20

// New constructs Handlers bound to the given services.
func New(d Deps) *Handlers {
	size := d.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	return &Handlers{
		sessions:  d.Sessions,
		catalog:   d.Catalog,
		cache:     d.Cache,
		favorites: d.Favorites,
		cart:      d.Cart,
		location:  d.Location,
		idem:      d.Idempotency,
		pageSize:  size,
	}
}

//
// Helpers
//

// pageParam parses the page query parameter, defaulting to 1.
func pageParam(c *gin.Context) int {
	return utils.ParsePage(c.Query("page"))
}

// serviceError translates a service or client error into the error envelope.
func serviceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNoSession),
		errors.Is(err, services.ErrRefreshFailed),
		errors.Is(err, services.ErrUnauthenticated):
		fail(c, http.StatusUnauthorized, ErrCodeReauthenticate, "please sign in again")
	case errors.Is(err, services.ErrLoginFailed):
		fail(c, http.StatusUnauthorized, ErrCodeLoginFailed, "invalid credentials")
	case errors.Is(err, services.ErrInvalidItem):
		fail(c, http.StatusBadRequest, ErrCodeInvalidItem, "item needs an id and non-negative prices")
	case errors.Is(err, services.ErrLineNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "cart line not found")
	case errors.Is(err, api.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "resource not found")
	case errors.Is(err, services.ErrSuperseded):
		fail(c, http.StatusConflict, ErrCodeSuperseded, "a newer request replaced this one")
	case errors.Is(err, services.ErrRequestFailed), errors.Is(err, api.ErrMalformedResponse):
		fail(c, http.StatusBadGateway, ErrCodeRequestFailed, "could not reach the café service")
	case errors.Is(err, api.ErrUnauthorized):
		fail(c, http.StatusUnauthorized, ErrCodeReauthenticate, "please sign in again")
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
}

// remoteError maps a raw api.Client error: not-found and auth rejections keep
// their meaning, anything else is an upstream failure.
func remoteError(c *gin.Context, err error) {
	if errors.Is(err, api.ErrNotFound) || errors.Is(err, api.ErrUnauthorized) {
		serviceError(c, err)
		return
	}
	_ = c.Error(err)
	fail(c, http.StatusBadGateway, ErrCodeRequestFailed, "could not reach the café service")
}
