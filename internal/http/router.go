// Package httpapi wires the local bridge's HTTP transport (Gin) to the sync
// services, middleware, and route handlers. It centralizes cross-cutting
// concerns such as tracing, correlation IDs, logging/redaction, panic
// recovery, metrics, CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Tokens stay inside the bridge; routes that need one pass RequireSession
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/campus-cafe-sync/internal/api"
	"github.com/tbourn/campus-cafe-sync/internal/config"
	"github.com/tbourn/campus-cafe-sync/internal/docs"
	"github.com/tbourn/campus-cafe-sync/internal/domain"
	"github.com/tbourn/campus-cafe-sync/internal/http/handlers"
	"github.com/tbourn/campus-cafe-sync/internal/http/middleware"
	"github.com/tbourn/campus-cafe-sync/internal/repo"
	"github.com/tbourn/campus-cafe-sync/internal/services"
)

// kvRepoShim adapts the repository free functions to the services.KVRepo
// interface shared by the stores. This keeps services decoupled from the
// concrete repo package while reusing existing functions.
type kvRepoShim struct{}

// GetValue proxies repo.GetValue.
func (kvRepoShim) GetValue(ctx context.Context, db *gorm.DB, key string) (string, error) {
	return repo.GetValue(ctx, db, key)
}

// GetValues proxies repo.GetValues.
func (kvRepoShim) GetValues(ctx context.Context, db *gorm.DB, keys ...string) (map[string]string, error) {
	return repo.GetValues(ctx, db, keys...)
}

// PutValue proxies repo.PutValue.
func (kvRepoShim) PutValue(ctx context.Context, db *gorm.DB, key, value string) error {
	return repo.PutValue(ctx, db, key, value)
}

// PutValues proxies repo.PutValues (atomic multi-key write).
func (kvRepoShim) PutValues(ctx context.Context, db *gorm.DB, values map[string]string) error {
	return repo.PutValues(ctx, db, values)
}

// DeleteValues proxies repo.DeleteValues.
func (kvRepoShim) DeleteValues(ctx context.Context, db *gorm.DB, keys ...string) error {
	return repo.DeleteValues(ctx, db, keys...)
}

// ListKeys proxies repo.ListKeys.
func (kvRepoShim) ListKeys(ctx context.Context, db *gorm.DB, prefix string) ([]string, error) {
	return repo.ListKeys(ctx, db, prefix)
}

// Bridge exposes the services constructed by RegisterRoutes so the process
// can run background maintenance against the same instances.
type Bridge struct {
	Sessions    *services.SessionManager
	Cache       *services.CollectionCache
	Favorites   *services.FavoritesReconciler
	Cart        *services.CartStore
	Idempotency *services.IdempotencyStore
	Location    *services.LocationService
}

// NewBridge builds the sync services over db and the remote API client.
func NewBridge(db *gorm.DB, remote *api.Client, cfg config.Config) *Bridge {
	kv := kvRepoShim{}
	return &Bridge{
		Sessions:    services.NewSessionManager(services.NewCredentialStore(db, kv), remote),
		Cache:       services.NewCollectionCache(db, kv, cfg.CacheTTL),
		Favorites:   services.NewFavoritesReconciler(remote, cfg.FavoritesConcurrency),
		Cart:        services.NewCartStore(db, kv),
		Idempotency: services.NewIdempotencyStore(db, kv, 0),
		Location: &services.LocationService{
			DB:      db,
			Repo:    kv,
			Locator: services.NewPushLocator(),
			Timeout: cfg.LocationTimeout,
			Default: domain.Coordinates{Lat: cfg.DefaultLat, Lng: cfg.DefaultLng},
		},
	}
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and returns the services behind them. It configures observability
// (tracing, metrics), idempotency and rate limiting, CORS and security
// headers, health and metrics endpoints, and then mounts the bridge API under
// cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with token/PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per IP, bypass on replay)
//  9. CORS, security headers, gzip
func RegisterRoutes(r *gin.Engine, db *gorm.DB, remote *api.Client, cfg config.Config) *Bridge {
	b := NewBridge(db, remote, cfg)
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{middleware.HeaderIdempotencyKey},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		b.Idempotency.Exists,
	))

	// 8) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 9) CORS posture (the UI shell is usually a local origin)
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "If-None-Match", middleware.HeaderIdempotencyKey}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Warning"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.Register(cfg.APIBasePath)
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(handlers.Deps{
		Sessions:    b.Sessions,
		Catalog:     remote,
		Cache:       b.Cache,
		Favorites:   b.Favorites,
		Cart:        b.Cart,
		Location:    b.Location,
		Idempotency: b.Idempotency,
	})
	authed := middleware.RequireSession(b.Sessions)

	bridge := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Session
		bridge.POST("/session/login", h.Login)
		bridge.POST("/session/register", h.Register)
		bridge.POST("/session/password-reset", h.RequestPasswordReset)
		bridge.POST("/session/logout", h.Logout)
		bridge.GET("/session", authed, h.GetSession)
		bridge.PATCH("/session/profile", authed, h.UpdateProfile)
		bridge.DELETE("/session/account", authed, h.DeleteAccount)

		// Catalog (works signed out)
		bridge.GET("/events", h.ListEvents)
		bridge.GET("/cafes", h.ListCafes)
		bridge.GET("/cafes/:id", h.GetCafe)
		bridge.GET("/cafes/:id/menu", h.GetMenu)

		// Favorites
		fav := bridge.Group("/favorites", authed)
		fav.GET("", h.GetFavorites)
		fav.POST("/sync", h.SyncFavorites)
		fav.POST("/articles/toggle", h.ToggleArticleFavorite)
		fav.POST("/cafes/:id/toggle", h.ToggleCafeFavorite)

		// Cart (local)
		bridge.GET("/cart", h.GetCart)
		bridge.DELETE("/cart", h.ClearCart)
		bridge.POST("/cart/items", h.AddCartItem)
		bridge.PATCH("/cart/items/:hash", h.UpdateCartItem)
		bridge.DELETE("/cart/items/:hash", h.RemoveCartItem)

		// Location
		bridge.GET("/location", h.GetLocation)
		bridge.POST("/location", h.ReportLocation)
	}
	return b
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
