package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/campus-cafe-sync/internal/api"
	"github.com/tbourn/campus-cafe-sync/internal/domain"
	"github.com/tbourn/campus-cafe-sync/internal/services"
)

func catalogRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/events", h.ListEvents)
	r.GET("/cafes", h.ListCafes)
	r.GET("/cafes/:id", h.GetCafe)
	r.GET("/cafes/:id/menu", h.GetMenu)
	return r
}

func newTestCache(t *testing.T, now *time.Time) *services.CollectionCache {
	t.Helper()
	c := services.NewCollectionCache(newHandlersDB(t), testKV{}, time.Minute)
	c.Now = func() time.Time { return *now }
	return c
}

func TestListCafes_CachesAndServesStale(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := newTestCache(t, &now)

	calls := 0
	var fetchErr error
	var gotToken string
	cat := stubCatalog{cafes: func(_ context.Context, tok string, page, size int) (domain.Page[domain.Cafe], error) {
		calls++
		gotToken = tok
		if fetchErr != nil {
			return domain.Page[domain.Cafe]{}, fetchErr
		}
		return domain.Page[domain.Cafe]{Items: []domain.Cafe{{ID: "1", Slug: "blue"}}, Page: page, Size: size, Total: 1}, nil
	}}
	r := catalogRouter(newTestHandlers(Deps{Catalog: cat, Cache: cache, Sessions: &stubSessions{token: "tok"}, PageSize: 5}))

	// Miss -> fetch
	w := serve(r, http.MethodGet, "/cafes", "")
	if w.Code != http.StatusOK || calls != 1 || gotToken != "tok" {
		t.Fatalf("miss: %d calls=%d tok=%q", w.Code, calls, gotToken)
	}
	var first CafesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &first); err != nil {
		t.Fatalf("json: %v", err)
	}
	if first.Cached || len(first.Items) != 1 || first.Size != 5 {
		t.Fatalf("unexpected first page: %+v", first)
	}
	etag := w.Header().Get("ETag")
	if !strings.HasPrefix(etag, `W/"cafes:1:`) {
		t.Fatalf("etag=%q", etag)
	}

	// Fresh -> served from cache, same ETag
	w = serve(r, http.MethodGet, "/cafes", "")
	if calls != 1 || !strings.Contains(w.Body.String(), `"cached":true`) {
		t.Fatalf("hit: calls=%d body=%s", calls, w.Body.String())
	}
	if w.Header().Get("ETag") != etag {
		t.Fatalf("etag changed: %q vs %q", w.Header().Get("ETag"), etag)
	}

	// Conditional -> 304
	w = serve(r, http.MethodGet, "/cafes", "", "If-None-Match", etag)
	if w.Code != http.StatusNotModified {
		t.Fatalf("conditional -> %d", w.Code)
	}

	// Expired + failing -> stale copy with a Warning header
	now = now.Add(2 * time.Minute)
	fetchErr = errors.New("offline")
	w = serve(r, http.MethodGet, "/cafes", "")
	if w.Code != http.StatusOK || calls != 2 {
		t.Fatalf("stale: %d calls=%d", w.Code, calls)
	}
	if !strings.Contains(w.Body.String(), `"stale":true`) || w.Header().Get("Warning") == "" {
		t.Fatalf("stale not flagged: %s", w.Body.String())
	}

	// Another page with nothing cached -> 502
	w = serve(r, http.MethodGet, "/cafes?page=2", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("uncached failure -> %d", w.Code)
	}
}

func TestListEvents_SignedOutAndPaged(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := newTestCache(t, &now)

	var gotPage int
	var gotToken = "unset"
	cat := stubCatalog{events: func(_ context.Context, tok string, page, size int) (domain.Page[domain.Event], error) {
		gotPage, gotToken = page, tok
		return domain.Page[domain.Event]{Items: []domain.Event{{ID: "e1", Title: "Latte art"}}, Page: page, Size: size, Total: 9}, nil
	}}
	r := catalogRouter(newTestHandlers(Deps{Catalog: cat, Cache: cache}))

	w := serve(r, http.MethodGet, "/events?page=3", "")
	if w.Code != http.StatusOK || gotPage != 3 || gotToken != "" {
		t.Fatalf("events: %d page=%d tok=%q", w.Code, gotPage, gotToken)
	}
	var resp EventsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Page != 3 || resp.Total != 9 || len(resp.Items) != 1 || resp.Items[0].Title != "Latte art" {
		t.Fatalf("unexpected body: %+v", resp)
	}
}

func TestGetCafe_ResolvesCanonicalIDAndFavorite(t *testing.T) {
	cat := stubCatalog{cafe: func(_ context.Context, _ string, id string) (domain.Cafe, error) {
		if id == "blue-bottle" {
			return domain.Cafe{ID: "42", Slug: "blue-bottle", Name: "Blue Bottle"}, nil
		}
		return domain.Cafe{}, api.ErrNotFound
	}}
	fav := &stubFavorites{cafes: map[domain.ID]bool{"42": true}}
	r := catalogRouter(newTestHandlers(Deps{Catalog: cat, Favorites: fav}))

	w := serve(r, http.MethodGet, "/cafes/blue-bottle", "")
	if w.Code != http.StatusOK {
		t.Fatalf("cafe: %d %s", w.Code, w.Body.String())
	}
	var resp CafeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.ID != "42" || !resp.Favorite {
		t.Fatalf("unexpected: %+v", resp)
	}

	if w := serve(r, http.MethodGet, "/cafes/ghost", ""); w.Code != http.StatusNotFound {
		t.Fatalf("missing -> %d", w.Code)
	}
}

func TestGetMenu_UsesCanonicalID(t *testing.T) {
	var menuFor domain.ID
	cat := stubCatalog{
		cafe: func(context.Context, string, string) (domain.Cafe, error) {
			return domain.Cafe{ID: "42", Slug: "blue-bottle"}, nil
		},
		menu: func(_ context.Context, _ string, id domain.ID) ([]domain.MenuItem, error) {
			menuFor = id
			return nil, nil
		},
	}
	r := catalogRouter(newTestHandlers(Deps{Catalog: cat}))

	w := serve(r, http.MethodGet, "/cafes/blue-bottle/menu", "")
	if w.Code != http.StatusOK || menuFor != "42" {
		t.Fatalf("menu: %d for=%q", w.Code, menuFor)
	}
	if !strings.Contains(w.Body.String(), `"items":[]`) || !strings.Contains(w.Body.String(), `"cafe_id":"42"`) {
		t.Fatalf("body=%s", w.Body.String())
	}

	cat.menu = func(context.Context, string, domain.ID) ([]domain.MenuItem, error) {
		return nil, &api.StatusError{Endpoint: "menu", Code: http.StatusServiceUnavailable}
	}
	r = catalogRouter(newTestHandlers(Deps{Catalog: cat}))
	if w := serve(r, http.MethodGet, "/cafes/blue-bottle/menu", ""); w.Code != http.StatusBadGateway {
		t.Fatalf("upstream -> %d", w.Code)
	}
}

func TestGetMenu_QueryRanksItems(t *testing.T) {
	cat := stubCatalog{
		cafe: func(context.Context, string, string) (domain.Cafe, error) {
			return domain.Cafe{ID: "42"}, nil
		},
		menu: func(context.Context, string, domain.ID) ([]domain.MenuItem, error) {
			return []domain.MenuItem{
				{ID: "croissant", Name: "Croissant", Description: "Butter pastry"},
				{ID: "iced", Name: "Iced Latte", Description: "Espresso with cold milk"},
				{ID: "latte", Name: "Latte", Description: "Espresso with steamed milk"},
			}, nil
		},
	}
	r := catalogRouter(newTestHandlers(Deps{Catalog: cat}))

	w := serve(r, http.MethodGet, "/cafes/42/menu?q=latte", "")
	body := w.Body.String()
	if w.Code != http.StatusOK || strings.Contains(body, `"croissant"`) {
		t.Fatalf("search: %d %s", w.Code, body)
	}
	if strings.Index(body, `"id":"latte"`) > strings.Index(body, `"id":"iced"`) {
		t.Fatalf("ranking: %s", body)
	}

	w = serve(r, http.MethodGet, "/cafes/42/menu?q=tea", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"items":[]`) {
		t.Fatalf("no match: %d %s", w.Code, w.Body.String())
	}
}
