package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/campus-cafe-sync/internal/domain"
	"github.com/tbourn/campus-cafe-sync/internal/services"
)

func sessionRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/session/login", h.Login)
	r.POST("/session/register", h.Register)
	r.POST("/session/password-reset", h.RequestPasswordReset)
	r.PATCH("/session/profile", h.UpdateProfile)
	r.POST("/session/logout", h.Logout)
	r.DELETE("/session/account", h.DeleteAccount)
	r.GET("/session", func(c *gin.Context) {
		c.Set("session.profile", &domain.UserProfile{ID: "u9", FullName: "Ada"})
		h.GetSession(c)
	})
	return r
}

func TestLogin_BadInput_Success_Refused(t *testing.T) {
	sess := &stubSessions{state: services.StateValid}
	fav := &stubFavorites{}
	r := sessionRouter(newTestHandlers(Deps{Sessions: sess, Favorites: fav}))

	// Bad JSON / missing fields -> 400
	for _, body := range []string{"{bad", `{"username":"  ","password":"x"}`, `{"username":"a"}`} {
		if w := serve(r, http.MethodPost, "/session/login", body); w.Code != http.StatusBadRequest {
			t.Fatalf("%s -> %d", body, w.Code)
		}
	}

	// Success -> 200, favorites reset, no token in body, no-store
	var gotUser string
	sess.login = func(_ context.Context, u, _ string) (*domain.UserProfile, error) {
		gotUser = u
		return &domain.UserProfile{ID: "42", Email: u}, nil
	}
	w := serve(r, http.MethodPost, "/session/login", `{"username":" ada@campus.edu ","password":"pw"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}
	if gotUser != "ada@campus.edu" {
		t.Fatalf("username not trimmed: %q", gotUser)
	}
	if fav.resets != 1 {
		t.Fatalf("favorites not reset")
	}
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("missing no-store")
	}
	var resp SessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.State != "valid" || resp.Profile == nil || resp.Profile.ID != "42" {
		t.Fatalf("unexpected body: %+v", resp)
	}
	if strings.Contains(strings.ToLower(w.Body.String()), "token") {
		t.Fatalf("token leaked: %s", w.Body.String())
	}

	// Refused -> 401 login_failed
	sess.login = func(context.Context, string, string) (*domain.UserProfile, error) {
		return nil, services.ErrLoginFailed
	}
	w = serve(r, http.MethodPost, "/session/login", `{"username":"a","password":"b"}`)
	if w.Code != http.StatusUnauthorized || !strings.Contains(w.Body.String(), ErrCodeLoginFailed) {
		t.Fatalf("refused: %d %s", w.Code, w.Body.String())
	}
}

func TestRegister_ValidatesAndCreates(t *testing.T) {
	sess := &stubSessions{state: services.StateValid}
	fav := &stubFavorites{}
	r := sessionRouter(newTestHandlers(Deps{Sessions: sess, Favorites: fav}))

	bad := []string{
		`{"email":"nope","password":"longenough"}`,
		`{"email":"a@b.c","password":"short"}`,
		`{"password":"longenough"}`,
	}
	for _, body := range bad {
		if w := serve(r, http.MethodPost, "/session/register", body); w.Code != http.StatusBadRequest {
			t.Fatalf("%s -> %d", body, w.Code)
		}
	}

	var got domain.RegisterRequest
	sess.register = func(_ context.Context, req domain.RegisterRequest) (*domain.UserProfile, error) {
		got = req
		return &domain.UserProfile{ID: "7", Email: req.Email}, nil
	}
	w := serve(r, http.MethodPost, "/session/register", `{"email":"ada@campus.edu","password":"longenough","full_name":"  Ada  "}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", w.Code, w.Body.String())
	}
	if got.FullName != "Ada" || got.Email != "ada@campus.edu" {
		t.Fatalf("request not normalized: %+v", got)
	}
	if fav.resets != 1 {
		t.Fatalf("favorites not reset")
	}
}

func TestRequestPasswordReset(t *testing.T) {
	sess := &stubSessions{}
	r := sessionRouter(newTestHandlers(Deps{Sessions: sess}))

	if w := serve(r, http.MethodPost, "/session/password-reset", `{"email":"x"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad email -> %d", w.Code)
	}
	if w := serve(r, http.MethodPost, "/session/password-reset", `{"email":"ada@campus.edu"}`); w.Code != http.StatusAccepted {
		t.Fatalf("accepted -> %d", w.Code)
	}
	sess.reset = func(context.Context, string) error { return services.ErrRequestFailed }
	if w := serve(r, http.MethodPost, "/session/password-reset", `{"email":"ada@campus.edu"}`); w.Code != http.StatusBadGateway {
		t.Fatalf("upstream -> %d", w.Code)
	}
}

func TestGetSession_UsesStashedProfile(t *testing.T) {
	r := sessionRouter(newTestHandlers(Deps{Sessions: &stubSessions{state: services.StateValid}}))
	w := serve(r, http.MethodGet, "/session", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"id":"u9"`) || !strings.Contains(w.Body.String(), `"state":"valid"`) {
		t.Fatalf("session: %d %s", w.Code, w.Body.String())
	}
}

func TestUpdateProfile(t *testing.T) {
	sess := &stubSessions{}
	r := sessionRouter(newTestHandlers(Deps{Sessions: sess}))

	if w := serve(r, http.MethodPatch, "/session/profile", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("empty patch -> %d", w.Code)
	}

	var got domain.ProfileUpdate
	sess.update = func(_ context.Context, p domain.ProfileUpdate) (*domain.UserProfile, error) {
		got = p
		return &domain.UserProfile{ID: "u1", FullName: *p.FullName}, nil
	}
	w := serve(r, http.MethodPatch, "/session/profile", `{"full_name":"Ada King"}`)
	if w.Code != http.StatusOK || got.FullName == nil || *got.FullName != "Ada King" || got.PhotoURL != nil {
		t.Fatalf("patch: %d %s %+v", w.Code, w.Body.String(), got)
	}

	sess.update = func(context.Context, domain.ProfileUpdate) (*domain.UserProfile, error) {
		return nil, services.ErrUnauthenticated
	}
	if w := serve(r, http.MethodPatch, "/session/profile", `{"photo_url":"x"}`); w.Code != http.StatusUnauthorized {
		t.Fatalf("unauth -> %d", w.Code)
	}
}

func TestLogout_And_DeleteAccount(t *testing.T) {
	sess := &stubSessions{}
	fav := &stubFavorites{}
	r := sessionRouter(newTestHandlers(Deps{Sessions: sess, Favorites: fav}))

	if w := serve(r, http.MethodPost, "/session/logout", ""); w.Code != http.StatusNoContent {
		t.Fatalf("logout -> %d", w.Code)
	}
	if fav.resets != 1 {
		t.Fatalf("logout must reset favorites")
	}

	// Delete refused: session and mirror are kept.
	sess.del = func(context.Context) error { return services.ErrRequestFailed }
	if w := serve(r, http.MethodDelete, "/session/account", ""); w.Code != http.StatusBadGateway {
		t.Fatalf("delete refused -> %d", w.Code)
	}
	if fav.resets != 1 {
		t.Fatalf("failed delete must not reset favorites")
	}

	sess.del = nil
	if w := serve(r, http.MethodDelete, "/session/account", ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete -> %d", w.Code)
	}
	if fav.resets != 2 {
		t.Fatalf("delete must reset favorites")
	}

	sess.logout = func(context.Context) error { return errors.New("db locked") }
	if w := serve(r, http.MethodPost, "/session/logout", ""); w.Code != http.StatusInternalServerError {
		t.Fatalf("logout failure -> %d", w.Code)
	}
}

func Test_validEmail(t *testing.T) {
	for in, want := range map[string]bool{
		"ada@campus.edu":       true,
		" ada@campus.edu ":     true,
		"Ada <ada@campus.edu>": false,
		"nope":                 false,
		"":                     false,
	} {
		if got := validEmail(in); got != want {
			t.Fatalf("validEmail(%q)=%v", in, got)
		}
	}
}
