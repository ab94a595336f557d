// Session HTTP handlers.
//
//   - POST   /session/login           (sign in)
//   - POST   /session/register        (create account and sign in)
//   - POST   /session/password-reset  (request reset e-mail)
//   - GET    /session                 (bootstrap: verify or refresh)
//   - PATCH  /session/profile         (update name/photo)
//   - POST   /session/logout          (wipe local credentials)
//   - DELETE /session/account         (delete remote account, then wipe)
//
// Tokens never leave the bridge: responses carry the profile and the session
// state only, and are marked no-store.
package handlers

import (
	"net/http"
	"net/mail"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/campus-cafe-sync/internal/domain"
	"github.com/tbourn/campus-cafe-sync/internal/http/middleware"
)

//
// DTOs
//

// LoginRequest is the JSON payload for signing in.
type LoginRequest struct {
	Username string `json:"username" binding:"required" example:"ada@campus.edu"`
	Password string `json:"password" binding:"required" example:"correct horse battery staple"`
}

// RegisterRequest is the JSON payload for creating an account.
type RegisterRequest struct {
	Email    string `json:"email"     binding:"required"       example:"ada@campus.edu"`
	Password string `json:"password"  binding:"required,min=8" example:"correct horse battery staple"`
	FullName string `json:"full_name" binding:"max=255"        example:"Ada Lovelace"`
}

// PasswordResetRequest is the JSON payload for requesting a reset e-mail.
type PasswordResetRequest struct {
	Email string `json:"email" binding:"required" example:"ada@campus.edu"`
}

// ProfileRequest patches the profile. Omitted fields are left unchanged.
type ProfileRequest struct {
	FullName *string `json:"full_name,omitempty" example:"Ada King"`
	PhotoURL *string `json:"photo_url,omitempty" example:"https://cdn.campus.edu/u/42.jpg"`
}

// SessionResponse describes the current session without exposing tokens.
type SessionResponse struct {
	State   string              `json:"state"             example:"valid"`
	Profile *domain.UserProfile `json:"profile,omitempty"`
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(strings.TrimSpace(s))
	return err == nil && addr.Address == strings.TrimSpace(s)
}

//
// Handlers
//

// Login godoc
// @ID          login
// @Summary     Sign in
// @Description Exchanges username and password for a session. Tokens are kept by the bridge.
// @Tags        Session
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LoginRequest  true  "Credentials"
// @Success     200   {object}  handlers.SessionResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse  "Invalid credentials"
// @Failure     502   {object}  handlers.ErrorResponse  "Café service unreachable"
// @Router      /session/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Username) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "username and password required")
		return
	}

	profile, err := h.sessions.Login(c.Request.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		serviceError(c, err)
		return
	}
	// A different user may have signed in.
	h.favorites.Reset()

	middleware.NoStore(c)
	ok(c, http.StatusOK, SessionResponse{State: h.sessions.State().String(), Profile: profile})
}

// Register godoc
// @ID          register
// @Summary     Create an account
// @Description Registers a new account and signs in.
// @Tags        Session
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.RegisterRequest  true  "Account"
// @Success     201   {object}  handlers.SessionResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse  "Registration refused"
// @Failure     502   {object}  handlers.ErrorResponse  "Café service unreachable"
// @Router      /session/register [post]
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil || !validEmail(req.Email) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "valid email and a password of at least 8 characters required")
		return
	}

	profile, err := h.sessions.Register(c.Request.Context(), domain.RegisterRequest{
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
		FullName: strings.TrimSpace(req.FullName),
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	h.favorites.Reset()

	middleware.NoStore(c)
	ok(c, http.StatusCreated, SessionResponse{State: h.sessions.State().String(), Profile: profile})
}

// RequestPasswordReset godoc
// @ID          requestPasswordReset
// @Summary     Request a password reset
// @Tags        Session
// @Accept      json
// @Param       body  body      handlers.PasswordResetRequest  true  "Account e-mail"
// @Success     202   {string}  string "Accepted"
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     502   {object}  handlers.ErrorResponse  "Café service unreachable"
// @Router      /session/password-reset [post]
func (h *Handlers) RequestPasswordReset(c *gin.Context) {
	var req PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil || !validEmail(req.Email) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "valid email required")
		return
	}
	if err := h.sessions.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		serviceError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// GetSession godoc
// @ID          getSession
// @Summary     Current session
// @Description Runs the session bootstrap (verify, refresh when needed) and returns the profile.
// @Tags        Session
// @Produce     json
// @Success     200  {object}  handlers.SessionResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Sign in again"
// @Router      /session [get]
func (h *Handlers) GetSession(c *gin.Context) {
	middleware.NoStore(c)
	ok(c, http.StatusOK, SessionResponse{
		State:   h.sessions.State().String(),
		Profile: middleware.ProfileFrom(c),
	})
}

// UpdateProfile godoc
// @ID          updateProfile
// @Summary     Update the profile
// @Tags        Session
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.ProfileRequest  true  "Fields to change"
// @Success     200   {object}  handlers.SessionResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse  "Sign in again"
// @Failure     502   {object}  handlers.ErrorResponse  "Café service unreachable"
// @Router      /session/profile [patch]
func (h *Handlers) UpdateProfile(c *gin.Context) {
	var req ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil || (req.FullName == nil && req.PhotoURL == nil) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "full_name or photo_url required")
		return
	}
	profile, err := h.sessions.UpdateProfile(c.Request.Context(), domain.ProfileUpdate{
		FullName: req.FullName,
		PhotoURL: req.PhotoURL,
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	middleware.NoStore(c)
	ok(c, http.StatusOK, SessionResponse{State: h.sessions.State().String(), Profile: profile})
}

// Logout godoc
// @ID          logout
// @Summary     Sign out
// @Description Wipes the local credentials and the favorites mirror. The cart is kept.
// @Tags        Session
// @Success     204  {string}  string "No Content"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /session/logout [post]
func (h *Handlers) Logout(c *gin.Context) {
	if err := h.sessions.Logout(c.Request.Context()); err != nil {
		serviceError(c, err)
		return
	}
	h.favorites.Reset()
	noContent(c)
}

// DeleteAccount godoc
// @ID          deleteAccount
// @Summary     Delete the account
// @Description Deletes the remote account, then signs out. The session is kept when the server does not confirm.
// @Tags        Session
// @Success     204  {string}  string "No Content"
// @Failure     401  {object}  handlers.ErrorResponse  "Sign in again"
// @Failure     502  {object}  handlers.ErrorResponse  "Café service unreachable"
// @Router      /session/account [delete]
func (h *Handlers) DeleteAccount(c *gin.Context) {
	if err := h.sessions.DeleteAccount(c.Request.Context()); err != nil {
		serviceError(c, err)
		return
	}
	h.favorites.Reset()
	noContent(c)
}
