// Package middleware contains the Gin middleware shared by the local bridge.
//
// This file implements RequireSession, the gate in front of every route that
// needs the user's access token. It runs the session bootstrap (verify,
// refresh if needed) and stashes the resulting token and profile for the
// handler. When the session cannot be recovered the caller is told to sign in
// again.
package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/campus-cafe-sync/internal/domain"
	"github.com/tbourn/campus-cafe-sync/internal/services"
)

const (
	ctxKeyAccessToken = "session.token"
	ctxKeyProfile     = "session.profile"
	ctxKeyUserID      = "userID"
)

// SessionEnsurer is the part of services.SessionManager used by RequireSession.
type SessionEnsurer interface {
	EnsureSession(ctx context.Context) (string, *domain.UserProfile, error)
}

// RequireSession answers 401 {"code":"reauthenticate"} when no session
// exists or the refresh failed, and 502 {"code":"request_failed"} for any
// other bootstrap failure. On success the access token and profile are
// available through AccessTokenFrom and ProfileFrom.
func RequireSession(s SessionEnsurer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, profile, err := s.EnsureSession(c.Request.Context())
		if err != nil {
			status, code, msg := http.StatusBadGateway, "request_failed", "could not reach the café service"
			if errors.Is(err, services.ErrNoSession) || errors.Is(err, services.ErrRefreshFailed) {
				status, code, msg = http.StatusUnauthorized, "reauthenticate", "please sign in again"
			}
			LoggerFrom(c).Info().Err(err).Str("code", code).Msg("session required")
			c.AbortWithStatusJSON(status, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       code,
				"message":    msg,
			})
			return
		}

		c.Set(ctxKeyAccessToken, token)
		if profile != nil {
			c.Set(ctxKeyProfile, profile)
			if !profile.ID.Empty() {
				c.Set(ctxKeyUserID, profile.ID.String())
			}
		}
		c.Next()
	}
}

// AccessTokenFrom returns the access token stashed by RequireSession.
func AccessTokenFrom(c *gin.Context) string {
	v, _ := c.Get(ctxKeyAccessToken)
	return asString(v)
}

// ProfileFrom returns the profile stashed by RequireSession, if any.
func ProfileFrom(c *gin.Context) *domain.UserProfile {
	v, _ := c.Get(ctxKeyProfile)
	p, _ := v.(*domain.UserProfile)
	return p
}

// UserIDFrom returns the signed-in user's id, or "" when unknown.
func UserIDFrom(c *gin.Context) string {
	v, _ := c.Get(ctxKeyUserID)
	return asString(v)
}
