// Package services – SessionManager
//
// This file implements the token lifecycle: reading the stored access token,
// verifying it against the remote API, silently refreshing it, and wiping the
// credential record when the session cannot be recovered.
//
// Verification and refresh fail asymmetrically. A failed verification (an
// explicit rejection or a network error alike) only marks the session Expired
// and leads to a refresh attempt. A failed refresh is fatal: the record is
// wiped and ErrRefreshFailed is returned, because a stale refresh token cannot
// self-heal.
//
// Concurrent refreshes for the same refresh token share a single network call.
// The shared call runs detached from the first caller's cancellation so that
// a caller abandoning its request does not fail every other waiter.
//
// Observability: public methods are OpenTelemetry-instrumented and refresh
// outcomes are counted in session_refresh_total.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/tbourn/campus-cafe-sync/internal/api"
	"github.com/tbourn/campus-cafe-sync/internal/domain"
)

// AuthAPI is the subset of the remote API used by the SessionManager.
type AuthAPI interface {
	Login(ctx context.Context, username, password string) (domain.TokenPair, error)
	Register(ctx context.Context, req domain.RegisterRequest) (domain.TokenPair, error)
	ResetPassword(ctx context.Context, email string) error
	Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error)
	Me(ctx context.Context, token string) (domain.UserProfile, error)
	UpdateMe(ctx context.Context, token string, patch domain.ProfileUpdate) (domain.UserProfile, error)
	DeleteMe(ctx context.Context, token string) error
}

// SessionState is the lifecycle state of the current session.
type SessionState int

const (
	// StateNoSession means no usable credentials are known.
	StateNoSession SessionState = iota
	// StateValid means the access token was last confirmed by the server.
	StateValid
	// StateExpired means the server rejected the access token.
	StateExpired
	// StateRefreshing means a refresh call is in flight.
	StateRefreshing
)

// String returns the lowercase state name.
func (s SessionState) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateExpired:
		return "expired"
	case StateRefreshing:
		return "refreshing"
	default:
		return "no_session"
	}
}

// SessionManager owns the Credential Record and the token lifecycle.
type SessionManager struct {
	Store *CredentialStore
	API   AuthAPI

	// Now is the clock used for JWT expiry checks.
	Now func() time.Time

	flight singleflight.Group

	mu    sync.Mutex
	state SessionState
}

// NewSessionManager constructs a SessionManager in StateNoSession. The state
// becomes meaningful after the first login, verification, or EnsureSession.
func NewSessionManager(store *CredentialStore, a AuthAPI) *SessionManager {
	return &SessionManager{
		Store: store,
		API:   a,
		Now:   time.Now,
		state: StateNoSession,
	}
}

// State returns the last observed session state.
func (m *SessionManager) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *SessionManager) setState(s SessionState) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()
	if prev != s {
		log.Debug().Str("from", prev.String()).Str("state", s.String()).Msg("session state")
	}
}

// AccessToken returns the stored access token. It performs no validation and
// has no side effects; a storage failure reads as absent.
func (m *SessionManager) AccessToken(ctx context.Context) (string, bool) {
	tok, ok, err := m.Store.AccessToken(ctx)
	if err != nil {
		log.Error().Err(err).Msg("read access token")
		return "", false
	}
	return tok, ok
}

// RefreshToken returns the stored refresh token. A storage failure reads as absent.
func (m *SessionManager) RefreshToken(ctx context.Context) (string, bool) {
	tok, ok, err := m.Store.RefreshToken(ctx)
	if err != nil {
		log.Error().Err(err).Msg("read refresh token")
		return "", false
	}
	return tok, ok
}

// ValidAccessToken returns the stored access token or ErrNoSession. Callers
// needing confirmed validity should additionally call VerifySession.
func (m *SessionManager) ValidAccessToken(ctx context.Context) (string, error) {
	tok, ok := m.AccessToken(ctx)
	if !ok {
		return "", ErrNoSession
	}
	return tok, nil
}

// VerifySession makes a lightweight authenticated request with token. Any
// failure, including a network error, reports the session as invalid rather
// than returning an error. On success the profile fields are persisted.
func (m *SessionManager) VerifySession(ctx context.Context, token string) (*domain.UserProfile, bool) {
	tr := otel.Tracer("services/SessionManager")
	ctx, span := tr.Start(ctx, "VerifySession")
	defer span.End()

	p, err := m.verify(ctx, token)
	if err != nil {
		span.SetAttributes(attribute.Bool("session.valid", false))
		log.Info().Err(err).Msg("session verification failed")
		return nil, false
	}
	span.SetAttributes(attribute.Bool("session.valid", true))
	return p, true
}

// verify fetches the profile for token. Every failure is reported as
// ErrExpired, wrapping the cause, and moves the session to StateExpired.
func (m *SessionManager) verify(ctx context.Context, token string) (*domain.UserProfile, error) {
	p, err := m.API.Me(ctx, token)
	if err != nil {
		m.setState(StateExpired)
		return nil, fmt.Errorf("%w: %v", ErrExpired, err)
	}
	if err := m.Store.SaveProfile(ctx, p); err != nil {
		log.Error().Err(err).Msg("persist profile")
	}
	m.setState(StateValid)
	return &p, nil
}

// Refresh exchanges refreshToken for a new access token. Concurrent calls for
// the same refresh token are coalesced into one network request and observe
// the same token or the same failure. Any failure wipes the credential record
// and returns ErrRefreshFailed.
func (m *SessionManager) Refresh(ctx context.Context, refreshToken string) (string, error) {
	tr := otel.Tracer("services/SessionManager")
	ctx, span := tr.Start(ctx, "Refresh")
	defer span.End()

	m.setState(StateRefreshing)
	ch := m.flight.DoChan(refreshToken, func() (any, error) {
		return m.refresh(context.WithoutCancel(ctx), refreshToken)
	})
	select {
	case res := <-ch:
		span.SetAttributes(attribute.Bool("refresh.shared", res.Shared))
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// refresh performs the single shared refresh attempt.
func (m *SessionManager) refresh(ctx context.Context, refreshToken string) (string, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return "", m.failRefresh(ctx, errors.New("no refresh token"))
	}

	// A caller holding an already rotated token joins the outcome of the
	// refresh that rotated it instead of replaying a consumed token.
	stored, ok, err := m.Store.RefreshToken(ctx)
	if err != nil {
		return "", m.failRefresh(ctx, err)
	}
	if !ok {
		return "", m.failRefresh(ctx, errors.New("session already cleared"))
	}
	if stored != refreshToken {
		if access, ok, err := m.Store.AccessToken(ctx); err == nil && ok {
			sessionRefresh.WithLabelValues("rotated").Inc()
			m.setState(StateValid)
			return access, nil
		}
	}

	pair, err := m.API.Refresh(ctx, refreshToken)
	if err != nil {
		return "", m.failRefresh(ctx, err)
	}
	if err := m.Store.SaveTokens(ctx, pair); err != nil {
		return "", m.failRefresh(ctx, err)
	}
	sessionRefresh.WithLabelValues("success").Inc()
	m.setState(StateValid)
	return pair.AccessToken, nil
}

func (m *SessionManager) failRefresh(ctx context.Context, cause error) error {
	sessionRefresh.WithLabelValues("failure").Inc()
	log.Warn().Err(cause).Msg("token refresh failed; signing out")
	if err := m.Logout(ctx); err != nil {
		log.Error().Err(err).Msg("wipe credentials after refresh failure")
	}
	return fmt.Errorf("%w: %v", ErrRefreshFailed, cause)
}

// Logout erases the entire credential record. It is idempotent.
func (m *SessionManager) Logout(ctx context.Context) error {
	err := m.Store.Wipe(ctx)
	m.setState(StateNoSession)
	return err
}

// EnsureSession runs the strict session sequence: read the access token, skip
// verification when its JWT exp has already passed, verify, refresh on an
// invalid result, and sign out when refresh fails. It returns the usable
// access token with the best known profile, or ErrNoSession/ErrRefreshFailed.
func (m *SessionManager) EnsureSession(ctx context.Context) (string, *domain.UserProfile, error) {
	tr := otel.Tracer("services/SessionManager")
	ctx, span := tr.Start(ctx, "EnsureSession")
	defer span.End()

	token, ok := m.AccessToken(ctx)
	if !ok {
		m.setState(StateNoSession)
		return "", nil, ErrNoSession
	}

	if TokenExpired(token, m.Now()) {
		log.Debug().Msg("access token past exp; skipping verification")
		m.setState(StateExpired)
	} else if p, ok := m.VerifySession(ctx, token); ok {
		return token, p, nil
	}

	refreshToken, _ := m.RefreshToken(ctx)
	fresh, err := m.Refresh(ctx, refreshToken)
	if err != nil {
		return "", nil, err
	}
	return fresh, m.storedProfile(ctx), nil
}

// storedProfile builds a profile from the persisted derived fields.
func (m *SessionManager) storedProfile(ctx context.Context) *domain.UserProfile {
	cred, err := m.Store.Load(ctx)
	if err != nil {
		return nil
	}
	return &domain.UserProfile{FullName: cred.UserFullName, PhotoURL: cred.UserPhotoURL}
}

// TokenExpired reports whether token is a JWT whose exp claim is at or before
// now. The signature is not verified. Opaque tokens and tokens without exp are
// never considered expired locally; the server remains the authority.
func TokenExpired(token string, now time.Time) bool {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !now.Before(claims.ExpiresAt.Time)
}

// Login performs the password grant, loads the profile, and persists a fresh
// credential record. Rejected credentials yield ErrLoginFailed.
func (m *SessionManager) Login(ctx context.Context, username, password string) (*domain.UserProfile, error) {
	tr := otel.Tracer("services/SessionManager")
	ctx, span := tr.Start(ctx, "Login")
	defer span.End()

	pair, err := m.API.Login(ctx, username, password)
	if err != nil {
		return nil, authFailure(err)
	}
	return m.establish(ctx, pair)
}

// Register creates an account and signs in with the returned tokens.
func (m *SessionManager) Register(ctx context.Context, req domain.RegisterRequest) (*domain.UserProfile, error) {
	tr := otel.Tracer("services/SessionManager")
	ctx, span := tr.Start(ctx, "Register")
	defer span.End()

	pair, err := m.API.Register(ctx, req)
	if err != nil {
		return nil, authFailure(err)
	}
	return m.establish(ctx, pair)
}

func (m *SessionManager) establish(ctx context.Context, pair domain.TokenPair) (*domain.UserProfile, error) {
	var profile *domain.UserProfile
	if p, err := m.API.Me(ctx, pair.AccessToken); err == nil {
		profile = &p
	} else {
		log.Warn().Err(err).Msg("load profile after sign-in")
	}
	if err := m.Store.SaveLogin(ctx, pair, profile); err != nil {
		return nil, err
	}
	m.setState(StateValid)
	if profile == nil {
		profile = &domain.UserProfile{}
	}
	return profile, nil
}

// RequestPasswordReset asks the remote service to send a reset message.
func (m *SessionManager) RequestPasswordReset(ctx context.Context, email string) error {
	if err := m.API.ResetPassword(ctx, strings.TrimSpace(email)); err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	return nil
}

// UpdateProfile patches the remote profile and persists the derived fields.
func (m *SessionManager) UpdateProfile(ctx context.Context, patch domain.ProfileUpdate) (*domain.UserProfile, error) {
	tr := otel.Tracer("services/SessionManager")
	ctx, span := tr.Start(ctx, "UpdateProfile")
	defer span.End()

	token, err := m.ValidAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	p, err := m.API.UpdateMe(ctx, token, patch)
	if err != nil {
		return nil, requestFailure(err)
	}
	if err := m.Store.SaveProfile(ctx, p); err != nil {
		log.Error().Err(err).Msg("persist profile")
	}
	return &p, nil
}

// DeleteAccount deletes the remote account and then wipes the local record.
// The record is kept when the server did not confirm the deletion.
func (m *SessionManager) DeleteAccount(ctx context.Context) error {
	tr := otel.Tracer("services/SessionManager")
	ctx, span := tr.Start(ctx, "DeleteAccount")
	defer span.End()

	token, err := m.ValidAccessToken(ctx)
	if err != nil {
		return err
	}
	if err := m.API.DeleteMe(ctx, token); err != nil {
		return requestFailure(err)
	}
	return m.Logout(ctx)
}

// authFailure maps a login/registration error: client errors are an explicit
// refusal, everything else a request failure.
func authFailure(err error) error {
	var se *api.StatusError
	if errors.As(err, &se) && se.Code >= http.StatusBadRequest && se.Code < http.StatusInternalServerError {
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	return fmt.Errorf("%w: %v", ErrRequestFailed, err)
}

// requestFailure maps an authenticated call's error onto the taxonomy.
func requestFailure(err error) error {
	if errors.Is(err, api.ErrUnauthorized) {
		return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return fmt.Errorf("%w: %v", ErrRequestFailed, err)
}
