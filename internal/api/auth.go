package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tbourn/campus-cafe-sync/internal/domain"
)

// Login performs the form-encoded password grant and returns the token pair.
func (c *Client) Login(ctx context.Context, username, password string) (domain.TokenPair, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", username)
	form.Set("password", password)

	var out domain.TokenPair
	err := c.do(ctx, request{
		endpoint:    "auth.login",
		method:      http.MethodPost,
		path:        "/auth/token",
		body:        strings.NewReader(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	}, &out)
	if err != nil {
		return domain.TokenPair{}, err
	}
	if err := out.Validate(); err != nil {
		return domain.TokenPair{}, fmt.Errorf("auth.login: %w", ErrMalformedResponse)
	}
	return out, nil
}

// Register creates an account and returns the token pair of the new session.
func (c *Client) Register(ctx context.Context, req domain.RegisterRequest) (domain.TokenPair, error) {
	body, err := jsonBody(req)
	if err != nil {
		return domain.TokenPair{}, err
	}
	var out domain.TokenPair
	err = c.do(ctx, request{
		endpoint:    "auth.register",
		method:      http.MethodPost,
		path:        "/auth/register",
		body:        body,
		contentType: "application/json",
	}, &out)
	if err != nil {
		return domain.TokenPair{}, err
	}
	if err := out.Validate(); err != nil {
		return domain.TokenPair{}, fmt.Errorf("auth.register: %w", ErrMalformedResponse)
	}
	return out, nil
}

// ResetPassword asks the service to send a password reset message.
func (c *Client) ResetPassword(ctx context.Context, email string) error {
	body, err := jsonBody(map[string]string{"email": email})
	if err != nil {
		return err
	}
	return c.do(ctx, request{
		endpoint:    "auth.password_reset",
		method:      http.MethodPost,
		path:        "/auth/password-reset",
		body:        body,
		contentType: "application/json",
	}, nil)
}

// Refresh exchanges a refresh token for a new token pair. A response without
// an access token is reported as ErrMalformedResponse.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return domain.TokenPair{}, ErrUnauthorized
	}
	body, err := jsonBody(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return domain.TokenPair{}, err
	}
	var out domain.TokenPair
	err = c.do(ctx, request{
		endpoint:    "auth.refresh",
		method:      http.MethodPost,
		path:        "/auth/refresh",
		body:        body,
		contentType: "application/json",
	}, &out)
	if err != nil {
		return domain.TokenPair{}, err
	}
	if err := out.Validate(); err != nil {
		return domain.TokenPair{}, fmt.Errorf("auth.refresh: missing access_token: %w", ErrMalformedResponse)
	}
	return out, nil
}

// Me returns the profile of the token's owner. It doubles as the lightweight
// session verification call.
func (c *Client) Me(ctx context.Context, token string) (domain.UserProfile, error) {
	var out domain.UserProfile
	err := c.do(ctx, request{
		endpoint: "users.me",
		method:   http.MethodGet,
		path:     "/users/me",
		token:    token,
		auth:     true,
	}, &out)
	if err != nil {
		return domain.UserProfile{}, err
	}
	out.Normalize()
	return out, nil
}

// UpdateMe patches the current user's profile and returns the updated profile.
func (c *Client) UpdateMe(ctx context.Context, token string, patch domain.ProfileUpdate) (domain.UserProfile, error) {
	body, err := jsonBody(patch)
	if err != nil {
		return domain.UserProfile{}, err
	}
	var out domain.UserProfile
	err = c.do(ctx, request{
		endpoint:    "users.update",
		method:      http.MethodPatch,
		path:        "/users/me",
		token:       token,
		auth:        true,
		body:        body,
		contentType: "application/json",
	}, &out)
	if err != nil {
		return domain.UserProfile{}, err
	}
	out.Normalize()
	return out, nil
}

// DeleteMe deletes the current user's account.
func (c *Client) DeleteMe(ctx context.Context, token string) error {
	return c.do(ctx, request{
		endpoint: "users.delete",
		method:   http.MethodDelete,
		path:     "/users/me",
		token:    token,
		auth:     true,
	}, nil)
}
