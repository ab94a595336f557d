// Package api is the typed client for the remote café REST service.
//
// The service is treated as a black box returning JSON. Every payload is
// decoded into an explicit domain type and normalized here, so consumers never
// deal with loosely shaped JSON. Authenticated calls carry
// "Authorization: Bearer <token>"; a missing token short-circuits before any
// request is issued.
//
// Outgoing traffic is throttled with a token bucket, traced with
// OpenTelemetry, and counted in Prometheus (see metrics.go).
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	userAgent = "cafesync/1.0"
	// maxErrorBody caps how much of a failed response body is kept for errors.
	maxErrorBody = 512
)

// Client talks to the remote café API.
type Client struct {
	// BaseURL is the absolute API root without trailing slash.
	BaseURL string
	// HTTP is the underlying transport. Its Timeout bounds each request.
	HTTP *http.Client
	// Limiter throttles outgoing requests; nil disables throttling.
	Limiter *rate.Limiter
}

// New constructs a Client with a bounded timeout and a token-bucket limiter.
func New(baseURL string, timeout time.Duration, rps float64, burst int) *Client {
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
		Limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// request describes a single API call.
type request struct {
	endpoint    string // metric/span label, e.g. "events.list"
	method      string
	path        string
	query       url.Values
	token       string
	auth        bool // token required
	body        io.Reader
	contentType string
}

// jsonBody encodes v for a JSON request.
func jsonBody(v any) (io.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	return bytes.NewReader(b), nil
}

// do executes r and decodes a successful response into out (when non-nil).
func (c *Client) do(ctx context.Context, r request, out any) (err error) {
	if r.auth && strings.TrimSpace(r.token) == "" {
		return ErrUnauthorized
	}

	tr := otel.Tracer("api/Client")
	ctx, span := tr.Start(ctx, r.endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", r.method),
			attribute.String("api.endpoint", r.endpoint),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: rate limit wait: %w", r.endpoint, err)
		}
	}

	u := c.BaseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, r.body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	apiInflight.Inc()
	start := time.Now()
	resp, err := c.HTTP.Do(req)
	apiInflight.Dec()
	apiLat.WithLabelValues(r.endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		apiReqs.WithLabelValues(r.endpoint, "error").Inc()
		return fmt.Errorf("%s: %w", r.endpoint, err)
	}
	defer resp.Body.Close()

	apiReqs.WithLabelValues(r.endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Endpoint: r.endpoint, Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%s: empty body: %w", r.endpoint, ErrMalformedResponse)
		}
		return fmt.Errorf("%s: decode: %w (%v)", r.endpoint, ErrMalformedResponse, err)
	}
	return nil
}

// seg escapes a single path segment.
func seg(s string) string { return url.PathEscape(strings.TrimSpace(s)) }
