// Package services – CollectionCache
//
// This file implements the time-boxed, page-aware cache for paginated list
// endpoints. One page per resource kind is held, persisted under
// "{resource}_cache", "{resource}_cache_timestamp", and "{resource}_cache_page"
// so it survives restarts, and mirrored in memory for reads.
//
// Freshness rules:
//   - An entry is fresh iff it was cached for exactly the requested page and
//     now - fetchedAt < TTL.
//   - An entry whose payload is empty never satisfies a request.
//   - A failed fetch never evicts the existing entry; it is served as stale.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/campus-cafe-sync/internal/domain"
)

// Resource is a cached collection kind.
type Resource string

const (
	ResourceEvents Resource = "events"
	ResourceCafes  Resource = "cafes"
)

// DefaultCacheTTL is the freshness window used when none is configured.
const DefaultCacheTTL = 5 * time.Minute

// CacheEntry is a cached page of a resource.
type CacheEntry struct {
	Resource  Resource
	Page      int
	Payload   json.RawMessage
	FetchedAt time.Time
}

// CacheResult is the outcome of Load.
type CacheResult struct {
	Payload   json.RawMessage
	Page      int
	FetchedAt time.Time
	// Cached is true when the payload was served from the cache.
	Cached bool
	// Stale is true when a fetch failed and an older entry was served.
	Stale bool
	// FetchErr is the failure that caused a stale result.
	FetchErr error
}

// CollectionCache caches one page per resource kind.
type CollectionCache struct {
	DB   *gorm.DB
	Repo KVRepo

	TTL time.Duration
	Now func() time.Time

	// Tracker, when set, drops fetch results superseded by a newer Load of
	// another page of the same resource.
	Tracker *RequestTracker

	mu      sync.Mutex
	entries map[Resource]*CacheEntry
	loaded  map[Resource]bool
}

// NewCollectionCache constructs a cache with the given TTL (DefaultCacheTTL
// when ttl <= 0) and a request tracker.
func NewCollectionCache(db *gorm.DB, r KVRepo, ttl time.Duration) *CollectionCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CollectionCache{
		DB:      db,
		Repo:    r,
		TTL:     ttl,
		Now:     time.Now,
		Tracker: NewRequestTracker(),
		entries: map[Resource]*CacheEntry{},
		loaded:  map[Resource]bool{},
	}
}

// Get returns the entry cached for exactly (kind, page).
func (c *CollectionCache) Get(ctx context.Context, kind Resource, page int) (*CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(ctx, kind)
	if e == nil || e.Page != page {
		return nil, false
	}
	cp := *e
	return &cp, true
}

// Put overwrites the entry for kind with payload for page, stamped now.
// The in-memory mirror is updated even when persistence fails.
func (c *CollectionCache) Put(ctx context.Context, kind Resource, page int, payload json.RawMessage) error {
	return c.put(ctx, kind, page, payload, c.Now().UTC())
}

func (c *CollectionCache) put(ctx context.Context, kind Resource, page int, payload json.RawMessage, at time.Time) error {
	e := &CacheEntry{
		Resource:  kind,
		Page:      page,
		Payload:   append(json.RawMessage(nil), payload...),
		FetchedAt: at,
	}
	c.mu.Lock()
	c.entries[kind] = e
	c.loaded[kind] = true
	c.mu.Unlock()

	err := c.Repo.PutValues(ctx, c.DB, map[string]string{
		domain.CacheKey(string(kind)):          string(e.Payload),
		domain.CacheTimestampKey(string(kind)): e.FetchedAt.Format(time.RFC3339Nano),
		domain.CachePageKey(string(kind)):      strconv.Itoa(page),
	})
	if err != nil {
		return fmt.Errorf("cache: persist %s: %w", kind, err)
	}
	return nil
}

// IsFresh reports whether an entry exists for exactly (kind, page) and is
// younger than the TTL.
func (c *CollectionCache) IsFresh(ctx context.Context, kind Resource, page int) bool {
	e, ok := c.Get(ctx, kind, page)
	if !ok {
		return false
	}
	return c.Now().Sub(e.FetchedAt) < c.TTL
}

// ShouldFetch reports whether (kind, page) must be fetched: the entry is not
// fresh, was cached for another page, or holds an empty payload.
func (c *CollectionCache) ShouldFetch(ctx context.Context, kind Resource, page int) bool {
	e, ok := c.Get(ctx, kind, page)
	if !ok {
		return true
	}
	if c.Now().Sub(e.FetchedAt) >= c.TTL {
		return true
	}
	return isEmptyPayload(e.Payload)
}

// Invalidate drops the entry for kind from memory and storage.
func (c *CollectionCache) Invalidate(ctx context.Context, kind Resource) error {
	c.mu.Lock()
	delete(c.entries, kind)
	c.loaded[kind] = true
	c.mu.Unlock()
	return c.Repo.DeleteValues(ctx, c.DB,
		domain.CacheKey(string(kind)),
		domain.CacheTimestampKey(string(kind)),
		domain.CachePageKey(string(kind)),
	)
}

// Load serves (kind, page) from the cache when it need not be fetched and
// otherwise calls fetch. A successful fetch replaces the entry. A failed fetch
// serves the existing entry for the same page as stale; ErrRequestFailed is
// returned only when nothing usable exists. A fetch superseded by a newer Load
// of another page of the same resource is discarded with ErrSuperseded;
// overlapping loads of the same page all succeed.
func (c *CollectionCache) Load(ctx context.Context, kind Resource, page int, fetch func(context.Context) (json.RawMessage, error)) (CacheResult, error) {
	tr := otel.Tracer("services/CollectionCache")
	ctx, span := tr.Start(ctx, "Load")
	span.SetAttributes(attribute.String("cache.resource", string(kind)), attribute.Int("cache.page", page))
	defer span.End()

	if !c.ShouldFetch(ctx, kind, page) {
		if e, ok := c.Get(ctx, kind, page); ok {
			cacheLookups.WithLabelValues(string(kind), "hit").Inc()
			span.SetAttributes(attribute.String("cache.outcome", "hit"))
			return CacheResult{Payload: e.Payload, Page: e.Page, FetchedAt: e.FetchedAt, Cached: true}, nil
		}
	}

	var ticket Ticket
	if c.Tracker != nil {
		ticket = c.Tracker.Begin(string(kind), strconv.Itoa(page))
	}

	payload, err := fetch(ctx)
	if c.Tracker != nil && c.Tracker.Finish(ticket) != nil {
		span.SetAttributes(attribute.String("cache.outcome", "superseded"))
		return CacheResult{}, ErrSuperseded
	}
	if err != nil {
		fetchErr := fmt.Errorf("%w: %v", ErrRequestFailed, err)
		if e, ok := c.Get(ctx, kind, page); ok {
			cacheLookups.WithLabelValues(string(kind), "stale").Inc()
			span.SetAttributes(attribute.String("cache.outcome", "stale"))
			log.Warn().Err(err).Str("resource", string(kind)).Int("page", page).Msg("fetch failed; serving stale cache")
			return CacheResult{
				Payload:   e.Payload,
				Page:      e.Page,
				FetchedAt: e.FetchedAt,
				Cached:    true,
				Stale:     true,
				FetchErr:  fetchErr,
			}, nil
		}
		cacheLookups.WithLabelValues(string(kind), "error").Inc()
		span.SetAttributes(attribute.String("cache.outcome", "error"))
		return CacheResult{}, fetchErr
	}

	cacheLookups.WithLabelValues(string(kind), "miss").Inc()
	span.SetAttributes(attribute.String("cache.outcome", "miss"))
	at := c.Now().UTC()
	if err := c.put(ctx, kind, page, payload, at); err != nil {
		log.Warn().Err(err).Str("resource", string(kind)).Msg("cache write failed")
	}
	return CacheResult{Payload: payload, Page: page, FetchedAt: at}, nil
}

// LoadPage is Load for a typed page fetcher. The payload is stored as JSON
// and decoded back into the page type on cache hits.
func LoadPage[T any](ctx context.Context, c *CollectionCache, kind Resource, page int, fetch func(context.Context) (domain.Page[T], error)) (domain.Page[T], CacheResult, error) {
	res, err := c.Load(ctx, kind, page, func(ctx context.Context) (json.RawMessage, error) {
		p, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(p)
	})
	if err != nil {
		return domain.Page[T]{}, res, err
	}
	var out domain.Page[T]
	if err := json.Unmarshal(res.Payload, &out); err != nil {
		return domain.Page[T]{}, res, fmt.Errorf("cache: decode %s: %w", kind, err)
	}
	if out.Items == nil {
		out.Items = []T{}
	}
	return out, res, nil
}

// entryLocked returns the mirrored entry for kind, hydrating it from storage
// on first access. Unreadable stored entries are treated as absent.
func (c *CollectionCache) entryLocked(ctx context.Context, kind Resource) *CacheEntry {
	if c.loaded[kind] {
		return c.entries[kind]
	}
	keys := []string{
		domain.CacheKey(string(kind)),
		domain.CacheTimestampKey(string(kind)),
		domain.CachePageKey(string(kind)),
	}
	vals, err := c.Repo.GetValues(ctx, c.DB, keys...)
	if err != nil {
		log.Warn().Err(err).Str("resource", string(kind)).Msg("cache hydrate failed")
		return nil
	}
	c.loaded[kind] = true
	e, err := decodeEntry(kind, vals[keys[0]], vals[keys[1]], vals[keys[2]])
	if err != nil {
		if len(vals) > 0 {
			log.Warn().Err(err).Str("resource", string(kind)).Msg("discarding unreadable cache entry")
		}
		return nil
	}
	c.entries[kind] = e
	return e
}

var errNoEntry = errors.New("no cache entry")

func decodeEntry(kind Resource, payload, ts, page string) (*CacheEntry, error) {
	if ts == "" || page == "" {
		return nil, errNoEntry
	}
	at, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, err
	}
	p, err := strconv.Atoi(page)
	if err != nil {
		return nil, err
	}
	if payload != "" && !json.Valid([]byte(payload)) {
		return nil, errors.New("invalid json payload")
	}
	return &CacheEntry{Resource: kind, Page: p, Payload: json.RawMessage(payload), FetchedAt: at}, nil
}

// isEmptyPayload reports whether a cached payload holds no data: blank, null,
// an empty array or object, or a page object whose items are empty.
func isEmptyPayload(raw json.RawMessage) bool {
	b := bytes.TrimSpace(raw)
	switch string(b) {
	case "", "null", "[]", "{}":
		return true
	}
	switch b[0] {
	case '[':
		var arr []json.RawMessage
		return json.Unmarshal(b, &arr) == nil && len(arr) == 0
	case '{':
		var obj map[string]json.RawMessage
		if json.Unmarshal(b, &obj) != nil {
			return false
		}
		items, ok := obj["items"]
		if !ok {
			return len(obj) == 0
		}
		return isEmptyPayload(items)
	}
	return false
}
