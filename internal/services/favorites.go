// Package services – FavoritesReconciler
//
// This file mirrors the server-held favorites sets in memory: café favorites
// (a set of café ids) and article favorites (a set of (article, café) pairs,
// since article ids are only unique within a café). Refresh diffs each set
// independently against the mirror; Sync additionally re-fetches the full
// detail objects of a set, but only for the set that changed.
//
// Toggles update the mirror only after the server confirmed the mutation.
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/campus-cafe-sync/internal/api"
	"github.com/tbourn/campus-cafe-sync/internal/domain"
)

// FavoritesAPI is the subset of the remote API used by the reconciler.
type FavoritesAPI interface {
	CafeFavorites(ctx context.Context, token string) ([]domain.ID, error)
	AddCafeFavorite(ctx context.Context, token string, cafeID domain.ID) error
	RemoveCafeFavorite(ctx context.Context, token string, cafeID domain.ID) error
	ArticleFavorites(ctx context.Context, token string) ([]domain.ArticleFav, error)
	AddArticleFavorite(ctx context.Context, token string, fav domain.ArticleFav) error
	RemoveArticleFavorite(ctx context.Context, token string, fav domain.ArticleFav) error
	Cafe(ctx context.Context, token, idOrSlug string) (domain.Cafe, error)
	Article(ctx context.Context, token string, fav domain.ArticleFav) (domain.MenuItem, error)
}

// FavoritesChange reports which favorites sets differ from the mirror.
type FavoritesChange struct {
	CafeChanged    bool `json:"cafe_changed"`
	ArticleChanged bool `json:"article_changed"`
}

// FavoritesSnapshot is the mirrored state with resolved detail objects.
type FavoritesSnapshot struct {
	CafeIDs  []domain.ID         `json:"cafe_ids"`
	Articles []domain.ArticleFav `json:"articles"`
	Cafes    []domain.Cafe       `json:"cafes"`
	Items    []domain.MenuItem   `json:"items"`
	Change   FavoritesChange     `json:"change"`
}

// DefaultFavoritesConcurrency bounds parallel detail fetches.
const DefaultFavoritesConcurrency = 4

// FavoritesReconciler keeps the favorites mirror of the signed-in user.
type FavoritesReconciler struct {
	API FavoritesAPI
	// Concurrency bounds parallel detail fetches in Sync.
	Concurrency int

	mu       sync.Mutex
	cafes    map[domain.ID]struct{}
	articles map[domain.ArticleFav]struct{}

	cafeDetails    []domain.Cafe
	articleDetails []domain.MenuItem
	// dirty flags force a detail re-fetch on the next Sync even when the
	// server sets are unchanged (after a toggle or a failed fetch).
	cafesDirty    bool
	articlesDirty bool

	// toggles serializes toggles of the same favorite across the
	// membership read and the server call.
	toggles keyLocks
}

// NewFavoritesReconciler constructs a reconciler with empty sets.
func NewFavoritesReconciler(a FavoritesAPI, concurrency int) *FavoritesReconciler {
	if concurrency <= 0 {
		concurrency = DefaultFavoritesConcurrency
	}
	return &FavoritesReconciler{
		API:         a,
		Concurrency: concurrency,
		cafes:       map[domain.ID]struct{}{},
		articles:    map[domain.ArticleFav]struct{}{},
	}
}

// Refresh fetches both favorites sets, replaces the mirror, and reports which
// set changed. Sets are compared structurally and independently.
func (f *FavoritesReconciler) Refresh(ctx context.Context, token string) (FavoritesChange, error) {
	tr := otel.Tracer("services/FavoritesReconciler")
	ctx, span := tr.Start(ctx, "Refresh")
	defer span.End()

	if strings.TrimSpace(token) == "" {
		return FavoritesChange{}, ErrUnauthenticated
	}

	var (
		cafeIDs []domain.ID
		arts    []domain.ArticleFav
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		cafeIDs, err = f.API.CafeFavorites(gctx, token)
		return err
	})
	g.Go(func() (err error) {
		arts, err = f.API.ArticleFavorites(gctx, token)
		return err
	})
	if err := g.Wait(); err != nil {
		return FavoritesChange{}, mapRemoteErr(err)
	}

	nextCafes := make(map[domain.ID]struct{}, len(cafeIDs))
	for _, id := range cafeIDs {
		nextCafes[id] = struct{}{}
	}
	nextArts := make(map[domain.ArticleFav]struct{}, len(arts))
	for _, a := range arts {
		nextArts[a] = struct{}{}
	}

	f.mu.Lock()
	change := FavoritesChange{
		CafeChanged:    !sameSet(keysOf(f.cafes), keysOf(nextCafes)),
		ArticleChanged: !sameSet(keysOf(f.articles), keysOf(nextArts)),
	}
	f.cafes, f.articles = nextCafes, nextArts
	f.mu.Unlock()

	span.SetAttributes(
		attribute.Bool("favorites.cafe_changed", change.CafeChanged),
		attribute.Bool("favorites.article_changed", change.ArticleChanged),
	)
	return change, nil
}

// Sync runs Refresh and then re-fetches the full detail set of every set that
// changed (or is marked dirty). An unchanged set keeps its details untouched.
func (f *FavoritesReconciler) Sync(ctx context.Context, token string) (FavoritesSnapshot, error) {
	tr := otel.Tracer("services/FavoritesReconciler")
	ctx, span := tr.Start(ctx, "Sync")
	defer span.End()

	change, err := f.Refresh(ctx, token)
	if err != nil {
		return FavoritesSnapshot{}, err
	}

	f.mu.Lock()
	needCafes := change.CafeChanged || f.cafesDirty
	needArts := change.ArticleChanged || f.articlesDirty
	f.mu.Unlock()

	var errs []error
	if needCafes {
		if err := f.fetchCafes(ctx, token); err != nil {
			errs = append(errs, err)
		}
	}
	if needArts {
		if err := f.fetchArticles(ctx, token); err != nil {
			errs = append(errs, err)
		}
	}

	snap := f.Snapshot()
	snap.Change = change
	if len(errs) > 0 {
		return snap, errors.Join(errs...)
	}
	return snap, nil
}

// fetchCafes replaces the café details with the full current set.
func (f *FavoritesReconciler) fetchCafes(ctx context.Context, token string) error {
	ids := f.CafeFavorites()
	out := make([]domain.Cafe, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			c, err := f.API.Cafe(gctx, token, id.String())
			if err != nil {
				return err
			}
			out[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		f.mu.Lock()
		f.cafesDirty = true
		f.mu.Unlock()
		log.Warn().Err(err).Int("count", len(ids)).Msg("favorite café details fetch failed")
		return mapRemoteErr(err)
	}

	f.mu.Lock()
	f.cafeDetails, f.cafesDirty = out, false
	f.mu.Unlock()
	return nil
}

// fetchArticles replaces the article details with the full current set.
func (f *FavoritesReconciler) fetchArticles(ctx context.Context, token string) error {
	favs := f.ArticleFavorites()
	out := make([]domain.MenuItem, len(favs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.Concurrency)
	for i, fav := range favs {
		g.Go(func() error {
			item, err := f.API.Article(gctx, token, fav)
			if err != nil {
				return err
			}
			out[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		f.mu.Lock()
		f.articlesDirty = true
		f.mu.Unlock()
		log.Warn().Err(err).Int("count", len(favs)).Msg("favorite article details fetch failed")
		return mapRemoteErr(err)
	}

	f.mu.Lock()
	f.articleDetails, f.articlesDirty = out, false
	f.mu.Unlock()
	return nil
}

// Toggle flips the favorite membership of (articleID, cafeID) on the server
// and, once confirmed, in the mirror. It returns the new membership.
func (f *FavoritesReconciler) Toggle(ctx context.Context, articleID, cafeID domain.ID, token string) (bool, error) {
	tr := otel.Tracer("services/FavoritesReconciler")
	ctx, span := tr.Start(ctx, "Toggle")
	defer span.End()

	if strings.TrimSpace(token) == "" {
		return false, ErrUnauthenticated
	}
	fav := domain.ArticleFav{ArticleID: articleID, CafeID: cafeID}
	if fav.ArticleID.Empty() || fav.CafeID.Empty() {
		return false, fmt.Errorf("%w: article and café ids are required", ErrRequestFailed)
	}

	unlock, err := f.toggles.lock(ctx, "article:"+fav.String())
	if err != nil {
		return false, err
	}
	defer unlock()

	member := f.IsArticleFavorite(fav)
	if member {
		err = f.API.RemoveArticleFavorite(ctx, token, fav)
	} else {
		err = f.API.AddArticleFavorite(ctx, token, fav)
	}
	if err != nil {
		return member, mapRemoteErr(err)
	}

	f.mu.Lock()
	if member {
		delete(f.articles, fav)
	} else {
		f.articles[fav] = struct{}{}
	}
	f.articlesDirty = true
	f.mu.Unlock()
	return !member, nil
}

// ToggleCafe flips the favorite membership of a café. cafeID must be the
// canonical id; see ResolveCafeID.
func (f *FavoritesReconciler) ToggleCafe(ctx context.Context, cafeID domain.ID, token string) (bool, error) {
	tr := otel.Tracer("services/FavoritesReconciler")
	ctx, span := tr.Start(ctx, "ToggleCafe")
	defer span.End()

	if strings.TrimSpace(token) == "" {
		return false, ErrUnauthenticated
	}
	if cafeID.Empty() {
		return false, fmt.Errorf("%w: café id is required", ErrRequestFailed)
	}

	unlock, err := f.toggles.lock(ctx, "cafe:"+cafeID.String())
	if err != nil {
		return false, err
	}
	defer unlock()

	member := f.IsCafeFavorite(cafeID)
	if member {
		err = f.API.RemoveCafeFavorite(ctx, token, cafeID)
	} else {
		err = f.API.AddCafeFavorite(ctx, token, cafeID)
	}
	if err != nil {
		return member, mapRemoteErr(err)
	}

	f.mu.Lock()
	if member {
		delete(f.cafes, cafeID)
	} else {
		f.cafes[cafeID] = struct{}{}
	}
	f.cafesDirty = true
	f.mu.Unlock()
	return !member, nil
}

// IsCafeFavorite reports mirrored membership of a café.
func (f *FavoritesReconciler) IsCafeFavorite(id domain.ID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.cafes[id]
	return ok
}

// IsArticleFavorite reports mirrored membership of an (article, café) pair.
func (f *FavoritesReconciler) IsArticleFavorite(fav domain.ArticleFav) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.articles[fav]
	return ok
}

// CafeFavorites returns the mirrored café ids in sorted order.
func (f *FavoritesReconciler) CafeFavorites() []domain.ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ID, 0, len(f.cafes))
	for id := range f.cafes {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ArticleFavorites returns the mirrored pairs ordered by café then article.
func (f *FavoritesReconciler) ArticleFavorites() []domain.ArticleFav {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ArticleFav, 0, len(f.articles))
	for a := range f.articles {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Snapshot returns the mirror with the last fetched details.
func (f *FavoritesReconciler) Snapshot() FavoritesSnapshot {
	ids := f.CafeFavorites()
	arts := f.ArticleFavorites()
	f.mu.Lock()
	defer f.mu.Unlock()
	return FavoritesSnapshot{
		CafeIDs:  ids,
		Articles: arts,
		Cafes:    append([]domain.Cafe{}, f.cafeDetails...),
		Items:    append([]domain.MenuItem{}, f.articleDetails...),
	}
}

// Reset clears the mirror, e.g. on logout.
func (f *FavoritesReconciler) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cafes = map[domain.ID]struct{}{}
	f.articles = map[domain.ArticleFav]struct{}{}
	f.cafeDetails, f.articleDetails = nil, nil
	f.cafesDirty, f.articlesDirty = false, false
}

// ResolveCafeID prefers the canonical id found in fetched café detail over a
// route-supplied identifier, which may be a slug.
func ResolveCafeID(routeID string, detail *domain.Cafe) domain.ID {
	if detail != nil && !detail.ID.Empty() {
		return detail.ID
	}
	return domain.ID(strings.TrimSpace(routeID))
}

// mapRemoteErr translates a remote API error onto the service taxonomy.
func mapRemoteErr(err error) error {
	if errors.Is(err, api.ErrUnauthorized) {
		return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return fmt.Errorf("%w: %v", ErrRequestFailed, err)
}

func keysOf[K interface {
	comparable
	fmt.Stringer
}](m map[K]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k.String())
	}
	return out
}

// sameSet compares two sets by their sorted stringified elements.
func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// keyLocks is a set of per-key mutexes whose acquisition honors a context.
// Entries are dropped once no goroutine holds or waits for them.
type keyLocks struct {
	mu sync.Mutex
	m  map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

func (k *keyLocks) lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	if k.m == nil {
		k.m = map[string]*keyLock{}
	}
	l := k.m[key]
	if l == nil {
		l = &keyLock{sem: make(chan struct{}, 1)}
		k.m[key] = l
	}
	l.refs++
	k.mu.Unlock()

	unlock := func() {
		<-l.sem
		k.release(key, l)
	}
	select {
	case l.sem <- struct{}{}:
		return unlock, nil
	default:
	}
	select {
	case l.sem <- struct{}{}:
		return unlock, nil
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}
}

func (k *keyLocks) release(key string, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if l.refs--; l.refs == 0 {
		delete(k.m, key)
	}
}
