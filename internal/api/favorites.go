package api

import (
	"context"
	"net/http"

	"github.com/tbourn/campus-cafe-sync/internal/domain"
)

// CafeFavorites returns the ids of the user's favorite cafés. Blank ids are dropped.
func (c *Client) CafeFavorites(ctx context.Context, token string) ([]domain.ID, error) {
	var out domain.CafeFavorites
	err := c.do(ctx, request{
		endpoint: "favorites.cafes.list",
		method:   http.MethodGet,
		path:     "/users/me/favorites/cafes",
		token:    token,
		auth:     true,
	}, &out)
	if err != nil {
		return nil, err
	}
	ids := make([]domain.ID, 0, len(out.CafeIDs))
	for _, id := range out.CafeIDs {
		if !id.Empty() {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// AddCafeFavorite marks a café as favorite. Adding twice is a no-op server-side.
func (c *Client) AddCafeFavorite(ctx context.Context, token string, cafeID domain.ID) error {
	return c.do(ctx, request{
		endpoint: "favorites.cafes.add",
		method:   http.MethodPut,
		path:     "/users/me/favorites/cafes/" + seg(cafeID.String()),
		token:    token,
		auth:     true,
	}, nil)
}

// RemoveCafeFavorite unmarks a café. Removing an absent favorite is a no-op server-side.
func (c *Client) RemoveCafeFavorite(ctx context.Context, token string, cafeID domain.ID) error {
	return c.do(ctx, request{
		endpoint: "favorites.cafes.remove",
		method:   http.MethodDelete,
		path:     "/users/me/favorites/cafes/" + seg(cafeID.String()),
		token:    token,
		auth:     true,
	}, nil)
}

// ArticleFavorites returns the user's favorite (article, café) pairs.
// Pairs missing either id are dropped.
func (c *Client) ArticleFavorites(ctx context.Context, token string) ([]domain.ArticleFav, error) {
	var out domain.ArticleFavorites
	err := c.do(ctx, request{
		endpoint: "favorites.articles.list",
		method:   http.MethodGet,
		path:     "/users/me/favorites/articles",
		token:    token,
		auth:     true,
	}, &out)
	if err != nil {
		return nil, err
	}
	favs := make([]domain.ArticleFav, 0, len(out.Articles))
	for _, a := range out.Articles {
		if !a.ArticleID.Empty() && !a.CafeID.Empty() {
			favs = append(favs, a)
		}
	}
	return favs, nil
}

// AddArticleFavorite marks an article of a café as favorite.
func (c *Client) AddArticleFavorite(ctx context.Context, token string, fav domain.ArticleFav) error {
	return c.do(ctx, request{
		endpoint: "favorites.articles.add",
		method:   http.MethodPut,
		path:     articleFavPath(fav),
		token:    token,
		auth:     true,
	}, nil)
}

// RemoveArticleFavorite unmarks an article of a café.
func (c *Client) RemoveArticleFavorite(ctx context.Context, token string, fav domain.ArticleFav) error {
	return c.do(ctx, request{
		endpoint: "favorites.articles.remove",
		method:   http.MethodDelete,
		path:     articleFavPath(fav),
		token:    token,
		auth:     true,
	}, nil)
}

func articleFavPath(fav domain.ArticleFav) string {
	return "/users/me/favorites/cafes/" + seg(fav.CafeID.String()) + "/articles/" + seg(fav.ArticleID.String())
}
