package api

import (
	"context"
	"net/http"

	"github.com/tbourn/campus-cafe-sync/internal/domain"
	"github.com/tbourn/campus-cafe-sync/internal/utils"
)

// Cafes returns a page of the café directory. The token is optional.
func (c *Client) Cafes(ctx context.Context, token string, page, size int) (domain.Page[domain.Cafe], error) {
	var out domain.Page[domain.Cafe]
	err := c.do(ctx, request{
		endpoint: "cafes.list",
		method:   http.MethodGet,
		path:     "/cafes",
		query:    utils.PageQuery(page, size),
		token:    token,
	}, &out)
	if err != nil {
		return domain.Page[domain.Cafe]{}, err
	}
	for i := range out.Items {
		out.Items[i].Normalize()
	}
	if out.Items == nil {
		out.Items = []domain.Cafe{}
	}
	return out, nil
}

// Cafe returns a café by canonical id or slug.
func (c *Client) Cafe(ctx context.Context, token, idOrSlug string) (domain.Cafe, error) {
	var out domain.Cafe
	err := c.do(ctx, request{
		endpoint: "cafes.get",
		method:   http.MethodGet,
		path:     "/cafes/" + seg(idOrSlug),
		token:    token,
	}, &out)
	if err != nil {
		return domain.Cafe{}, err
	}
	out.Normalize()
	return out, nil
}

// Menu returns the menu items of a café.
func (c *Client) Menu(ctx context.Context, token string, cafeID domain.ID) ([]domain.MenuItem, error) {
	var out []domain.MenuItem
	err := c.do(ctx, request{
		endpoint: "menu.list",
		method:   http.MethodGet,
		path:     "/cafes/" + seg(cafeID.String()) + "/menu",
		token:    token,
	}, &out)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Normalize(cafeID)
	}
	return out, nil
}

// Article returns a single menu item. Both ids are required because article
// ids are only unique within their café.
func (c *Client) Article(ctx context.Context, token string, fav domain.ArticleFav) (domain.MenuItem, error) {
	var out domain.MenuItem
	err := c.do(ctx, request{
		endpoint: "menu.get",
		method:   http.MethodGet,
		path:     "/cafes/" + seg(fav.CafeID.String()) + "/menu/" + seg(fav.ArticleID.String()),
		token:    token,
	}, &out)
	if err != nil {
		return domain.MenuItem{}, err
	}
	out.Normalize(fav.CafeID)
	return out, nil
}

// Events returns a page of the events feed.
func (c *Client) Events(ctx context.Context, token string, page, size int) (domain.Page[domain.Event], error) {
	var out domain.Page[domain.Event]
	err := c.do(ctx, request{
		endpoint: "events.list",
		method:   http.MethodGet,
		path:     "/events",
		query:    utils.PageQuery(page, size),
		token:    token,
	}, &out)
	if err != nil {
		return domain.Page[domain.Event]{}, err
	}
	if out.Items == nil {
		out.Items = []domain.Event{}
	}
	return out, nil
}
