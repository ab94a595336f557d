package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ID is an entity identifier as returned by the remote API. The service emits
// both numeric and string identifiers; ID accepts either and always holds the
// canonical string form.
type ID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// String returns the identifier as a plain string.
func (id ID) String() string { return string(id) }

// Empty reports whether the identifier is blank.
func (id ID) Empty() bool { return strings.TrimSpace(string(id)) == "" }

// ErrInvalidPayload is returned by Validate methods when a payload from the
// remote API is missing required fields.
var ErrInvalidPayload = errors.New("invalid payload")

// TokenPair is the response of the login and refresh endpoints.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
}

// Validate requires an access token. A refresh response without a new refresh
// token is tolerated; the caller keeps the previous one.
func (p TokenPair) Validate() error {
	if strings.TrimSpace(p.AccessToken) == "" {
		return ErrInvalidPayload
	}
	return nil
}

// UserProfile is the current-user payload.
type UserProfile struct {
	ID       ID     `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	PhotoURL string `json:"photo_url"`
}

// Normalize trims string fields in place.
func (u *UserProfile) Normalize() {
	u.Email = strings.TrimSpace(u.Email)
	u.FullName = strings.TrimSpace(u.FullName)
	u.PhotoURL = strings.TrimSpace(u.PhotoURL)
}

// ProfileUpdate carries the mutable profile fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	FullName *string `json:"full_name,omitempty"`
	PhotoURL *string `json:"photo_url,omitempty"`
}

// RegisterRequest is the registration payload.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// Credentials is the Credential Record. Empty strings mean absent.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	UserFullName string
	UserPhotoURL string
}

// Cafe is a café list/detail payload. Slug is the route-friendly identifier;
// ID is the canonical identifier expected by the favorites endpoints.
type Cafe struct {
	ID          ID       `json:"id"`
	Slug        string   `json:"slug"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Address     string   `json:"address"`
	ImageURL    string   `json:"image_url"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	OpenNow     bool     `json:"open_now"`
}

// Normalize trims fields and defaults the name to the slug.
func (c *Cafe) Normalize() {
	c.Slug = strings.TrimSpace(c.Slug)
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		c.Name = c.Slug
	}
}

// MenuOption is a selectable option on a menu item (size, milk, extra shot).
type MenuOption struct {
	Name  string          `json:"name"`
	Value string          `json:"value"`
	Fee   decimal.Decimal `json:"fee"`
}

// MenuItem is an article on a café's menu. Article ids are unique only within
// their café, so an item is addressed by (CafeID, ID).
type MenuItem struct {
	ID          ID              `json:"id"`
	CafeID      ID              `json:"cafe_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url"`
	Options     []MenuOption    `json:"options,omitempty"`
	Popularity  int             `json:"popularity,omitempty"`
}

// Normalize trims fields and fills CafeID from the owning café when the
// payload omits it.
func (m *MenuItem) Normalize(cafeID ID) {
	m.Name = strings.TrimSpace(m.Name)
	if m.CafeID.Empty() {
		m.CafeID = cafeID
	}
	if m.Price.IsNegative() {
		m.Price = decimal.Zero
	}
}

// Event is an entry of the paginated events feed.
type Event struct {
	ID          ID        `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CafeID      ID        `json:"cafe_id,omitempty"`
	Location    string    `json:"location"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
}

// Page is a page of a paginated list endpoint.
type Page[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Size  int `json:"size"`
	Total int `json:"total"`
}

// ArticleFav identifies a favorite article by the article and its café.
type ArticleFav struct {
	ArticleID ID `json:"article_id"`
	CafeID    ID `json:"cafe_id"`
}

// String returns the stringified pair used for set comparison.
func (a ArticleFav) String() string { return string(a.CafeID) + "/" + string(a.ArticleID) }

// CafeFavorites is the payload of the café favorites endpoint.
type CafeFavorites struct {
	CafeIDs []ID `json:"cafe_ids"`
}

// ArticleFavorites is the payload of the article favorites endpoint.
type ArticleFavorites struct {
	Articles []ArticleFav `json:"articles"`
}

// CartItem is the full payload of an item placed in the cart: a menu item
// together with the options the user selected.
type CartItem struct {
	ID         ID              `json:"id"`
	CafeID     ID              `json:"cafe_id,omitempty"`
	Name       string          `json:"name,omitempty"`
	Price      decimal.Decimal `json:"price"`
	Options    []MenuOption    `json:"options,omitempty"`
	Popularity int             `json:"popularity,omitempty"`
}

// Validate requires an id and a non-negative price.
func (i CartItem) Validate() error {
	if i.ID.Empty() || i.Price.IsNegative() {
		return ErrInvalidPayload
	}
	for _, o := range i.Options {
		if o.Fee.IsNegative() {
			return ErrInvalidPayload
		}
	}
	return nil
}

// UnitPrice is the base price plus all selected option fees.
func (i CartItem) UnitPrice() decimal.Decimal {
	p := i.Price
	for _, o := range i.Options {
		p = p.Add(o.Fee)
	}
	return p
}

// CartLine is a persisted cart line item. Quantity is always >= 1.
type CartLine struct {
	Hash     string `json:"hash"`
	Quantity int    `json:"quantity"`
}

// Coordinates is a WGS84 position.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
