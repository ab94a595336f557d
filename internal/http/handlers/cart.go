// Cart HTTP handlers.
//
//   - GET    /cart               (lines and total)
//   - POST   /cart/items         (add one unit; Idempotency-Key aware)
//   - PATCH  /cart/items/{hash}  (adjust quantity by delta)
//   - DELETE /cart/items/{hash}  (remove a line)
//   - DELETE /cart               (empty the cart)
//
// The cart is local; none of these routes contact the café service or need a
// session.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/tbourn/campus-cafe-sync/internal/domain"
	"github.com/tbourn/campus-cafe-sync/internal/http/middleware"
	"github.com/tbourn/campus-cafe-sync/internal/services"
)

// CartResponse is the resolved cart.
type CartResponse struct {
	Lines []services.CartLineView `json:"lines"`
	Total decimal.Decimal         `json:"total" swaggertype:"string" example:"7.40"`
}

// AddItemResponse reports the line an item landed on.
type AddItemResponse struct {
	Hash string `json:"hash" example:"9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"`
	// Replayed is true when the response was recovered from an earlier
	// request with the same Idempotency-Key.
	Replayed bool         `json:"replayed"`
	Cart     CartResponse `json:"cart"`
}

// QuantityRequest adjusts a line's quantity.
type QuantityRequest struct {
	Delta int `json:"delta" binding:"required" example:"-1"`
}

// QuantityResponse carries the quantity after an adjustment.
type QuantityResponse struct {
	Hash     string `json:"hash"`
	Quantity int    `json:"quantity" example:"2"`
}

func (h *Handlers) cartView(c *gin.Context) (CartResponse, bool) {
	ctx := c.Request.Context()
	lines, err := h.cart.Lines(ctx)
	if err != nil {
		serviceError(c, err)
		return CartResponse{}, false
	}
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.LineTotal)
	}
	return CartResponse{Lines: lines, Total: total}, true
}

// GetCart godoc
// @ID          getCart
// @Summary     Cart contents
// @Tags        Cart
// @Produce     json
// @Success     200  {object}  handlers.CartResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /cart [get]
func (h *Handlers) GetCart(c *gin.Context) {
	view, good := h.cartView(c)
	if !good {
		return
	}
	ok(c, http.StatusOK, view)
}

// AddCartItem godoc
// @ID          addCartItem
// @Summary     Add an item
// @Description Adds one unit. An identical item (same id and options) increments the existing line. Retries with the same Idempotency-Key are not applied twice.
// @Tags        Cart
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header    string           false  "Client-generated key for safe retries"
// @Param       body             body      domain.CartItem  true   "Item with selected options"
// @Success     201  {object}  handlers.AddItemResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid item"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /cart/items [post]
func (h *Handlers) AddCartItem(c *gin.Context) {
	ctx := c.Request.Context()
	scope := middleware.IdempotencyScope(c)
	key, _ := middleware.GetIdempotencyKey(c)

	if middleware.IsReplay(c) && h.idem != nil {
		rec, found, err := h.idem.Lookup(ctx, scope, key)
		if err == nil && found {
			view, good := h.cartView(c)
			if !good {
				return
			}
			ok(c, rec.Status, AddItemResponse{Hash: rec.Result, Replayed: true, Cart: view})
			return
		}
		// Expired or purged between the middleware check and now: apply.
	}

	var item domain.CartItem
	if err := c.ShouldBindJSON(&item); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid item payload")
		return
	}
	hash, err := h.cart.AddItem(ctx, item)
	if err != nil {
		serviceError(c, err)
		return
	}
	if key != "" && h.idem != nil {
		if err := h.idem.Remember(ctx, scope, key, hash, http.StatusCreated); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("remember idempotency key")
		}
	}

	view, good := h.cartView(c)
	if !good {
		return
	}
	ok(c, http.StatusCreated, AddItemResponse{Hash: hash, Cart: view})
}

// UpdateCartItem godoc
// @ID          updateCartItem
// @Summary     Adjust a line's quantity
// @Description Adds delta to the quantity. The result never drops below one; use DELETE to remove a line.
// @Tags        Cart
// @Accept      json
// @Produce     json
// @Param       hash  path      string                    true  "Line hash"
// @Param       body  body      handlers.QuantityRequest  true  "Quantity change"
// @Success     200   {object}  handlers.QuantityResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404   {object}  handlers.ErrorResponse  "Line not found"
// @Router      /cart/items/{hash} [patch]
func (h *Handlers) UpdateCartItem(c *gin.Context) {
	hash := strings.TrimSpace(c.Param("hash"))
	var req QuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil || hash == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "non-zero delta required")
		return
	}
	q, err := h.cart.SetQuantity(c.Request.Context(), hash, req.Delta)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, QuantityResponse{Hash: hash, Quantity: q})
}

// RemoveCartItem godoc
// @ID          removeCartItem
// @Summary     Remove a line
// @Tags        Cart
// @Param       hash  path  string  true  "Line hash"
// @Success     204   {string}  string "No Content"
// @Failure     404   {object}  handlers.ErrorResponse  "Line not found"
// @Router      /cart/items/{hash} [delete]
func (h *Handlers) RemoveCartItem(c *gin.Context) {
	if err := h.cart.RemoveItem(c.Request.Context(), strings.TrimSpace(c.Param("hash"))); err != nil {
		serviceError(c, err)
		return
	}
	noContent(c)
}

// ClearCart godoc
// @ID          clearCart
// @Summary     Empty the cart
// @Tags        Cart
// @Success     204  {string}  string "No Content"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /cart [delete]
func (h *Handlers) ClearCart(c *gin.Context) {
	if err := h.cart.Clear(c.Request.Context()); err != nil {
		serviceError(c, err)
		return
	}
	noContent(c)
}
