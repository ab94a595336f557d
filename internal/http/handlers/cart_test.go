package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/campus-cafe-sync/internal/http/middleware"
	"github.com/tbourn/campus-cafe-sync/internal/services"
)

func cartRouter(t *testing.T) (*gin.Engine, *services.CartStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newHandlersDB(t)
	cart := services.NewCartStore(db, testKV{})
	idem := services.NewIdempotencyStore(db, testKV{}, 0)
	h := newTestHandlers(Deps{Cart: cart, Idempotency: idem})

	r := gin.New()
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, idem.Exists))
	r.GET("/cart", h.GetCart)
	r.DELETE("/cart", h.ClearCart)
	r.POST("/cart/items", h.AddCartItem)
	r.PATCH("/cart/items/:hash", h.UpdateCartItem)
	r.DELETE("/cart/items/:hash", h.RemoveCartItem)
	return r, cart
}

const latte = `{"id":"7","cafe_id":"42","name":"Latte","price":"3.20","options":[{"name":"Size","value":"Large","fee":"0.50"}]}`

func decodeAdd(t *testing.T, body []byte) AddItemResponse {
	t.Helper()
	var resp AddItemResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("json: %v (%s)", err, body)
	}
	return resp
}

func TestAddCartItem_MergesIdenticalItems(t *testing.T) {
	r, _ := cartRouter(t)

	w := serve(r, http.MethodPost, "/cart/items", latte)
	if w.Code != http.StatusCreated {
		t.Fatalf("add: %d %s", w.Code, w.Body.String())
	}
	first := decodeAdd(t, w.Body.Bytes())

	// Same id and options, different case and price: same line.
	w = serve(r, http.MethodPost, "/cart/items", `{"id":7,"price":"3.40","options":[{"name":"size","value":"LARGE","fee":"0.50"}]}`)
	second := decodeAdd(t, w.Body.Bytes())
	if second.Hash != first.Hash {
		t.Fatalf("hash split: %s vs %s", first.Hash, second.Hash)
	}
	if len(second.Cart.Lines) != 1 || second.Cart.Lines[0].Quantity != 2 {
		t.Fatalf("lines: %+v", second.Cart.Lines)
	}
	// Latest price wins: (3.40 + 0.50) * 2
	if got := second.Cart.Total.StringFixed(2); got != "7.80" {
		t.Fatalf("total=%s", got)
	}
}

func TestAddCartItem_RejectsInvalidItems(t *testing.T) {
	r, _ := cartRouter(t)

	if w := serve(r, http.MethodPost, "/cart/items", "{bad"); w.Code != http.StatusBadRequest {
		t.Fatalf("bad json -> %d", w.Code)
	}
	w := serve(r, http.MethodPost, "/cart/items", `{"id":"7","price":"-1"}`)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), ErrCodeInvalidItem) {
		t.Fatalf("negative price -> %d %s", w.Code, w.Body.String())
	}
	w = serve(r, http.MethodPost, "/cart/items", `{"price":"1"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing id -> %d", w.Code)
	}
}

func TestAddCartItem_IdempotentReplay(t *testing.T) {
	r, _ := cartRouter(t)

	w := serve(r, http.MethodPost, "/cart/items", latte, middleware.HeaderIdempotencyKey, "k-1")
	if w.Code != http.StatusCreated {
		t.Fatalf("first: %d %s", w.Code, w.Body.String())
	}
	first := decodeAdd(t, w.Body.Bytes())

	// Retry with the same key: not applied again.
	w = serve(r, http.MethodPost, "/cart/items", latte, middleware.HeaderIdempotencyKey, "k-1")
	if w.Code != http.StatusCreated {
		t.Fatalf("replay: %d %s", w.Code, w.Body.String())
	}
	replay := decodeAdd(t, w.Body.Bytes())
	if !replay.Replayed || replay.Hash != first.Hash {
		t.Fatalf("replay: %+v", replay)
	}
	if replay.Cart.Lines[0].Quantity != 1 {
		t.Fatalf("replay applied the write: qty=%d", replay.Cart.Lines[0].Quantity)
	}

	// A new key is a new write.
	w = serve(r, http.MethodPost, "/cart/items", latte, middleware.HeaderIdempotencyKey, "k-2")
	if next := decodeAdd(t, w.Body.Bytes()); next.Replayed || next.Cart.Lines[0].Quantity != 2 {
		t.Fatalf("new key: %+v", next)
	}

	// Malformed key is rejected before the handler.
	if w := serve(r, http.MethodPost, "/cart/items", latte, middleware.HeaderIdempotencyKey, "bad key!"); w.Code != http.StatusBadRequest {
		t.Fatalf("bad key -> %d", w.Code)
	}
}

func TestUpdateRemoveClearCart(t *testing.T) {
	r, cart := cartRouter(t)

	hash := decodeAdd(t, serve(r, http.MethodPost, "/cart/items", latte).Body.Bytes()).Hash

	w := serve(r, http.MethodPatch, "/cart/items/"+hash, `{"delta":2}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"quantity":3`) {
		t.Fatalf("inc: %d %s", w.Code, w.Body.String())
	}
	// Floored at one.
	w = serve(r, http.MethodPatch, "/cart/items/"+hash, `{"delta":-10}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"quantity":1`) {
		t.Fatalf("floor: %d %s", w.Code, w.Body.String())
	}
	if w := serve(r, http.MethodPatch, "/cart/items/"+hash, `{"delta":0}`); w.Code != http.StatusBadRequest {
		t.Fatalf("zero delta -> %d", w.Code)
	}
	if w := serve(r, http.MethodPatch, "/cart/items/nope", `{"delta":1}`); w.Code != http.StatusNotFound {
		t.Fatalf("unknown line -> %d", w.Code)
	}

	if w := serve(r, http.MethodDelete, "/cart/items/"+hash, ""); w.Code != http.StatusNoContent {
		t.Fatalf("remove -> %d", w.Code)
	}
	if w := serve(r, http.MethodDelete, "/cart/items/"+hash, ""); w.Code != http.StatusNotFound {
		t.Fatalf("remove twice -> %d", w.Code)
	}

	serve(r, http.MethodPost, "/cart/items", latte)
	if w := serve(r, http.MethodDelete, "/cart", ""); w.Code != http.StatusNoContent {
		t.Fatalf("clear -> %d", w.Code)
	}
	w = serve(r, http.MethodGet, "/cart", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"lines":[]`) {
		t.Fatalf("empty cart: %d %s", w.Code, w.Body.String())
	}
	if total, err := cart.Total(context.Background()); err != nil || !total.IsZero() {
		t.Fatalf("total=%v err=%v", total, err)
	}
}
