// Package services – CartStore
//
// This file implements the local cart: content-addressed line items persisted
// in the key-value store. The "cart" key holds the ordered list of
// {hash, quantity} lines; every item payload lives under "cart_item_<hash>".
// Adding an item whose hash is already present increments its quantity.
//
// The hash covers only the item's café, its id and the selected options, so
// volatile fields such as price or popularity never split one product into
// two lines. Article ids are unique per café only.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/campus-cafe-sync/internal/domain"
)

// CartLineView is a cart line resolved against its item payload.
type CartLineView struct {
	Hash      string          `json:"hash"`
	Quantity  int             `json:"quantity"`
	Item      domain.CartItem `json:"item"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// CartStore is the persisted local cart. It is not network-backed.
type CartStore struct {
	DB   *gorm.DB
	Repo KVRepo

	// mu serializes read-modify-write cycles on the cart root key.
	mu sync.Mutex
}

// NewCartStore constructs a CartStore.
func NewCartStore(db *gorm.DB, r KVRepo) *CartStore {
	return &CartStore{DB: db, Repo: r}
}

// HashOf returns the content hash of item: SHA-256 over the canonical JSON of
// its café id, its id and its selected options, sorted, with option names and values case
// folded and NFC-normalized.
func HashOf(item domain.CartItem) string {
	type option struct {
		Name  string `json:"name"`
		Value string `json:"value"`
		Fee   string `json:"fee"`
	}
	key := struct {
		CafeID  string   `json:"cafe_id"`
		ID      string   `json:"id"`
		Options []option `json:"options"`
	}{
		CafeID:  strings.TrimSpace(item.CafeID.String()),
		ID:      strings.TrimSpace(item.ID.String()),
		Options: make([]option, 0, len(item.Options)),
	}
	fold := cases.Fold()
	for _, o := range item.Options {
		key.Options = append(key.Options, option{
			Name:  fold.String(norm.NFC.String(strings.TrimSpace(o.Name))),
			Value: fold.String(norm.NFC.String(strings.TrimSpace(o.Value))),
			Fee:   o.Fee.String(),
		})
	}
	sort.Slice(key.Options, func(i, j int) bool {
		a, b := key.Options[i], key.Options[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Value < b.Value
	})

	// Marshal of this fixed shape cannot fail.
	b, _ := json.Marshal(key)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashOf returns the content hash the cart uses for item.
func (s *CartStore) HashOf(item domain.CartItem) string { return HashOf(item) }

// AddItem stores item and increments its line, creating the line with
// quantity one when the hash is new. The stored payload is replaced, so the
// latest price wins. It returns the item hash.
func (s *CartStore) AddItem(ctx context.Context, item domain.CartItem) (string, error) {
	if err := item.Validate(); err != nil {
		return "", ErrInvalidItem
	}
	hash := HashOf(item)
	payload, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("cart: encode item: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.lines(ctx)
	if err != nil {
		return "", err
	}
	found := false
	for i := range lines {
		if lines[i].Hash == hash {
			lines[i].Quantity++
			found = true
			break
		}
	}
	if !found {
		lines = append(lines, domain.CartLine{Hash: hash, Quantity: 1})
	}
	root, err := json.Marshal(lines)
	if err != nil {
		return "", fmt.Errorf("cart: encode lines: %w", err)
	}
	if err := s.Repo.PutValues(ctx, s.DB, map[string]string{
		domain.KeyCart:            string(root),
		domain.CartItemKey(hash): string(payload),
	}); err != nil {
		return "", fmt.Errorf("cart: write: %w", err)
	}
	log.Debug().Str("hash", hash).Bool("new_line", !found).Msg("cart item added")
	return hash, nil
}

// RemoveItem deletes the line for hash together with its item payload.
// At most one line exists per hash, so the payload cannot be shared.
func (s *CartStore) RemoveItem(ctx context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.lines(ctx)
	if err != nil {
		return err
	}
	kept := lines[:0]
	found := false
	for _, l := range lines {
		if l.Hash == hash {
			found = true
			continue
		}
		kept = append(kept, l)
	}
	if !found {
		return ErrLineNotFound
	}
	if err := s.saveLines(ctx, kept); err != nil {
		return err
	}
	if err := s.Repo.DeleteValues(ctx, s.DB, domain.CartItemKey(hash)); err != nil {
		log.Warn().Err(err).Str("hash", hash).Msg("cart: delete item payload")
	}
	return nil
}

// SetQuantity adjusts the quantity of the line for hash by delta, floored at
// one. Reaching zero goes through RemoveItem. It returns the new quantity.
func (s *CartStore) SetQuantity(ctx context.Context, hash string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.lines(ctx)
	if err != nil {
		return 0, err
	}
	for i := range lines {
		if lines[i].Hash != hash {
			continue
		}
		q := lines[i].Quantity + delta
		if q < 1 {
			q = 1
		}
		lines[i].Quantity = q
		if err := s.saveLines(ctx, lines); err != nil {
			return 0, err
		}
		return q, nil
	}
	return 0, ErrLineNotFound
}

// Total sums unit price times quantity over all lines. Lines whose payload is
// missing or unreadable contribute nothing.
func (s *CartStore) Total(ctx context.Context) (decimal.Decimal, error) {
	views, err := s.Lines(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, v := range views {
		total = total.Add(v.LineTotal)
	}
	return total, nil
}

// Lines returns the cart lines in insertion order, resolved against their
// payloads. Lines without a readable payload are skipped.
func (s *CartStore) Lines(ctx context.Context) ([]CartLineView, error) {
	s.mu.Lock()
	lines, err := s.lines(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return []CartLineView{}, nil
	}

	keys := make([]string, len(lines))
	for i, l := range lines {
		keys[i] = domain.CartItemKey(l.Hash)
	}
	payloads, err := s.Repo.GetValues(ctx, s.DB, keys...)
	if err != nil {
		return nil, fmt.Errorf("cart: read items: %w", err)
	}

	out := make([]CartLineView, 0, len(lines))
	for i, l := range lines {
		raw, ok := payloads[keys[i]]
		if !ok {
			log.Warn().Str("hash", l.Hash).Msg("cart line without item payload")
			continue
		}
		var item domain.CartItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			log.Warn().Err(err).Str("hash", l.Hash).Msg("unreadable cart item payload")
			continue
		}
		unit := item.UnitPrice()
		out = append(out, CartLineView{
			Hash:      l.Hash,
			Quantity:  l.Quantity,
			Item:      item,
			UnitPrice: unit,
			LineTotal: unit.Mul(decimal.NewFromInt(int64(l.Quantity))),
		})
	}
	return out, nil
}

// Clear empties the cart and removes every stored item payload.
func (s *CartStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.Repo.ListKeys(ctx, s.DB, domain.KeyCartItemPrefix)
	if err != nil {
		return fmt.Errorf("cart: list items: %w", err)
	}
	keys = append(keys, domain.KeyCart)
	if err := s.Repo.DeleteValues(ctx, s.DB, keys...); err != nil {
		return fmt.Errorf("cart: clear: %w", err)
	}
	return nil
}

// lines reads the cart root. Callers hold s.mu.
func (s *CartStore) lines(ctx context.Context) ([]domain.CartLine, error) {
	raw, err := s.Repo.GetValue(ctx, s.DB, domain.KeyCart)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []domain.CartLine{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cart: read: %w", err)
	}
	var lines []domain.CartLine
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &lines); err != nil {
			return nil, fmt.Errorf("cart: decode: %w", err)
		}
	}
	// Normalize: drop blank hashes, merge duplicates, floor quantities.
	out := make([]domain.CartLine, 0, len(lines))
	idx := map[string]int{}
	for _, l := range lines {
		if l.Hash == "" {
			continue
		}
		if l.Quantity < 1 {
			l.Quantity = 1
		}
		if i, ok := idx[l.Hash]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		idx[l.Hash] = len(out)
		out = append(out, l)
	}
	return out, nil
}

func (s *CartStore) saveLines(ctx context.Context, lines []domain.CartLine) error {
	if lines == nil {
		lines = []domain.CartLine{}
	}
	b, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("cart: encode lines: %w", err)
	}
	if err := s.Repo.PutValue(ctx, s.DB, domain.KeyCart, string(b)); err != nil {
		return fmt.Errorf("cart: write: %w", err)
	}
	return nil
}
