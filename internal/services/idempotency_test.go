package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/tbourn/campus-cafe-sync/internal/domain"
)

func TestIdempotencyStore_RememberLookupExpire(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	clk := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	s := NewIdempotencyStore(db, testKV{}, time.Hour)
	s.Now = clk.Now

	if _, ok, err := s.Lookup(ctx, "POST /cart/items", "k1"); ok || err != nil {
		t.Fatalf("empty store lookup = %v %v", ok, err)
	}
	if err := s.Remember(ctx, "POST /cart/items", "k1", "abc123", http.StatusCreated); err != nil {
		t.Fatalf("Remember: %v", err)
	}

	rec, ok, err := s.Lookup(ctx, "POST /cart/items", "k1")
	if err != nil || !ok || rec.Result != "abc123" || rec.Status != http.StatusCreated {
		t.Fatalf("Lookup = %+v %v %v", rec, ok, err)
	}
	if ok, _ := s.Exists(ctx, "DELETE /cart", "k1"); ok {
		t.Fatalf("another scope must not see the key")
	}

	clk.Advance(time.Hour)
	if ok, _ := s.Exists(ctx, "POST /cart/items", "k1"); ok {
		t.Fatalf("record should expire after TTL")
	}
	keys, _ := (testKV{}).ListKeys(ctx, db, domain.KeyIdempotencyPrefix)
	if len(keys) != 0 {
		t.Fatalf("expired record should be dropped on lookup, keys=%v", keys)
	}
}

func TestIdempotencyStore_Purge(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	clk := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	s := NewIdempotencyStore(db, testKV{}, time.Minute)
	s.Now = clk.Now

	_ = s.Remember(ctx, "s", "old", "1", http.StatusCreated)
	clk.Advance(2 * time.Minute)
	_ = s.Remember(ctx, "s", "new", "2", http.StatusCreated)
	_ = (testKV{}).PutValue(ctx, db, domain.KeyIdempotencyPrefix+"garbage", "not json")

	n, err := s.Purge(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Purge = %d %v, want 2", n, err)
	}
	if ok, _ := s.Exists(ctx, "s", "new"); !ok {
		t.Fatalf("live record must survive Purge")
	}
}
