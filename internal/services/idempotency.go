package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/campus-cafe-sync/internal/domain"
)

// DefaultIdempotencyTTL is how long a completed write can be replayed.
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyStore remembers the outcome of writes performed under an
// Idempotency-Key so a retried request replays instead of repeating the write.
type IdempotencyStore struct {
	DB   *gorm.DB
	Repo KVRepo
	TTL  time.Duration
	Now  func() time.Time
}

// NewIdempotencyStore constructs an IdempotencyStore; ttl <= 0 uses
// DefaultIdempotencyTTL.
func NewIdempotencyStore(db *gorm.DB, r KVRepo, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &IdempotencyStore{DB: db, Repo: r, TTL: ttl, Now: time.Now}
}

// Lookup returns the live record for (scope, key). Expired or unreadable
// records are dropped and read as a miss.
func (s *IdempotencyStore) Lookup(ctx context.Context, scope, key string) (*domain.IdempotencyRecord, bool, error) {
	k := domain.IdempotencyKey(scope, key)
	raw, err := s.Repo.GetValue(ctx, s.DB, k)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("idempotency: lookup: %w", err)
	}

	var rec domain.IdempotencyRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.Expired(s.Now()) {
		_ = s.Repo.DeleteValues(ctx, s.DB, k)
		return nil, false, nil
	}
	return &rec, true, nil
}

// Exists adapts Lookup to the shape expected by the idempotency middleware.
func (s *IdempotencyStore) Exists(ctx context.Context, scope, key string) (bool, error) {
	_, ok, err := s.Lookup(ctx, scope, key)
	return ok, err
}

// Remember stores the outcome of a completed write.
func (s *IdempotencyStore) Remember(ctx context.Context, scope, key, result string, status int) error {
	now := s.Now().UTC()
	b, err := json.Marshal(domain.IdempotencyRecord{
		Result:    result,
		Status:    status,
		CreatedAt: now,
		ExpiresAt: now.Add(s.TTL),
	})
	if err != nil {
		return err
	}
	if err := s.Repo.PutValue(ctx, s.DB, domain.IdempotencyKey(scope, key), string(b)); err != nil {
		return fmt.Errorf("idempotency: remember: %w", err)
	}
	return nil
}

// Purge deletes every expired record and returns how many were removed.
func (s *IdempotencyStore) Purge(ctx context.Context) (int, error) {
	keys, err := s.Repo.ListKeys(ctx, s.DB, domain.KeyIdempotencyPrefix)
	if err != nil || len(keys) == 0 {
		return 0, err
	}
	vals, err := s.Repo.GetValues(ctx, s.DB, keys...)
	if err != nil {
		return 0, err
	}
	now := s.Now()
	var stale []string
	for _, k := range keys {
		var rec domain.IdempotencyRecord
		if err := json.Unmarshal([]byte(vals[k]), &rec); err != nil || rec.Expired(now) {
			stale = append(stale, k)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	return len(stale), s.Repo.DeleteValues(ctx, s.DB, stale...)
}
