// Package repo implements the durable key-value persistence layer, backed by
// GORM. This file provides the key-value repository functions used by the
// credential store, the local cart, and the remote collection cache.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business logic, only persistence and query composition.
//
// Error semantics:
//   - A missing key returns ErrNotFound (an alias of gorm.ErrRecordNotFound).
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/campus-cafe-sync/internal/domain"
)

// ErrNotFound is returned when a requested key does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// upsert overwrites value and updated_at when the key already exists.
var upsert = clause.OnConflict{
	Columns:   []clause.Column{{Name: "key"}},
	DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
}

// GetValue returns the value stored under key, or ErrNotFound.
func GetValue(ctx context.Context, db *gorm.DB, key string) (string, error) {
	var e domain.Entry
	err := db.WithContext(ctx).Where("key = ?", key).First(&e).Error
	if err != nil {
		return "", err
	}
	return e.Value, nil
}

// GetValues returns the values for every key that exists. Missing keys are
// simply absent from the returned map.
func GetValues(ctx context.Context, db *gorm.DB, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	var rows []domain.Entry
	if err := db.WithContext(ctx).Where("key IN ?", keys).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

// PutValue stores value under key, replacing any previous value.
func PutValue(ctx context.Context, db *gorm.DB, key, value string) error {
	e := &domain.Entry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return db.WithContext(ctx).Clauses(upsert).Create(e).Error
}

// PutValues stores all values in a single transaction. Keys are written in
// sorted order so concurrent batches touch rows deterministically.
func PutValues(ctx context.Context, db *gorm.DB, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := time.Now().UTC()
	rows := make([]domain.Entry, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, domain.Entry{Key: k, Value: values[k], UpdatedAt: now})
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(upsert).Create(&rows).Error
	})
}

// DeleteValues removes the given keys. Deleting a missing key is not an error.
func DeleteValues(ctx context.Context, db *gorm.DB, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return db.WithContext(ctx).Where("key IN ?", keys).Delete(&domain.Entry{}).Error
}

// ListKeys returns all keys starting with prefix, in ascending order.
func ListKeys(ctx context.Context, db *gorm.DB, prefix string) ([]string, error) {
	if strings.TrimSpace(prefix) == "" {
		return nil, errors.New("prefix must not be empty")
	}
	var keys []string
	err := db.WithContext(ctx).
		Model(&domain.Entry{}).
		Where("key LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%").
		Order("key ASC").
		Pluck("key", &keys).Error
	return keys, err
}

// escapeLike escapes LIKE wildcards so prefixes such as "cart_item_" match literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
