package services

import (
	"context"

	"gorm.io/gorm"
)

// KVRepo defines the key-value repository contract shared by the credential
// store, the cart, the collection cache, and the location service.
type KVRepo interface {
	// GetValue returns the value stored under key, or gorm.ErrRecordNotFound.
	GetValue(ctx context.Context, db *gorm.DB, key string) (string, error)

	// GetValues returns the values of the keys that exist.
	GetValues(ctx context.Context, db *gorm.DB, keys ...string) (map[string]string, error)

	// PutValue overwrites a single key.
	PutValue(ctx context.Context, db *gorm.DB, key, value string) error

	// PutValues overwrites several keys atomically.
	PutValues(ctx context.Context, db *gorm.DB, values map[string]string) error

	// DeleteValues removes keys; missing keys are ignored.
	DeleteValues(ctx context.Context, db *gorm.DB, keys ...string) error

	// ListKeys returns keys with the given prefix.
	ListKeys(ctx context.Context, db *gorm.DB, prefix string) ([]string, error)
}
