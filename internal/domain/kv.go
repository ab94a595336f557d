// Package domain defines the persistence model and the typed payloads shared
// across the repository, API client, and service layers.
package domain

import "time"

// Entry is a single durable key-value row. Credentials, cart lines, cart item
// payloads, and cached collection pages are all stored as independent entries
// so a partial write never corrupts a neighbouring record.
//
// Fields:
//   - Key: namespaced string key (e.g. "access_token", "events_cache").
//   - Value: opaque string value; JSON for structured data.
//   - UpdatedAt: last write time, managed by GORM.
type Entry struct {
	Key       string    `json:"key"        gorm:"type:varchar(191);primaryKey"`
	Value     string    `json:"value"      gorm:"type:text;not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"index"`
}

// TableName returns the database table name for Entry.
func (Entry) TableName() string { return "kv_entries" }

// Persisted key names. Cache keys are derived per resource kind.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUserFullName = "user_fullname"
	KeyUserPhotoURL = "user_photo_url"

	KeyCart           = "cart"
	KeyCartItemPrefix = "cart_item_"

	KeyLastLocation = "last_location"
)

// CredentialKeys lists every key that makes up the Credential Record.
var CredentialKeys = []string{KeyAccessToken, KeyRefreshToken, KeyUserFullName, KeyUserPhotoURL}

// CacheKey returns the payload key for a cached resource kind.
func CacheKey(resource string) string { return resource + "_cache" }

// CacheTimestampKey returns the fetch-time key for a cached resource kind.
func CacheTimestampKey(resource string) string { return resource + "_cache_timestamp" }

// CachePageKey returns the page-number key for a cached resource kind.
func CachePageKey(resource string) string { return resource + "_cache_page" }

// CartItemKey returns the payload key for a cart item content hash.
func CartItemKey(hash string) string { return KeyCartItemPrefix + hash }
