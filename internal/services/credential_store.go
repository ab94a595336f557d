package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/campus-cafe-sync/internal/domain"
)

// CredentialStore persists the Credential Record as independent key-value
// rows. A missing row reads as absent, so a partial write can never corrupt
// the record as a whole. Only the SessionManager writes to it.
type CredentialStore struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the key-value repository.
	Repo KVRepo
}

// NewCredentialStore constructs a CredentialStore.
func NewCredentialStore(db *gorm.DB, r KVRepo) *CredentialStore {
	return &CredentialStore{DB: db, Repo: r}
}

// Load reads every credential field. Absent fields are empty strings.
func (s *CredentialStore) Load(ctx context.Context) (domain.Credentials, error) {
	vals, err := s.Repo.GetValues(ctx, s.DB, domain.CredentialKeys...)
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("credentials: load: %w", err)
	}
	return domain.Credentials{
		AccessToken:  vals[domain.KeyAccessToken],
		RefreshToken: vals[domain.KeyRefreshToken],
		UserFullName: vals[domain.KeyUserFullName],
		UserPhotoURL: vals[domain.KeyUserPhotoURL],
	}, nil
}

// AccessToken returns the stored access token and whether it is present.
func (s *CredentialStore) AccessToken(ctx context.Context) (string, bool, error) {
	return s.get(ctx, domain.KeyAccessToken)
}

// RefreshToken returns the stored refresh token and whether it is present.
func (s *CredentialStore) RefreshToken(ctx context.Context) (string, bool, error) {
	return s.get(ctx, domain.KeyRefreshToken)
}

func (s *CredentialStore) get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.Repo.GetValue(ctx, s.DB, key)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("credentials: read %s: %w", key, err)
	}
	if strings.TrimSpace(v) == "" {
		return "", false, nil
	}
	return v, true, nil
}

// SaveLogin writes a fresh record after login or registration. Profile fields
// not provided are cleared so a previous user's name never leaks into the new
// session.
func (s *CredentialStore) SaveLogin(ctx context.Context, pair domain.TokenPair, profile *domain.UserProfile) error {
	put := map[string]string{
		domain.KeyAccessToken:  pair.AccessToken,
		domain.KeyRefreshToken: pair.RefreshToken,
	}
	var drop []string
	if profile != nil {
		setOrDrop(put, &drop, domain.KeyUserFullName, profile.FullName)
		setOrDrop(put, &drop, domain.KeyUserPhotoURL, profile.PhotoURL)
	} else {
		drop = append(drop, domain.KeyUserFullName, domain.KeyUserPhotoURL)
	}
	if pair.RefreshToken == "" {
		delete(put, domain.KeyRefreshToken)
		drop = append(drop, domain.KeyRefreshToken)
	}
	return s.write(ctx, put, drop)
}

// SaveTokens overwrites the token pair after a refresh. An empty refresh token
// in pair keeps the stored one.
func (s *CredentialStore) SaveTokens(ctx context.Context, pair domain.TokenPair) error {
	put := map[string]string{domain.KeyAccessToken: pair.AccessToken}
	if pair.RefreshToken != "" {
		put[domain.KeyRefreshToken] = pair.RefreshToken
	}
	return s.write(ctx, put, nil)
}

// SaveProfile stores the derived profile fields. Empty fields are removed.
func (s *CredentialStore) SaveProfile(ctx context.Context, profile domain.UserProfile) error {
	put := map[string]string{}
	var drop []string
	setOrDrop(put, &drop, domain.KeyUserFullName, profile.FullName)
	setOrDrop(put, &drop, domain.KeyUserPhotoURL, profile.PhotoURL)
	return s.write(ctx, put, drop)
}

// Wipe erases the entire record. Wiping an empty record is a no-op.
func (s *CredentialStore) Wipe(ctx context.Context) error {
	if err := s.Repo.DeleteValues(ctx, s.DB, domain.CredentialKeys...); err != nil {
		return fmt.Errorf("credentials: wipe: %w", err)
	}
	return nil
}

func (s *CredentialStore) write(ctx context.Context, put map[string]string, drop []string) error {
	if err := s.Repo.PutValues(ctx, s.DB, put); err != nil {
		return fmt.Errorf("credentials: write: %w", err)
	}
	if len(drop) > 0 {
		if err := s.Repo.DeleteValues(ctx, s.DB, drop...); err != nil {
			return fmt.Errorf("credentials: clear: %w", err)
		}
	}
	return nil
}

func setOrDrop(put map[string]string, drop *[]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		put[key] = v
		return
	}
	*drop = append(*drop, key)
}
