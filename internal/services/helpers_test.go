package services

import (
	"context"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/campus-cafe-sync/internal/repo"
)

// newTestDB opens a migrated in-memory database unique to the caller.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:services_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// testKV implements KVRepo on top of the repo package, as the router does.
type testKV struct{}

func (testKV) GetValue(ctx context.Context, db *gorm.DB, key string) (string, error) {
	return repo.GetValue(ctx, db, key)
}

func (testKV) GetValues(ctx context.Context, db *gorm.DB, keys ...string) (map[string]string, error) {
	return repo.GetValues(ctx, db, keys...)
}

func (testKV) PutValue(ctx context.Context, db *gorm.DB, key, value string) error {
	return repo.PutValue(ctx, db, key, value)
}

func (testKV) PutValues(ctx context.Context, db *gorm.DB, values map[string]string) error {
	return repo.PutValues(ctx, db, values)
}

func (testKV) DeleteValues(ctx context.Context, db *gorm.DB, keys ...string) error {
	return repo.DeleteValues(ctx, db, keys...)
}

func (testKV) ListKeys(ctx context.Context, db *gorm.DB, prefix string) ([]string, error) {
	return repo.ListKeys(ctx, db, prefix)
}

// failingKV fails every call with err.
type failingKV struct{ err error }

func (f failingKV) GetValue(context.Context, *gorm.DB, string) (string, error) { return "", f.err }
func (f failingKV) GetValues(context.Context, *gorm.DB, ...string) (map[string]string, error) {
	return nil, f.err
}
func (f failingKV) PutValue(context.Context, *gorm.DB, string, string) error { return f.err }
func (f failingKV) PutValues(context.Context, *gorm.DB, map[string]string) error { return f.err }
func (f failingKV) DeleteValues(context.Context, *gorm.DB, ...string) error { return f.err }
func (f failingKV) ListKeys(context.Context, *gorm.DB, string) ([]string, error) { return nil, f.err }
