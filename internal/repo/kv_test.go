package repo

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/campus-cafe-sync/internal/domain"
)

func newKVDB(t *testing.T, migrate bool) *gorm.DB {
	t.Helper()
	// Use a unique in-memory database per test to avoid schema leakage across tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if migrate {
		if err := AutoMigrate(db); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func TestGetValue_MissingReturnsNotFound(t *testing.T) {
	db := newKVDB(t, true)

	v, err := GetValue(context.Background(), db, "access_token")
	if !errors.Is(err, ErrNotFound) || v != "" {
		t.Fatalf("expected (\"\", ErrNotFound), got (%q, %v)", v, err)
	}
}

func TestPutValue_InsertThenOverwrite(t *testing.T) {
	db := newKVDB(t, true)
	ctx := context.Background()

	if err := PutValue(ctx, db, "access_token", "a1"); err != nil {
		t.Fatalf("PutValue: %v", err)
	}
	if err := PutValue(ctx, db, "access_token", "a2"); err != nil {
		t.Fatalf("PutValue overwrite: %v", err)
	}

	v, err := GetValue(ctx, db, "access_token")
	if err != nil || v != "a2" {
		t.Fatalf("expected a2, got %q err=%v", v, err)
	}

	var n int64
	db.Model(&domain.Entry{}).Count(&n)
	if n != 1 {
		t.Fatalf("expected a single row after overwrite, got %d", n)
	}
}

func TestPutValues_GetValues_DeleteValues(t *testing.T) {
	db := newKVDB(t, true)
	ctx := context.Background()

	in := map[string]string{
		"access_token":  "a",
		"refresh_token": "r",
		"user_fullname": "Ada Lovelace",
	}
	if err := PutValues(ctx, db, in); err != nil {
		t.Fatalf("PutValues: %v", err)
	}
	if err := PutValues(ctx, db, nil); err != nil {
		t.Fatalf("PutValues(nil) should be a no-op, got %v", err)
	}

	got, err := GetValues(ctx, db, "access_token", "refresh_token", "user_fullname", "user_photo_url")
	if err != nil {
		t.Fatalf("GetValues: %v", err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("GetValues = %v; want %v", got, in)
	}

	if err := DeleteValues(ctx, db, "access_token", "refresh_token", "missing"); err != nil {
		t.Fatalf("DeleteValues: %v", err)
	}
	got, _ = GetValues(ctx, db, "access_token", "refresh_token", "user_fullname")
	if len(got) != 1 || got["user_fullname"] != "Ada Lovelace" {
		t.Fatalf("unexpected values after delete: %v", got)
	}

	if err := DeleteValues(ctx, db); err != nil {
		t.Fatalf("DeleteValues() should be a no-op, got %v", err)
	}
}

func TestListKeys_PrefixIsLiteral(t *testing.T) {
	db := newKVDB(t, true)
	ctx := context.Background()

	_ = PutValues(ctx, db, map[string]string{
		"cart_item_b": "{}",
		"cart_item_a": "{}",
		"cartXitemXc": "{}", // would match if '_' were a wildcard
		"cart":        "[]",
	})

	keys, err := ListKeys(ctx, db, "cart_item_")
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	want := []string{"cart_item_a", "cart_item_b"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("ListKeys = %v; want %v", keys, want)
	}

	if _, err := ListKeys(ctx, db, "  "); err == nil {
		t.Fatalf("expected error for blank prefix")
	}
}

func TestPutValue_ErrorWithoutTable(t *testing.T) {
	db := newKVDB(t, false) // intentionally NOT migrating
	if err := PutValue(context.Background(), db, "k", "v"); err == nil {
		t.Fatalf("expected error when table is missing")
	}
}
