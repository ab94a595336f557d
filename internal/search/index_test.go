package search

import (
	"testing"

	"github.com/tbourn/campus-cafe-sync/internal/domain"
)

func sampleMenu() []domain.MenuItem {
	return []domain.MenuItem{
		{ID: "1", CafeID: "c1", Name: "Iced Latte", Description: "Espresso with cold milk"},
		{ID: "2", CafeID: "c1", Name: "Latte", Description: "Espresso with steamed milk"},
		{ID: "3", CafeID: "c1", Name: "Croissant", Description: "Butter pastry"},
		{ID: "4", CafeID: "c1"}, // nothing searchable
	}
}

func ids(rs []Result) []domain.ID {
	out := make([]domain.ID, len(rs))
	for i, r := range rs {
		out[i] = r.Item.ID
	}
	return out
}

func TestOptionsAndDefaults(t *testing.T) {
	def := defaultConfig()
	if def.nameWeight != 2 || def.stopwords != nil || def.maxItems != 0 {
		t.Fatalf("defaultConfig unexpected: %#v", def)
	}

	cfg := def
	WithNameWeight(3)(&cfg)
	WithNameWeight(0)(&cfg) // ignored
	if cfg.nameWeight != 3 {
		t.Fatalf("nameWeight=%d", cfg.nameWeight)
	}

	WithStopwords([]string{"  The ", "", "AN"})(&cfg)
	if _, ok := cfg.stopwords["the"]; !ok {
		t.Fatalf("missing 'the': %#v", cfg.stopwords)
	}
	if _, ok := cfg.stopwords["an"]; !ok {
		t.Fatalf("missing 'an': %#v", cfg.stopwords)
	}
	cfg2 := def
	WithStopwords(nil)(&cfg2)
	if cfg2.stopwords != nil {
		t.Fatalf("empty stopwords should remain nil")
	}

	WithMaxItems(2)(&cfg)
	WithMaxItems(-1)(&cfg) // ignored
	if cfg.maxItems != 2 {
		t.Fatalf("maxItems=%d", cfg.maxItems)
	}
}

func TestNewMenuIndex_SkipsEmptyAndCaps(t *testing.T) {
	if n := NewMenuIndex(sampleMenu()).Len(); n != 3 {
		t.Fatalf("Len=%d want 3", n)
	}
	if n := NewMenuIndex(sampleMenu(), WithMaxItems(2)).Len(); n != 2 {
		t.Fatalf("capped Len=%d want 2", n)
	}
	if NewMenuIndex(nil).TopK("latte", 5) != nil {
		t.Fatalf("empty index should return nil")
	}
}

func TestTopK_NameMatchOutranksLongerItem(t *testing.T) {
	idx := NewMenuIndex(sampleMenu())

	got := idx.TopK("latte", 5)
	if len(got) != 2 || got[0].Item.ID != "2" || got[1].Item.ID != "1" {
		t.Fatalf("order=%v", ids(got))
	}
	if got[0].Score <= got[1].Score {
		t.Fatalf("scores not descending: %v", got)
	}

	// Description-only match still ranks; the shorter token set wins.
	got = idx.TopK("MILK", 0)
	if len(got) != 2 || got[0].Item.ID != "2" {
		t.Fatalf("milk order=%v", ids(got))
	}

	if got := idx.TopK("latte", 1); len(got) != 1 {
		t.Fatalf("k=1 returned %d", len(got))
	}
}

func TestTopK_BlankAndUnmatched(t *testing.T) {
	idx := NewMenuIndex(sampleMenu())
	for _, q := range []string{"", "   ", "!!!", "tea"} {
		if got := idx.TopK(q, 3); got != nil {
			t.Fatalf("%q -> %v", q, ids(got))
		}
	}
}

func TestTopK_StopwordsAndFolding(t *testing.T) {
	items := append(sampleMenu(), domain.MenuItem{ID: "5", Name: "CAFÉ Mocha"})
	idx := NewMenuIndex(items, WithStopwords([]string{"with"}))

	if got := idx.TopK("with", 3); got != nil {
		t.Fatalf("stopword matched: %v", ids(got))
	}
	got := idx.TopK("café", 3)
	if len(got) != 1 || got[0].Item.ID != "5" {
		t.Fatalf("folded match=%v", ids(got))
	}
}

func TestTopK_OptionValuesAreSearchable(t *testing.T) {
	idx := NewMenuIndex([]domain.MenuItem{
		{ID: "7", Name: "Flat White", Options: []domain.MenuOption{{Name: "milk", Value: "Oat"}}},
	})
	if got := idx.TopK("oat", 3); len(got) != 1 || got[0].Item.ID != "7" {
		t.Fatalf("option match=%v", ids(got))
	}
}

func TestTopK_TieBreaksOnNameLengthThenID(t *testing.T) {
	idx := NewMenuIndex([]domain.MenuItem{
		{ID: "b", Name: "Tea"},
		{ID: "a", Name: "Tea"},
		{ID: "c", Name: "Teas"}, // different token, no match
	})
	got := idx.TopK("tea", 5)
	if len(got) != 2 || got[0].Item.ID != "a" || got[1].Item.ID != "b" {
		t.Fatalf("tie order=%v", ids(got))
	}
}
