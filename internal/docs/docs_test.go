package docs

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/swaggo/swag"
)

func TestRegister_ServesValidDocument(t *testing.T) {
	Register("/bridge")
	Register("/bridge") // second call must not panic

	doc, err := swag.ReadDoc()
	if err != nil {
		t.Fatalf("read doc: %v", err)
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		t.Fatalf("doc is not valid JSON: %v", err)
	}
	if parsed["basePath"] != "/bridge" {
		t.Fatalf("basePath=%v", parsed["basePath"])
	}
	if !strings.Contains(doc, `"/cart/items"`) {
		t.Fatalf("cart route missing")
	}
}
