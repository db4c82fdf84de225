package docs

import (
	"encoding/json"
	"testing"

	"github.com/swaggo/swag"
)

func TestReadDoc(t *testing.T) {
	raw, err := swag.ReadDoc()
	if err != nil {
		t.Fatalf("ReadDoc: %v", err)
	}
	var doc struct {
		BasePath string                    `json:"basePath"`
		Info     map[string]string         `json:"info"`
		Paths    map[string]map[string]any `json:"paths"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, raw)
	}
	if doc.BasePath != "/api/v1" || doc.Info["title"] != SwaggerInfo.Title {
		t.Fatalf("info not rendered: %+v %s", doc.Info, doc.BasePath)
	}
	for _, p := range []string{"/brands", "/menu-items/{id}", "/tax-groups", "/users/{id}"} {
		if _, ok := doc.Paths[p]; !ok {
			t.Fatalf("missing path %s", p)
		}
	}
	if len(doc.Paths["/roles/{id}"]) != 4 {
		t.Fatalf("record path should have 4 operations: %v", doc.Paths["/roles/{id}"])
	}
}
