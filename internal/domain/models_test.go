package domain

import (
	"testing"
)

func TestModels_MigrateAndAssignIDs(t *testing.T) {
	db := newTestDB(t)
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	for _, m := range Models() {
		if !db.Migrator().HasTable(m) {
			t.Fatalf("expected table for %T", m)
		}
	}

	b := &Brand{Name: "Pasta Co"}
	if err := db.Create(b).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(b.ID) != 36 || b.EntityID() != b.ID {
		t.Fatalf("expected generated uuid, got %q", b.ID)
	}

	keep := &Brand{Base: Base{ID: "fixed-id"}, Name: "Keep"}
	if err := db.Create(keep).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	if keep.ID != "fixed-id" {
		t.Fatalf("caller id overwritten: %q", keep.ID)
	}
}

func TestRole_PermissionsRoundTrip(t *testing.T) {
	db := newTestDB(t)
	if err := db.AutoMigrate(&Role{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	r := &Role{Name: "manager", Permissions: []string{"menu:write", "reports:read"}}
	if err := db.Create(r).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	var got Role
	if err := db.First(&got, "id = ?", r.ID).Error; err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got.Permissions) != 2 || got.Permissions[1] != "reports:read" {
		t.Fatalf("permissions not persisted: %#v", got.Permissions)
	}
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		Brand{}.TableName():       "brands",
		MenuItem{}.TableName():    "menu_items",
		DiningTable{}.TableName(): "dining_tables",
		TaxGroup{}.TableName():    "tax_groups",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestDescriptors(t *testing.T) {
	seen := map[string]bool{}
	for _, d := range Descriptors() {
		if seen[d.Name] {
			t.Fatalf("duplicate resource %q", d.Name)
		}
		seen[d.Name] = true
		if d.Sortable["createdAt"] != "created_at" {
			t.Fatalf("%s: createdAt must be sortable", d.Name)
		}
		if f, ok := d.Filters[StatusParam]; !ok || f.Kind != FilterBool {
			t.Fatalf("%s: missing status filter", d.Name)
		}
		if len(d.Search) == 0 {
			t.Fatalf("%s: no search columns", d.Name)
		}
	}
	d, ok := Lookup("menu-items")
	if !ok || d.Filters["categoryId"].Column != "category_id" {
		t.Fatalf("Lookup(menu-items) = %+v, %v", d, ok)
	}
	if got := d.SortFields(); got[0] != "createdAt" || got[len(got)-1] != "updatedAt" {
		t.Fatalf("SortFields not sorted: %v", got)
	}
	if _, ok := Lookup("nope"); ok {
		t.Fatalf("unexpected descriptor for unknown resource")
	}
}
