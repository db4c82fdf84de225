package domain

import "sort"

// FilterKind selects how a filter's raw query value is parsed.
type FilterKind int

const (
	FilterString FilterKind = iota
	FilterBool
)

// Filter maps a query parameter onto a column.
type Filter struct {
	Column string
	Kind   FilterKind
}

// Descriptor describes a resource to the list endpoints and to clients:
// its URL segment, searchable columns and whitelisted sort/filter fields.
type Descriptor struct {
	Name        string            // URL segment and cache namespace, e.g. "menu-items"
	Search      []string          // columns matched by term
	Sortable    map[string]string // sortBy value -> column
	Filters     map[string]Filter // query parameter -> column
	DefaultSort string            // column
}

// SortFields returns the accepted sortBy values in lexical order.
func (d Descriptor) SortFields() []string {
	out := make([]string, 0, len(d.Sortable))
	for k := range d.Sortable {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// FilterParams returns the accepted filter parameters in lexical order.
func (d Descriptor) FilterParams() []string {
	out := make([]string, 0, len(d.Filters))
	for k := range d.Filters {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// StatusParam is the filter parameter driven by a table's status filter.
const StatusParam = "isActive"

func describe(name string, search []string, sortable map[string]string, filters map[string]Filter) Descriptor {
	s := map[string]string{"createdAt": "created_at", "updatedAt": "updated_at"}
	for k, v := range sortable {
		s[k] = v
	}
	f := map[string]Filter{StatusParam: {Column: "is_active", Kind: FilterBool}}
	for k, v := range filters {
		f[k] = v
	}
	return Descriptor{Name: name, Search: search, Sortable: s, Filters: f, DefaultSort: "created_at"}
}

var (
	Brands = describe("brands",
		[]string{"name", "description"},
		map[string]string{"name": "name"},
		nil)

	Restaurants = describe("restaurants",
		[]string{"name", "address"},
		map[string]string{"name": "name"},
		map[string]Filter{"brandId": {Column: "brand_id"}})

	Categories = describe("categories",
		[]string{"name"},
		map[string]string{"name": "name", "position": "position"},
		map[string]Filter{"restaurantId": {Column: "restaurant_id"}})

	MenuItems = describe("menu-items",
		[]string{"name", "description"},
		map[string]string{"name": "name", "price": "price"},
		map[string]Filter{"categoryId": {Column: "category_id"}, "taxGroupId": {Column: "tax_group_id"}})

	Discounts = describe("discounts",
		[]string{"name"},
		map[string]string{"name": "name", "value": "value"},
		map[string]Filter{"kind": {Column: "kind"}})

	TaxGroups = describe("tax-groups",
		[]string{"name"},
		map[string]string{"name": "name", "rate": "rate"},
		nil)

	Tables = describe("tables",
		[]string{"name"},
		map[string]string{"name": "name", "seats": "seats"},
		map[string]Filter{"restaurantId": {Column: "restaurant_id"}})

	Roles = describe("roles",
		[]string{"name"},
		map[string]string{"name": "name"},
		nil)

	Users = describe("users",
		[]string{"name", "email"},
		map[string]string{"name": "name", "email": "email"},
		map[string]Filter{"roleId": {Column: "role_id"}})
)

// Descriptors returns every resource descriptor.
func Descriptors() []Descriptor {
	return []Descriptor{Brands, Restaurants, Categories, MenuItems, Discounts, TaxGroups, Tables, Roles, Users}
}

// Lookup finds a descriptor by resource name.
func Lookup(name string) (Descriptor, bool) {
	for _, d := range Descriptors() {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}
