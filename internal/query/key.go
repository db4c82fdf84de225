package query

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/tbourn/restaurant-backoffice/internal/api"
)

// Kind is the operation a key caches.
type Kind string

const (
	KindList   Kind = "list"
	KindDetail Kind = "detail"
)

// Key identifies one cache slot. Params holds the canonical JSON encoding of
// the parameter value, so keys built from equal values compare equal with ==
// and can be used as map keys.
type Key struct {
	Resource string
	Kind     Kind
	Params   string
}

// NewKey builds a key. Map keys are sorted and struct fields keep their
// declaration order, so deep-equal params give equal keys.
func NewKey(resource string, kind Kind, params any) Key {
	raw, err := json.Marshal(params)
	if err != nil {
		raw = []byte(fmt.Sprintf("%#v", params))
	}
	return Key{Resource: resource, Kind: kind, Params: string(raw)}
}

// ListKey is the key of one list page.
func ListKey(resource string, p api.ListParams) Key {
	return NewKey(resource, KindList, p)
}

// DetailKey is the key of one record.
func DetailKey(resource, id string) Key {
	return NewKey(resource, KindDetail, id)
}

// Hash is a short fingerprint for logs and metrics.
func (k Key) Hash() uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(k.Resource)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(string(k.Kind))
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(k.Params)
	return d.Sum64()
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%016x", k.Resource, k.Kind, k.Hash())
}

// Predicate selects keys for Invalidate.
type Predicate func(Key) bool

// MatchResource selects every key of resource.
func MatchResource(resource string) Predicate {
	return func(k Key) bool { return k.Resource == resource }
}

// MatchResourceKind selects every key of resource with the given kind.
func MatchResourceKind(resource string, kind Kind) Predicate {
	return func(k Key) bool { return k.Resource == resource && k.Kind == kind }
}

// MatchKey selects exactly k.
func MatchKey(k Key) Predicate {
	return func(other Key) bool { return other == k }
}
