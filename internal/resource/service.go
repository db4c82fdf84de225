package resource

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/tbourn/restaurant-backoffice/internal/api"
)

// CallOption adjusts a single create call.
type CallOption func(http.Header)

// WithIdempotencyKey makes a create safe to retry: the server returns the
// record created by the first request carrying the same key.
func WithIdempotencyKey(key string) CallOption {
	return func(h http.Header) {
		if key != "" {
			h.Set(api.HeaderIdempotencyKey, key)
		}
	}
}

// Service is the REST client of one resource.
type Service[T any] struct {
	c    *Client
	name string
}

// NewService returns the client of resource name (its URL segment).
func NewService[T any](c *Client, name string) *Service[T] {
	return &Service[T]{c: c, name: name}
}

// Resource returns the resource name.
func (s *Service[T]) Resource() string { return s.name }

// List fetches one page.
func (s *Service[T]) List(ctx context.Context, p api.ListParams) (api.ListResponse[T], error) {
	var out api.ListResponse[T]
	target := s.c.endpoint(s.name)
	if q := p.Values().Encode(); q != "" {
		target += "?" + q
	}
	if err := s.c.do(ctx, "list "+s.name, http.MethodGet, target, nil, nil, &out); err != nil {
		return api.ListResponse[T]{}, err
	}
	if out.Data == nil {
		out.Data = []T{}
	}
	return out, nil
}

// Get fetches one record.
func (s *Service[T]) Get(ctx context.Context, id string) (T, error) {
	var out api.ItemResponse[T]
	err := s.c.do(ctx, "get "+s.name, http.MethodGet, s.c.endpoint(s.name, id), nil, nil, &out)
	return out.Data, err
}

// Create posts payload and returns the stored record.
func (s *Service[T]) Create(ctx context.Context, payload any, opts ...CallOption) (T, error) {
	hdr := http.Header{}
	for _, o := range opts {
		o(hdr)
	}
	var out api.ItemResponse[T]
	err := s.c.do(ctx, "create "+s.name, http.MethodPost, s.c.endpoint(s.name), payload, hdr, &out)
	return out.Data, err
}

// Update patches the record. The id and timestamps are stripped from the
// body; the id travels in the path only.
func (s *Service[T]) Update(ctx context.Context, id string, payload any) (T, error) {
	var zero T
	body, err := withoutIdentity(payload)
	if err != nil {
		return zero, &Error{Kind: KindRequest, Op: "update " + s.name, Message: "encode body", Err: err}
	}
	var out api.ItemResponse[T]
	err = s.c.do(ctx, "update "+s.name, http.MethodPatch, s.c.endpoint(s.name, id), body, nil, &out)
	return out.Data, err
}

// Delete removes the record.
func (s *Service[T]) Delete(ctx context.Context, id string) error {
	return s.c.do(ctx, "delete "+s.name, http.MethodDelete, s.c.endpoint(s.name, id), nil, nil, nil)
}

var identityFields = []string{"id", "createdAt", "updatedAt"}

func withoutIdentity(payload any) (map[string]any, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	for _, f := range identityFields {
		delete(m, f)
	}
	return m, nil
}
