// Package api defines the JSON contract shared by the back-office server and
// its client: list parameters, response envelopes and the error body.
package api

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Query-string parameter names understood by every list endpoint.
const (
	ParamPage      = "page"
	ParamLimit     = "limit"
	ParamTerm      = "term"
	ParamSortBy    = "sortBy"
	ParamSortOrder = "sortOrder"
)

// Sort orders.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Error codes carried by ErrorResponse.Code.
const (
	CodeBadRequest       = "bad_request"
	CodeValidationFailed = "validation_failed"
	CodeNotFound         = "not_found"
	CodeConflict         = "conflict"
	CodeRateLimited      = "rate_limited"
	CodeInternal         = "internal_error"
	CodeUnavailable      = "unavailable"
)

// Headers used across the boundary.
const (
	HeaderRequestID        = "X-Request-ID"
	HeaderUserID           = "X-User-ID"
	HeaderIdempotencyKey   = "Idempotency-Key"
	HeaderIdempotentReplay = "Idempotent-Replay"
)

// Meta describes the page a list response carries.
type Meta struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
}

// ListResponse is the envelope of every list endpoint.
type ListResponse[T any] struct {
	Data []T `json:"data"`
	Meta Meta `json:"meta"`
}

// ItemResponse is the envelope of every single-record endpoint.
type ItemResponse[T any] struct {
	Data T `json:"data"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	RequestID string            `json:"request_id,omitempty"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// ListParams are the server-facing list parameters.
//
// Field order is part of the query cache identity: values are compared by
// their canonical JSON encoding.
type ListParams struct {
	Page      int               `json:"page"`
	Limit     int               `json:"limit"`
	SortBy    string            `json:"sortBy,omitempty"`
	SortOrder string            `json:"sortOrder,omitempty"`
	Term      string            `json:"term,omitempty"`
	Filters   map[string]string `json:"filters,omitempty"`
}

// Values encodes p as a query string. Empty term, sort and filter values
// are omitted.
func (p ListParams) Values() url.Values {
	v := url.Values{}
	if p.Page > 0 {
		v.Set(ParamPage, strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		v.Set(ParamLimit, strconv.Itoa(p.Limit))
	}
	if p.SortBy != "" {
		v.Set(ParamSortBy, p.SortBy)
	}
	if p.SortOrder != "" {
		v.Set(ParamSortOrder, p.SortOrder)
	}
	if t := strings.TrimSpace(p.Term); t != "" {
		v.Set(ParamTerm, t)
	}
	keys := make([]string, 0, len(p.Filters))
	for k := range p.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if val := p.Filters[k]; val != "" {
			v.Set(k, val)
		}
	}
	return v
}

// Clone returns a deep copy of p.
func (p ListParams) Clone() ListParams {
	out := p
	if p.Filters != nil {
		out.Filters = make(map[string]string, len(p.Filters))
		for k, v := range p.Filters {
			out.Filters[k] = v
		}
	}
	return out
}

// IsReserved reports whether name is one of the fixed list parameters and
// therefore cannot be used as a filter.
func IsReserved(name string) bool {
	switch name {
	case ParamPage, ParamLimit, ParamTerm, ParamSortBy, ParamSortOrder:
		return true
	}
	return false
}
