package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/restaurant-backoffice/internal/api"
	"github.com/tbourn/restaurant-backoffice/internal/cache"
	"github.com/tbourn/restaurant-backoffice/internal/domain"
	"github.com/tbourn/restaurant-backoffice/internal/repo"
	"github.com/tbourn/restaurant-backoffice/internal/search"
)

// Repo is the persistence contract required by CrudService.
type Repo[T any] interface {
	List(ctx context.Context, db *gorm.DB, q repo.ListQuery) ([]T, int64, error)
	Get(ctx context.Context, db *gorm.DB, id string) (*T, error)
	Create(ctx context.Context, db *gorm.DB, v *T) error
	Save(ctx context.Context, db *gorm.DB, v *T) error
	Delete(ctx context.Context, db *gorm.DB, id string) error
	Stats(ctx context.Context, db *gorm.DB) (int64, *time.Time, error)
}

// GormRepo adapts the generic repo functions to Repo.
type GormRepo[T any] struct{}

func (GormRepo[T]) List(ctx context.Context, db *gorm.DB, q repo.ListQuery) ([]T, int64, error) {
	return repo.List[T](ctx, db, q)
}
func (GormRepo[T]) Get(ctx context.Context, db *gorm.DB, id string) (*T, error) {
	return repo.Get[T](ctx, db, id)
}
func (GormRepo[T]) Create(ctx context.Context, db *gorm.DB, v *T) error {
	return repo.Create(ctx, db, v)
}
func (GormRepo[T]) Save(ctx context.Context, db *gorm.DB, v *T) error { return repo.Save(ctx, db, v) }
func (GormRepo[T]) Delete(ctx context.Context, db *gorm.DB, id string) error {
	return repo.Delete[T](ctx, db, id)
}
func (GormRepo[T]) Stats(ctx context.Context, db *gorm.DB) (int64, *time.Time, error) {
	return repo.Stats[T](ctx, db)
}

// ListQuery is a list request as received from the transport layer.
// Filters hold raw query parameter values.
type ListQuery struct {
	Page      int
	Limit     int
	Term      string
	SortBy    string
	SortOrder string
	Filters   map[string]string
}

// Page is one page of results.
type Page[T any] struct {
	Items []T
	Total int64
	Page  int
	Limit int
}

// readOnlyFields are never taken from a request body.
var readOnlyFields = []string{"id", "createdAt", "updatedAt"}

// CrudService implements list/get/create/update/delete for one resource.
// Reads go through Cache; every successful write drops the resource's
// cached entries.
type CrudService[T any] struct {
	DB    *gorm.DB
	Repo  Repo[T]
	Desc  domain.Descriptor
	Cache cache.Store

	// DefaultLimit applies when a query has no limit.
	DefaultLimit int

	validate *validator.Validate
}

// NewCrudService constructs a CrudService backed by the gorm repo. A nil
// store disables caching.
func NewCrudService[T any](db *gorm.DB, desc domain.Descriptor, store cache.Store) *CrudService[T] {
	if store == nil {
		store = cache.Noop{}
	}
	return &CrudService[T]{
		DB:           db,
		Repo:         GormRepo[T]{},
		Desc:         desc,
		Cache:        store,
		DefaultLimit: 10,
		validate:     newValidator(),
	}
}

// Resource returns the resource name served by s.
func (s *CrudService[T]) Resource() string { return s.Desc.Name }

// List returns one page of records. Unknown sort fields or filters are
// rejected rather than ignored.
func (s *CrudService[T]) List(ctx context.Context, q ListQuery) (Page[T], error) {
	rq, norm, err := s.compile(q)
	if err != nil {
		return Page[T]{}, err
	}

	key, cacheable := s.cacheKey(ctx, "list", norm)
	if cacheable {
		var cached Page[T]
		if err := cache.Load(ctx, s.Cache, key, &cached); err == nil {
			return cached, nil
		} else if !cache.IsMiss(err) {
			log.Warn().Err(err).Str("resource", s.Desc.Name).Msg("response cache read failed")
		}
	}

	items, total, err := s.Repo.List(ctx, s.DB, rq)
	if err != nil {
		return Page[T]{}, err
	}
	page := Page[T]{Items: items, Total: total, Page: norm.Page, Limit: norm.Limit}
	if cacheable {
		s.store(ctx, key, page)
	}
	return page, nil
}

// Get returns one record or ErrNotFound.
func (s *CrudService[T]) Get(ctx context.Context, id string) (*T, error) {
	key, cacheable := s.cacheKey(ctx, "get", id)
	if cacheable {
		var cached T
		if err := cache.Load(ctx, s.Cache, key, &cached); err == nil {
			return &cached, nil
		} else if !cache.IsMiss(err) {
			log.Warn().Err(err).Str("resource", s.Desc.Name).Msg("response cache read failed")
		}
	}

	v, err := s.Repo.Get(ctx, s.DB, id)
	if err != nil {
		return nil, mapNotFound(err)
	}
	if cacheable {
		s.store(ctx, key, v)
	}
	return v, nil
}

// Create validates payload and inserts a new record.
func (s *CrudService[T]) Create(ctx context.Context, payload map[string]any) (*T, error) {
	v := new(T)
	if err := decodeInto(v, stripReadOnly(payload)); err != nil {
		return nil, err
	}
	if err := validateStruct(s.validate, v); err != nil {
		return nil, err
	}
	if err := s.Repo.Create(ctx, s.DB, v); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return v, nil
}

// Update merges patch onto the stored record, validates the result and
// saves it. Identity and timestamps in patch are ignored.
func (s *CrudService[T]) Update(ctx context.Context, id string, patch map[string]any) (*T, error) {
	cur, err := s.Repo.Get(ctx, s.DB, id)
	if err != nil {
		return nil, mapNotFound(err)
	}
	if err := decodeInto(cur, stripReadOnly(patch)); err != nil {
		return nil, err
	}
	if err := validateStruct(s.validate, cur); err != nil {
		return nil, err
	}
	if err := s.Repo.Save(ctx, s.DB, cur); err != nil {
		return nil, mapNotFound(err)
	}
	s.invalidate(ctx)

	out, err := s.Repo.Get(ctx, s.DB, id)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return out, nil
}

// Delete removes a record or returns ErrNotFound.
func (s *CrudService[T]) Delete(ctx context.Context, id string) error {
	if err := s.Repo.Delete(ctx, s.DB, id); err != nil {
		return mapNotFound(err)
	}
	s.invalidate(ctx)
	return nil
}

// Stats returns the row count and latest update time of the resource.
func (s *CrudService[T]) Stats(ctx context.Context) (int64, *time.Time, error) {
	return s.Repo.Stats(ctx, s.DB)
}

// compile validates q against the descriptor and returns the repo query
// plus the normalized parameters used as cache identity.
func (s *CrudService[T]) compile(q ListQuery) (repo.ListQuery, api.ListParams, error) {
	norm := api.ListParams{Page: q.Page, Limit: q.Limit}
	if norm.Page < 1 {
		norm.Page = 1
	}
	if norm.Limit < 1 {
		norm.Limit = s.DefaultLimit
		if norm.Limit < 1 {
			norm.Limit = 10
		}
	}

	order := s.Desc.DefaultSort
	if q.SortBy != "" {
		col, ok := s.Desc.Sortable[q.SortBy]
		if !ok {
			return repo.ListQuery{}, norm, fmt.Errorf("%w: cannot sort by %q", ErrInvalidSort, q.SortBy)
		}
		order = col
		norm.SortBy = q.SortBy
	}
	dir := strings.ToLower(strings.TrimSpace(q.SortOrder))
	switch dir {
	case "":
		dir = api.SortDesc
	case api.SortAsc, api.SortDesc:
	default:
		return repo.ListQuery{}, norm, fmt.Errorf("%w: sortOrder must be asc or desc", ErrInvalidSort)
	}
	norm.SortOrder = dir

	filters := make(map[string]any, len(q.Filters))
	for param, raw := range q.Filters {
		f, ok := s.Desc.Filters[param]
		if !ok {
			return repo.ListQuery{}, norm, fmt.Errorf("%w: unknown filter %q", ErrInvalidFilter, param)
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		switch f.Kind {
		case domain.FilterBool:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return repo.ListQuery{}, norm, fmt.Errorf("%w: %s must be true or false", ErrInvalidFilter, param)
			}
			filters[f.Column] = b
			raw = strconv.FormatBool(b)
		default:
			filters[f.Column] = raw
		}
		if norm.Filters == nil {
			norm.Filters = map[string]string{}
		}
		norm.Filters[param] = raw
	}

	norm.Term = search.Normalize(q.Term)

	return repo.ListQuery{
		Offset:        (norm.Page - 1) * norm.Limit,
		Limit:         norm.Limit,
		Term:          norm.Term,
		SearchColumns: s.Desc.Search,
		Filters:       filters,
		OrderColumn:   order,
		Desc:          dir == api.SortDesc,
	}, norm, nil
}

// cacheKey binds a read to the resource's current write generation. It must
// run before the database read. When the generation cannot be read the
// request bypasses the cache.
func (s *CrudService[T]) cacheKey(ctx context.Context, op string, part any) (string, bool) {
	gen, err := s.Cache.Generation(ctx, s.Desc.Name)
	if err != nil {
		log.Warn().Err(err).Str("resource", s.Desc.Name).Msg("response cache generation read failed")
		return "", false
	}
	return cache.Key(s.Desc.Name, op, gen, part), true
}

func (s *CrudService[T]) store(ctx context.Context, key string, v any) {
	if err := cache.Save(ctx, s.Cache, key, v); err != nil {
		log.Warn().Err(err).Str("resource", s.Desc.Name).Msg("response cache write failed")
	}
}

func (s *CrudService[T]) invalidate(ctx context.Context) {
	if err := s.Cache.Advance(ctx, s.Desc.Name); err != nil {
		log.Warn().Err(err).Str("resource", s.Desc.Name).Msg("response cache generation advance failed")
	}
	if err := s.Cache.InvalidatePrefix(ctx, cache.Prefix(s.Desc.Name)); err != nil {
		log.Warn().Err(err).Str("resource", s.Desc.Name).Msg("response cache invalidation failed")
	}
}

func stripReadOnly(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	for _, k := range readOnlyFields {
		delete(out, k)
	}
	return out
}

func mapNotFound(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
