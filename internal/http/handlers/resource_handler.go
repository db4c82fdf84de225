package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gin-gonic/gin"

	"github.com/tbourn/restaurant-backoffice/internal/api"
	"github.com/tbourn/restaurant-backoffice/internal/domain"
	"github.com/tbourn/restaurant-backoffice/internal/http/middleware"
	"github.com/tbourn/restaurant-backoffice/internal/services"
	"github.com/tbourn/restaurant-backoffice/internal/utils"
)

// Service is the business contract behind ResourceHandler.
// *services.CrudService satisfies it.
type Service[T any] interface {
	Resource() string
	List(ctx context.Context, q services.ListQuery) (services.Page[T], error)
	Get(ctx context.Context, id string) (*T, error)
	Create(ctx context.Context, payload map[string]any) (*T, error)
	Update(ctx context.Context, id string, patch map[string]any) (*T, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (int64, *time.Time, error)
}

// Paging bounds the page size of list endpoints.
type Paging struct {
	Default int
	Max     int
}

// ResourceHandler serves the five REST endpoints of one resource.
type ResourceHandler[T domain.Entity] struct {
	svc    Service[T]
	idem   IdempotencyStore
	paging Paging
}

// NewResourceHandler builds a handler. A nil idem disables replay.
func NewResourceHandler[T domain.Entity](svc Service[T], idem IdempotencyStore, paging Paging) *ResourceHandler[T] {
	if paging.Default <= 0 {
		paging.Default = 10
	}
	if paging.Max <= 0 {
		paging.Max = 100
	}
	if paging.Default > paging.Max {
		paging.Default = paging.Max
	}
	return &ResourceHandler[T]{svc: svc, idem: idem, paging: paging}
}

// Register mounts the routes under g at /<resource>.
func (h *ResourceHandler[T]) Register(g *gin.RouterGroup) {
	rg := g.Group("/" + h.svc.Resource())
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.POST("", h.Create)
	rg.PATCH("/:id", h.Update)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
}

// List godoc
// @ID          listRecords
// @Summary     List records of a resource
// @Description Paginated, searchable, sortable list. Unknown sortBy or filter parameters are rejected.
// @Tags        Resources
// @Produce     json
//
// @Param       resource   path   string  true  "Resource" Enums(brands, restaurants, categories, menu-items, discounts, tax-groups, tables, roles, users)
// @Param       page       query  int     false "Page number (1-based)" minimum(1) default(1)
// @Param       limit      query  int     false "Page size" minimum(1) maximum(100) default(10)
// @Param       term       query  string  false "Case-insensitive search term"
// @Param       sortBy     query  string  false "Sortable field"
// @Param       sortOrder  query  string  false "Sort order" Enums(asc, desc) default(desc)
// @Param       isActive   query  bool    false "Status filter"
// @Param       If-None-Match header string false "ETag of a previous response"
//
// @Success     200  {object} api.ListResponse[any]
// @Success     304  "Not modified"
// @Failure     400  {object} api.ErrorResponse "Unknown sort field or filter"
// @Failure     500  {object} api.ErrorResponse "Internal error"
// @Router      /{resource} [get]
func (h *ResourceHandler[T]) List(c *gin.Context) {
	ctx := c.Request.Context()
	q := h.listQuery(c)

	etag := ""
	if count, maxTS, err := h.svc.Stats(ctx); err == nil {
		etag = listETag(h.svc.Resource(), count, maxTS, c.Request.URL.Query().Encode())
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Header("ETag", etag)
			c.Status(http.StatusNotModified)
			return
		}
	} else {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("list stats failed")
	}

	page, err := h.svc.List(ctx, q)
	if err != nil {
		writeError(c, err)
		return
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	if etag != "" {
		c.Header("ETag", etag)
	}
	ok(c, http.StatusOK, api.ListResponse[T]{
		Data: page.Items,
		Meta: api.Meta{Total: page.Total, Page: page.Page, Limit: page.Limit},
	})
}

// Get godoc
// @ID          getRecord
// @Summary     Get one record
// @Tags        Resources
// @Produce     json
// @Param       resource path string true "Resource"
// @Param       id       path string true "Record ID" format(uuid)
// @Success     200  {object} api.ItemResponse[any]
// @Failure     404  {object} api.ErrorResponse "Not found"
// @Router      /{resource}/{id} [get]
func (h *ResourceHandler[T]) Get(c *gin.Context) {
	v, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, api.ItemResponse[*T]{Data: v})
}

// Create godoc
// @ID          createRecord
// @Summary     Create a record
// @Description With an Idempotency-Key, a retried request returns the record created by the first one and sets Idempotent-Replay: true.
// @Tags        Resources
// @Accept      json
// @Produce     json
// @Param       resource        path   string true  "Resource"
// @Param       Idempotency-Key header string false "Client-generated key for safe retries"
// @Param       body            body   object true  "Record fields"
// @Success     201  {object} api.ItemResponse[any]
// @Failure     400  {object} api.ErrorResponse "Malformed body or key"
// @Failure     422  {object} api.ErrorResponse "Validation failed"
// @Failure     429  {object} api.ErrorResponse "Rate limited"
// @Router      /{resource} [post]
func (h *ResourceHandler[T]) Create(c *gin.Context) {
	ctx := c.Request.Context()
	uid := middleware.UserID(c)
	scope := middleware.IdempotencyScope(c)
	key, hasKey := middleware.GetIdempotencyKey(c)

	if hasKey && h.idem != nil {
		if v, replayed := h.replay(c, uid, scope, key); replayed {
			c.Header(api.HeaderIdempotentReplay, "true")
			middleware.IdempotentReplays.WithLabelValues(scope).Inc()
			ok(c, http.StatusCreated, api.ItemResponse[*T]{Data: v})
			return
		}
	}

	payload, err := bindObject(c)
	if err != nil {
		writeError(c, err)
		return
	}
	v, err := h.svc.Create(ctx, payload)
	if err != nil {
		writeError(c, err)
		return
	}

	if hasKey && h.idem != nil {
		if err := h.idem.Remember(ctx, uid, scope, key, (*v).EntityID(), http.StatusCreated); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("idempotency_key", key).Msg("idempotency record not stored")
		}
	}
	ok(c, http.StatusCreated, api.ItemResponse[*T]{Data: v})
}

// replay returns the record created by an earlier request with the same key.
// A record deleted since then is not replayed.
func (h *ResourceHandler[T]) replay(c *gin.Context, uid, scope, key string) (*T, bool) {
	ctx := c.Request.Context()
	id, found, err := h.idem.Lookup(ctx, uid, scope, key, time.Now().UTC())
	if err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
		return nil, false
	}
	if !found {
		return nil, false
	}
	v, err := h.svc.Get(ctx, id)
	if err != nil {
		return nil, false
	}
	return v, true
}

// Update godoc
// @ID          updateRecord
// @Summary     Update a record
// @Description PATCH and PUT both merge the body onto the stored record; id and timestamps are ignored.
// @Tags        Resources
// @Accept      json
// @Produce     json
// @Param       resource path string true "Resource"
// @Param       id       path string true "Record ID" format(uuid)
// @Param       body     body object true "Fields to change"
// @Success     200  {object} api.ItemResponse[any]
// @Failure     404  {object} api.ErrorResponse "Not found"
// @Failure     422  {object} api.ErrorResponse "Validation failed"
// @Router      /{resource}/{id} [patch]
// @Router      /{resource}/{id} [put]
func (h *ResourceHandler[T]) Update(c *gin.Context) {
	patch, err := bindObject(c)
	if err != nil {
		writeError(c, err)
		return
	}
	v, err := h.svc.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, api.ItemResponse[*T]{Data: v})
}

// Delete godoc
// @ID          deleteRecord
// @Summary     Delete a record
// @Tags        Resources
// @Produce     json
// @Param       resource path string true "Resource"
// @Param       id       path string true "Record ID" format(uuid)
// @Success     200  {object} api.ItemResponse[any] "data is null"
// @Failure     404  {object} api.ErrorResponse "Not found"
// @Router      /{resource}/{id} [delete]
func (h *ResourceHandler[T]) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, api.ItemResponse[any]{Data: nil})
}

// listQuery reads the list parameters. Page and limit are clamped; every
// non-reserved parameter is passed on as a filter and checked by the service.
func (h *ResourceHandler[T]) listQuery(c *gin.Context) services.ListQuery {
	p := utils.ParsePage(c.Query(api.ParamPage), c.Query(api.ParamLimit), h.paging.Default, h.paging.Max)
	q := services.ListQuery{
		Page:      p.Number,
		Limit:     p.Size,
		Term:      c.Query(api.ParamTerm),
		SortBy:    strings.TrimSpace(c.Query(api.ParamSortBy)),
		SortOrder: c.Query(api.ParamSortOrder),
	}
	for name, vals := range c.Request.URL.Query() {
		if api.IsReserved(name) || len(vals) == 0 {
			continue
		}
		if q.Filters == nil {
			q.Filters = map[string]string{}
		}
		q.Filters[name] = vals[0]
	}
	return q
}

// listETag is W/"<resource>:<count>:<maxUpdatedAt>:<queryHash>". rawQuery
// must be canonical (url.Values.Encode sorts keys).
func listETag(resource string, count int64, maxTS *time.Time, rawQuery string) string {
	var ts int64
	if maxTS != nil {
		ts = maxTS.UnixNano()
	}
	return fmt.Sprintf(`W/"%s:%d:%d:%016x"`, resource, count, ts, xxhash.Sum64String(rawQuery))
}

// bindObject decodes the body as a JSON object.
func bindObject(c *gin.Context) (map[string]any, error) {
	var m map[string]any
	if err := c.ShouldBindJSON(&m); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errBadBody, err)
	}
	if m == nil {
		return nil, errBadBody
	}
	return m, nil
}
