package screen

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/restaurant-backoffice/internal/api"
	"github.com/tbourn/restaurant-backoffice/internal/config"
	"github.com/tbourn/restaurant-backoffice/internal/domain"
	httpapi "github.com/tbourn/restaurant-backoffice/internal/http"
	"github.com/tbourn/restaurant-backoffice/internal/modal"
	"github.com/tbourn/restaurant-backoffice/internal/query"
	"github.com/tbourn/restaurant-backoffice/internal/repo"
	"github.com/tbourn/restaurant-backoffice/internal/resource"
	"github.com/tbourn/restaurant-backoffice/internal/table"
)

const (
	eventually = 5 * time.Second
	tick       = 5 * time.Millisecond
)

// newBackend serves the real API over a temporary database and returns a
// client for it.
func newBackend(t *testing.T) *resource.Client {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := repo.Open(repo.DriverSQLite, filepath.Join(t.TempDir(), "backoffice.db"))
	require.NoError(t, err)
	require.NoError(t, repo.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	r := gin.New()
	httpapi.RegisterRoutes(r, db, nil, config.Config{
		APIBasePath:     "/api/v1",
		DefaultPageSize: 10,
		MaxPageSize:     100,
		RateRPS:         1000,
		RateBurst:       1000,
		IdempotencyTTL:  time.Hour,
		OTEL:            config.OTELConfig{ServiceName: "screen-test"},
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	c, err := resource.NewClient(srv.URL+"/api/v1", resource.WithUserID("manager"))
	require.NoError(t, err)
	return c
}

type notice struct {
	op  query.Op
	id  string
	err error
}

type recorder struct {
	mu     sync.Mutex
	events []notice
}

func (r *recorder) Success(_ string, op query.Op, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, notice{op: op, id: id})
}

func (r *recorder) Error(_ string, op query.Op, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, notice{op: op, err: err})
}

func (r *recorder) all() []notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notice(nil), r.events...)
}

func newTaxScreen(t *testing.T, opts ...Option) (*Screen[domain.TaxGroup], *resource.Service[domain.TaxGroup], *recorder) {
	t.Helper()
	svc := resource.NewService[domain.TaxGroup](newBackend(t), domain.TaxGroups.Name)
	c := query.New()
	t.Cleanup(c.Close)
	n := &recorder{}
	s := New[domain.TaxGroup](c, svc, domain.TaxGroups, n, opts...)
	t.Cleanup(s.Close)
	return s, svc, n
}

func names(r ListResult[domain.TaxGroup]) []string {
	out := make([]string, 0, len(r.Data.Data))
	for _, row := range r.Data.Data {
		out = append(out, row.Name)
	}
	return out
}

func waitTotal(t *testing.T, s *Screen[domain.TaxGroup], total int64) ListResult[domain.TaxGroup] {
	t.Helper()
	require.Eventually(t, func() bool {
		r := s.Result()
		return r.HasData && !r.IsFetching && r.Data.Meta.Total == total
	}, eventually, tick)
	return s.Result()
}

func TestTableConfig_FromDescriptor(t *testing.T) {
	cfg := TableConfig(domain.MenuItems, 25)
	assert.Equal(t, 25, cfg.PageSize)
	assert.Equal(t, domain.StatusParam, cfg.StatusParam)

	sorts := make([]string, 0, len(cfg.SortFields))
	for k, v := range cfg.SortFields {
		assert.Equal(t, k, v)
		sorts = append(sorts, k)
	}
	sort.Strings(sorts)
	assert.Equal(t, []string{"createdAt", "name", "price", "updatedAt"}, sorts)
	assert.Equal(t, map[string]string{"categoryId": "categoryId", "taxGroupId": "taxGroupId"}, cfg.FilterFields)
}

func TestScreen_CreateThroughModalAppearsInList(t *testing.T) {
	s, _, n := newTaxScreen(t)
	ctx := context.Background()

	first, err := s.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), first.Data.Meta.Total)
	assert.Empty(t, first.Data.Data)

	s.Modal.OpenCreate(domain.TaxGroup{Name: "VAT", Rate: 24})
	require.NoError(t, s.Modal.Edit(func(g *domain.TaxGroup) { g.IsActive = true }))
	created, err := s.Modal.Submit(ctx, resource.WithIdempotencyKey("vat-1"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, modal.Closed, s.Modal.Mode())

	r := waitTotal(t, s, 1)
	assert.Equal(t, []string{"VAT"}, names(r))
	assert.Equal(t, []notice{{op: query.OpCreate, id: created.ID}}, n.all())

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.InDelta(t, 24.0, got.Rate, 0.001)
}

func TestScreen_IdempotentCreateYieldsOneRecord(t *testing.T) {
	s, _, _ := newTaxScreen(t)
	ctx := context.Background()

	a, err := s.Mutations.Create(ctx, domain.TaxGroup{Name: "Reduced", Rate: 13}, resource.WithIdempotencyKey("reduced-1"))
	require.NoError(t, err)
	b, err := s.Mutations.Create(ctx, domain.TaxGroup{Name: "Reduced", Rate: 13}, resource.WithIdempotencyKey("reduced-1"))
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)

	waitTotal(t, s, 1)
}

func TestScreen_ValidationFailureKeepsDialogOpen(t *testing.T) {
	s, _, n := newTaxScreen(t)
	ctx := context.Background()

	s.Modal.OpenCreate(domain.TaxGroup{Name: "Broken", Rate: 250})
	_, err := s.Modal.Submit(ctx)
	require.Error(t, err)
	assert.True(t, resource.IsValidation(err), "kind = %v", resource.KindOf(err))
	assert.Contains(t, resource.FieldErrors(err), "rate")

	assert.Equal(t, modal.Creating, s.Modal.Mode())
	assert.Equal(t, "Broken", s.Modal.Values().Name)
	assert.Error(t, s.Modal.Err())

	events := n.all()
	require.Len(t, events, 1)
	assert.Equal(t, query.OpCreate, events[0].op)
	assert.Error(t, events[0].err)
}

func TestScreen_UnknownSortIsRequestError(t *testing.T) {
	_, svc, _ := newTaxScreen(t)
	_, err := svc.List(context.Background(), api.ListParams{Page: 1, Limit: 10, SortBy: "nope"})
	require.Error(t, err)
	assert.True(t, resource.IsRequest(err), "kind = %v", resource.KindOf(err))

	assert.ErrorIs(t, table.New(TableConfig(domain.TaxGroups, 10)).SetSort("nope", table.Asc), table.ErrUnknownSortField)
}

func TestScreen_TableDrivesListAndClampsAfterDelete(t *testing.T) {
	s, _, _ := newTaxScreen(t, WithPageSize(2))
	ctx := context.Background()

	var ids []string
	for _, g := range []domain.TaxGroup{{Name: "A", Rate: 1}, {Name: "B", Rate: 2}, {Name: "C", Rate: 3}} {
		v, err := s.Mutations.Create(ctx, g)
		require.NoError(t, err)
		ids = append(ids, v.ID)
	}

	require.NoError(t, s.Table.SetSort("name", table.Asc))
	r := waitTotal(t, s, 3)
	require.Eventually(t, func() bool {
		r = s.Result()
		return reflect.DeepEqual(names(r), []string{"A", "B"})
	}, eventually, tick)

	s.Table.SetPageIndex(1)
	require.Eventually(t, func() bool {
		r = s.Result()
		return r.HasData && reflect.DeepEqual(names(r), []string{"C"})
	}, eventually, tick)
	assert.Equal(t, 2, s.Table.PageCount(r.Data.Meta.Total))

	s.DeleteAction()(ids[2])

	require.Eventually(t, func() bool {
		return s.Table.State().PageIndex == 0
	}, eventually, tick)
	require.Eventually(t, func() bool {
		r = s.Result()
		return r.HasData && !r.IsFetching && reflect.DeepEqual(names(r), []string{"A", "B"})
	}, eventually, tick)
	assert.Equal(t, int64(2), r.Data.Meta.Total)
}

func TestScreen_EditActionUpdatesRow(t *testing.T) {
	s, _, _ := newTaxScreen(t)
	ctx := context.Background()

	v, err := s.Mutations.Create(ctx, domain.TaxGroup{Name: "Standard", Rate: 20})
	require.NoError(t, err)
	r := waitTotal(t, s, 1)

	edit := s.EditAction()
	edit(r.Data.Data[0])
	assert.Equal(t, modal.Editing, s.Modal.Mode())
	assert.Equal(t, v.ID, s.Modal.EditingID())

	require.NoError(t, s.Modal.Edit(func(g *domain.TaxGroup) { g.Rate = 21 }))
	updated, err := s.Modal.Submit(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 21.0, updated.Rate, 0.001)

	require.Eventually(t, func() bool {
		r := s.Result()
		return r.HasData && len(r.Data.Data) == 1 && r.Data.Data[0].Rate == 21
	}, eventually, tick)
}

func TestScreen_ActionsKeepIdentity(t *testing.T) {
	s, _, _ := newTaxScreen(t, Suspended())

	e1, e2 := s.EditAction(), s.EditAction()
	assert.Equal(t, reflect.ValueOf(e1).Pointer(), reflect.ValueOf(e2).Pointer())
	d1, d2 := s.DeleteAction(), s.DeleteAction()
	assert.Equal(t, reflect.ValueOf(d1).Pointer(), reflect.ValueOf(d2).Pointer())

	assert.False(t, s.Result().HasData)
	s.Resume()
	_, err := s.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Result().HasData)
}

func TestScreen_NoCallbacksAfterClose(t *testing.T) {
	s, _, _ := newTaxScreen(t)
	ctx := context.Background()
	_, err := s.Wait(ctx)
	require.NoError(t, err)

	var mu sync.Mutex
	calls := 0
	s.OnChange(func(ListResult[domain.TaxGroup]) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	s.Close()

	_, err = s.Mutations.Create(ctx, domain.TaxGroup{Name: "Late", Rate: 5})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, calls)
}
