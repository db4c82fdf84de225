package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tbourn/restaurant-backoffice/internal/domain"
	"github.com/tbourn/restaurant-backoffice/internal/query"
	"github.com/tbourn/restaurant-backoffice/internal/resource"
	"github.com/tbourn/restaurant-backoffice/internal/screen"
	"github.com/tbourn/restaurant-backoffice/internal/table"
)

// resourceBinding runs the operations of one resource type.
type resourceBinding interface {
	descriptor() domain.Descriptor
	list(ctx context.Context, a *app, o listOptions) (any, error)
	get(ctx context.Context, a *app, id string) (any, error)
	create(ctx context.Context, a *app, data []byte, idemKey string) (any, error)
	update(ctx context.Context, a *app, id string, data []byte) (any, error)
	remove(ctx context.Context, a *app, id string) error
}

type binding[T query.Record] struct {
	desc domain.Descriptor
}

func (b binding[T]) descriptor() domain.Descriptor { return b.desc }

// screen mounts a suspended screen so the table can be set up before the
// first fetch.
func (b binding[T]) screen(a *app) *screen.Screen[T] {
	svc := resource.NewService[T](a.client, b.desc.Name)
	return screen.New[T](a.cache, svc, b.desc, a.notifier(),
		screen.WithPageSize(a.cfg.PageSize),
		screen.Suspended(),
	)
}

func (b binding[T]) list(ctx context.Context, a *app, o listOptions) (any, error) {
	s := b.screen(a)
	defer s.Close()
	s.SetContext(ctx)

	if err := o.apply(s.Table); err != nil {
		return nil, err
	}
	s.Resume()
	r, err := s.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return r.Data, nil
}

func (b binding[T]) get(ctx context.Context, a *app, id string) (any, error) {
	s := b.screen(a)
	defer s.Close()
	return s.Get(ctx, id)
}

func (b binding[T]) create(ctx context.Context, a *app, data []byte, idemKey string) (any, error) {
	s := b.screen(a)
	defer s.Close()

	var zero T
	s.Modal.OpenCreate(zero)
	if err := fill(s, data); err != nil {
		return nil, err
	}
	var opts []resource.CallOption
	if idemKey != "" {
		opts = append(opts, resource.WithIdempotencyKey(idemKey))
	}
	return s.Modal.Submit(ctx, opts...)
}

// update merges data onto the stored record and writes the result.
func (b binding[T]) update(ctx context.Context, a *app, id string, data []byte) (any, error) {
	s := b.screen(a)
	defer s.Close()

	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Modal.OpenEdit(cur)
	if err := fill(s, data); err != nil {
		return nil, err
	}
	return s.Modal.Submit(ctx)
}

func (b binding[T]) remove(ctx context.Context, a *app, id string) error {
	s := b.screen(a)
	defer s.Close()
	return s.Delete(ctx, id)
}

// fill decodes data onto the dialog's form values.
func fill[T query.Record](s *screen.Screen[T], data []byte) error {
	var decodeErr error
	if err := s.Modal.Edit(func(v *T) { decodeErr = json.Unmarshal(data, v) }); err != nil {
		return err
	}
	if decodeErr != nil {
		return fmt.Errorf("--data: %w", decodeErr)
	}
	return nil
}

// listOptions are the flags of the list command.
type listOptions struct {
	page    int
	limit   int
	search  string
	sort    string
	status  string
	filters []string
}

// apply sets up t. The page index goes last because every other change
// resets it.
func (o listOptions) apply(t *table.Controller) error {
	if o.limit > 0 {
		t.SetPageSize(o.limit)
	}
	if o.sort != "" {
		field, dir, _ := strings.Cut(o.sort, ":")
		if err := t.SetSort(strings.TrimSpace(field), table.Direction(strings.ToLower(strings.TrimSpace(dir)))); err != nil {
			return err
		}
	}
	t.SetSearch(o.search)

	st, err := table.ParseStatus(o.status)
	if err != nil {
		return err
	}
	if err := t.SetStatus(st); err != nil {
		return err
	}

	filters := make([]table.ColumnFilter, 0, len(o.filters))
	for _, f := range o.filters {
		k, v, ok := strings.Cut(f, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return fmt.Errorf("--filter %q: want field=value", f)
		}
		filters = append(filters, table.ColumnFilter{Field: strings.TrimSpace(k), Value: v})
	}
	if err := t.SetColumnFilters(filters); err != nil {
		return err
	}

	if o.page > 1 {
		t.SetPageIndex(o.page - 1)
	}
	return nil
}

func newResourceCmd(a *app, b resourceBinding) *cobra.Command {
	d := b.descriptor()
	cmd := &cobra.Command{
		Use:   d.Name,
		Short: "Manage " + d.Name,
	}

	var lo listOptions
	list := &cobra.Command{
		Use:   "list",
		Short: "List one page of " + d.Name,
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			v, err := b.list(c.Context(), a, lo)
			if err != nil {
				return err
			}
			return a.print(v)
		},
	}
	lf := list.Flags()
	lf.IntVar(&lo.page, "page", 1, "page number (1-based)")
	lf.IntVar(&lo.limit, "limit", 0, "page size (default from config)")
	lf.StringVar(&lo.search, "search", "", "search term")
	lf.StringVar(&lo.sort, "sort", "", "field[:asc|desc]; one of "+strings.Join(d.SortFields(), ", "))
	lf.StringVar(&lo.status, "status", "all", "active, inactive or all")
	lf.StringArrayVar(&lo.filters, "filter", nil, "field=value, repeatable")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one record",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			v, err := b.get(c.Context(), a, args[0])
			if err != nil {
				return err
			}
			return a.print(v)
		},
	}

	var data, idemKey string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a record from a JSON object",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			v, err := b.create(c.Context(), a, []byte(data), idemKey)
			if err != nil {
				return err
			}
			return a.print(v)
		},
	}
	create.Flags().StringVar(&data, "data", "", "record fields as a JSON object")
	create.Flags().StringVar(&idemKey, "idempotency-key", "", "key that makes retries return the first result")
	_ = create.MarkFlagRequired("data")

	var patch string
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			v, err := b.update(c.Context(), a, args[0], []byte(patch))
			if err != nil {
				return err
			}
			return a.print(v)
		},
	}
	update.Flags().StringVar(&patch, "data", "", "fields to change as a JSON object")
	_ = update.MarkFlagRequired("data")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if err := b.remove(c.Context(), a, args[0]); err != nil {
				return err
			}
			return a.print(map[string]any{"id": args[0], "deleted": true})
		},
	}

	cmd.AddCommand(list, get, create, update, del)
	return cmd
}
