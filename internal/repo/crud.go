package repo

import (
	"context"
	"sort"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/restaurant-backoffice/internal/search"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// ListQuery describes one page of a resource table. Column names come from
// resource descriptors, never from request input.
type ListQuery struct {
	Offset        int
	Limit         int
	Term          string         // already normalized
	SearchColumns []string       // OR-ed, case-insensitive LIKE
	Filters       map[string]any // column -> exact value
	OrderColumn   string
	Desc          bool
}

func (q ListQuery) scope(tx *gorm.DB) *gorm.DB {
	cols := make([]string, 0, len(q.Filters))
	for c := range q.Filters {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	for _, c := range cols {
		tx = tx.Where(clause.Eq{Column: clause.Column{Name: c}, Value: q.Filters[c]})
	}

	if q.Term != "" && len(q.SearchColumns) > 0 {
		pattern := search.ContainsPattern(q.Term)
		conds := make([]string, 0, len(q.SearchColumns))
		args := make([]any, 0, len(q.SearchColumns))
		for _, c := range q.SearchColumns {
			conds = append(conds, "LOWER("+c+") LIKE ? ESCAPE '"+search.LikeEscape+"'")
			args = append(args, pattern)
		}
		tx = tx.Where("("+strings.Join(conds, " OR ")+")", args...)
	}
	return tx
}

// List returns one page of T and the total number of rows matching q.
func List[T any](ctx context.Context, db *gorm.DB, q ListQuery) ([]T, int64, error) {
	var total int64
	if err := db.WithContext(ctx).Model(new(T)).Scopes(q.scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	out := make([]T, 0, q.Limit)
	if total == 0 {
		return out, 0, nil
	}

	tx := db.WithContext(ctx).Scopes(q.scope)
	if q.OrderColumn != "" {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: q.OrderColumn}, Desc: q.Desc})
	}
	// Stable paging across equal sort values.
	tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: q.Desc})
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}
	if err := tx.Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Get loads one T by primary key or returns ErrNotFound.
func Get[T any](ctx context.Context, db *gorm.DB, id string) (*T, error) {
	var v T
	if err := db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// Create inserts v; the primary key is assigned by the model hook.
func Create[T any](ctx context.Context, db *gorm.DB, v *T) error {
	return db.WithContext(ctx).Create(v).Error
}

// Save writes every column of v except its identity and creation time.
// It returns ErrNotFound when no live row has v's primary key.
func Save[T any](ctx context.Context, db *gorm.DB, v *T) error {
	res := db.WithContext(ctx).
		Model(v).
		Select("*").
		Omit("id", "created_at", "deleted_at").
		Updates(v)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete soft-deletes the row with the given id.
func Delete[T any](ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(new(T))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
