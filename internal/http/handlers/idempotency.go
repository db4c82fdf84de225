package handlers

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/restaurant-backoffice/internal/repo"
)

// IdempotencyStore persists (user, scope, key) -> record id for create replays.
type IdempotencyStore interface {
	Lookup(ctx context.Context, userID, scope, key string, now time.Time) (recordID string, found bool, err error)
	Remember(ctx context.Context, userID, scope, key, recordID string, status int) error
}

// GormIdempotency stores idempotency records through the repo package.
type GormIdempotency struct {
	DB  *gorm.DB
	TTL time.Duration
}

// Lookup returns the record id stored for the tuple, if still live.
func (s GormIdempotency) Lookup(ctx context.Context, userID, scope, key string, now time.Time) (string, bool, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, scope, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return rec.RecordID, true, nil
}

// Exists adapts Lookup to middleware.IdempotencyLookup.
func (s GormIdempotency) Exists(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
	_, found, err := s.Lookup(ctx, userID, scope, key, now)
	return found, err
}

// Remember stores the tuple for TTL (24h when unset). A concurrent request
// that stored the same tuple first is not an error.
func (s GormIdempotency) Remember(ctx context.Context, userID, scope, key, recordID string, status int) error {
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	_, err := repo.CreateIdempotency(ctx, s.DB, userID, scope, key, recordID, status, ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}
