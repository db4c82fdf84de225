package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/restaurant-backoffice/internal/domain"
)

func TestGetIdempotency_BlankScopeOrKey_ReturnsNotFound(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	now := time.Now().UTC()
	if rec, err := GetIdempotency(context.Background(), db, "u1", "  ", "k1", now); rec != nil || !errors.Is(err, ErrNotFound) {
		t.Fatalf("blank scope: (%v, %v)", rec, err)
	}
	if rec, err := GetIdempotency(context.Background(), db, "u1", "/brands", "", now); rec != nil || !errors.Is(err, ErrNotFound) {
		t.Fatalf("blank key: (%v, %v)", rec, err)
	}
}

func TestCreateAndGetIdempotency(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	ctx := context.Background()

	rec, err := CreateIdempotency(ctx, db, "u1", "/brands", "k1", "b1", 201, time.Hour)
	if err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}
	if rec.ID == "" || rec.RecordID != "b1" || !rec.ExpiresAt.After(rec.CreatedAt) {
		t.Fatalf("unexpected record: %+v", rec)
	}

	got, err := GetIdempotency(ctx, db, "u1", "/brands", "k1", time.Now().UTC())
	if err != nil || got.RecordID != "b1" || got.Status != 201 {
		t.Fatalf("GetIdempotency = %+v, %v", got, err)
	}

	if _, err := CreateIdempotency(ctx, db, "u1", "/brands", "k1", "b2", 201, time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate create = %v; want ErrDuplicate", err)
	}
	if _, err := GetIdempotency(ctx, db, "u2", "/brands", "k1", time.Now().UTC()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other user must not see record, got %v", err)
	}
}

func TestIdempotency_ExpiredIsReplacedAndPurged(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	ctx := context.Background()
	now := time.Now().UTC()

	old := &domain.Idempotency{ID: "old", UserID: "u1", Scope: "/brands", Key: "k1", RecordID: "b0", Status: 201,
		CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}
	if err := db.Create(old).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := GetIdempotency(ctx, db, "u1", "/brands", "k1", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired record must not be returned, got %v", err)
	}

	if _, err := CreateIdempotency(ctx, db, "u1", "/brands", "k1", "b1", 201, time.Hour); err != nil {
		t.Fatalf("create over expired: %v", err)
	}

	stale := &domain.Idempotency{ID: "stale", UserID: "u9", Scope: "/users", Key: "k", RecordID: "x", Status: 201,
		CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Minute)}
	if err := db.Create(stale).Error; err != nil {
		t.Fatalf("seed stale: %v", err)
	}
	n, err := PurgeIdempotency(ctx, db, now)
	if err != nil || n != 1 {
		t.Fatalf("PurgeIdempotency = %d, %v; want 1", n, err)
	}
}
