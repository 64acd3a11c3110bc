package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/autoshophq/go-autoshop-backend/internal/domain"
)

func TestGetIdempotency_Missing_ReturnsNotFound(t *testing.T) {
	db := newTestDB(t, &domain.IdempotencyRecord{})

	rec, err := GetIdempotency(context.Background(), db, "k1", "CreateUser")
	if rec != nil || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected (nil, ErrNotFound), got (%v, %v)", rec, err)
	}
}

func TestCreateIdempotency_ThenGet(t *testing.T) {
	db := newTestDB(t, &domain.IdempotencyRecord{})
	ctx := context.Background()

	created, err := CreateIdempotency(ctx, db, "k1", "CreateUser", 42)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ResourceID != 42 {
		t.Fatalf("ResourceID = %d; want 42", created.ResourceID)
	}
	if created.CreatedAt.IsZero() {
		t.Fatalf("CreatedAt not set")
	}

	got, err := GetIdempotency(ctx, db, "k1", "CreateUser")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ResourceID != 42 {
		t.Fatalf("replayed ResourceID = %d; want 42", got.ResourceID)
	}
}

func TestCreateIdempotency_Duplicate_ReturnsErrDuplicate(t *testing.T) {
	db := newTestDB(t, &domain.IdempotencyRecord{})
	ctx := context.Background()

	if _, err := CreateIdempotency(ctx, db, "k1", "CreateUser", 1); err != nil {
		t.Fatalf("first create: %v", err)
	}
	// Same pair, even with a different resource id, must lose to the unique index.
	if _, err := CreateIdempotency(ctx, db, "k1", "CreateUser", 2); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	// The winner remains intact.
	got, err := GetIdempotency(ctx, db, "k1", "CreateUser")
	if err != nil || got.ResourceID != 1 {
		t.Fatalf("winner record = (%v, %v); want ResourceID 1", got, err)
	}
}

func TestDeleteExpiredIdempotency_RespectsCutoff(t *testing.T) {
	db := newTestDB(t, &domain.IdempotencyRecord{})
	ctx := context.Background()
	now := time.Now().UTC()

	old := &domain.IdempotencyRecord{Key: "old", Operation: "CreateUser", ResourceID: 1, CreatedAt: now.Add(-8 * 24 * time.Hour)}
	fresh := &domain.IdempotencyRecord{Key: "fresh", Operation: "CreateUser", ResourceID: 2, CreatedAt: now.Add(-6 * 24 * time.Hour)}
	for _, rec := range []*domain.IdempotencyRecord{old, fresh} {
		if err := db.Create(rec).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	n, err := DeleteExpiredIdempotency(ctx, db, now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Fatalf("deleted %d rows; want 1", n)
	}

	if _, err := GetIdempotency(ctx, db, "old", "CreateUser"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected old record purged, got %v", err)
	}
	if _, err := GetIdempotency(ctx, db, "fresh", "CreateUser"); err != nil {
		t.Fatalf("expected fresh record kept, got %v", err)
	}
}

func TestIsUniqueViolation_TextMatching(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"UNIQUE constraint failed: idempotency_records.key", true},
		{"constraint failed: UNIQUE constraint failed", true},
		{"ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)", true},
		{"connection refused", false},
	}
	for _, tc := range cases {
		if got := isUniqueViolation(errors.New(tc.msg)); got != tc.want {
			t.Fatalf("isUniqueViolation(%q) = %v; want %v", tc.msg, got, tc.want)
		}
	}
}
