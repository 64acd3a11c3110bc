package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/autoshophq/go-autoshop-backend/internal/domain"
	"github.com/autoshophq/go-autoshop-backend/internal/repo"
)

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// userRepoShim adapts the repository free functions to the UserRepo interface,
// the same way the CLI wiring does.
type userRepoShim struct{}

func (userRepoShim) CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) (*domain.User, error) {
	return repo.CreateUser(ctx, db, u)
}

func (userRepoShim) GetUser(ctx context.Context, db *gorm.DB, id int) (*domain.User, error) {
	return repo.GetUser(ctx, db, id)
}

func (userRepoShim) ListUsers(ctx context.Context, db *gorm.DB) ([]domain.User, error) {
	return repo.ListUsers(ctx, db)
}

func (userRepoShim) UpdateUser(ctx context.Context, db *gorm.DB, id int, u *domain.User) error {
	return repo.UpdateUser(ctx, db, id, u)
}

func (userRepoShim) DeleteUser(ctx context.Context, db *gorm.DB, id int) error {
	return repo.DeleteUser(ctx, db, id)
}

func (userRepoShim) CreateCar(ctx context.Context, db *gorm.DB, c *domain.Car) (*domain.Car, error) {
	return repo.CreateCar(ctx, db, c)
}

type ledgerShim struct{}

func (ledgerShim) Get(ctx context.Context, db *gorm.DB, key, operation string) (*domain.IdempotencyRecord, error) {
	return repo.GetIdempotency(ctx, db, key, operation)
}

func (ledgerShim) Create(ctx context.Context, db *gorm.DB, key, operation string, resourceID int) (*domain.IdempotencyRecord, error) {
	return repo.CreateIdempotency(ctx, db, key, operation, resourceID)
}

func newUserService(t *testing.T) (*UserService, *gorm.DB) {
	t.Helper()
	db := newServiceDB(t)
	return NewUserService(db, userRepoShim{}, ledgerShim{}), db
}

func TestCreateUser_MissingKey(t *testing.T) {
	svc, _ := newUserService(t)

	_, err := svc.CreateUser(context.Background(), "   ", &domain.User{Name: "a", Email: "a@x", Password: "pw"})
	if !errors.Is(err, ErrMissingIdempotencyKey) {
		t.Fatalf("expected ErrMissingIdempotencyKey, got %v", err)
	}
}

func TestValidateIdempotencyKey(t *testing.T) {
	long := make([]byte, 201)
	for i := range long {
		long[i] = 'a'
	}

	cases := []struct {
		name string
		in   string
		want string
		err  error
	}{
		{"plain", "order-42", "order-42", nil},
		{"trimmed", "  req_1.retry:2  ", "req_1.retry:2", nil},
		{"empty", "", "", ErrMissingIdempotencyKey},
		{"blank", "   ", "", ErrMissingIdempotencyKey},
		{"too long", string(long), "", ErrInvalidIdempotencyKey},
		{"bad char", "key with spaces", "", ErrInvalidIdempotencyKey},
		{"bad char slash", "a/b", "", ErrInvalidIdempotencyKey},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateIdempotencyKey(tc.in)
			if !errors.Is(err, tc.err) {
				t.Fatalf("err = %v; want %v", err, tc.err)
			}
			if got != tc.want {
				t.Fatalf("key = %q; want %q", got, tc.want)
			}
		})
	}
}

func TestCreateUser_InvalidKey(t *testing.T) {
	svc, _ := newUserService(t)

	_, err := svc.CreateUser(context.Background(), "not a token", &domain.User{Name: "a", Email: "a@x", Password: "pw"})
	if !errors.Is(err, ErrInvalidIdempotencyKey) {
		t.Fatalf("expected ErrInvalidIdempotencyKey, got %v", err)
	}
}

func TestCreateUser_RetrySameKey_ReplaysWithoutSecondResource(t *testing.T) {
	svc, db := newUserService(t)
	ctx := context.Background()
	in := &domain.User{Name: "alice", Email: "a@example.com", Password: "pw"}

	first, err := svc.CreateUser(ctx, "K", in)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if first.Replayed {
		t.Fatalf("first call must not be a replay")
	}

	second, err := svc.CreateUser(ctx, "K", &domain.User{Name: "alice", Email: "a@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if !second.Replayed {
		t.Fatalf("second call with the same key must replay")
	}
	if second.User.ID != first.User.ID {
		t.Fatalf("replayed id = %d; want %d", second.User.ID, first.User.ID)
	}

	var count int64
	if err := db.Model(&domain.User{}).Count(&count).Error; err != nil {
		t.Fatalf("count users: %v", err)
	}
	if count != 1 {
		t.Fatalf("users in store = %d; want exactly 1", count)
	}
}

func TestCreateUser_DifferentKeys_CreateDistinctResources(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	a, err := svc.CreateUser(ctx, "K1", &domain.User{Name: "a", Email: "a@x", Password: "pw"})
	if err != nil {
		t.Fatalf("create K1: %v", err)
	}
	b, err := svc.CreateUser(ctx, "K2", &domain.User{Name: "b", Email: "b@x", Password: "pw"})
	if err != nil {
		t.Fatalf("create K2: %v", err)
	}
	if a.User.ID == b.User.ID {
		t.Fatalf("distinct keys must create distinct resources")
	}
}

func TestCreateUser_ReplayTargetMissing(t *testing.T) {
	svc, db := newUserService(t)
	ctx := context.Background()

	first, err := svc.CreateUser(ctx, "K", &domain.User{Name: "gone", Email: "g@x", Password: "pw"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.DeleteUser(ctx, db, first.User.ID); err != nil {
		t.Fatalf("delete out of band: %v", err)
	}

	_, err = svc.CreateUser(ctx, "K", &domain.User{Name: "gone", Email: "g@x", Password: "pw"})
	if !errors.Is(err, ErrReplayTargetMissing) {
		t.Fatalf("expected ErrReplayTargetMissing, got %v", err)
	}
}

func TestUserService_CRUDSurface(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	car, err := svc.CreateCar(ctx, &domain.Car{Make: "Toyota", Model: "Corolla"})
	if err != nil {
		t.Fatalf("create car: %v", err)
	}

	created, err := svc.CreateUser(ctx, "K", &domain.User{Name: "carol", Email: "c@x", Password: "pw", CarID: &car.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.GetUser(ctx, created.User.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CarID == nil || *got.CarID != car.ID {
		t.Fatalf("car_id = %v; want %d", got.CarID, car.ID)
	}

	all, err := svc.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("list len = %d; want 1", len(all))
	}

	if err := svc.UpdateUser(ctx, created.User.ID, &domain.User{Name: "caroline", Email: "c@x", Password: "pw"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err = svc.GetUser(ctx, created.User.ID)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got.Name != "caroline" {
		t.Fatalf("name = %q; want %q", got.Name, "caroline")
	}

	if err := svc.DeleteUser(ctx, created.User.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetUser(ctx, created.User.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestRecordCreation_ConflictingOutcome_IsConsistencyViolation(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	if err := svc.RecordCreation(ctx, "K", 41); err != nil {
		t.Fatalf("record: %v", err)
	}
	// Recording the same outcome again is idempotent.
	if err := svc.RecordCreation(ctx, "K", 41); err != nil {
		t.Fatalf("re-record same outcome: %v", err)
	}
	// A different outcome under the same key is rejected.
	if err := svc.RecordCreation(ctx, "K", 42); !errors.Is(err, ErrConsistencyViolation) {
		t.Fatalf("expected ErrConsistencyViolation, got %v", err)
	}
}

// racingLedger simulates losing the ledger insert to a concurrent request:
// the initial lookup misses, the insert hits the unique index, and the
// re-read reveals the winner.
type racingLedger struct {
	winnerID int
	looked   bool
}

func (l *racingLedger) Get(ctx context.Context, db *gorm.DB, key, operation string) (*domain.IdempotencyRecord, error) {
	if !l.looked {
		l.looked = true
		return nil, repo.ErrNotFound
	}
	return &domain.IdempotencyRecord{Key: key, Operation: operation, ResourceID: l.winnerID}, nil
}

func (l *racingLedger) Create(ctx context.Context, db *gorm.DB, key, operation string, resourceID int) (*domain.IdempotencyRecord, error) {
	return nil, repo.ErrDuplicate
}

func TestCreateUser_LostRace_DifferentOutcome_IsConsistencyViolation(t *testing.T) {
	db := newServiceDB(t)
	svc := NewUserService(db, userRepoShim{}, &racingLedger{winnerID: 9999})

	_, err := svc.CreateUser(context.Background(), "K", &domain.User{Name: "late", Email: "l@x", Password: "pw"})
	if !errors.Is(err, ErrConsistencyViolation) {
		t.Fatalf("expected ErrConsistencyViolation, got %v", err)
	}
}

func TestCreateUser_LostRace_SameOutcome_Replays(t *testing.T) {
	db := newServiceDB(t)
	ctx := context.Background()

	// The "winner" created this user; our racing insert maps to the same row.
	winner, err := repo.CreateUser(ctx, db, &domain.User{Name: "w", Email: "w@x", Password: "pw"})
	if err != nil {
		t.Fatalf("seed winner: %v", err)
	}
	// The shim creates the same user row id because CreateUser persists first;
	// emulate by pointing the fake at the id the service is about to create.
	svc := NewUserService(db, userRepoShim{}, &racingLedger{winnerID: winner.ID + 1})

	res, err := svc.CreateUser(ctx, "K", &domain.User{Name: "late", Email: "l@x", Password: "pw"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !res.Replayed {
		t.Fatalf("expected replay of the winning outcome")
	}
}
