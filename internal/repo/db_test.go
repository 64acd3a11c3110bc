package repo

import (
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/autoshophq/go-autoshop-backend/internal/domain"
)

// newTestDB opens a unique in-memory database per test to avoid schema
// leakage across tests, optionally auto-migrating the given models.
func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func TestIsSQLiteDSN(t *testing.T) {
	cases := map[string]bool{
		"shop.db":                          true,
		"file:x?mode=memory&cache=shared":  true,
		"data/shop_prod.DB":                true,
		"host=db user=app dbname=shop":     false,
		"postgres://app@db:5432/shop":      false,
	}
	for dsn, want := range cases {
		if got := isSQLiteDSN(dsn); got != want {
			t.Fatalf("isSQLiteDSN(%q) = %v; want %v", dsn, got, want)
		}
	}
}

func TestOpen_SQLiteAndMigrate(t *testing.T) {
	db, err := Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	for _, tbl := range []any{&domain.User{}, &domain.Car{}, &domain.IdempotencyRecord{}} {
		if !db.Migrator().HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
}

func TestOpenSQLite_MissingParentDir(t *testing.T) {
	if _, err := OpenSQLite("no/such/dir/shop.db"); err == nil {
		t.Fatalf("expected error for missing parent directory")
	}
}
