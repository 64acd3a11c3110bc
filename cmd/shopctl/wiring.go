package main

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/autoshophq/go-autoshop-backend/internal/config"
	"github.com/autoshophq/go-autoshop-backend/internal/domain"
	"github.com/autoshophq/go-autoshop-backend/internal/migration"
	"github.com/autoshophq/go-autoshop-backend/internal/repo"
	"github.com/autoshophq/go-autoshop-backend/internal/services"
	"github.com/autoshophq/go-autoshop-backend/internal/transfer"
)

// userRepoShim adapts the repository free functions to the services.UserRepo
// interface expected by the UserService. This keeps services decoupled from
// the concrete repo package while reusing existing functions.
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

// ledgerShim adapts the idempotency repository functions to services.Ledger.
type ledgerShim struct{}

func (ledgerShim) Get(ctx context.Context, db *gorm.DB, key, operation string) (*domain.IdempotencyRecord, error) {
	return repo.GetIdempotency(ctx, db, key, operation)
}

func (ledgerShim) Create(ctx context.Context, db *gorm.DB, key, operation string, resourceID int) (*domain.IdempotencyRecord, error) {
	return repo.CreateIdempotency(ctx, db, key, operation, resourceID)
}

// sweepStoreShim adapts the retention delete to services.SweepStore.
type sweepStoreShim struct{}

func (sweepStoreShim) DeleteExpired(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	return repo.DeleteExpiredIdempotency(ctx, db, cutoff)
}

// reportsRepoShim adapts the aggregate queries to services.ReportsRepo.
type reportsRepoShim struct{}

func (reportsRepoShim) LatestMonthNameRows(ctx context.Context, db *gorm.DB) ([]string, []time.Time, error) {
	return repo.LatestMonthNameRows(ctx, db)
}

func (reportsRepoShim) DuplicateNames(ctx context.Context, db *gorm.DB) ([]string, error) {
	return repo.DuplicateNames(ctx, db)
}

func (reportsRepoShim) CountUsersWithCars(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountUsersWithCars(ctx, db)
}

func (reportsRepoShim) CountCarsWithoutUsers(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountCarsWithoutUsers(ctx, db)
}

// app bundles the wired application for one command invocation.
type app struct {
	cfg   config.Config
	src   *gorm.DB
	dst   *gorm.DB
	files transfer.Client

	migrator *migration.Migrator
	users    *services.UserService
	reports  *services.ReportService
	sweeper  *services.Sweeper
}

// buildApp opens both stores, selects the transfer client, and wires every
// service. When no SFTP host is configured the "remote" endpoint is a local
// directory under the working directory, which keeps development runs and
// demos self-contained.
func buildApp(cfg config.Config) (*app, error) {
	src, err := repo.Open(cfg.SourceDSN)
	if err != nil {
		return nil, fmt.Errorf("opening source store: %w", err)
	}
	if err := repo.AutoMigrate(src); err != nil {
		return nil, fmt.Errorf("migrating source store: %w", err)
	}

	dst, err := repo.Open(cfg.DestDSN)
	if err != nil {
		return nil, fmt.Errorf("opening destination store: %w", err)
	}
	if err := repo.AutoMigrate(dst); err != nil {
		return nil, fmt.Errorf("migrating destination store: %w", err)
	}

	var files transfer.Client
	if cfg.SFTP.Host != "" {
		files = transfer.NewSFTP(transfer.SFTPOptions{
			Host:     cfg.SFTP.Host,
			Port:     cfg.SFTP.Port,
			Username: cfg.SFTP.Username,
			Password: cfg.SFTP.Password,
		})
	} else {
		files = transfer.NewDir(".")
	}

	migrator := migration.New(src, dst, files, cfg.SFTP.RemoteDir, cfg.ImportBatchSize)

	return &app{
		cfg:      cfg,
		src:      src,
		dst:      dst,
		files:    files,
		migrator: migrator,
		users:    services.NewUserService(src, userRepoShim{}, ledgerShim{}),
		reports: &services.ReportService{
			DB:        src,
			DestDB:    dst,
			Repo:      reportsRepoShim{},
			Migrator:  migrator,
			Files:     files,
			RemoteDir: cfg.SFTP.RemoteDir,
		},
		sweeper: services.NewSweeper(src, sweepStoreShim{}, cfg.Retention, cfg.SweepInterval),
	}, nil
}

// close releases the transfer connection. Store handles are pooled by GORM
// and follow process lifetime.
func (a *app) close() {
	if a.files != nil {
		_ = a.files.Close()
	}
}
