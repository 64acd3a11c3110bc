// Package services – ReportService
//
// This file implements the aggregate report engine. Reports are pure
// read-side computations with defined semantics; they run either against a
// live store or against a decoded tabular snapshot, and two of them sequence
// the migration pipeline first.
//
// Month arithmetic for the latest-cohort report happens in Go on a compact
// (name, created_at) projection so the same code produces identical results
// on SQLite and PostgreSQL.
package services

import (
	"context"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/autoshophq/go-autoshop-backend/internal/migration"
	"github.com/autoshophq/go-autoshop-backend/internal/tabular"
	"github.com/autoshophq/go-autoshop-backend/internal/transfer"
)

// ReportsRepo defines the aggregate queries required by ReportService.
type ReportsRepo interface {
	LatestMonthNameRows(ctx context.Context, db *gorm.DB) ([]string, []time.Time, error)
	DuplicateNames(ctx context.Context, db *gorm.DB) ([]string, error)
	CountUsersWithCars(ctx context.Context, db *gorm.DB) (int64, error)
	CountCarsWithoutUsers(ctx context.Context, db *gorm.DB) (int64, error)
}

// MigrationRunner is the slice of the migrator the report service sequences.
type MigrationRunner interface {
	Run(ctx context.Context, job migration.Job) error
}

// ReportService computes the named aggregates. DB is the live store; DestDB
// is the destination store that post-migration reports read from.
type ReportService struct {
	DB     *gorm.DB
	DestDB *gorm.DB

	Repo     ReportsRepo
	Migrator MigrationRunner
	Files    transfer.Client

	// RemoteDir is the base remote directory snapshot downloads resolve
	// against, matching the migrator's configuration.
	RemoteDir string
}

// LatestMonthNames returns the distinct names of the latest cohort: all users
// whose creation month (any year) matches the calendar month of the most
// recent creation timestamp. An empty user set fails with ErrEmptyDataset,
// since no maximum timestamp exists. Names are sorted for stable output.
func (s *ReportService) LatestMonthNames(ctx context.Context) ([]string, error) {
	names, stamps, err := s.Repo.LatestMonthNameRows(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	if len(stamps) == 0 {
		return nil, ErrEmptyDataset
	}

	latest := stamps[0]
	for _, ts := range stamps[1:] {
		if ts.After(latest) {
			latest = ts
		}
	}
	month := latest.Month()

	seen := make(map[string]struct{})
	var out []string
	for i, ts := range stamps {
		if ts.Month() != month {
			continue
		}
		if _, dup := seen[names[i]]; dup {
			continue
		}
		seen[names[i]] = struct{}{}
		out = append(out, names[i])
	}
	sort.Strings(out)
	return out, nil
}

// DuplicateNames returns every name held by more than one user in the live
// store, sorted lexicographically.
func (s *ReportService) DuplicateNames(ctx context.Context) ([]string, error) {
	return s.Repo.DuplicateNames(ctx, s.DB)
}

// CountUsersWithCars returns the number of users whose car reference matches
// an existing car.
func (s *ReportService) CountUsersWithCars(ctx context.Context) (int64, error) {
	return s.Repo.CountUsersWithCars(ctx, s.DB)
}

// CountCarsWithoutUsers returns the number of cars no user references.
func (s *ReportService) CountCarsWithoutUsers(ctx context.Context) (int64, error) {
	return s.Repo.CountCarsWithoutUsers(ctx, s.DB)
}

// MigrateAndGetDuplicateNames runs the full export → transfer → import
// sequence for table, then computes the duplicate-names report against the
// destination store's now-updated copy. It adds no logic beyond sequencing;
// its failure semantics are the migrator's.
func (s *ReportService) MigrateAndGetDuplicateNames(ctx context.Context, table, localPath, remotePath string) ([]string, error) {
	job := migration.Job{
		SourceTable:      table,
		LocalPath:        localPath,
		RemotePath:       remotePath,
		DestinationTable: table,
	}
	if err := s.Migrator.Run(ctx, job); err != nil {
		return nil, err
	}
	names, err := s.Repo.DuplicateNames(ctx, s.DestDB)
	if err != nil {
		return nil, err
	}
	log.Info().Str("table", table).Int("duplicates", len(names)).Msg("ran migrate and duplicate-names report")
	return names, nil
}

// CSVDuplicateNames downloads a remote snapshot (no DB import), decodes it,
// and counts occurrences per name. The "Name" column is located by
// case-insensitive header match and its absence is ErrMissingColumn. Names
// appearing more than once are returned sorted.
func (s *ReportService) CSVDuplicateNames(ctx context.Context, remotePath, localPath string) ([]string, error) {
	full := path.Join(s.RemoteDir, remotePath)
	if err := s.Files.Download(ctx, full, localPath); err != nil {
		return nil, err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return nil, err
	}
	ds, err := tabular.Decode(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}

	names, err := DatasetDuplicateNames(ds)
	if err != nil {
		return nil, err
	}
	log.Info().Str("remote_path", full).Int("duplicates", len(names)).Msg("ran snapshot duplicate-names report")
	return names, nil
}

// DatasetDuplicateNames computes the duplicate-names report directly on a
// decoded snapshot, without importing it anywhere. It is the snapshot-side
// twin of the store-backed report.
func DatasetDuplicateNames(ds *tabular.Dataset) ([]string, error) {
	idx := -1
	for i, c := range ds.Columns {
		if strings.EqualFold(c, "name") {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrMissingColumn
	}

	counts := make(map[string]int)
	for _, row := range ds.Rows {
		counts[row[idx]]++
	}
	var out []string
	for name, n := range counts {
		if n > 1 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}
