// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the read-side aggregate queries consumed
// by the report service. Each query is phrased in dialect-portable SQL (or
// computed in Go where month extraction would otherwise differ between
// SQLite and PostgreSQL) so the same code runs against either store.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/autoshophq/go-autoshop-backend/internal/domain"
)

// nameStamp is the projection used by the latest-cohort computation.
type nameStamp struct {
	Name      string
	CreatedAt time.Time
}

// LatestMonthNameRows loads every user's (name, created_at) pair. The cohort
// month arithmetic happens in the service layer; keeping the projection here
// and the calendar logic in Go avoids per-dialect month-extraction SQL.
func LatestMonthNameRows(ctx context.Context, db *gorm.DB) ([]string, []time.Time, error) {
	var rows []nameStamp
	err := db.WithContext(ctx).
		Model(&domain.User{}).
		Select("name", "created_at").
		Find(&rows).Error
	if err != nil {
		return nil, nil, err
	}
	names := make([]string, len(rows))
	stamps := make([]time.Time, len(rows))
	for i, r := range rows {
		names[i] = r.Name
		stamps[i] = r.CreatedAt
	}
	return names, stamps, nil
}

// DuplicateNames returns every name held by more than one user, ordered
// lexicographically for deterministic output.
func DuplicateNames(ctx context.Context, db *gorm.DB) ([]string, error) {
	var names []string
	err := db.WithContext(ctx).
		Model(&domain.User{}).
		Select("name").
		Group("name").
		Having("COUNT(*) > 1").
		Order("name").
		Pluck("name", &names).Error
	return names, err
}

// CountUsersWithCars returns the inner-join cardinality: users whose car_id
// matches an existing car.
func CountUsersWithCars(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.User{}).
		Joins("INNER JOIN cars ON cars.id = users.car_id").
		Count(&n).Error
	return n, err
}

// CountCarsWithoutUsers returns the number of cars no user references.
func CountCarsWithoutUsers(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Car{}).
		Where("NOT EXISTS (SELECT 1 FROM users WHERE users.car_id = cars.id)").
		Count(&n).Error
	return n, err
}
