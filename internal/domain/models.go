// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository, service, and migration layers.
package domain

import "time"

// User represents an account in the shop database. A user may optionally be
// associated with a car; that association is the basis of the join-count
// reports.
//
// Fields:
//   - ID: auto-increment primary key.
//   - Name: display name; duplicate names are expected and are exactly what
//     the duplicate-names report detects.
//   - Email / Password: account credentials as supplied by the caller.
//   - CarID: optional foreign key to cars.id (nil when the user has no car).
//   - CreatedAt: creation timestamp; drives the latest-cohort report.
type User struct {
	ID        int       `json:"id"         gorm:"primaryKey;autoIncrement"`
	Name      string    `json:"name"       gorm:"type:varchar(255);not null;index:idx_users_name"`
	Email     string    `json:"email"      gorm:"type:varchar(255);not null"`
	Password  string    `json:"-"          gorm:"type:varchar(255);not null"`
	CarID     *int      `json:"car_id,omitempty" gorm:"index:idx_users_car"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Car is the secondary entity referenced by User.CarID. A car can be
// referenced by any number of users, including none.
type Car struct {
	ID    int    `json:"id"    gorm:"primaryKey;autoIncrement"`
	Make  string `json:"make"  gorm:"type:varchar(128);not null"`
	Model string `json:"model" gorm:"type:varchar(128);not null"`
}

// TableName returns the database table name for Car.
func (Car) TableName() string { return "cars" }
