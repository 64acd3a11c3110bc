// Package domain defines the core persistence models for the application.
package domain

import "time"

// IdempotencyRecord maps a previously completed operation, identified by
// (key, operation), to the resource it produced. It is what allows a retried
// create-request to replay the original outcome instead of performing the
// side effect a second time.
//
// The composite unique index on (key, operation) is load-bearing: the
// lookup-then-insert sequence in the service layer is racy on its own, and
// the constraint is what turns a losing concurrent insert into a detectable
// duplicate rather than a second resource.
type IdempotencyRecord struct {
	ID         int       `gorm:"primaryKey;autoIncrement"`
	Key        string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_idem_key_operation,priority:1"`
	Operation  string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_idem_key_operation,priority:2"`
	ResourceID int       `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (IdempotencyRecord) TableName() string { return "idempotency_records" }
