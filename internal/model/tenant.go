// internal/model/tenant.go
package model

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zapcore"
)

// Status is the lifecycle state of a registry record.
type Status string

const (
	StatusProvisioning    Status = "provisioning"
	StatusSucceeded       Status = "succeeded"
	StatusPartiallyFailed Status = "partially-failed"
)

// TenantRecord is the registry row for a provisioned tenant.
type TenantRecord struct {
	ID            uuid.UUID `db:"id" json:"id"`
	TenantID      string    `db:"tenant_id" json:"tenant_id"`
	DBName        string    `db:"db_name" json:"db_name"`
	DBUser        string    `db:"db_user" json:"db_user"`
	DBPassword    string    `db:"db_password" json:"-"`
	Status        Status    `db:"status" json:"status"`
	StatusMessage string    `db:"status_message" json:"status_message,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Credentials is the database login generated for one provisioning attempt.
type Credentials struct {
	DBUser     string
	DBPassword string
}

// String never prints the password.
func (c Credentials) String() string {
	return "Credentials{DBUser:" + c.DBUser + ", DBPassword:[redacted]}"
}

// MarshalLogObject lets credentials be passed to zap.Object without leaking the password.
func (c Credentials) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("db_user", c.DBUser)
	return nil
}
