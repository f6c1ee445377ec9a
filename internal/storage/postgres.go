// internal/storage/postgres.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"tenant-provisioner/internal/model"
)

// ErrTenantNotFound is returned when no registry record exists for a tenant id.
var ErrTenantNotFound = errors.New("tenant not found")

const schema = `
CREATE TABLE IF NOT EXISTS tenants (
	id             UUID PRIMARY KEY,
	tenant_id      TEXT NOT NULL UNIQUE,
	db_name        TEXT NOT NULL,
	db_user        TEXT NOT NULL,
	db_password    TEXT NOT NULL,
	status         TEXT NOT NULL,
	status_message TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Storage is the provisioning registry backed by PostgreSQL.
type Storage struct {
	DB  *sql.DB
	now func() time.Time
}

func NewStorage(dsn string) (*Storage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an already opened handle.
func NewWithDB(db *sql.DB) *Storage {
	return &Storage{DB: db, now: time.Now}
}

// Ping checks the registry connection.
func (s *Storage) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// EnsureSchema creates the tenants table if it does not exist.
func (s *Storage) EnsureSchema(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create tenants table: %w", err)
	}
	return nil
}

// SaveTenant inserts the record, replacing an earlier record for the same tenant id
// so that at most one row exists per tenant. ID and timestamps are filled in.
func (s *Storage) SaveTenant(ctx context.Context, rec *model.TenantRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := s.now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	query := `
		INSERT INTO tenants (id, tenant_id, db_name, db_user, db_password, status, status_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id) DO UPDATE SET
			db_name = EXCLUDED.db_name,
			db_user = EXCLUDED.db_user,
			db_password = EXCLUDED.db_password,
			status = EXCLUDED.status,
			status_message = EXCLUDED.status_message,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`
	err := s.DB.QueryRowContext(ctx, query,
		rec.ID, rec.TenantID, rec.DBName, rec.DBUser, rec.DBPassword,
		string(rec.Status), rec.StatusMessage, rec.CreatedAt, rec.UpdatedAt,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save tenant %s: %w", rec.TenantID, err)
	}
	return nil
}

// UpdateTenantStatus moves a record to status with an optional message.
func (s *Storage) UpdateTenantStatus(ctx context.Context, tenantID string, status model.Status, message string) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE tenants
		SET status = $1, status_message = $2, updated_at = $3
		WHERE tenant_id = $4
	`, string(status), message, s.now().UTC(), tenantID)
	if err != nil {
		return fmt.Errorf("failed to update tenant %s status: %w", tenantID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update tenant %s status: %w", tenantID, err)
	}
	if n == 0 {
		return fmt.Errorf("update tenant %s status: %w", tenantID, ErrTenantNotFound)
	}
	return nil
}

func (s *Storage) GetTenant(ctx context.Context, tenantID string) (*model.TenantRecord, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, tenant_id, db_name, db_user, db_password, status, status_message, created_at, updated_at
		FROM tenants
		WHERE tenant_id = $1
	`, tenantID)

	rec, err := scanTenant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant %s: %w", tenantID, err)
	}
	return rec, nil
}

func (s *Storage) ListTenants(ctx context.Context) ([]model.TenantRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, tenant_id, db_name, db_user, db_password, status, status_message, created_at, updated_at
		FROM tenants
		ORDER BY tenant_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var tenants []model.TenantRecord
	for rows.Next() {
		rec, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		tenants = append(tenants, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return tenants, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTenant(row scanner) (*model.TenantRecord, error) {
	var rec model.TenantRecord
	var status string
	if err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.DBName, &rec.DBUser, &rec.DBPassword,
		&status, &rec.StatusMessage, &rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rec.Status = model.Status(status)
	return &rec, nil
}
