// Package provisioner creates the per-tenant MySQL database, user and grants
// over a shared administrative connection.
package provisioner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"tenant-provisioner/internal/model"
	"tenant-provisioner/internal/tenant"
)

// Steps, in execution order.
const (
	StepCreateDatabase  = "create_database"
	StepCreateUser      = "create_user"
	StepGrantPrivileges = "grant_privileges"
	StepFlushPrivileges = "flush_privileges"
	StepSaveRecord      = "save_record"
)

// ER_CANNOT_USER, returned by CREATE USER when the account already exists.
const errCannotUser = 1396

// ErrUserExists is returned when the tenant's database user already exists.
var ErrUserExists = errors.New("database user already exists")

// StatementError records which step failed. Steps before it stay applied.
type StatementError struct {
	Step string
	Err  error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StatementError) Unwrap() error {
	return e.Err
}

// RecordSaver persists registry records.
type RecordSaver interface {
	SaveTenant(ctx context.Context, rec *model.TenantRecord) error
}

// AdminConfig describes the privileged connection used for DDL/DCL.
type AdminConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Timeout  time.Duration
}

// OpenAdmin opens and pings the shared admin connection. Parameters are
// interpolated client-side so account names can be bound with '?'.
func OpenAdmin(cfg AdminConfig) (*sql.DB, error) {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.InterpolateParams = true
	if cfg.Timeout > 0 {
		mc.Timeout = cfg.Timeout
	}

	db, err := sql.Open("mysql", mc.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open admin connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to mysql at %s: %w", mc.Addr, err)
	}
	return db, nil
}

// MySQLProvisioner issues the tenant DDL/DCL and records the result.
type MySQLProvisioner struct {
	db       *sql.DB
	registry RecordSaver
	logger   *zap.Logger
}

func NewMySQLProvisioner(db *sql.DB, registry RecordSaver, logger *zap.Logger) *MySQLProvisioner {
	return &MySQLProvisioner{
		db:       db,
		registry: registry,
		logger:   logger,
	}
}

// Statement is one admin SQL statement with its bound arguments.
type Statement struct {
	Step  string
	Query string
	Args  []any
}

// Statements returns the admin statements for a tenant in execution order.
func Statements(tenantID string, creds model.Credentials) []Statement {
	dbName := quoteIdent(tenant.DatabaseName(tenantID))
	return []Statement{
		{
			Step:  StepCreateDatabase,
			Query: "CREATE DATABASE IF NOT EXISTS " + dbName + " CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci",
		},
		{
			Step:  StepCreateUser,
			Query: "CREATE USER ?@'%' IDENTIFIED BY ?",
			Args:  []any{creds.DBUser, creds.DBPassword},
		},
		{
			Step:  StepGrantPrivileges,
			Query: "GRANT ALL PRIVILEGES ON " + dbName + ".* TO ?@'%'",
			Args:  []any{creds.DBUser},
		},
		{
			Step:  StepFlushPrivileges,
			Query: "FLUSH PRIVILEGES",
		},
	}
}

// CreateNewTenantDatabase runs the four admin statements in order and then
// persists a record in status provisioning. Nothing is rolled back on failure.
func (p *MySQLProvisioner) CreateNewTenantDatabase(ctx context.Context, tenantID string, creds model.Credentials) (*model.TenantRecord, error) {
	dbName := tenant.DatabaseName(tenantID)

	for _, st := range Statements(tenantID, creds) {
		p.logger.Debug("Executing admin statement",
			zap.String("tenant_id", tenantID),
			zap.String("step", st.Step))

		if _, err := p.db.ExecContext(ctx, st.Query, st.Args...); err != nil {
			if st.Step == StepCreateUser && isDuplicateUser(err) {
				err = fmt.Errorf("%w: %s: %v", ErrUserExists, creds.DBUser, err)
			}
			p.logger.Error("Admin statement failed",
				zap.String("tenant_id", tenantID),
				zap.String("step", st.Step),
				zap.Error(err))
			return nil, &StatementError{Step: st.Step, Err: err}
		}
	}

	rec := &model.TenantRecord{
		TenantID:   tenantID,
		DBName:     dbName,
		DBUser:     creds.DBUser,
		DBPassword: creds.DBPassword,
		Status:     model.StatusProvisioning,
	}
	if err := p.registry.SaveTenant(ctx, rec); err != nil {
		return nil, &StatementError{Step: StepSaveRecord, Err: err}
	}

	p.logger.Info("Tenant database provisioned",
		zap.String("tenant_id", tenantID),
		zap.String("db_name", dbName),
		zap.Object("credentials", creds))
	return rec, nil
}

func isDuplicateUser(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == errCannotUser
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
