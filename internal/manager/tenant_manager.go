// internal/manager/tenant_manager.go
package manager

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"tenant-provisioner/internal/lock"
	"tenant-provisioner/internal/messaging"
	"tenant-provisioner/internal/metrics"
	"tenant-provisioner/internal/model"
	"tenant-provisioner/internal/tenant"
)

// DatabaseProvisioner creates the tenant database, user and grants and saves
// the registry record.
type DatabaseProvisioner interface {
	CreateNewTenantDatabase(ctx context.Context, tenantID string, creds model.Credentials) (*model.TenantRecord, error)
}

// Deployer applies the tenant workload and service.
type Deployer interface {
	DeployTenant(ctx context.Context, tenantID string, creds model.Credentials) error
}

// StatusUpdater records how a provisioning attempt ended.
type StatusUpdater interface {
	UpdateTenantStatus(ctx context.Context, tenantID string, status model.Status, message string) error
}

type Option func(*TenantManager)

// WithLocker enables cross-process admission control.
func WithLocker(l lock.Locker) Option {
	return func(tm *TenantManager) { tm.locker = l }
}

// WithPublisher sends a lifecycle event at the end of every attempt.
func WithPublisher(p messaging.Publisher) Option {
	return func(tm *TenantManager) { tm.publisher = p }
}

// WithTimeout bounds one attempt. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(tm *TenantManager) { tm.timeout = d }
}

// TenantManager drives a tenant through database provisioning and deployment.
type TenantManager struct {
	provisioner DatabaseProvisioner
	deployer    Deployer
	registry    StatusUpdater
	locker      lock.Locker
	publisher   messaging.Publisher
	logger      *zap.Logger
	timeout     time.Duration

	newCredentials func(tenantID string) (model.Credentials, error)
	now            func() time.Time

	sf singleflight.Group
}

func NewTenantManager(
	provisioner DatabaseProvisioner,
	deployer Deployer,
	registry StatusUpdater,
	logger *zap.Logger,
	opts ...Option,
) *TenantManager {
	tm := &TenantManager{
		provisioner:    provisioner,
		deployer:       deployer,
		registry:       registry,
		locker:         lock.NopLocker{},
		publisher:      messaging.NopPublisher{},
		logger:         logger,
		newCredentials: tenant.NewCredentials,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(tm)
	}
	return tm
}

// RegisterNewTenant provisions tenantID end to end. The returned error is the
// outcome's Err. Concurrent calls for the same id share one attempt and its outcome.
func (tm *TenantManager) RegisterNewTenant(ctx context.Context, tenantID string) (*Outcome, error) {
	if err := tenant.Validate(tenantID); err != nil {
		out := &Outcome{TenantID: tenantID, State: StateStart}
		tm.fail(ctx, out, PhaseValidation, err)
		return out, out.Err
	}

	v, _, shared := tm.sf.Do(tenantID, func() (interface{}, error) {
		return tm.provision(ctx, tenantID), nil
	})
	out := v.(*Outcome)
	if shared {
		tm.logger.Debug("Joined in-flight provisioning", zap.String("tenant_id", tenantID))
	}
	return out, out.Err
}

func (tm *TenantManager) provision(ctx context.Context, tenantID string) *Outcome {
	metrics.InFlight.Inc()
	defer metrics.InFlight.Dec()

	if tm.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tm.timeout)
		defer cancel()
	}

	out := &Outcome{TenantID: tenantID, State: StateStart}
	tm.logger.Info("Provisioning tenant", zap.String("tenant_id", tenantID))

	release, err := tm.locker.Acquire(ctx, tenantID)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			err = ErrProvisioningInProgress
		}
		tm.fail(ctx, out, PhaseAdmission, err)
		return out
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			tm.logger.Warn("Failed to release tenant lock", zap.String("tenant_id", tenantID), zap.Error(err))
		}
	}()

	creds, err := tm.newCredentials(tenantID)
	if err != nil {
		tm.fail(ctx, out, PhaseDatabase, err)
		return out
	}

	start := time.Now()
	rec, err := tm.provisioner.CreateNewTenantDatabase(ctx, tenantID, creds)
	metrics.PhaseDuration.WithLabelValues(string(PhaseDatabase)).Observe(time.Since(start).Seconds())
	if err != nil {
		tm.fail(ctx, out, PhaseDatabase, err)
		return out
	}
	out.State = StateDBProvisioned
	out.Record = rec

	start = time.Now()
	err = tm.deployer.DeployTenant(ctx, tenantID, creds)
	metrics.PhaseDuration.WithLabelValues(string(PhaseDeployment)).Observe(time.Since(start).Seconds())
	if err != nil {
		tm.updateStatus(ctx, out, model.StatusPartiallyFailed, err.Error())
		tm.fail(ctx, out, PhaseDeployment, err)
		return out
	}
	out.State = StateDeployed

	tm.updateStatus(ctx, out, model.StatusSucceeded, "")
	out.State = StateSuccess

	metrics.ProvisioningAttempts.WithLabelValues(outcomeSuccess, "").Inc()
	tm.logger.Info("Tenant provisioned",
		zap.String("tenant_id", tenantID),
		zap.String("db_name", rec.DBName))
	tm.publish(ctx, out)
	return out
}

// updateStatus writes the final record status. The record already exists, so a
// failure here is logged and does not change the outcome.
func (tm *TenantManager) updateStatus(ctx context.Context, out *Outcome, status model.Status, message string) {
	err := tm.registry.UpdateTenantStatus(context.WithoutCancel(ctx), out.TenantID, status, message)
	if err != nil {
		tm.logger.Error("Failed to update tenant status",
			zap.String("tenant_id", out.TenantID),
			zap.String("status", string(status)),
			zap.Error(err))
		return
	}
	if out.Record != nil {
		out.Record.Status = status
		out.Record.StatusMessage = message
	}
}

func (tm *TenantManager) fail(ctx context.Context, out *Outcome, phase Phase, err error) {
	out.Err = &PhaseError{Phase: phase, Err: err}

	metrics.ProvisioningAttempts.WithLabelValues(outcomeFailed, string(phase)).Inc()
	tm.logger.Error("Tenant provisioning failed",
		zap.String("tenant_id", out.TenantID),
		zap.String("phase", string(phase)),
		zap.String("reached_state", string(out.State)),
		zap.Error(err))

	out.State = StateFailed
	tm.publish(ctx, out)
}

func (tm *TenantManager) publish(ctx context.Context, out *Outcome) {
	event := messaging.Event{
		Type:      messaging.EventProvisioned,
		TenantID:  out.TenantID,
		State:     string(out.State),
		Timestamp: tm.now().UTC(),
	}
	if out.Err != nil {
		event.Type = messaging.EventProvisioningFailed
		event.Phase = string(out.Phase())
		event.Message = out.Err.Error()
	}

	if err := tm.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		tm.logger.Warn("Failed to publish lifecycle event",
			zap.String("tenant_id", out.TenantID),
			zap.String("event", event.Type),
			zap.Error(err))
	}
}
