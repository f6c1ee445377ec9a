package manager

import (
	"errors"
	"fmt"

	"tenant-provisioner/internal/model"
)

// State is a step of the provisioning state machine. FAILED is absorbing.
type State string

const (
	StateStart         State = "START"
	StateDBProvisioned State = "DB_PROVISIONED"
	StateDeployed      State = "DEPLOYED"
	StateSuccess       State = "SUCCESS"
	StateFailed        State = "FAILED"
)

// Phase names the part of an attempt that failed.
type Phase string

const (
	PhaseValidation Phase = "validation"
	PhaseAdmission  Phase = "admission"
	PhaseDatabase   Phase = "database"
	PhaseDeployment Phase = "deployment"
)

const (
	outcomeSuccess = "success"
	outcomeFailed  = "failed"
)

// ErrProvisioningInProgress is returned when another process holds the tenant's lock.
var ErrProvisioningInProgress = errors.New("provisioning already in progress for tenant")

type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s phase failed: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// Outcome is the result of one RegisterNewTenant call. Record is set once the
// database phase succeeded, even if deployment later failed.
type Outcome struct {
	TenantID string
	State    State
	Record   *model.TenantRecord
	Err      error
}

func (o *Outcome) Succeeded() bool {
	return o.State == StateSuccess && o.Err == nil
}

// Phase returns the failed phase, or "" on success.
func (o *Outcome) Phase() Phase {
	var pe *PhaseError
	if errors.As(o.Err, &pe) {
		return pe.Phase
	}
	return ""
}
