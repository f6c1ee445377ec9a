package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"tenant-provisioner/internal/auth"
	"tenant-provisioner/internal/manager"
	"tenant-provisioner/internal/model"
	"tenant-provisioner/internal/provisioner"
	"tenant-provisioner/internal/storage"
)

// ProvisionResponse is the body of POST /tenants/{tenantId}.
type ProvisionResponse struct {
	TenantID string              `json:"tenant_id"`
	State    string              `json:"state"`
	Phase    string              `json:"phase,omitempty"`
	Message  string              `json:"message"`
	Record   *model.TenantRecord `json:"record,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// @Summary Provision a tenant
// @Description Creates the tenant database, user and grants, deploys the tenant workload and records the result.
// @Tags Tenants
// @Security ApiKeyAuth
// @Produce json
// @Param tenantId path string true "Tenant id (lowercase letters and digits)"
// @Success 201 {object} ProvisionResponse
// @Failure 400 {object} ProvisionResponse
// @Failure 409 {object} ProvisionResponse
// @Failure 500 {object} ProvisionResponse
// @Failure 502 {object} ProvisionResponse
// @Router /tenants/{tenantId} [post]
func (a *API) RegisterTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	a.Logger.Info("Provisioning requested",
		zap.String("tenant_id", tenantID),
		zap.String("operator", auth.GetSubject(r)),
		zap.String("request_id", middleware.GetReqID(r.Context())))

	out, _ := a.Provisioner.RegisterNewTenant(r.Context(), tenantID)

	resp := ProvisionResponse{
		TenantID: out.TenantID,
		State:    string(out.State),
		Phase:    string(out.Phase()),
		Record:   out.Record,
	}
	if out.Err != nil {
		resp.Message = out.Err.Error()
	} else {
		resp.Message = "tenant " + tenantID + " provisioned"
	}

	writeJSON(w, statusFor(out), resp)
}

// statusFor maps an outcome to the HTTP status that reflects it.
func statusFor(out *manager.Outcome) int {
	switch out.Phase() {
	case "":
		return http.StatusCreated
	case manager.PhaseValidation:
		return http.StatusBadRequest
	case manager.PhaseAdmission:
		if errors.Is(out.Err, manager.ErrProvisioningInProgress) {
			return http.StatusConflict
		}
		return http.StatusServiceUnavailable
	case manager.PhaseDatabase:
		if errors.Is(out.Err, provisioner.ErrUserExists) {
			return http.StatusConflict
		}
		return http.StatusInternalServerError
	case manager.PhaseDeployment:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// @Summary Get a tenant's provisioning record
// @Tags Tenants
// @Security ApiKeyAuth
// @Produce json
// @Param tenantId path string true "Tenant id"
// @Success 200 {object} model.TenantRecord
// @Failure 404 {object} errorResponse
// @Router /tenants/{tenantId} [get]
func (a *API) GetTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	rec, err := a.Registry.GetTenant(r.Context(), tenantID)
	if errors.Is(err, storage.ErrTenantNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		a.Logger.Error("Failed to read tenant record", zap.String("tenant_id", tenantID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to read tenant record"})
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// @Summary List provisioning records
// @Tags Tenants
// @Security ApiKeyAuth
// @Produce json
// @Success 200 {array} model.TenantRecord
// @Router /tenants [get]
func (a *API) ListTenants(w http.ResponseWriter, r *http.Request) {
	records, err := a.Registry.ListTenants(r.Context())
	if err != nil {
		a.Logger.Error("Failed to list tenant records", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list tenant records"})
		return
	}
	if records == nil {
		records = []model.TenantRecord{}
	}

	writeJSON(w, http.StatusOK, records)
}

// @Summary Health check
// @Tags Health
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /healthz [get]
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	if err := a.Registry.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "registry": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
