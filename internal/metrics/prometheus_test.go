package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitExposesProvisioningMetrics(t *testing.T) {
	Init()

	ProvisioningAttempts.WithLabelValues("success", "").Inc()
	PhaseDuration.WithLabelValues("database").Observe(0.25)
	InFlight.Inc()
	defer InFlight.Dec()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `tenant_provisioning_attempts_total{outcome="success",phase=""}`))
	assert.Contains(t, body, "tenant_provisioning_phase_duration_seconds_bucket")
	assert.Contains(t, body, "tenant_provisioning_in_flight 1")
}

func TestProvisioningAttemptsByOutcome(t *testing.T) {
	before := testutil.ToFloat64(ProvisioningAttempts.WithLabelValues("failed", "deployment"))

	ProvisioningAttempts.WithLabelValues("failed", "deployment").Inc()

	assert.Equal(t, before+1, testutil.ToFloat64(ProvisioningAttempts.WithLabelValues("failed", "deployment")))
}
