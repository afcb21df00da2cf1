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

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveDecision("LOGIN", OutcomeAllowed)
	m.ObserveDecision("LOGIN", OutcomeAllowed)
	m.ObserveDecision("LOGIN", OutcomeDenied)
	m.ObserveEvent("RATE_LIMIT_EXCEEDED")
	m.ObserveAlert(AlertDelivered)
	m.ObserveAlertDropped()
	m.ObserveRelease("LOGIN")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.gateDecisions.WithLabelValues("LOGIN", OutcomeAllowed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gateDecisions.WithLabelValues("LOGIN", OutcomeDenied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.securityEvents.WithLabelValues("RATE_LIMIT_EXCEEDED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alerts.WithLabelValues(AlertDelivered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alertsDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.releases.WithLabelValues("LOGIN")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveDecision("LOGIN", OutcomeDenied)
		m.ObserveEvent("AUTH_FAILURE")
		m.ObserveAlert(AlertFailed)
		m.ObserveAlertDropped()
		m.ObserveRelease("LOGIN")
	})
	assert.Nil(t, m.Registry())
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveDecision("SIGNUP", OutcomeDenied)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `woof_guard_gate_decisions_total{outcome="denied",policy="SIGNUP"} 1`))
	assert.Contains(t, body, "go_goroutines")
}
