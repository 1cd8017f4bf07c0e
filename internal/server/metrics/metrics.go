// Package metrics exposes the Prometheus counters of the auth flows.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeOtpNotFound        = "otp_not_found"
	OutcomeOtpExpired         = "otp_expired"
	OutcomeFaceMismatch       = "face_mismatch"
	OutcomeRateLimited        = "rate_limited"
	OutcomeError              = "error"
)

// Metrics groups the counters. A nil *Metrics records nothing.
type Metrics struct {
	AuthAttempts *prometheus.CounterVec
	OTPIssued    *prometheus.CounterVec
	SweepDeleted *prometheus.CounterVec
}

// New registers the counters with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AuthAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_auth_attempts_total",
			Help: "Authentication attempts by flow and outcome.",
		}, []string{"flow", "outcome"}),
		OTPIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_otp_issued_total",
			Help: "One-time passcodes issued by purpose.",
		}, []string{"purpose"}),
		SweepDeleted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_sweep_deleted_total",
			Help: "Expired rows removed by the sweeper.",
		}, []string{"kind"}),
	}
}

// Attempt counts one authentication attempt.
func (m *Metrics) Attempt(flow, outcome string) {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues(flow, outcome).Inc()
}

// Issued counts one passcode.
func (m *Metrics) Issued(purpose string) {
	if m == nil {
		return
	}
	m.OTPIssued.WithLabelValues(purpose).Inc()
}

// Swept adds n removed rows of kind.
func (m *Metrics) Swept(kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.SweepDeleted.WithLabelValues(kind).Add(float64(n))
}
