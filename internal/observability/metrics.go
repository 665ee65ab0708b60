package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes recovery and transport counters. A nil *Metrics is a no-op.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec

	loginOutcomes    *prometheus.CounterVec
	lockouts         prometheus.Counter
	ticketsOpened    *prometheus.CounterVec
	resolutions      *prometheus.CounterVec
	invalidState     *prometheus.CounterVec
	inconsistencies  prometheus.Counter
	transientFailure *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "account_recovery_http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "account_recovery_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"route", "method"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "account_recovery_http_errors_total",
			Help: "HTTP error responses by route, method and error code",
		}, []string{"route", "method", "code"}),
		loginOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "account_recovery_login_outcomes_total",
			Help: "Login attempt outcomes by outcome and reason",
		}, []string{"outcome", "reason"}),
		lockouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "account_recovery_lockouts_total",
			Help: "Accounts locked after reaching the failure threshold",
		}),
		ticketsOpened: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "account_recovery_tickets_opened_total",
			Help: "Incident tickets opened by type",
		}, []string{"type"}),
		resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "account_recovery_ticket_resolutions_total",
			Help: "Incident ticket resolutions by decision",
		}, []string{"decision"}),
		invalidState: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "account_recovery_invalid_state_total",
			Help: "Operations rejected because the target was in the wrong state",
		}, []string{"operation"}),
		inconsistencies: factory.NewCounter(prometheus.CounterOpts{
			Name: "account_recovery_inconsistencies_total",
			Help: "Approved tickets whose account reset did not land",
		}),
		transientFailure: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "account_recovery_store_transient_failures_total",
			Help: "Record store calls that failed or timed out",
		}, []string{"operation"}),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

func (m *Metrics) RecordLoginOutcome(outcome, reason string) {
	if m == nil {
		return
	}
	m.loginOutcomes.WithLabelValues(outcome, reason).Inc()
}

func (m *Metrics) RecordLockout() {
	if m == nil {
		return
	}
	m.lockouts.Inc()
}

func (m *Metrics) RecordTicketOpened(ticketType string) {
	if m == nil {
		return
	}
	m.ticketsOpened.WithLabelValues(ticketType).Inc()
}

func (m *Metrics) RecordResolution(decision string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(decision).Inc()
}

func (m *Metrics) RecordInvalidState(operation string) {
	if m == nil {
		return
	}
	m.invalidState.WithLabelValues(operation).Inc()
}

func (m *Metrics) RecordInconsistency() {
	if m == nil {
		return
	}
	m.inconsistencies.Inc()
}

func (m *Metrics) RecordTransient(operation string) {
	if m == nil {
		return
	}
	m.transientFailure.WithLabelValues(operation).Inc()
}
