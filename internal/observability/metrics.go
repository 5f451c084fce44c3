// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Scan metrics
	AccountsScanned   prometheus.Counter
	MalformedAccounts prometheus.Counter
	CandidatesFound   *prometheus.CounterVec
	AccountsSkipped   *prometheus.CounterVec

	// Submission metrics
	BatchesTotal      *prometheus.CounterVec
	BatchesReused     prometheus.Counter
	AccountsClosed    prometheus.Counter
	LamportsReclaimed prometheus.Counter
	ConfirmLatency    prometheus.Histogram

	// Session metrics
	SessionsStarted  prometheus.Counter
	SessionsFinished *prometheus.CounterVec
	SessionsActive   prometheus.Gauge
	CredentialErrors *prometheus.CounterVec

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCCallErrors  *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance registered with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "rent_reclaimer"
	}
	f := promauto.With(reg)

	return &Metrics{
		AccountsScanned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "accounts_scanned_total",
			Help:      "Total number of token accounts returned by wallet scans",
		}),
		MalformedAccounts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "malformed_accounts_total",
			Help:      "Total number of token account entries skipped as undecodable",
		}),
		CandidatesFound: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "candidates_total",
			Help:      "Total number of reclaim candidates by reason",
		}, []string{"reason"}),
		AccountsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "accounts_skipped_total",
			Help:      "Total number of scanned accounts not eligible for closure by reason",
		}, []string{"reason"}),

		BatchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submit",
			Name:      "batches_total",
			Help:      "Total number of transaction batches by final status",
		}, []string{"status"}),
		BatchesReused: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submit",
			Name:      "batches_reused_total",
			Help:      "Total number of batches answered from an earlier submission",
		}),
		AccountsClosed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submit",
			Name:      "accounts_closed_total",
			Help:      "Total number of token accounts closed",
		}),
		LamportsReclaimed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submit",
			Name:      "lamports_reclaimed_total",
			Help:      "Total lamports refunded by confirmed batches",
		}),
		ConfirmLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "submit",
			Name:      "confirm_latency_seconds",
			Help:      "Time from send to observed confirmation",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),

		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "started_total",
			Help:      "Total number of reclaim sessions started",
		}),
		SessionsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "finished_total",
			Help:      "Total number of reclaim sessions by terminal state",
		}, []string{"state"}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of sessions currently held in memory",
		}),
		CredentialErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "credential_errors_total",
			Help:      "Total number of rejected credentials by kind",
		}, []string{"kind"}),

		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_errors_total",
			Help:      "Total number of failed Solana RPC calls",
		}, []string{"method"}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", prometheus.DefaultRegisterer)

// RecordScan records the outcome of one wallet scan.
func RecordScan(accounts, malformed int) {
	DefaultMetrics.AccountsScanned.Add(float64(accounts))
	DefaultMetrics.MalformedAccounts.Add(float64(malformed))
}

// RecordClassification records candidates and skipped accounts by reason.
func RecordClassification(candidates, skipped map[string]int) {
	for reason, n := range candidates {
		DefaultMetrics.CandidatesFound.WithLabelValues(reason).Add(float64(n))
	}
	for reason, n := range skipped {
		DefaultMetrics.AccountsSkipped.WithLabelValues(reason).Add(float64(n))
	}
}

// RecordBatch records the final status of one batch. Reused outcomes are
// counted separately so refunds are never counted twice.
func RecordBatch(status string, accounts int, lamports uint64, reused bool) {
	if reused {
		DefaultMetrics.BatchesReused.Inc()
		return
	}
	DefaultMetrics.BatchesTotal.WithLabelValues(status).Inc()
	if status == "confirmed" {
		DefaultMetrics.AccountsClosed.Add(float64(accounts))
		DefaultMetrics.LamportsReclaimed.Add(float64(lamports))
	}
}

// RecordConfirmLatency records how long a batch took to confirm.
func RecordConfirmLatency(d time.Duration) {
	DefaultMetrics.ConfirmLatency.Observe(d.Seconds())
}

// RecordSessionStarted increments the sessions started counter.
func RecordSessionStarted() {
	DefaultMetrics.SessionsStarted.Inc()
	DefaultMetrics.SessionsActive.Inc()
}

// RecordSessionFinished records a session reaching a terminal state.
func RecordSessionFinished(state string) {
	DefaultMetrics.SessionsFinished.WithLabelValues(state).Inc()
	DefaultMetrics.SessionsActive.Dec()
}

// RecordCredentialError records a rejected credential.
func RecordCredentialError(kind string) {
	DefaultMetrics.CredentialErrors.WithLabelValues(kind).Inc()
}

// RecordRPCCall records RPC call latency and failures. Its signature matches
// solana.WithCallObserver.
func RecordRPCCall(method string, d time.Duration, err error) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(d.Seconds())
	if err != nil {
		DefaultMetrics.RPCCallErrors.WithLabelValues(method).Inc()
	}
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
