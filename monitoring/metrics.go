package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	verificationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_verification_attempts_total",
			Help: "Ledger verification attempts by outcome",
		},
		[]string{"trigger", "outcome"},
	)

	ticketsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tickets_issued_total",
			Help: "Tickets issued across all events",
		},
	)

	sweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_sweep_runs_total",
			Help: "Sweep invocations by result",
		},
		[]string{"result"},
	)

	oldestPendingAge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pending_order_oldest_age_seconds",
			Help: "Age of the oldest order still awaiting verification",
		},
	)

	oracleRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_oracle_requests_total",
			Help: "Price oracle lookups by source",
		},
		[]string{"source"}, // cache, upstream, error
	)

	ledgerRPCDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledger_rpc_duration_seconds",
			Help:    "Duration of ledger RPC calls",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)
)

// TrackVerification records one verification attempt. Trigger is the entry
// point (submit, viewer, sweep); outcome is verified, unverified or error.
func TrackVerification(trigger, outcome string) {
	verificationAttempts.WithLabelValues(trigger, outcome).Inc()
}

func TrackTicketIssued() {
	ticketsIssued.Inc()
}

// TrackSweep records a sweep run: completed, skipped (another sweep held the
// lock) or failed.
func TrackSweep(result string) {
	sweepRuns.WithLabelValues(result).Inc()
}

func TrackOldestPendingAge(age time.Duration) {
	oldestPendingAge.Set(age.Seconds())
}

// TrackOracleLookup records where a rate came from: cache, upstream or error.
func TrackOracleLookup(source string) {
	oracleRequests.WithLabelValues(source).Inc()
}

func TrackLedgerRPC(duration time.Duration) {
	ledgerRPCDuration.Observe(duration.Seconds())
}
