// Package metrics exposes Prometheus metrics for the entitlement service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/boostly/entitlementd/internal/entitlement"
)

var (
	// Reconciliation metrics
	ReconcilePassesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "entitlementd_reconcile_passes_total",
			Help: "Total number of reconciliation passes",
		},
	)

	ReconcileErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "entitlementd_reconcile_errors_total",
			Help: "Total number of reconciliation passes that failed",
		},
	)

	// Purchase metrics
	PurchasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlementd_purchases_total",
			Help: "Total number of purchase attempts by outcome",
		},
		[]string{"outcome"},
	)

	// Status metrics
	StatusCommitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlementd_status_commits_total",
			Help: "Total number of committed status updates by phase",
		},
		[]string{"phase"},
	)

	StatusSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "entitlementd_status_subscribers",
			Help: "Number of live status subscribers",
		},
	)
)

// RecordReconcile records a reconciliation pass and whether it failed.
func RecordReconcile(err error) {
	ReconcilePassesTotal.Inc()
	if err != nil {
		ReconcileErrorsTotal.Inc()
	}
}

// RecordPurchase records a purchase attempt by outcome.
func RecordPurchase(outcome entitlement.PurchaseOutcome) {
	PurchasesTotal.WithLabelValues(string(outcome)).Inc()
}

// RecordStatusCommit records a committed status update.
func RecordStatusCommit(phase entitlement.StatusPhase) {
	StatusCommitsTotal.WithLabelValues(string(phase)).Inc()
}
