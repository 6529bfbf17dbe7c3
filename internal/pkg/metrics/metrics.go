// Package metrics defines and registers all custom Prometheus metrics for the
// identity service. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default Prometheus registry on package init
// through promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "identity"

// ── Login metrics ─────────────────────────────────────────────────────────────

// LoginAttemptsTotal counts login attempts by outcome.
// Label:
//   - result: "success", "invalid_credentials", "locked_temporary",
//     "locked_permanent" or "error"
var LoginAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_attempts_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// LockoutsTotal counts lockouts triggered by failed logins.
// Label:
//   - kind: "temporary" or "permanent"
var LockoutsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lockouts_total",
		Help:      "Total number of account lockouts triggered, by kind.",
	},
	[]string{"kind"},
)

// ── Token metrics ─────────────────────────────────────────────────────────────

// RefreshTotal counts refresh token exchanges.
// Label:
//   - result: "success", "invalid", "locked" or "error"
var RefreshTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_total",
		Help:      "Total number of refresh token exchanges, by result.",
	},
	[]string{"result"},
)

// RevocationRejectionsTotal counts requests rejected by the revocation gate.
// Label:
//   - reason: "missing_subject", "unknown_user", "stamp_mismatch" or "store_unavailable"
var RevocationRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "revocation_rejections_total",
		Help:      "Total number of requests rejected by the revocation check.",
	},
	[]string{"reason"},
)

// ── Task metrics ──────────────────────────────────────────────────────────────

// TasksEnqueuedTotal counts background tasks accepted by the dispatcher.
var TasksEnqueuedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_enqueued_total",
		Help:      "Total number of background tasks accepted.",
	},
	[]string{"task"},
)

// TasksDroppedTotal counts tasks discarded because the worker buffer was full.
var TasksDroppedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_dropped_total",
		Help:      "Total number of background tasks dropped on a full worker buffer.",
	},
	[]string{"task"},
)

// TasksFailedTotal counts tasks whose handler returned an error or that had no handler.
var TasksFailedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_failed_total",
		Help:      "Total number of background tasks that failed.",
	},
	[]string{"task"},
)

// TaskQueueDepth tracks the number of tasks waiting in each worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var TaskQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "task_queue_depth",
		Help:      "Current number of tasks pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// TaskDuration measures how long a task handler runs.
var TaskDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Duration of background task handlers.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"task"},
)
