// Package metrics defines and registers all custom Prometheus metrics for
// authd. It is the single source of truth for metric names, labels, and help
// strings. Metrics register with the default registry at import time via
// promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "authkit"

// Result label values shared by the counters below.
const (
	ResultSuccess   = "success"
	ResultInvalid   = "invalid"
	ResultLocked    = "locked"
	ResultChallenge = "challenge"
	ResultError     = "error"
)

// LoginsTotal counts password login attempts.
// Label:
//   - result: "success", "invalid", "locked", "challenge" (second factor
//     pending), or "error"
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of password login attempts, by result.",
	},
	[]string{"result"},
)

// TwoFactorTotal counts second-factor verification attempts.
// Label:
//   - result: "success", "invalid", "locked", or "error"
var TwoFactorTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "two_factor_verifications_total",
		Help:      "Total number of second-factor verification attempts, by result.",
	},
	[]string{"result"},
)

// RefreshesTotal counts refresh token exchanges.
// Label:
//   - result: "success", "invalid", or "error"
var RefreshesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_refreshes_total",
		Help:      "Total number of refresh token exchanges, by result.",
	},
	[]string{"result"},
)

// LockoutsTotal counts accounts entering the temporary lockout.
var LockoutsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "account_lockouts_total",
		Help:      "Total number of accounts locked after repeated failures.",
	},
)

// LogoutsTotal counts explicit logout calls.
var LogoutsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logouts_total",
		Help:      "Total number of explicit logouts.",
	},
)
