// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation labels for auth metrics.
const (
	OpSignUp   = "signup"
	OpLogIn    = "login"
	OpLogOut   = "logout"
	OpValidate = "validate"
	OpHash     = "hash"
	OpVerify   = "verify"
)

// OperationsTotal counts orchestrator calls by operation and outcome kind.
// Use RegisterMetrics to register this with a Prometheus registry.
var OperationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "usersvc_auth_operations_total",
		Help: "Total number of authentication operations by outcome",
	},
	[]string{"operation", "outcome"},
)

// HashDuration observes time spent inside the password KDF, excluding pool wait.
var HashDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "usersvc_password_hash_duration_seconds",
		Help:    "Password hash and verify duration in seconds",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	},
	[]string{"operation"},
)

// HashPoolWait observes time spent waiting for a hash pool slot.
var HashPoolWait = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "usersvc_password_hash_pool_wait_seconds",
		Help:    "Time spent waiting for a free password hashing slot",
		Buckets: prometheus.DefBuckets,
	},
)

// SessionsSweptTotal counts sessions removed by the expiry sweep.
var SessionsSweptTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "usersvc_sessions_swept_total",
		Help: "Total number of expired sessions removed by the sweeper",
	},
)

// RegisterMetrics registers auth package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(OperationsTotal)
	reg.MustRegister(HashDuration)
	reg.MustRegister(HashPoolWait)
	reg.MustRegister(SessionsSweptTotal)
}

func recordOperation(op string, err error) {
	outcome := "success"
	if err != nil {
		outcome = KindOf(err).String()
	}
	OperationsTotal.WithLabelValues(op, outcome).Inc()
}

func observeHash(op string, start time.Time) {
	HashDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
