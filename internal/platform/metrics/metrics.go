// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

// Package metrics exposes Prometheus instrumentation for the identity core.
//
// # Scope
//
// Only security-relevant outcomes are counted here (login attempts, lockouts,
// verification decisions). Request-level latency metrics belong to the HTTP
// middleware, not this package.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	loginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procura_login_attempts_total",
			Help: "Login attempts by outcome (success, invalid_credentials, locked, not_verified, inactive).",
		},
		[]string{"outcome"},
	)

	lockouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "procura_lockouts_total",
		Help: "Accounts locked after exceeding the failed-attempt threshold.",
	})

	verificationDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procura_verification_decisions_total",
			Help: "Supplier verification decisions by kind (approved, rejected).",
		},
		[]string{"decision"},
	)
)

// Init registers all identity-core collectors with the default registry.
// Call exactly once during startup.
func Init() {
	prometheus.MustRegister(loginAttempts, lockouts, verificationDecisions)
}

// Handler returns the /metrics scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// # Recording Helpers

// LoginAttempt records one login attempt outcome.
func LoginAttempt(outcome string) {
	loginAttempts.WithLabelValues(outcome).Inc()
}

// Lockout records one account lockout event.
func Lockout() {
	lockouts.Inc()
}

// VerificationDecision records one admin verification decision.
func VerificationDecision(decision string) {
	verificationDecisions.WithLabelValues(decision).Inc()
}
