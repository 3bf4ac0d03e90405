// Package metrics holds the Prometheus collectors for the session lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Refresh triggers.
const (
	TriggerReactive  = "reactive"
	TriggerScheduled = "scheduled"
	TriggerExplicit  = "explicit"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeShared  = "shared"
	OutcomeSkipped = "skipped"
)

type Metrics struct {
	RefreshCalls   *prometheus.CounterVec
	Replays        *prometheus.CounterVec
	SessionClears  *prometheus.CounterVec
	SchedulerFires *prometheus.CounterVec
	Logins         *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is what tests and embedded clients usually want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RefreshCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authsession",
			Name:      "refresh_requests_total",
			Help:      "Refresh attempts by trigger and outcome. Shared outcomes joined an in-flight refresh.",
		}, []string{"trigger", "outcome"}),
		Replays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authsession",
			Name:      "replays_total",
			Help:      "Requests replayed after a reactive refresh, by final status class.",
		}, []string{"status"}),
		SessionClears: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authsession",
			Name:      "session_clears_total",
			Help:      "Transitions to the anonymous state by reason.",
		}, []string{"reason"}),
		SchedulerFires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authsession",
			Name:      "scheduler_fires_total",
			Help:      "Proactive refresh timer firings by outcome.",
		}, []string{"outcome"}),
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authsession",
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.RefreshCalls, m.Replays, m.SessionClears, m.SchedulerFires, m.Logins)
	}
	return m
}

func (m *Metrics) Refresh(trigger, outcome string) {
	if m == nil {
		return
	}
	m.RefreshCalls.WithLabelValues(trigger, outcome).Inc()
}

func (m *Metrics) Replay(status string) {
	if m == nil {
		return
	}
	m.Replays.WithLabelValues(status).Inc()
}

func (m *Metrics) Cleared(reason string) {
	if m == nil {
		return
	}
	m.SessionClears.WithLabelValues(reason).Inc()
}

func (m *Metrics) Fired(outcome string) {
	if m == nil {
		return
	}
	m.SchedulerFires.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(outcome).Inc()
}
