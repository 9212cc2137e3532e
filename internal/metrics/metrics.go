// Package metrics exposes presence and session lifecycle counters.
//
// All methods are safe on a nil *Metrics so components can run without a
// registry in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "roulette"

type Metrics struct {
	peers          *prometheus.GaugeVec
	sessionsOpen   prometheus.Gauge
	matches        prometheus.Counter
	sessionsEnded  *prometheus.CounterVec
	staleEvicted   prometheus.Counter
	signals        prometheus.Counter
	signalsDropped prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		peers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers",
			Help:      "Registered peers by status.",
		}, []string{"status"}),
		sessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_open",
			Help:      "Currently open sessions.",
		}),
		matches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_total",
			Help:      "Sessions created by the matchmaker.",
		}),
		sessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Sessions torn down, by reason.",
		}, []string{"reason"}),
		staleEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_evictions_total",
			Help:      "Peers evicted for inactivity or a dead connection.",
		}),
		signals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_relayed_total",
			Help:      "Signaling payloads forwarded to a partner.",
		}),
		signalsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_dropped_total",
			Help:      "Signaling payloads that could not be queued.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.peers, m.sessionsOpen, m.matches, m.sessionsEnded, m.staleEvicted, m.signals, m.signalsDropped)
	}
	return m
}

func (m *Metrics) SetPresence(searching, inSession, idle, sessions int) {
	if m == nil {
		return
	}
	m.peers.WithLabelValues("searching").Set(float64(searching))
	m.peers.WithLabelValues("in_session").Set(float64(inSession))
	m.peers.WithLabelValues("idle").Set(float64(idle))
	m.sessionsOpen.Set(float64(sessions))
}

func (m *Metrics) MatchCreated() {
	if m == nil {
		return
	}
	m.matches.Inc()
}

func (m *Metrics) SessionEnded(reason string) {
	if m == nil {
		return
	}
	m.sessionsEnded.WithLabelValues(reason).Inc()
}

func (m *Metrics) StaleEvicted(n int) {
	if m == nil {
		return
	}
	m.staleEvicted.Add(float64(n))
}

func (m *Metrics) SignalRelayed() {
	if m == nil {
		return
	}
	m.signals.Inc()
}

func (m *Metrics) SignalDropped() {
	if m == nil {
		return
	}
	m.signalsDropped.Inc()
}
