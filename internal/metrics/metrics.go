package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "orchestrator"

// Orchestrator counts dispatch outcomes, provider actions and store conflicts.
// It implements orchestrator.Metrics.
type Orchestrator struct {
	events    *prometheus.CounterVec
	actions   *prometheus.CounterVec
	retries   *prometheus.CounterVec
	conflicts prometheus.Counter
	incoming  *prometheus.CounterVec
}

// New creates the counters and registers them with reg.
func New(reg prometheus.Registerer) (*Orchestrator, error) {
	m := &Orchestrator{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Callback events dispatched, by event type and outcome.",
		}, []string{"type", "outcome"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_actions_total",
			Help:      "Provider commands issued, by action and final result.",
		}, []string{"action", "result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_retries_total",
			Help:      "Provider commands retried after an operation-in-flight rejection.",
		}, []string{"action"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_conflicts_total",
			Help:      "Call record writes rejected by a version conflict.",
		}),
		incoming: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incoming_calls_total",
			Help:      "Incoming calls seen, by matching result.",
		}, []string{"result"}),
	}

	for _, c := range []prometheus.Collector{m.events, m.actions, m.retries, m.conflicts, m.incoming} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Orchestrator) EventDispatched(eventType, outcome string) {
	m.events.WithLabelValues(eventType, outcome).Inc()
}

func (m *Orchestrator) ProviderAction(action, result string) {
	m.actions.WithLabelValues(action, result).Inc()
}

func (m *Orchestrator) ProviderRetry(action string) {
	m.retries.WithLabelValues(action).Inc()
}

func (m *Orchestrator) StoreConflict() {
	m.conflicts.Inc()
}

func (m *Orchestrator) IncomingCall(result string) {
	m.incoming.WithLabelValues(result).Inc()
}
