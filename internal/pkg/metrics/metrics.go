package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "payledger"

// Outcome label values shared by all counters.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
)

// Collector wraps the Prometheus counters of the billing core. A nil *Collector is
// valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	WebhookEvents  *prometheus.CounterVec
	Purchases      *prometheus.CounterVec
	PlanOperations *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "webhook_events_total",
			Help:      "Total number of processor webhook events by type and outcome",
		}, []string{"event_type", "outcome"}),
		Purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "purchases_started_total",
			Help:      "Total number of purchase attempts by plan type and outcome",
		}, []string{"plan_type", "outcome"}),
		PlanOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "plan_operations_total",
			Help:      "Total number of plan catalog operations by operation and outcome",
		}, []string{"operation", "outcome"}),
	}
	reg.MustRegister(c.WebhookEvents, c.Purchases, c.PlanOperations)
	return c
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) WebhookEvent(eventType, outcome string) {
	if c == nil {
		return
	}
	c.WebhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (c *Collector) Purchase(planType, outcome string) {
	if c == nil {
		return
	}
	c.Purchases.WithLabelValues(planType, outcome).Inc()
}

func (c *Collector) PlanOperation(operation string, err error) {
	if c == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	c.PlanOperations.WithLabelValues(operation, outcome).Inc()
}
