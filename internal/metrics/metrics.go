// Package metrics exposes prometheus instrumentation for the funnel engine.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics defines the counters emitted by the engine.
type Metrics interface {
	IncWebhookEvent(funnelType, eventType string)
	IncWebhookDuplicate()
	IncWebhookError(eventType string)
	IncClientRequest(operation, outcome string)
	IncClientRetry(operation string)
	IncAdaptation(intent string)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncWebhookEvent(string, string)  {}
func (Noop) IncWebhookDuplicate()            {}
func (Noop) IncWebhookError(string)          {}
func (Noop) IncClientRequest(string, string) {}
func (Noop) IncClientRetry(string)           {}
func (Noop) IncAdaptation(string)            {}

// Prom implements Metrics backed by Prometheus counters.
type Prom struct {
	webhookEvents     *prometheus.CounterVec
	webhookDuplicates prometheus.Counter
	webhookErrors     *prometheus.CounterVec
	clientRequests    *prometheus.CounterVec
	clientRetries     *prometheus.CounterVec
	adaptations       *prometheus.CounterVec
	once              sync.Once
}

// NewProm creates and registers the engine counters under a namespace.
func NewProm(namespace string) *Prom {
	p := &Prom{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Webhook events processed by funnel type and event type",
		}, []string{"funnel_type", "event_type"}),
		webhookDuplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_duplicates_total",
			Help:      "Webhook deliveries skipped as exact replays",
		}),
		webhookErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_errors_total",
			Help:      "Webhook events that failed processing by event type",
		}, []string{"event_type"}),
		clientRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "n8n_requests_total",
			Help:      "Automation backend calls by operation and outcome",
		}, []string{"operation", "outcome"}),
		clientRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "n8n_retries_total",
			Help:      "Automation backend call retries by operation",
		}, []string{"operation"}),
		adaptations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adaptations_total",
			Help:      "Adaptation intents emitted by intent",
		}, []string{"intent"}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(
			p.webhookEvents,
			p.webhookDuplicates,
			p.webhookErrors,
			p.clientRequests,
			p.clientRetries,
			p.adaptations,
		)
	})
}

func (p *Prom) IncWebhookEvent(funnelType, eventType string) {
	p.webhookEvents.WithLabelValues(funnelType, eventType).Inc()
}

func (p *Prom) IncWebhookDuplicate() {
	p.webhookDuplicates.Inc()
}

func (p *Prom) IncWebhookError(eventType string) {
	p.webhookErrors.WithLabelValues(eventType).Inc()
}

func (p *Prom) IncClientRequest(operation, outcome string) {
	p.clientRequests.WithLabelValues(operation, outcome).Inc()
}

func (p *Prom) IncClientRetry(operation string) {
	p.clientRetries.WithLabelValues(operation).Inc()
}

func (p *Prom) IncAdaptation(intent string) {
	p.adaptations.WithLabelValues(intent).Inc()
}

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
