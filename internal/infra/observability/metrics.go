package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics of the console.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
	sends           *prometheus.CounterVec
	duplicates      *prometheus.CounterVec
}

// PipelineSnapshot is returned by GET /v1/metrics/pipeline.
type PipelineSnapshot struct {
	WebhookProcessed  int64 `json:"webhookProcessed"`
	WebhookFailed     int64 `json:"webhookFailed"`
	WebhookIgnored    int64 `json:"webhookIgnored"`
	DuplicatesSkipped int64 `json:"duplicatesSkipped"`
	SendsSucceeded    int64 `json:"sendsSucceeded"`
	SendsFailed       int64 `json:"sendsFailed"`
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "console_operation_duration_seconds",
				Help:    "Duration of pipeline operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_external_errors_total",
				Help: "Total errors from the datastore and the provider.",
			},
			[]string{"service"},
		),
		webhookEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_webhook_events_total",
				Help: "Webhook deliveries by event type and outcome.",
			},
			[]string{"event_type", "outcome"},
		),
		sends: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_sends_total",
				Help: "Outbound sends by action and outcome.",
			},
			[]string{"action", "outcome"},
		),
		duplicates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_duplicates_skipped_total",
				Help: "Messages skipped because their provider id was already stored.",
			},
			[]string{"path"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrWebhookEvent counts a webhook delivery outcome
// (processed, failed, ignored, duplicate, rejected).
func (m *Metrics) IncrWebhookEvent(eventType, outcome string) {
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// IncrSend counts an outbound send outcome (success, error).
func (m *Metrics) IncrSend(action, outcome string) {
	m.sends.WithLabelValues(action, outcome).Inc()
}

// IncrDuplicate counts a skipped duplicate on the given path.
func (m *Metrics) IncrDuplicate(path string) {
	m.duplicates.WithLabelValues(path).Inc()
}

// Snapshot sums the pipeline counters across labels.
func (m *Metrics) Snapshot() *PipelineSnapshot {
	return &PipelineSnapshot{
		WebhookProcessed:  int64(sumCounter(m.webhookEvents, "outcome", "processed")),
		WebhookFailed:     int64(sumCounter(m.webhookEvents, "outcome", "failed")),
		WebhookIgnored:    int64(sumCounter(m.webhookEvents, "outcome", "ignored")),
		DuplicatesSkipped: int64(sumCounter(m.duplicates, "", "")),
		SendsSucceeded:    int64(sumCounter(m.sends, "outcome", "success")),
		SendsFailed:       int64(sumCounter(m.sends, "outcome", "error")),
	}
}

// sumCounter adds every series of cv whose label matches value.
// An empty label sums all series.
func sumCounter(cv *prometheus.CounterVec, label, value string) float64 {
	ch := make(chan prometheus.Metric, 64)
	go func() {
		cv.Collect(ch)
		close(ch)
	}()

	var total float64
	for metric := range ch {
		m := &dto.Metric{}
		if err := metric.Write(m); err != nil || m.Counter == nil || m.Counter.Value == nil {
			continue
		}
		if label != "" && !hasLabel(m, label, value) {
			continue
		}
		total += *m.Counter.Value
	}
	return total
}

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}
