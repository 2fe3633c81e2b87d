package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors on a private registry so tests
// can create independent instances.
type Metrics struct {
	registry *prometheus.Registry

	EmailsSent        prometheus.Counter
	EmailsFailed      prometheus.Counter
	JobsInFlight      prometheus.Gauge
	WebhookEvents     *prometheus.CounterVec
	RateLimitExceeded *prometheus.CounterVec
	CampaignDuration  prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		EmailsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "letterflow_emails_sent_total",
			Help: "Total number of emails accepted by the delivery provider",
		}),
		EmailsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "letterflow_emails_failed_total",
			Help: "Total number of emails the delivery provider rejected",
		}),
		JobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "letterflow_send_jobs_in_flight",
			Help: "Number of campaign send jobs currently processing",
		}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "letterflow_webhook_events_total",
			Help: "Total number of provider webhook events received by type",
		}, []string{"type"}),
		RateLimitExceeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "letterflow_rate_limit_exceeded_total",
			Help: "Total number of requests rejected by the rate limiter",
		}, []string{"endpoint"}),
		CampaignDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "letterflow_campaign_duration_seconds",
			Help:    "Wall-clock duration of campaign send jobs",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		}),
	}

	m.registry.MustRegister(
		m.EmailsSent,
		m.EmailsFailed,
		m.JobsInFlight,
		m.WebhookEvents,
		m.RateLimitExceeded,
		m.CampaignDuration,
	)
	return m
}

// Handler serves the metrics endpoint for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
