package monitoring

import (
	"time"

	"spacegate/internal/core/domain"
	"spacegate/pkg/circuitbreaker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements ports.Metrics.
type PrometheusCollector struct {
	decisionsTotal       *prometheus.CounterVec
	providerRequests     *prometheus.CounterVec
	providerDuration     *prometheus.HistogramVec
	metadataCacheTotal   *prometheus.CounterVec
	participantsJoined   prometheus.Counter
	participantsLeft     prometheus.Counter
	circuitBreakerState  *prometheus.GaugeVec
	feedConnectionsGauge prometheus.Gauge
}

// NewPrometheusCollector registers every metric on reg; nil means the
// default registry.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusCollector{
		decisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spacegate_admission_decisions_total",
			Help: "Admission decisions by reason; allowed decisions carry reason \"allowed\"",
		}, []string{"reason"}),

		providerRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spacegate_provider_requests_total",
			Help: "Outbound provider API requests by outcome",
		}, []string{"provider", "outcome"}),

		providerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spacegate_provider_request_duration_seconds",
			Help:    "Latency of outbound provider API requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
		}, []string{"provider"}),

		metadataCacheTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spacegate_metadata_cache_total",
			Help: "Provider metadata lookups by result (hit, refreshed, stale, error)",
		}, []string{"result"}),

		participantsJoined: factory.NewCounter(prometheus.CounterOpts{
			Name: "spacegate_participants_joined_total",
			Help: "Participant records created",
		}),

		participantsLeft: factory.NewCounter(prometheus.CounterOpts{
			Name: "spacegate_participants_left_total",
			Help: "Participant records removed",
		}),

		circuitBreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "spacegate_circuit_breaker_state",
			Help: "Provider circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"name"}),

		feedConnectionsGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "spacegate_feed_connections",
			Help: "Open participation feed websocket connections",
		}),
	}
}

func (p *PrometheusCollector) RecordDecision(reason domain.Reason) {
	label := string(reason)
	if reason == domain.ReasonNone {
		label = "allowed"
	}
	p.decisionsTotal.WithLabelValues(label).Inc()
}

func (p *PrometheusCollector) RecordProviderRequest(provider domain.Provider, outcome string, duration time.Duration) {
	p.providerRequests.WithLabelValues(string(provider), outcome).Inc()
	p.providerDuration.WithLabelValues(string(provider)).Observe(duration.Seconds())
}

func (p *PrometheusCollector) RecordMetadataCache(result string) {
	p.metadataCacheTotal.WithLabelValues(result).Inc()
}

func (p *PrometheusCollector) RecordParticipantJoined(domain.SpaceID) {
	p.participantsJoined.Inc()
}

func (p *PrometheusCollector) RecordParticipantLeft(domain.SpaceID) {
	p.participantsLeft.Inc()
}

// RecordBreakerState matches circuitbreaker.Config.OnStateChange.
func (p *PrometheusCollector) RecordBreakerState(name string, _, to circuitbreaker.State) {
	p.circuitBreakerState.WithLabelValues(name).Set(float64(to))
}

func (p *PrometheusCollector) SetFeedConnections(n int) {
	p.feedConnectionsGauge.Set(float64(n))
}
