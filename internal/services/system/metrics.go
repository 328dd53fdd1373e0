// Package system provides system-level services for monitoring and maintenance.
package system

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"norelock.dev/nowplaying/bot/internal/utils"
)

// MetricsService provides application metrics collection functionality.
type MetricsService struct {
	logger *utils.Logger

	// Inline query metrics
	inlineQueriesTotal   *prometheus.CounterVec
	inlineAnswerDuration prometheus.Histogram

	// Fulfillment metrics
	fulfillmentsTotal      *prometheus.CounterVec
	fulfillmentDuration    prometheus.Histogram
	fulfillmentsInProgress prometheus.Gauge

	// Provider metrics
	providerFetchesTotal *prometheus.CounterVec

	// Placeholder metrics
	placeholderUploadsTotal prometheus.Counter

	// Update loop metrics
	updatesTotal *prometheus.CounterVec
}

// NewMetricsService creates a new metrics service.
func NewMetricsService(logger *utils.Logger) *MetricsService {
	m := &MetricsService{
		logger: logger.Named("metrics_service"),
	}

	m.initInlineMetrics()
	m.initFulfillmentMetrics()
	m.initProviderMetrics()

	return m
}

// Handler returns an HTTP handler for exposing metrics.
func (m *MetricsService) Handler() http.Handler {
	return promhttp.Handler()
}

// initInlineMetrics initializes inline-query metrics.
func (m *MetricsService) initInlineMetrics() {
	m.inlineQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nowplaying_inline_queries_total",
			Help: "Total number of inline queries answered",
		},
		[]string{"outcome"},
	)

	m.inlineAnswerDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nowplaying_inline_answer_duration_seconds",
			Help:    "Time from inline query to answer in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	m.updatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nowplaying_updates_total",
			Help: "Total number of platform updates processed",
		},
		[]string{"type"},
	)
}

// initFulfillmentMetrics initializes fulfillment pipeline metrics.
func (m *MetricsService) initFulfillmentMetrics() {
	m.fulfillmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nowplaying_fulfillments_total",
			Help: "Total number of fulfillment runs by outcome",
		},
		[]string{"outcome"},
	)

	m.fulfillmentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nowplaying_fulfillment_duration_seconds",
			Help:    "Duration of fulfillment runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	m.fulfillmentsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nowplaying_fulfillments_in_progress",
			Help: "Number of fulfillment runs currently in progress",
		},
	)

	m.placeholderUploadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nowplaying_placeholder_uploads_total",
			Help: "Total number of placeholder audio uploads",
		},
	)
}

// initProviderMetrics initializes provider-related metrics.
func (m *MetricsService) initProviderMetrics() {
	m.providerFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nowplaying_provider_fetches_total",
			Help: "Total number of recent-track fetches by provider",
		},
		[]string{"provider", "outcome"},
	)
}

// ObserveInlineQuery records an answered inline query.
func (m *MetricsService) ObserveInlineQuery(outcome string, duration time.Duration) {
	m.inlineQueriesTotal.WithLabelValues(outcome).Inc()
	m.inlineAnswerDuration.Observe(duration.Seconds())
}

// ObserveFulfillment records a completed fulfillment run.
func (m *MetricsService) ObserveFulfillment(outcome string, duration time.Duration) {
	m.fulfillmentsTotal.WithLabelValues(outcome).Inc()
	m.fulfillmentDuration.Observe(duration.Seconds())
}

// IncFulfillmentsInProgress increments the in-progress fulfillments gauge.
func (m *MetricsService) IncFulfillmentsInProgress() {
	m.fulfillmentsInProgress.Inc()
}

// DecFulfillmentsInProgress decrements the in-progress fulfillments gauge.
func (m *MetricsService) DecFulfillmentsInProgress() {
	m.fulfillmentsInProgress.Dec()
}

// IncProviderFetches increments the provider fetch counter.
func (m *MetricsService) IncProviderFetches(provider, outcome string) {
	m.providerFetchesTotal.WithLabelValues(provider, outcome).Inc()
}

// IncPlaceholderUploads increments the placeholder upload counter.
func (m *MetricsService) IncPlaceholderUploads() {
	m.placeholderUploadsTotal.Inc()
}

// IncUpdates increments the processed-updates counter.
func (m *MetricsService) IncUpdates(updateType string) {
	m.updatesTotal.WithLabelValues(updateType).Inc()
}
