// Package metrics exposes run counters to Prometheus. A nil *Metrics is valid
// and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hejijunhao/statusreport/internal/model"
)

const namespace = "statusreport"

// Metrics holds the collectors of one registry.
type Metrics struct {
	IncidentsFetched *prometheus.CounterVec
	IncidentsDropped *prometheus.CounterVec
	Classifications  *prometheus.CounterVec
	Fallbacks        *prometheus.CounterVec
	FetchDuration    *prometheus.HistogramVec
	MTTR             *prometheus.GaugeVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		IncidentsFetched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_fetched_total",
			Help:      "Normalized incidents per company and adapter.",
		}, []string{"company", "adapter"}),
		IncidentsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_dropped_total",
			Help:      "Raw records rejected by the normalizer.",
		}, []string{"company"}),
		Classifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Classification results by method.",
		}, []string{"method"}),
		Fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Stages that fell back from AI to heuristic.",
		}, []string{"stage"}),
		FetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Wall time to fetch one company's history.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"company"}),
		MTTR: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mttr_seconds",
			Help:      "Mean time to resolve over the last analyzed range.",
		}, []string{"company"}),
	}
}

func (m *Metrics) ObserveFetch(company string, d time.Duration, incidents []model.Incident, dropped int) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(company).Observe(d.Seconds())
	for _, inc := range incidents {
		m.IncidentsFetched.WithLabelValues(company, string(inc.Adapter)).Inc()
	}
	if dropped > 0 {
		m.IncidentsDropped.WithLabelValues(company).Add(float64(dropped))
	}
}

func (m *Metrics) ObserveClassifications(results []model.ClassificationResult) {
	if m == nil {
		return
	}
	for _, r := range results {
		m.Classifications.WithLabelValues(string(r.Method)).Inc()
	}
}

func (m *Metrics) Fallback(stage string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(stage).Inc()
}

func (m *Metrics) ObserveMetrics(mt model.Metrics) {
	if m == nil || mt.Resolved == 0 {
		return
	}
	m.MTTR.WithLabelValues(mt.Company).Set(mt.MTTR.Seconds())
}
