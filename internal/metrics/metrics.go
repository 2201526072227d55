// Package metrics holds the Prometheus collectors for the intake pipeline.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hurttlocker/mira/internal/advisor"
)

// Ingest statuses.
const (
	StatusOK          = "ok"
	StatusUnsupported = "unsupported"
	StatusCancelled   = "cancelled"
	StatusError       = "error"
)

// Metrics owns a registry so several instances can coexist in tests.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	IngestRequests     *prometheus.CounterVec
	AdvisorCalls       *prometheus.CounterVec
	ExtractionDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them, plus the Go runtime and
// process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		IngestRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mira_ingest_requests_total",
				Help: "Total number of ingest requests by detected format and status",
			},
			[]string{"format", "status"},
		),
		AdvisorCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mira_advisor_calls_total",
				Help: "Total number of model advisor calls by task and outcome",
			},
			[]string{"task", "outcome"},
		),
		ExtractionDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mira_extraction_duration_seconds",
				Help:    "Duration of format extraction in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func (m *Metrics) ObserveIngest(format, status string) {
	if m == nil {
		return
	}
	m.IngestRequests.WithLabelValues(format, status).Inc()
}

func (m *Metrics) ObserveExtraction(format string, d time.Duration) {
	if m == nil {
		return
	}
	m.ExtractionDuration.WithLabelValues(format).Observe(d.Seconds())
}

// ObserveAdvisor has the signature of advisor.LLMConfig.Observe.
func (m *Metrics) ObserveAdvisor(task string, err error) {
	if m == nil {
		return
	}
	m.AdvisorCalls.WithLabelValues(task, AdvisorOutcome(err)).Inc()
}

// AdvisorOutcome maps an advisor error to a metric label.
func AdvisorOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, advisor.ErrMalformedResponse):
		return "malformed"
	default:
		return "error"
	}
}
