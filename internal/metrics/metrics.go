// Package metrics exposes Prometheus collectors for monitor runs.
//
// A run is a short-lived process, so collectors live in a private registry
// that is written to a node_exporter textfile at the end of the run instead
// of being scraped.
package metrics

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the per-process collectors.
type Recorder struct {
	registry        *prometheus.Registry
	runsTotal       *prometheus.CounterVec
	changesTotal    prometheus.Counter
	publishFailures prometheus.Counter
	runDuration     prometheus.Histogram
	lastRun         prometheus.Gauge
}

// RunObservation summarises one finished run.
type RunObservation struct {
	Outcome       string
	Changed       bool
	PublishFailed bool
	Duration      time.Duration
	FinishedAt    time.Time
}

// New creates a Recorder whose series carry a site label derived from
// targetURL.
func New(targetURL string) *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	labels := prometheus.Labels{"site": SanitizeSite(targetURL)}

	return &Recorder{
		registry: reg,
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "pagewatch_runs_total",
				Help:        "Total number of monitor runs, labeled by outcome.",
				ConstLabels: labels,
			},
			[]string{"outcome"},
		),
		changesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name:        "pagewatch_changes_total",
				Help:        "Total number of runs that detected a region change.",
				ConstLabels: labels,
			},
		),
		publishFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name:        "pagewatch_publish_failures_total",
				Help:        "Total number of change notifications that failed to publish.",
				ConstLabels: labels,
			},
		),
		runDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:        "pagewatch_run_duration_seconds",
				Help:        "Histogram of monitor run durations.",
				Buckets:     []float64{1, 2, 5, 10, 20, 30, 60},
				ConstLabels: labels,
			},
		),
		lastRun: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "pagewatch_last_run_timestamp_seconds",
				Help:        "Unix time the last run finished.",
				ConstLabels: labels,
			},
		),
	}
}

// Registry returns the private registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveRun records one finished run.
func (r *Recorder) ObserveRun(obs RunObservation) {
	r.runsTotal.WithLabelValues(obs.Outcome).Inc()
	if obs.Changed {
		r.changesTotal.Inc()
	}
	if obs.PublishFailed {
		r.publishFailures.Inc()
	}
	r.runDuration.Observe(obs.Duration.Seconds())
	if !obs.FinishedAt.IsZero() {
		r.lastRun.Set(float64(obs.FinishedAt.Unix()))
	}
}

// WriteTextfile writes the registry in text exposition format to path.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
