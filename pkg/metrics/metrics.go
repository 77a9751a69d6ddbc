// Package metrics exposes Prometheus collectors fed by generator,
// scheduler and bundler events.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jdziat/simple-qr-jobs/pkg/core"
)

// Namespace prefixes every metric name.
const Namespace = "qrjobs"

// Collector holds the Prometheus metrics.
type Collector struct {
	// tasksProcessed counts task outcomes.
	// Labels: status ("success", "retry", "failed"), kind.
	tasksProcessed *prometheus.CounterVec
	// generationDuration observes encoder latency by kind.
	generationDuration *prometheus.HistogramVec
	generationFailures *prometheus.CounterVec
	tasksInFlight      prometheus.Gauge
	// jobsFinished counts jobs by terminal status.
	jobsFinished *prometheus.CounterVec
	exports      *prometheus.CounterVec
	exportBytes  prometheus.Counter
}

// NewCollector registers the metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		tasksProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tasks_processed_total",
			Help:      "Batch task attempts by outcome and kind.",
		}, []string{"status", "kind"}),
		generationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "generation_duration_seconds",
			Help:      "Time spent rendering one QR code.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"kind"}),
		generationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "generation_failures_total",
			Help:      "Rejected or failed QR renders by kind.",
		}, []string{"kind"}),
		tasksInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "tasks_in_flight",
			Help:      "Task attempts currently running.",
		}),
		jobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "jobs_finished_total",
			Help:      "Batch jobs by terminal status.",
		}, []string{"status"}),
		exports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "exports_total",
			Help:      "Completed exports by format.",
		}, []string{"format"}),
		exportBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "export_bytes_total",
			Help:      "Bytes produced by completed exports.",
		}),
	}
}

// Record updates the metrics for one event.
func (c *Collector) Record(e core.Event) {
	switch ev := e.(type) {
	case *core.TaskStarted:
		c.tasksInFlight.Inc()
	case *core.TaskCompleted:
		c.tasksInFlight.Dec()
		c.tasksProcessed.WithLabelValues("success", string(ev.Kind)).Inc()
	case *core.TaskRetrying:
		c.tasksInFlight.Dec()
		c.tasksProcessed.WithLabelValues("retry", string(ev.Kind)).Inc()
	case *core.TaskFailed:
		c.tasksInFlight.Dec()
		c.tasksProcessed.WithLabelValues("failed", string(ev.Kind)).Inc()
	case *core.GenerationCompleted:
		c.generationDuration.WithLabelValues(string(ev.Kind)).Observe(ev.Duration.Seconds())
	case *core.GenerationFailed:
		c.generationFailures.WithLabelValues(string(ev.Kind)).Inc()
	case *core.JobFinished:
		c.jobsFinished.WithLabelValues(string(ev.Status)).Inc()
	case *core.ExportCompleted:
		c.exports.WithLabelValues(ev.Format).Inc()
		c.exportBytes.Add(float64(ev.Size))
	}
}

// Emit implements core.EventSink.
func (c *Collector) Emit(e core.Event) { c.Record(e) }

// Observe records events until the channel closes or ctx is done.
func (c *Collector) Observe(ctx context.Context, events <-chan core.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			c.Record(e)
		}
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
