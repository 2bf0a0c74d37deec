package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ppiankov/cvlacsync/internal/model"
)

// Metrics exposes pass counters for Prometheus
type Metrics struct {
	attempted    prometheus.Counter
	succeeded    prometheus.Counter
	failed       *prometheus.CounterVec
	facts        prometheus.Counter
	itemDuration prometheus.Histogram
	lastPass     prometheus.Gauge
}

// NewMetrics creates the pass metrics and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cvlacsync",
			Name:      "items_attempted_total",
			Help:      "Work items attempted.",
		}),
		succeeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cvlacsync",
			Name:      "items_succeeded_total",
			Help:      "Work items marked processed.",
		}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cvlacsync",
			Name:      "items_failed_total",
			Help:      "Work items that failed, by stage.",
		}, []string{"stage"}),
		facts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cvlacsync",
			Name:      "facts_persisted_total",
			Help:      "Extracted facts written to the store.",
		}),
		itemDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cvlacsync",
			Name:      "item_duration_seconds",
			Help:      "Time spent on one work item.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		lastPass: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cvlacsync",
			Name:      "last_pass_timestamp_seconds",
			Help:      "Unix time the last pass completed.",
		}),
	}
	reg.MustRegister(m.attempted, m.succeeded, m.failed, m.facts, m.itemDuration, m.lastPass)
	return m
}

func (m *Metrics) observeItem(res itemResult) {
	if m == nil {
		return
	}
	m.attempted.Inc()
	m.facts.Add(float64(res.persisted))
	m.itemDuration.Observe(res.elapsed.Seconds())
	if res.failure != nil {
		m.failed.WithLabelValues(string(res.failure.Stage)).Inc()
		return
	}
	m.succeeded.Inc()
}

func (m *Metrics) observePass(_ *model.Summary, finished time.Time) {
	if m == nil {
		return
	}
	m.lastPass.Set(float64(finished.Unix()))
}

// WriteTextfile writes every metric gathered by g in the node_exporter textfile format
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
