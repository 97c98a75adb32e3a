package session

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the client-side counters for the report stream.
type Metrics struct {
	passes       *prometheus.CounterVec
	records      prometheus.Counter
	skipped      prometheus.Counter
	pruned       prometheus.Counter
	nodes        prometheus.Gauge
	passDuration prometheus.Histogram
	connections  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which tests use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "memprof",
			Name:      "passes_total",
			Help:      "Report passes by outcome.",
		}, []string{"outcome"}),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "memprof",
			Name:      "records_total",
			Help:      "Records applied to the tree.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "memprof",
			Name:      "skipped_lines_total",
			Help:      "Lines read but not applied while paused.",
		}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "memprof",
			Name:      "pruned_nodes_total",
			Help:      "Stale nodes removed from the tree.",
		}),
		nodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "memprof",
			Name:      "tree_nodes",
			Help:      "Nodes in the tree after the last pass.",
		}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "memprof",
			Name:      "pass_duration_seconds",
			Help:      "Wall time of a report pass, including blocking reads.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "memprof",
			Name:      "connections_total",
			Help:      "Connection attempts by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.passes, m.records, m.skipped, m.pruned, m.nodes, m.passDuration, m.connections)
	}
	return m
}

func (m *Metrics) observePass(st PassStats) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(st.Outcome.String()).Inc()
	m.records.Add(float64(st.Records))
	m.skipped.Add(float64(st.Skipped))
	m.pruned.Add(float64(st.Pruned))
	m.nodes.Set(float64(st.Nodes))
	m.passDuration.Observe(st.Duration.Seconds())
}

func (m *Metrics) observeConnect(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.connections.WithLabelValues(result).Inc()
}
