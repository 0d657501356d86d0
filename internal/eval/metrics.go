package eval

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments the harness with Prometheus counters/histograms for
// judge latency and run outcomes, grounded on the teacher's
// prometheus/client_golang dependency (present in go.mod but, before this
// package, never wired into an actual component).
type Metrics struct {
	judgeLatency *prometheus.HistogramVec
	runsTotal    *prometheus.CounterVec
}

// NewMetrics registers the harness's collectors against reg. Pass
// prometheus.NewRegistry() in tests to avoid polluting the default
// registry; pass prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		judgeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragquery",
			Subsystem: "eval",
			Name:      "judge_latency_seconds",
			Help:      "Latency of a single evaluator judge call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"judge"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragquery",
			Subsystem: "eval",
			Name:      "runs_total",
			Help:      "Evaluation runs by terminal status.",
		}, []string{"status"}),
	}
	if reg != nil {
		reg.MustRegister(m.judgeLatency, m.runsTotal)
	}
	return m
}

func (m *Metrics) observeJudge(judge string, d time.Duration) {
	if m == nil {
		return
	}
	m.judgeLatency.WithLabelValues(judge).Observe(d.Seconds())
}

func (m *Metrics) countRun(status RunStatus) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(string(status)).Inc()
}
