package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once             sync.Once
	runDuration      prom.Histogram
	runOutcomes      *prom.CounterVec
	generateDuration prom.Histogram
	snapshotDuration *prom.HistogramVec
	publishResults   *prom.CounterVec
	queueDepth       prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.runDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "manifestd",
			Name:      "run_duration_seconds",
			Help:      "Total duration of refresh runs",
			Buckets:   prom.DefBuckets,
		})
		pr.runOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "manifestd",
			Name:      "run_outcomes_total",
			Help:      "Refresh run outcomes by final result",
		}, []string{"result"})
		pr.generateDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "manifestd",
			Name:      "generate_duration_seconds",
			Help:      "Duration of artifact generation",
			Buckets:   prom.DefBuckets,
		})
		pr.snapshotDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "manifestd",
			Name:      "snapshot_duration_seconds",
			Help:      "Duration of repository snapshot acquisition",
			Buckets:   prom.DefBuckets,
		}, []string{"result"})
		pr.publishResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "manifestd",
			Name:      "publish_results_total",
			Help:      "Publish attempts by success/failure",
		}, []string{"result"})
		pr.queueDepth = prom.NewGauge(prom.GaugeOpts{
			Namespace: "manifestd",
			Name:      "trigger_queue_depth",
			Help:      "Number of triggers waiting in the daemon queue",
		})
		reg.MustRegister(pr.runDuration, pr.runOutcomes, pr.generateDuration, pr.snapshotDuration, pr.publishResults, pr.queueDepth)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRunOutcome(result string) {
	if p == nil || p.runOutcomes == nil {
		return
	}
	p.runOutcomes.WithLabelValues(result).Inc()
}

func (p *PrometheusRecorder) ObserveGenerateDuration(d time.Duration) {
	if p == nil || p.generateDuration == nil {
		return
	}
	p.generateDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveSnapshotDuration(d time.Duration, success bool) {
	if p == nil || p.snapshotDuration == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.snapshotDuration.WithLabelValues(res).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncPublishResult(success bool) {
	if p == nil || p.publishResults == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.publishResults.WithLabelValues(res).Inc()
}

func (p *PrometheusRecorder) SetQueueDepth(n int) {
	if p == nil || p.queueDepth == nil {
		return
	}
	p.queueDepth.Set(float64(n))
}
