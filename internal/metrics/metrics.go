// Package metrics exposes Prometheus instrumentation for the pipeline.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the service registers.
type Metrics struct {
	// ItemsFinished counts items reaching a terminal state, by state.
	ItemsFinished *prometheus.CounterVec
	// StageDuration observes wall time per pipeline stage.
	StageDuration *prometheus.HistogramVec
	// ChunksSynthesized counts individual chunk synthesis calls.
	ChunksSynthesized prometheus.Counter
	// QueueDepth tracks items waiting for a worker.
	QueueDepth prometheus.Gauge
	// FeedRefreshes counts feed refresh attempts, by outcome.
	FeedRefreshes *prometheus.CounterVec
}

var (
	once sync.Once
	m    *Metrics
)

// Get returns the process-wide metrics, registering the collectors on
// first use.
func Get() *Metrics {
	once.Do(func() {
		m = &Metrics{
			ItemsFinished: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "linkcast",
				Name:      "items_finished_total",
				Help:      "Work items that reached a terminal state.",
			}, []string{"state"}),
			StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "linkcast",
				Name:      "stage_duration_seconds",
				Help:      "Wall time spent per pipeline stage.",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			}, []string{"stage"}),
			ChunksSynthesized: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "linkcast",
				Name:      "chunks_synthesized_total",
				Help:      "Text chunks sent to the speech API.",
			}),
			QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
				Namespace: "linkcast",
				Name:      "queue_depth",
				Help:      "Items waiting for a pipeline worker.",
			}),
			FeedRefreshes: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "linkcast",
				Name:      "feed_refreshes_total",
				Help:      "Feed refresh attempts by outcome.",
			}, []string{"outcome"}),
		}
	})
	return m
}
