// Package metrics exposes broker-fabric telemetry as Prometheus metrics,
// modeled on the teacher's root metrics.go (private vars registered once,
// label-vectored counters/gauges keyed by broker id here instead of by
// disconnect reason/channel).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements broker.Recorder against a private Prometheus
// registry (the teacher registers against the global default registry;
// a private one here avoids collisions across repeated test construction).
type Collector struct {
	registry *prometheus.Registry

	queueDepth        *prometheus.GaugeVec
	subscriptionCount *prometheus.GaugeVec
	processedTotal    *prometheus.CounterVec
	matchedTotal      *prometheus.CounterVec
	windowFiredTotal  *prometheus.CounterVec
	crashTotal        *prometheus.CounterVec
}

// New builds a Collector and registers every metric with a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "psf_broker_queue_depth",
			Help: "Current number of publications waiting in a broker's inbound queue.",
		}, []string{"broker_id"}),
		subscriptionCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "psf_broker_subscriptions",
			Help: "Current number of subscriptions held by a broker.",
		}, []string{"broker_id"}),
		processedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "psf_broker_publications_processed_total",
			Help: "Total publications processed by a broker.",
		}, []string{"broker_id"}),
		matchedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "psf_broker_matches_total",
			Help: "Total subscription matches found by a broker.",
		}, []string{"broker_id"}),
		windowFiredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "psf_broker_windows_fired_total",
			Help: "Total tumbling windows that evaluated to a match.",
		}, []string{"broker_id"}),
		crashTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "psf_broker_worker_crashes_total",
			Help: "Total worker loop crashes recovered by the supervisor.",
		}, []string{"broker_id"}),
	}

	c.registry.MustRegister(
		c.queueDepth,
		c.subscriptionCount,
		c.processedTotal,
		c.matchedTotal,
		c.windowFiredTotal,
		c.crashTotal,
	)

	return c
}

func (c *Collector) SetQueueDepth(brokerID string, depth int) {
	c.queueDepth.WithLabelValues(brokerID).Set(float64(depth))
}

func (c *Collector) SetSubscriptionCount(brokerID string, count int) {
	c.subscriptionCount.WithLabelValues(brokerID).Set(float64(count))
}

func (c *Collector) IncProcessed(brokerID string) {
	c.processedTotal.WithLabelValues(brokerID).Inc()
}

func (c *Collector) IncMatched(brokerID string) {
	c.matchedTotal.WithLabelValues(brokerID).Inc()
}

func (c *Collector) IncWindowFired(brokerID string) {
	c.windowFiredTotal.WithLabelValues(brokerID).Inc()
}

func (c *Collector) IncCrash(brokerID string) {
	c.crashTotal.WithLabelValues(brokerID).Inc()
}

// Handler serves the registered metrics in the Prometheus text exposition
// format, for mounting at /metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
