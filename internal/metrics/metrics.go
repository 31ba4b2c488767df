// Package metrics exposes Prometheus collectors for the connection manager.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tangible"

// Collector groups the manager's metrics.
type Collector struct {
	availability *prometheus.CounterVec
	scanFailures prometheus.Counter
	connects     *prometheus.CounterVec
	reconnects   prometheus.Counter
	linkDrops    prometheus.Counter
	sends        *prometheus.CounterVec
	sendLatency  prometheus.Histogram
	queueDepth   prometheus.Gauge
	state        *prometheus.GaugeVec
}

// New creates a Collector and registers it with reg. A nil reg leaves the
// collectors unregistered.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		availability: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_checks_total",
			Help:      "Availability checks by result.",
		}, []string{"result"}),
		scanFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_failures_total",
			Help:      "Scans that ended with a radio error.",
		}),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Dial attempts by result.",
		}, []string{"result"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Links re-established after a drop.",
		}),
		linkDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_drops_total",
			Help:      "Links lost without a local disconnect.",
		}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_total",
			Help:      "Frames sent by result.",
		}, []string{"result"}),
		sendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_duration_seconds",
			Help:      "Time from write start to acknowledgment.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "send_queue_depth",
			Help:      "Frames waiting for the writer.",
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "1 for the current connection state, 0 otherwise.",
		}, []string{"state"}),
	}

	if reg != nil {
		reg.MustRegister(c.availability, c.scanFailures, c.connects, c.reconnects,
			c.linkDrops, c.sends, c.sendLatency, c.queueDepth, c.state)
	}
	return c
}

func (c *Collector) Availability(result string) {
	if c == nil {
		return
	}
	c.availability.WithLabelValues(result).Inc()
}

func (c *Collector) ScanFailed() {
	if c == nil {
		return
	}
	c.scanFailures.Inc()
}

// ConnectAttempt counts a dial; err nil means success.
func (c *Collector) ConnectAttempt(err error) {
	if c == nil {
		return
	}
	c.connects.WithLabelValues(resultLabel(err)).Inc()
}

func (c *Collector) Reconnected() {
	if c == nil {
		return
	}
	c.reconnects.Inc()
}

func (c *Collector) LinkDropped() {
	if c == nil {
		return
	}
	c.linkDrops.Inc()
}

// Sent records a finished send. result is "ok" or an error class.
func (c *Collector) Sent(result string, took time.Duration) {
	if c == nil {
		return
	}
	c.sends.WithLabelValues(result).Inc()
	if result == "ok" {
		c.sendLatency.Observe(took.Seconds())
	}
}

func (c *Collector) QueueDepth(n int) {
	if c == nil {
		return
	}
	c.queueDepth.Set(float64(n))
}

// State marks current as the only active state among all.
func (c *Collector) State(current string, all []string) {
	if c == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		c.state.WithLabelValues(s).Set(v)
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}
