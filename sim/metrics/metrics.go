// Package metrics implements Prometheus counters for path selection and
// link-layer forwarding decisions.
//
// Each Collector owns its registry so independent simulations never share
// counters. All Observe methods are safe on a nil *Collector.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pplb"

// Collector groups the counters of one simulation.
type Collector struct {
	registry *prometheus.Registry

	// SelectionsTotal counts path selections by policy and egress interface.
	SelectionsTotal *prometheus.CounterVec
	// FallbacksTotal counts packets handed to the fallback router.
	FallbacksTotal prometheus.Counter
	// MissingSourceTotal counts routes built on interfaces without an address.
	MissingSourceTotal prometheus.Counter
	// ForwardedTotal counts rewritten frames by direction and channel.
	ForwardedTotal *prometheus.CounterVec
	// DroppedTotal counts dropped packets by reason.
	DroppedTotal *prometheus.CounterVec
	// RoundTripSeconds measures probe round-trip times.
	RoundTripSeconds prometheus.Histogram
}

// NewCollector creates a Collector registered on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Collector{
		registry: reg,
		SelectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "selections_total",
				Help:      "Total number of per-packet path selections",
			},
			[]string{"policy", "interface"},
		),
		FallbacksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Total number of packets delegated to the fallback router",
		}),
		MissingSourceTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "missing_source_total",
			Help:      "Total number of routes built on an interface without an address",
		}),
		ForwardedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "forwarded_total",
				Help:      "Total number of frames rewritten and forwarded",
			},
			[]string{"direction", "channel"},
		),
		DroppedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dropped_total",
				Help:      "Total number of dropped packets",
			},
			[]string{"reason"},
		),
		RoundTripSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "round_trip_seconds",
			Help:      "Round-trip time of probe packets in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16), // 100µs to ~3.3s
		}),
	}
}

// Registry returns the registry holding this collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) ObserveSelection(policy string, iface int) {
	if c == nil {
		return
	}
	c.SelectionsTotal.WithLabelValues(policy, strconv.Itoa(iface)).Inc()
}

func (c *Collector) ObserveFallback() {
	if c == nil {
		return
	}
	c.FallbacksTotal.Inc()
}

func (c *Collector) ObserveMissingSource() {
	if c == nil {
		return
	}
	c.MissingSourceTotal.Inc()
}

// ObserveForward counts one rewritten frame. direction is "to-server" or "to-client".
func (c *Collector) ObserveForward(direction string, channel int) {
	if c == nil {
		return
	}
	c.ForwardedTotal.WithLabelValues(direction, strconv.Itoa(channel)).Inc()
}

func (c *Collector) ObserveDrop(reason string) {
	if c == nil {
		return
	}
	c.DroppedTotal.WithLabelValues(reason).Inc()
}

func (c *Collector) ObserveRoundTrip(rtt time.Duration) {
	if c == nil {
		return
	}
	c.RoundTripSeconds.Observe(rtt.Seconds())
}
