// Package metrics exposes node statistics to Prometheus.
//
// An Exporter is fed smqtt.Stats snapshots, typically from the node's
// OnStats callback, and mirrors them into gauges and counters registered
// on a caller-supplied registry.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/backkem/meshmqtt/pkg/smqtt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "smqtt"

// ErrNodeRequired is returned when the exporter is built without a node name.
var ErrNodeRequired = errors.New("metrics: node name required")

// ExporterConfig configures an Exporter.
type ExporterConfig struct {
	// Node is the mesh name reported in the "node" label (required).
	Node string

	// Namespace is the metric name prefix (default: DefaultNamespace).
	Namespace string

	// Registerer receives the collectors (default: prometheus.DefaultRegisterer).
	Registerer prometheus.Registerer
}

// Exporter mirrors node statistics into Prometheus collectors.
type Exporter struct {
	rtt        *prometheus.GaugeVec
	slotsUsed  prometheus.Gauge
	slotsCap   prometheus.Gauge
	memoryUsed prometheus.Gauge
	memoryCap  prometheus.Gauge
	deferred   prometheus.Gauge
	waiting    prometheus.Gauge
	resends    prometheus.Counter
	acks       prometheus.Counter
	failures   prometheus.Counter
	collectors []prometheus.Collector
	registerer prometheus.Registerer

	mu         sync.Mutex
	lastResend uint32
	lastAck    uint32
}

// NewExporter creates the collectors and registers them.
func NewExporter(config ExporterConfig) (*Exporter, error) {
	if config.Node == "" {
		return nil, ErrNodeRequired
	}
	if config.Namespace == "" {
		config.Namespace = DefaultNamespace
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.DefaultRegisterer
	}

	labels := prometheus.Labels{"node": config.Node}
	gauge := func(subsystem, name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}

	e := &Exporter{
		rtt: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   config.Namespace,
				Name:        "rtt_milliseconds",
				Help:        "Acknowledgement round-trip time by statistic (min, max, fast, medium, slow).",
				ConstLabels: labels,
			},
			[]string{"stat"},
		),
		slotsUsed:  gauge("cache", "slots_used", "Message cache entries in use."),
		slotsCap:   gauge("cache", "slots_capacity", "Message cache entry capacity."),
		memoryUsed: gauge("cache", "memory_used_bytes", "Payload bytes held by the message cache."),
		memoryCap:  gauge("cache", "memory_capacity_bytes", "Payload byte budget of the message cache."),
		deferred:   gauge("", "deferred_sends", "Sends queued while a handler was running."),
		waiting:    gauge("", "sync_waiters", "Synchronous senders waiting for an acknowledgement."),
		resends:    counter("resends_total", "Retransmitted messages."),
		acks:       counter("acks_total", "Acknowledgements matched to a pending message."),
		failures:   counter("delivery_failures_total", "Messages that exhausted their retry budget."),
		registerer: config.Registerer,
	}
	e.collectors = []prometheus.Collector{
		e.rtt, e.slotsUsed, e.slotsCap, e.memoryUsed, e.memoryCap,
		e.deferred, e.waiting, e.resends, e.acks, e.failures,
	}

	for i, c := range e.collectors {
		if err := config.Registerer.Register(c); err != nil {
			for _, done := range e.collectors[:i] {
				config.Registerer.Unregister(done)
			}
			return nil, fmt.Errorf("metrics: register: %w", err)
		}
	}

	return e, nil
}

// Observe copies a statistics snapshot into the collectors. Counters advance
// by the difference from the previous snapshot; a snapshot whose counter is
// lower than the last one is taken as a restart and counted in full.
func (e *Exporter) Observe(s smqtt.Stats) {
	e.slotsUsed.Set(float64(s.UsedSlots))
	e.slotsCap.Set(float64(s.Capacity))
	e.memoryUsed.Set(float64(s.UsedMemory))
	e.memoryCap.Set(float64(s.MaxMem))
	e.deferred.Set(float64(s.Deferred))
	e.waiting.Set(float64(s.Waiting))

	t := s.Telemetry
	if t.AckPackets > 0 {
		e.rtt.WithLabelValues("min").Set(float64(t.RTTMin))
		e.rtt.WithLabelValues("max").Set(float64(t.RTTMax))
		e.rtt.WithLabelValues("fast").Set(t.Fast())
		e.rtt.WithLabelValues("medium").Set(t.Medium())
		e.rtt.WithLabelValues("slow").Set(t.Slow())
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.resends.Add(float64(delta(e.lastResend, t.ResendPackets)))
	e.acks.Add(float64(delta(e.lastAck, t.AckPackets)))
	e.lastResend = t.ResendPackets
	e.lastAck = t.AckPackets
}

// DeliveryFailed counts one message that ran out of retries. Its signature
// matches smqtt.DeliveryFailedHandler.
func (e *Exporter) DeliveryFailed(replyID uint32, err error) {
	e.failures.Inc()
}

// Unregister removes the collectors from the registry.
func (e *Exporter) Unregister() {
	for _, c := range e.collectors {
		e.registerer.Unregister(c)
	}
}

func delta(last, now uint32) uint32 {
	if now < last {
		return now
	}
	return now - last
}

// Handler serves the metrics in g in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
