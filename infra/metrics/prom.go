package metrics

import (
	coremetrics "github.com/transitio/fleetcoord/core/metrics"
	"github.com/transitio/fleetcoord/core/model"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records coordinator events in Prometheus metrics.
type PromSink struct {
	seatTransitions *prometheus.CounterVec
	holdConflicts   *prometheus.CounterVec
	locations       *prometheus.CounterVec
	sampleDrops     *prometheus.CounterVec
	alerts          *prometheus.CounterVec
	channels        prometheus.Gauge
}

// NewPromSink registers coordinator metrics on the default Prometheus
// registerer. The Prometheus server should be started separately using
// cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (*PromSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	seatTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seat_transitions_total",
		Help: "Total number of seat status transitions",
	}, []string{"bus_id", "status", "reason"})
	holdConflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hold_conflicts_total",
		Help: "Total number of rejected hold or confirm attempts",
	}, []string{"bus_id", "reason"})
	locations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "location_publishes_total",
		Help: "Total number of authoritative location broadcasts",
	}, []string{"bus_id", "source"})
	sampleDrops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "location_samples_dropped_total",
		Help: "Total number of location samples excluded from arbitration",
	}, []string{"source", "reason"})
	alerts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alerts_triggered_total",
		Help: "Total number of safety alerts triggered",
	}, []string{"bus_id", "type"})
	channels := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pubsub_channels",
		Help: "Number of live pub/sub channels",
	})

	s := &PromSink{
		seatTransitions: seatTransitions,
		holdConflicts:   holdConflicts,
		locations:       locations,
		sampleDrops:     sampleDrops,
		alerts:          alerts,
		channels:        channels,
	}
	for _, c := range []**prometheus.CounterVec{&s.seatTransitions, &s.holdConflicts, &s.locations, &s.sampleDrops, &s.alerts} {
		cur, err := registerCounterVec(reg, *c)
		if err != nil {
			return nil, err
		}
		*c = cur
	}
	if err := reg.Register(channels); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			s.channels = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}
	return s, nil
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.CounterVec), nil
		}
		return nil, err
	}
	return c, nil
}

// RecordSeatTransition increments the transition counter.
func (s *PromSink) RecordSeatTransition(ev coremetrics.SeatTransitionEvent) error {
	s.seatTransitions.WithLabelValues(ev.BusID, ev.Status.String(), ev.Reason).Inc()
	return nil
}

// RecordHoldConflict increments the conflict counter.
func (s *PromSink) RecordHoldConflict(busID, reason string) error {
	s.holdConflicts.WithLabelValues(busID, reason).Inc()
	return nil
}

// RecordLocationPublish increments the broadcast counter.
func (s *PromSink) RecordLocationPublish(sample model.LocationSample) error {
	s.locations.WithLabelValues(sample.BusID, sample.Source).Inc()
	return nil
}

// RecordSampleDrop increments the drop counter.
func (s *PromSink) RecordSampleDrop(_, source, reason string) error {
	s.sampleDrops.WithLabelValues(source, reason).Inc()
	return nil
}

// RecordAlert increments the alert counter.
func (s *PromSink) RecordAlert(ev model.AlertEvent) error {
	s.alerts.WithLabelValues(ev.BusID, ev.Type.String()).Inc()
	return nil
}

// RecordChannelCount sets the channel gauge.
func (s *PromSink) RecordChannelCount(n int) error {
	s.channels.Set(float64(n))
	return nil
}
