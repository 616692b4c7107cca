package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/transitio/fleetcoord/core/metrics"
	"github.com/transitio/fleetcoord/core/model"
	"github.com/transitio/fleetcoord/infra/logger"
)

// InfluxSink writes location and alert telemetry to an InfluxDB instance
// using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg coremetrics.Config) *InfluxSink {
	base := strings.TrimSuffix(cfg.InfluxURL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.InfluxToken,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg coremetrics.Config) coremetrics.Sink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordSeatTransition writes the transition as a point.
func (s *InfluxSink) RecordSeatTransition(ev coremetrics.SeatTransitionEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("seat_transition").
		AddTag("bus_id", ev.BusID).
		AddTag("status", ev.Status.String()).
		AddTag("reason", ev.Reason).
		AddField("seat_number", ev.SeatNumber).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordLocationPublish writes the broadcast position as a point.
func (s *InfluxSink) RecordLocationPublish(sample model.LocationSample) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("bus_location").
		AddTag("bus_id", sample.BusID).
		AddTag("source", sample.Source).
		AddField("lat", sample.Lat).
		AddField("lng", sample.Lng).
		AddField("accuracy_m", sample.AccuracyM).
		SetTime(sample.ObservedAt)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordAlert writes the alert as a point.
func (s *InfluxSink) RecordAlert(ev model.AlertEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("bus_alert").
		AddTag("bus_id", ev.BusID).
		AddTag("type", ev.Type.String()).
		AddField("alert_id", ev.ID).
		SetTime(ev.CreatedAt)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }
