// Package app assembles the coordinator from its configuration: the
// channel registry, the seat lock manager, the location arbiter, the
// alert dispatcher and the transports that feed and expose them.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/transitio/fleetcoord/api"
	"github.com/transitio/fleetcoord/api/ws"
	"github.com/transitio/fleetcoord/config"
	"github.com/transitio/fleetcoord/core/alerts"
	"github.com/transitio/fleetcoord/core/location"
	coremetrics "github.com/transitio/fleetcoord/core/metrics"
	"github.com/transitio/fleetcoord/core/monitoring"
	"github.com/transitio/fleetcoord/core/roster"
	"github.com/transitio/fleetcoord/core/seatlock"
	"github.com/transitio/fleetcoord/infra/backlog"
	"github.com/transitio/fleetcoord/infra/logger"
	"github.com/transitio/fleetcoord/infra/metrics"
	infraMonitoring "github.com/transitio/fleetcoord/infra/monitoring"
	"github.com/transitio/fleetcoord/infra/mqtt"
	infraroster "github.com/transitio/fleetcoord/infra/roster"
	"github.com/transitio/fleetcoord/internal/channels"
)

// channelGaugeInterval drives the periodic pubsub channel-count sample.
const channelGaugeInterval = 15 * time.Second

// Service owns the coordinator components and their lifecycles.
type Service struct {
	Locks   *seatlock.Manager
	Arbiter *location.Arbiter
	Alerts  *alerts.Dispatcher

	cfg  *config.Config
	log  logger.Logger
	reg  *channels.Registry
	sink coremetrics.Sink
	echo *echo.Echo

	ingestor *mqtt.Ingestor
	db       *sql.DB
	redis    *backlog.RedisBacklog
	influx   *metrics.InfluxSink
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")
	svc := &Service{cfg: cfg, log: logg, reg: channels.NewRegistry()}

	monitor, err := infraMonitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	monitoring.Init(monitor)

	var sinks []coremetrics.Sink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink(cfg.Metrics)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sink := metrics.NewInfluxSinkWithFallback(cfg.Metrics)
		if influx, ok := sink.(*metrics.InfluxSink); ok {
			svc.influx = influx
		}
		sinks = append(sinks, sink)
	}
	switch len(sinks) {
	case 0:
		svc.sink = coremetrics.NopSink{}
	case 1:
		svc.sink = sinks[0]
	default:
		svc.sink = metrics.NewMultiSink(sinks...)
	}

	fleet, err := svc.loadRoster()
	if err != nil {
		return nil, err
	}

	locks, err := seatlock.NewManager(cfg.Locks, fleet.Buses(), svc.reg, svc.sink, logg)
	if err != nil {
		return nil, fmt.Errorf("seat lock manager: %w", err)
	}
	svc.Locks = locks

	arbiter, err := location.NewArbiter(cfg.Location, svc.reg, svc.sink, logg)
	if err != nil {
		return nil, fmt.Errorf("location arbiter: %w", err)
	}
	svc.Arbiter = arbiter

	store, err := svc.openBacklog()
	if err != nil {
		return nil, err
	}
	dispatcher, err := alerts.NewDispatcher(cfg.Alerts, svc.reg, store, fleet, svc.sink, logg)
	if err != nil {
		return nil, fmt.Errorf("alert dispatcher: %w", err)
	}
	svc.Alerts = dispatcher

	if cfg.MQTT.Enabled {
		ingestor, err := mqtt.NewIngestor(cfg.MQTT, arbiter, dispatcher)
		if err != nil {
			return nil, fmt.Errorf("mqtt ingestor: %w", err)
		}
		svc.ingestor = ingestor
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	api.NewServer(locks, arbiter, dispatcher, logg).Register(e)
	ws.NewGateway(svc.reg, arbiter, dispatcher, logg).Register(e)
	svc.echo = e
	return svc, nil
}

// loadRoster resolves the fleet definition from MySQL when enabled,
// falling back to the inline config roster.
func (s *Service) loadRoster() (roster.Roster, error) {
	if !s.cfg.Roster.MySQL.Enabled {
		return roster.NewStatic(s.cfg.Roster.BusInfos()), nil
	}
	db, err := infraroster.Open(s.cfg.Roster.MySQL)
	if err != nil {
		return nil, fmt.Errorf("fleet database: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	fleet, err := infraroster.Load(ctx, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("fleet roster: %w", err)
	}
	s.db = db
	return fleet, nil
}

func (s *Service) openBacklog() (alerts.Backlog, error) {
	if !s.cfg.Backlog.Enabled {
		return backlog.NewMemoryBacklog(), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store, err := backlog.NewRedisBacklog(ctx, s.cfg.Backlog)
	if err != nil {
		return nil, fmt.Errorf("alert backlog: %w", err)
	}
	s.redis = store
	return store, nil
}

// Run starts the background loops and the HTTP listener, then blocks
// until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	go s.Locks.Run(ctx)
	go s.Arbiter.Run(ctx)
	go s.Alerts.Run(ctx)
	go s.gaugeLoop(ctx)

	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(s.cfg.Server.Addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	s.log.Infof("coordinator listening on %s", s.cfg.Server.Addr)

	select {
	case err := <-errCh:
		monitoring.CaptureException(err, map[string]string{"component": "http"})
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		s.log.Warnf("http shutdown: %v", err)
	}
	return nil
}

// gaugeLoop samples the registry channel count for the metrics sink.
func (s *Service) gaugeLoop(ctx context.Context) {
	rec, ok := s.sink.(coremetrics.ChannelGaugeRecorder)
	if !ok {
		return
	}
	ticker := time.NewTicker(channelGaugeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := rec.RecordChannelCount(s.reg.Channels()); err != nil {
				s.log.Debugf("channel gauge: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close releases the service's external resources.
func (s *Service) Close() error {
	monitoring.Flush(2 * time.Second)
	if s.ingestor != nil {
		s.ingestor.Close()
	}
	s.reg.Close()
	if s.influx != nil {
		s.influx.Close()
	}
	var firstErr error
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			firstErr = err
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
