// Package ws is the live event surface: each websocket connection becomes
// a registry subscriber, and the same socket doubles as the ingest path
// for handheld devices reporting location and safety alerts.
package ws

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/transitio/fleetcoord/core/alerts"
	"github.com/transitio/fleetcoord/core/location"
	"github.com/transitio/fleetcoord/core/logger"
	"github.com/transitio/fleetcoord/core/model"
	"github.com/transitio/fleetcoord/internal/channels"
)

// Gateway upgrades HTTP requests into live sessions.
type Gateway struct {
	reg      *channels.Registry
	ing      Ingest
	log      logger.Logger
	upgrader websocket.Upgrader
}

// coordinatorIngest adapts the arbiter and dispatcher pair to the
// session's Ingest dependency.
type coordinatorIngest struct {
	arbiter *location.Arbiter
	alerts  *alerts.Dispatcher
}

func (c coordinatorIngest) IngestSample(s model.LocationSample) error {
	return c.arbiter.IngestSample(s)
}

func (c coordinatorIngest) TriggerAlert(ctx context.Context, typ model.AlertType, busID string, payload map[string]string, originID string) (model.AlertEvent, error) {
	return c.alerts.TriggerAlert(ctx, typ, busID, payload, originID)
}

// NewGateway creates a Gateway backed by the given coordinator components.
func NewGateway(reg *channels.Registry, arbiter *location.Arbiter, dispatcher *alerts.Dispatcher, log logger.Logger) *Gateway {
	return &Gateway{
		reg: reg,
		ing: coordinatorIngest{arbiter: arbiter, alerts: dispatcher},
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy belongs to the fronting gateway.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Register mounts the websocket route.
func (g *Gateway) Register(e *echo.Echo) {
	e.GET("/v1/ws", g.serve)
}

func (g *Gateway) serve(c echo.Context) error {
	conn, err := g.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		g.log.Debugf("websocket upgrade failed: %v", err)
		return nil
	}
	userID := c.Request().Header.Get("X-User-ID")
	s := newSession(conn, userID, g.reg, g.ing, g.log)
	g.log.Debugf("session %s opened (user=%q)", s.id, userID)
	go s.run()
	return nil
}
