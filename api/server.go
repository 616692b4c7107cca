// Package api exposes the request/response surface of the coordinator:
// the seat lock endpoints and the read-side queries clients use to seed
// their live views.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/transitio/fleetcoord/core/alerts"
	"github.com/transitio/fleetcoord/core/location"
	"github.com/transitio/fleetcoord/core/logger"
	"github.com/transitio/fleetcoord/core/model"
	"github.com/transitio/fleetcoord/core/monitoring"
	"github.com/transitio/fleetcoord/core/seatlock"
)

// Server wires the coordinator components into echo routes.
type Server struct {
	locks   *seatlock.Manager
	arbiter *location.Arbiter
	alerts  *alerts.Dispatcher
	log     logger.Logger
}

// NewServer creates a Server.
func NewServer(locks *seatlock.Manager, arbiter *location.Arbiter, dispatcher *alerts.Dispatcher, log logger.Logger) *Server {
	return &Server{locks: locks, arbiter: arbiter, alerts: dispatcher, log: log}
}

// Register mounts all routes on the echo instance.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", health)
	v1 := e.Group("/v1")
	v1.POST("/holds", s.acquireHold)
	v1.POST("/holds/release", s.releaseHold)
	v1.POST("/holds/confirm", s.confirmBooking)
	v1.GET("/buses/:busId/seats", s.seats)
	v1.GET("/buses/:busId/location", s.busLocation)
	v1.GET("/buses/:busId/alerts", s.busAlerts)
}

func health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

type holdRequest struct {
	BusID      string `json:"bus_id"`
	SeatNumber int    `json:"seat_number"`
	HolderID   string `json:"holder_id"`
	TTLSeconds int    `json:"ttl_seconds"`
}

type holdResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type conflictResponse struct {
	Reason string `json:"reason"`
}

// identity resolves the caller identity: the gateway-injected header
// wins, the body field is the fallback for trusted internal callers.
func identity(c echo.Context, bodyID string) string {
	if id := c.Request().Header.Get("X-User-ID"); id != "" {
		return id
	}
	return bodyID
}

func (s *Server) acquireHold(c echo.Context) error {
	var req holdRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, conflictResponse{Reason: "malformed_body"})
	}
	holderID := identity(c, req.HolderID)
	if req.BusID == "" || holderID == "" {
		return c.JSON(http.StatusBadRequest, conflictResponse{Reason: "missing_field"})
	}
	ttl := time.Duration(req.TTLSeconds) * time.Second

	hold, err := s.locks.AcquireHold(req.BusID, req.SeatNumber, holderID, ttl)
	if err != nil {
		return s.lockError(c, err)
	}
	return c.JSON(http.StatusCreated, holdResponse{Token: hold.Token, ExpiresAt: hold.ExpiresAt})
}

type tokenRequest struct {
	Token    string `json:"token"`
	HolderID string `json:"holder_id"`
}

func (s *Server) releaseHold(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, conflictResponse{Reason: "malformed_body"})
	}
	if err := s.locks.ReleaseHold(req.Token); err != nil {
		return s.lockError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) confirmBooking(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, conflictResponse{Reason: "malformed_body"})
	}
	if err := s.locks.ConfirmBooking(req.Token, identity(c, req.HolderID)); err != nil {
		return s.lockError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

// lockError maps the seat lock taxonomy onto HTTP statuses: not-found
// distinguishes bad references, conflict carries a machine-readable
// reason so the caller can choose between "try another seat" and "your
// hold expired" messaging.
func (s *Server) lockError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, seatlock.ErrSeatNotFound):
		return c.JSON(http.StatusNotFound, conflictResponse{Reason: "seat_not_found"})
	case errors.Is(err, seatlock.ErrSeatAlreadyHeld):
		return c.JSON(http.StatusConflict, conflictResponse{Reason: "seat_already_held"})
	case errors.Is(err, seatlock.ErrSeatBooked):
		return c.JSON(http.StatusConflict, conflictResponse{Reason: "seat_booked"})
	case errors.Is(err, seatlock.ErrHoldExpired):
		return c.JSON(http.StatusConflict, conflictResponse{Reason: "hold_expired"})
	case errors.Is(err, seatlock.ErrHoldNotOwned):
		return c.JSON(http.StatusConflict, conflictResponse{Reason: "hold_not_owned"})
	case errors.Is(err, seatlock.ErrHoldNotFound):
		return c.JSON(http.StatusConflict, conflictResponse{Reason: "hold_not_found"})
	default:
		s.log.Errorf("lock operation failed: %v", err)
		monitoring.CaptureException(err, map[string]string{"component": "api"})
		return c.NoContent(http.StatusInternalServerError)
	}
}

type seatResponse struct {
	Number   int    `json:"number"`
	Status   string `json:"status"`
	Category string `json:"category,omitempty"`
}

func (s *Server) seats(c echo.Context) error {
	seats, err := s.locks.Seats(c.Param("busId"))
	if err != nil {
		return c.JSON(http.StatusNotFound, conflictResponse{Reason: "bus_not_found"})
	}
	out := make([]seatResponse, 0, len(seats))
	for _, seat := range seats {
		out = append(out, seatResponse{Number: seat.Number, Status: seat.Status.String(), Category: seat.Category})
	}
	return c.JSON(http.StatusOK, out)
}

type locationResponse struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	AccuracyM  float64   `json:"accuracy_m"`
	Source     string    `json:"source"`
	ObservedAt time.Time `json:"observed_at"`
}

func (s *Server) busLocation(c echo.Context) error {
	sample, ok := s.arbiter.Authoritative(c.Param("busId"))
	if !ok {
		return c.JSON(http.StatusNotFound, conflictResponse{Reason: "no_position"})
	}
	return c.JSON(http.StatusOK, locationResponse{
		Lat:        sample.Lat,
		Lng:        sample.Lng,
		AccuracyM:  sample.AccuracyM,
		Source:     sample.Source,
		ObservedAt: sample.ObservedAt,
	})
}

func (s *Server) busAlerts(c echo.Context) error {
	since := time.Time{}
	if raw := c.QueryParam("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, conflictResponse{Reason: "bad_since"})
		}
		since = parsed
	}
	evs, err := s.alerts.Missed(c.Request().Context(), c.Param("busId"), since)
	if err != nil {
		if errors.Is(err, alerts.ErrUnknownBus) {
			return c.JSON(http.StatusNotFound, conflictResponse{Reason: "bus_not_found"})
		}
		s.log.Errorf("alert backlog fetch failed: %v", err)
		return c.NoContent(http.StatusInternalServerError)
	}
	if evs == nil {
		evs = []model.AlertEvent{}
	}
	return c.JSON(http.StatusOK, evs)
}
