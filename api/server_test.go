package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/transitio/fleetcoord/core/alerts"
	"github.com/transitio/fleetcoord/core/location"
	"github.com/transitio/fleetcoord/core/model"
	"github.com/transitio/fleetcoord/core/roster"
	"github.com/transitio/fleetcoord/core/seatlock"
	"github.com/transitio/fleetcoord/infra/backlog"
	"github.com/transitio/fleetcoord/infra/logger"
	"github.com/transitio/fleetcoord/internal/channels"
)

func testServer(t *testing.T) (*echo.Echo, *seatlock.Manager, *location.Arbiter) {
	t.Helper()

	buses := []model.BusInfo{
		{
			ID:       "B1",
			OwnerID:  "O1",
			DriverID: "D1",
			Seats: []model.SeatSpec{
				{Number: 1, Category: "standard"},
				{Number: 2, Category: "standard"},
			},
		},
	}
	reg := channels.NewRegistry()
	log := logger.NopLogger{}

	locks, err := seatlock.NewManager(seatlock.Config{}, buses, reg, nil, log)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	arb, err := location.NewArbiter(location.Config{}, reg, nil, log)
	if err != nil {
		t.Fatalf("NewArbiter: %v", err)
	}
	disp, err := alerts.NewDispatcher(alerts.Config{}, reg, backlog.NewMemoryBacklog(), roster.NewStatic(buses), nil, log)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	e := echo.New()
	NewServer(locks, arb, disp, log).Register(e)
	return e, locks, arb
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAcquireHold(t *testing.T) {
	e, _, _ := testServer(t)

	rec := doJSON(t, e, http.MethodPost, "/v1/holds", `{"bus_id":"B1","seat_number":1,"holder_id":"rider-1"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var resp holdResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected a hold token")
	}
	if !resp.ExpiresAt.After(time.Now()) {
		t.Fatalf("expires_at %v should be in the future", resp.ExpiresAt)
	}
}

func TestAcquireHoldConflict(t *testing.T) {
	e, _, _ := testServer(t)

	first := doJSON(t, e, http.MethodPost, "/v1/holds", `{"bus_id":"B1","seat_number":1,"holder_id":"rider-1"}`, nil)
	if first.Code != http.StatusCreated {
		t.Fatalf("first hold: status = %d", first.Code)
	}
	second := doJSON(t, e, http.MethodPost, "/v1/holds", `{"bus_id":"B1","seat_number":1,"holder_id":"rider-2"}`, nil)
	if second.Code != http.StatusConflict {
		t.Fatalf("second hold: status = %d, want %d", second.Code, http.StatusConflict)
	}
	var resp conflictResponse
	if err := json.Unmarshal(second.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Reason != "seat_already_held" {
		t.Fatalf("reason = %q, want seat_already_held", resp.Reason)
	}
}

func TestAcquireHoldValidation(t *testing.T) {
	e, _, _ := testServer(t)

	cases := []struct {
		name   string
		body   string
		status int
		reason string
	}{
		{"malformed body", `{`, http.StatusBadRequest, "malformed_body"},
		{"missing bus", `{"seat_number":1,"holder_id":"rider-1"}`, http.StatusBadRequest, "missing_field"},
		{"missing holder", `{"bus_id":"B1","seat_number":1}`, http.StatusBadRequest, "missing_field"},
		{"unknown bus", `{"bus_id":"nope","seat_number":1,"holder_id":"rider-1"}`, http.StatusNotFound, "seat_not_found"},
		{"unknown seat", `{"bus_id":"B1","seat_number":99,"holder_id":"rider-1"}`, http.StatusNotFound, "seat_not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, e, http.MethodPost, "/v1/holds", tc.body, nil)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			var resp conflictResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Reason != tc.reason {
				t.Fatalf("reason = %q, want %q", resp.Reason, tc.reason)
			}
		})
	}
}

func TestIdentityHeaderWins(t *testing.T) {
	e, locks, _ := testServer(t)

	rec := doJSON(t, e, http.MethodPost, "/v1/holds",
		`{"bus_id":"B1","seat_number":1,"holder_id":"body-id"}`,
		map[string]string{"X-User-ID": "header-id"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp holdResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Confirming as the header identity must succeed, proving the hold
	// was attributed to it rather than the body field.
	if err := locks.ConfirmBooking(resp.Token, "header-id"); err != nil {
		t.Fatalf("confirm as header identity: %v", err)
	}
}

func TestReleaseHold(t *testing.T) {
	e, _, _ := testServer(t)

	rec := doJSON(t, e, http.MethodPost, "/v1/holds", `{"bus_id":"B1","seat_number":1,"holder_id":"rider-1"}`, nil)
	var hold holdResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &hold); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rel := doJSON(t, e, http.MethodPost, "/v1/holds/release", `{"token":"`+hold.Token+`"}`, nil)
	if rel.Code != http.StatusOK {
		t.Fatalf("release: status = %d", rel.Code)
	}
	// Releasing again is a no-op, not an error.
	again := doJSON(t, e, http.MethodPost, "/v1/holds/release", `{"token":"`+hold.Token+`"}`, nil)
	if again.Code != http.StatusOK {
		t.Fatalf("second release: status = %d", again.Code)
	}
	// The empty token is the one release the API rejects.
	empty := doJSON(t, e, http.MethodPost, "/v1/holds/release", `{"token":""}`, nil)
	if empty.Code != http.StatusConflict {
		t.Fatalf("empty token release: status = %d, want %d", empty.Code, http.StatusConflict)
	}
}

func TestConfirmBooking(t *testing.T) {
	e, _, _ := testServer(t)

	rec := doJSON(t, e, http.MethodPost, "/v1/holds", `{"bus_id":"B1","seat_number":2,"holder_id":"rider-1"}`, nil)
	var hold holdResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &hold); err != nil {
		t.Fatalf("decode: %v", err)
	}

	wrong := doJSON(t, e, http.MethodPost, "/v1/holds/confirm", `{"token":"`+hold.Token+`","holder_id":"rider-2"}`, nil)
	if wrong.Code != http.StatusConflict {
		t.Fatalf("foreign confirm: status = %d, want %d", wrong.Code, http.StatusConflict)
	}

	ok := doJSON(t, e, http.MethodPost, "/v1/holds/confirm", `{"token":"`+hold.Token+`","holder_id":"rider-1"}`, nil)
	if ok.Code != http.StatusOK {
		t.Fatalf("confirm: status = %d: %s", ok.Code, ok.Body.String())
	}

	seats := doJSON(t, e, http.MethodGet, "/v1/buses/B1/seats", "", nil)
	var snapshot []seatResponse
	if err := json.Unmarshal(seats.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("decode seats: %v", err)
	}
	for _, seat := range snapshot {
		if seat.Number == 2 && seat.Status != "booked" {
			t.Fatalf("seat 2 status = %q, want booked", seat.Status)
		}
	}
}

func TestSeatsUnknownBus(t *testing.T) {
	e, _, _ := testServer(t)
	rec := doJSON(t, e, http.MethodGet, "/v1/buses/nope/seats", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestBusLocation(t *testing.T) {
	e, _, arb := testServer(t)

	rec := doJSON(t, e, http.MethodGet, "/v1/buses/B1/location", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("no samples yet: status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	err := arb.IngestSample(model.LocationSample{
		BusID:      "B1",
		Source:     model.SourceVehicleHardware,
		Lat:        48.85,
		Lng:        2.35,
		AccuracyM:  4,
		ObservedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	rec = doJSON(t, e, http.MethodGet, "/v1/buses/B1/location", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp locationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Lat != 48.85 || resp.Source != model.SourceVehicleHardware {
		t.Fatalf("unexpected location payload: %+v", resp)
	}
}

func TestBusAlerts(t *testing.T) {
	e, _, _ := testServer(t)

	rec := doJSON(t, e, http.MethodGet, "/v1/buses/B1/alerts", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Fatalf("empty backlog should encode as [], got %s", body)
	}

	rec = doJSON(t, e, http.MethodGet, "/v1/buses/nope/alerts", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown bus: status = %d", rec.Code)
	}

	rec = doJSON(t, e, http.MethodGet, "/v1/buses/B1/alerts?since=not-a-time", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad since: status = %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	e, _, _ := testServer(t)
	rec := doJSON(t, e, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
