package app

import (
	"context"
	"testing"
	"time"

	"github.com/transitio/fleetcoord/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Roster.Buses = []config.BusSeed{
		{ID: "B1", OwnerID: "O1", DriverID: "D1", Seats: 3},
	}
	return cfg
}

func TestNewServiceStaticRoster(t *testing.T) {
	svc, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer svc.Close()

	hold, err := svc.Locks.AcquireHold("B1", 1, "rider-1", 0)
	if err != nil {
		t.Fatalf("AcquireHold through assembled service: %v", err)
	}
	if err := svc.Locks.ConfirmBooking(hold.Token, "rider-1"); err != nil {
		t.Fatalf("ConfirmBooking: %v", err)
	}
}

func TestNewServiceRejectsEmptyRoster(t *testing.T) {
	cfg := testConfig()
	cfg.Roster.Buses = nil
	svc, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer svc.Close()
	if _, err := svc.Locks.AcquireHold("B1", 1, "rider-1", 0); err == nil {
		t.Fatal("expected unknown bus on an empty roster")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	svc, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
