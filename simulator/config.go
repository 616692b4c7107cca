package main

import (
	"fmt"
	"time"
)

// Config holds parameters for the simulator.
type Config struct {
	Broker      string
	TopicPrefix string
	Count       int
	Interval    time.Duration
	AlertRate   float64
	// CenterLat and CenterLng anchor the simulated routes.
	CenterLat float64
	CenterLng float64
	Verbose   bool
}

func (c *Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("broker is required")
	}
	if c.Count <= 0 {
		return fmt.Errorf("count must be positive")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if c.AlertRate < 0 || c.AlertRate > 1 {
		return fmt.Errorf("alert-rate must be within [0,1]")
	}
	return nil
}
