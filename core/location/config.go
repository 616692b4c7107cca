package location

import (
	"fmt"
	"time"
)

// Config defines arbitration and broadcast parameters.
type Config struct {
	// PublishIntervalSeconds bounds the fan-out rate: at most one
	// bus:location broadcast per bus per interval.
	PublishIntervalSeconds int `json:"publish_interval_seconds"`
	// SampleIntervalSeconds is the cadence producers are expected to
	// report at.
	SampleIntervalSeconds int `json:"sample_interval_seconds"`
	// StalenessMultiplier scales the sample interval into the maximum
	// age a high-priority source may reach before arbitration falls back
	// to fresher sources.
	StalenessMultiplier float64 `json:"staleness_multiplier"`
	// SourcePriority ranks sources, highest priority first.
	SourcePriority []string `json:"source_priority"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.PublishIntervalSeconds == 0 {
		c.PublishIntervalSeconds = 5
	}
	if c.SampleIntervalSeconds == 0 {
		c.SampleIntervalSeconds = 5
	}
	if c.StalenessMultiplier == 0 {
		c.StalenessMultiplier = 2
	}
	if len(c.SourcePriority) == 0 {
		c.SourcePriority = []string{"vehicle-hardware", "handheld"}
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.PublishIntervalSeconds < 0 || c.SampleIntervalSeconds <= 0 {
		return fmt.Errorf("sample and publish intervals must be positive")
	}
	if c.StalenessMultiplier < 1 {
		return fmt.Errorf("staleness_multiplier must be at least 1")
	}
	if len(c.SourcePriority) == 0 {
		return fmt.Errorf("source_priority is required")
	}
	return nil
}

// StalenessThreshold returns the maximum sample age before fallback.
func (c Config) StalenessThreshold() time.Duration {
	return time.Duration(c.StalenessMultiplier * float64(c.SampleIntervalSeconds) * float64(time.Second))
}

// PublishInterval returns the minimum delay between broadcasts per bus.
func (c Config) PublishInterval() time.Duration {
	return time.Duration(c.PublishIntervalSeconds) * time.Second
}
